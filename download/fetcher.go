// Package download fetches the image bytes of photo references
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"bitbucket.org/kleinnic74/pinphotos/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	op = "download"

	maxImageSize = 32 << 20
)

var (
	ErrEmptyContent = errors.New("empty response body")
	ErrTooLarge     = errors.New("response body too large")

	requestCount = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "download",
		Name:      "requests_total",
		Help:      "Total number of photo downloads started",
	})
	errorCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "download",
		Name:      "errors_total",
		Help:      "Total number of failed photo downloads by error kind",
	}, []string{"kind"})
	bytesCount = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "download",
		Name:      "bytes_total",
		Help:      "Total number of photo bytes downloaded",
	})
)

// Fetcher retrieves the content at a URL. It never retries.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

type httpFetcher struct {
	client  *http.Client
	maxSize int64
}

func NewFetcher(timeout time.Duration) Fetcher {
	return NewFetcherWithClient(&http.Client{Timeout: timeout})
}

func NewFetcherWithClient(client *http.Client) Fetcher {
	return &httpFetcher{client: client, maxSize: maxImageSize}
}

func (f *httpFetcher) Fetch(ctx context.Context, url string) (data []byte, err error) {
	defer func() {
		requestCount.Inc()
		if err != nil {
			errorCount.WithLabelValues(domain.KindOf(err).String()).Inc()
		} else {
			bytesCount.Add(float64(len(data)))
		}
	}()
	var r *http.Request
	if r, err = http.NewRequestWithContext(ctx, http.MethodGet, url, nil); err != nil {
		return nil, domain.NewNetworkError(op, err)
	}
	var resp *http.Response
	if resp, err = f.client.Do(r); err != nil {
		return nil, domain.NewNetworkError(op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.NewHTTPStatusError(op, resp.StatusCode)
	}
	if data, err = io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1)); err != nil {
		return nil, domain.NewNetworkError(op, err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, domain.NewDecodeError(op, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxSize))
	}
	if len(data) == 0 {
		return nil, domain.NewDecodeError(op, ErrEmptyContent)
	}
	return data, nil
}
