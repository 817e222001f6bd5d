// Package flickr searches photos through the flickr.photos.search REST method
package flickr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"bitbucket.org/kleinnic74/pinphotos/domain"
	"bitbucket.org/kleinnic74/pinphotos/domain/gps"
	"bitbucket.org/kleinnic74/pinphotos/logging"
	"bitbucket.org/kleinnic74/pinphotos/search"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	DefaultEndpoint = "https://api.flickr.com/services/rest/"
	searchMethod    = "flickr.photos.search"
	mediumURL       = "url_m"
	userAgent       = "pinphotos/1.0"

	maxResponseSize = 8 << 20

	op = "flickr.search"
)

// Options configures the Flickr client
type Options struct {
	APIKey     string        `json:"apikey" mapstructure:"apikey"`
	Endpoint   string        `json:"endpoint" mapstructure:"endpoint"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	HalfWidth  float64       `json:"halfwidth" mapstructure:"halfwidth"`
	HalfHeight float64       `json:"halfheight" mapstructure:"halfheight"`
	SafeSearch int           `json:"safesearch" mapstructure:"safesearch"`
}

func DefaultOptions() Options {
	return Options{
		Endpoint:   DefaultEndpoint,
		Timeout:    10 * time.Second,
		HalfWidth:  1.0,
		HalfHeight: 1.0,
		SafeSearch: 1,
	}
}

type client struct {
	o      Options
	client *http.Client
}

// NewSearcher creates a searcher for the given options
func NewSearcher(o Options) search.Searcher {
	return NewSearcherWithClient(&http.Client{Timeout: o.Timeout}, o)
}

func NewSearcherWithClient(c *http.Client, o Options) search.Searcher {
	if o.Endpoint == "" {
		o.Endpoint = DefaultEndpoint
	}
	return &client{o: o, client: c}
}

func (f *client) searchURL(c gps.Coordinates, page, pageSize int) string {
	params := url.Values{}
	params.Set("method", searchMethod)
	params.Set("api_key", f.o.APIKey)
	params.Set("extras", mediumURL)
	params.Set("format", "json")
	params.Set("nojsoncallback", "1")
	params.Set("safe_search", strconv.Itoa(f.o.SafeSearch))
	params.Set("bbox", c.SearchBox(f.o.HalfWidth, f.o.HalfHeight).BBox())
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(pageSize))
	return f.o.Endpoint + "?" + params.Encode()
}

// Search issues exactly one request and never retries
func (f *client) Search(ctx context.Context, c gps.Coordinates, page, pageSize int) search.PageResult {
	logger, ctx := logging.SubFrom(ctx, "flickr")
	result := search.PageResult{Page: page}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.searchURL(c, page, pageSize), nil)
	if err != nil {
		result.Err = domain.NewNetworkError(op, err)
		return result
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	res, err := f.client.Do(req)
	if err != nil {
		result.Err = domain.NewNetworkError(op, err)
		return result
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		result.Err = domain.NewHTTPStatusError(op, res.StatusCode)
		return result
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		result.Err = domain.NewNetworkError(op, err)
		return result
	}
	logger.Debug("Search response", zap.Int("page", page), zap.Int("size", len(data)))
	refs, total, err := decodeResponse(data)
	if err != nil {
		result.Err = err
		return result
	}
	result.References = refs
	result.TotalPages = search.TotalPages(total, pageSize)
	return result
}

func decodeResponse(data []byte) ([]search.PhotoReference, int, error) {
	if !gjson.ValidBytes(data) {
		return nil, 0, domain.NewDecodeError(op, errors.New("response is not valid JSON"))
	}
	doc := gjson.ParseBytes(data)
	if stat := doc.Get("stat").String(); stat != "ok" {
		msg := doc.Get("message").String()
		if msg == "" {
			msg = fmt.Sprintf("stat is '%s'", stat)
		}
		return nil, 0, domain.NewAPIError(op, msg)
	}
	photos := doc.Get("photos.photo")
	if !photos.IsArray() {
		return nil, 0, domain.NewDecodeError(op, errors.New("missing photos.photo"))
	}
	totalField := doc.Get("photos.total")
	if !totalField.Exists() {
		return nil, 0, domain.NewDecodeError(op, errors.New("missing photos.total"))
	}
	// Flickr encodes total as a string
	total, err := strconv.Atoi(totalField.String())
	if err != nil {
		return nil, 0, domain.NewDecodeError(op, fmt.Errorf("bad photos.total: %w", err))
	}
	refs := make([]search.PhotoReference, 0, len(photos.Array()))
	photos.ForEach(func(_, p gjson.Result) bool {
		if u := p.Get(mediumURL).String(); u != "" {
			refs = append(refs, search.PhotoReference{URL: u, Position: len(refs)})
		}
		return true
	})
	return refs, total, nil
}
