package download

import (
	"context"
	"sync"

	"bitbucket.org/kleinnic74/pinphotos/domain"
	"bitbucket.org/kleinnic74/pinphotos/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var inflight = promauto.NewGauge(prometheus.GaugeOpts{
	Subsystem: "download",
	Name:      "inflight",
	Help:      "Number of photo downloads currently running",
})

// Result is the outcome of one download
type Result struct {
	Index int
	URL   string
	Data  []byte
	Err   error
}

// Pool runs downloads in the background with bounded parallelism
type Pool struct {
	fetcher Fetcher
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
}

func NewPool(fetcher Fetcher, parallelism int) *Pool {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Pool{
		fetcher: fetcher,
		sem:     semaphore.NewWeighted(int64(parallelism)),
	}
}

// Download fetches url in the background and passes the result to done. It
// never blocks the caller. Cancelling ctx aborts downloads that have not
// completed; done is still called, with an error.
func (p *Pool) Download(ctx context.Context, index int, url string, done func(Result)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log := logging.From(ctx)
		result := Result{Index: index, URL: url}
		if err := p.sem.Acquire(ctx, 1); err != nil {
			result.Err = domain.NewNetworkError(op, err)
			done(result)
			return
		}
		inflight.Inc()
		result.Data, result.Err = p.fetcher.Fetch(ctx, url)
		inflight.Dec()
		p.sem.Release(1)
		if result.Err != nil {
			log.Info("Download failed", zap.Int("index", index), zap.String("url", url), zap.Error(result.Err))
		}
		done(result)
	}()
}

// Wait blocks until all submitted downloads have called their callback
func (p *Pool) Wait() {
	p.wg.Wait()
}
