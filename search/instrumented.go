package search

import (
	"context"
	"sync"
	"time"

	"bitbucket.org/kleinnic74/pinphotos/domain"
	"bitbucket.org/kleinnic74/pinphotos/domain/gps"
	"bitbucket.org/kleinnic74/pinphotos/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	searchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photosearch_requests_total",
		Help: "Number of remote photo searches by outcome",
	}, []string{"result"})
	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "photosearch_duration_seconds",
		Help:    "Duration of remote photo searches",
		Buckets: prometheus.DefBuckets,
	})
	referencesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photosearch_references_total",
		Help: "Number of photo references returned by remote searches",
	})
)

type Stats struct {
	Searches   int `json:"searches"`
	Failures   int `json:"failures"`
	Empty      int `json:"empty"`
	References int `json:"references"`
}

// Instrumented counts and logs the searches of its delegate
type Instrumented struct {
	delegate Searcher

	stats Stats
	lock  sync.Mutex
}

func NewInstrumentedSearcher(delegate Searcher) *Instrumented {
	return &Instrumented{delegate: delegate}
}

func (s *Instrumented) Search(ctx context.Context, c gps.Coordinates, page, pageSize int) PageResult {
	log, ctx := logging.FromWithNameAndFields(ctx, "search", zap.Stringer("pos", c), zap.Int("page", page))
	start := time.Now()
	result := s.delegate.Search(ctx, c, page, pageSize)
	searchDuration.Observe(time.Since(start).Seconds())

	s.lock.Lock()
	defer s.lock.Unlock()
	s.stats.Searches++
	switch {
	case result.Err != nil:
		s.stats.Failures++
		searchesTotal.WithLabelValues(domain.KindOf(result.Err).String()).Inc()
		log.Warn("Search failed", zap.Error(result.Err))
	case result.IsEmpty():
		s.stats.Empty++
		searchesTotal.WithLabelValues("empty").Inc()
		log.Info("Search returned no photos")
	default:
		s.stats.References += len(result.References)
		searchesTotal.WithLabelValues("ok").Inc()
		referencesTotal.Add(float64(len(result.References)))
		log.Debug("Search done", zap.Int("references", len(result.References)), zap.Int("totalPages", result.TotalPages))
	}
	return result
}

func (s *Instrumented) DumpStats() Stats {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.stats
}
