// Package coordinator de-duplicates the first-page searches of pins and routes
// their results to the parties interested in them.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"bitbucket.org/kleinnic74/pinphotos/domain/gps"
	"bitbucket.org/kleinnic74/pinphotos/library"
	"bitbucket.org/kleinnic74/pinphotos/logging"
	"bitbucket.org/kleinnic74/pinphotos/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// State is the first-page state of a pin
type State uint8

const (
	Unrequested = State(iota)
	InFlight
	Buffered
	Delivered
)

var stateNames = []string{"unrequested", "inflight", "buffered", "delivered"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	searchesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "coordinator",
		Name:      "first_page_searches_total",
		Help:      "Number of first-page searches started",
	})
	deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "coordinator",
		Name:      "deliveries_total",
		Help:      "Number of first-page results handed out, by route",
	}, []string{"route"})
)

// Observer receives a page result exactly once
type Observer func(search.PageResult)

// Subscription is returned by Observe. Once cancelled its observer is never
// called.
type Subscription struct {
	cancelled atomic.Bool
}

func (s *Subscription) Cancel() {
	s.cancelled.Store(true)
}

func (s *Subscription) Cancelled() bool {
	return s.cancelled.Load()
}

type observation struct {
	sub *Subscription
	fn  Observer
}

type entry struct {
	state     State
	observers []observation
	buffered  search.PageResult
}

// Coordinator owns the per-pin first-page state, keyed by pin id and
// independent from the lifetime of any view
type Coordinator struct {
	searcher search.Searcher
	pageSize int

	lock sync.Mutex
	pins map[library.PinID]*entry

	pages singleflight.Group
}

func New(searcher search.Searcher, pageSize int) *Coordinator {
	if pageSize <= 0 {
		pageSize = search.DefaultPageSize
	}
	return &Coordinator{
		searcher: searcher,
		pageSize: pageSize,
		pins:     make(map[library.PinID]*entry),
	}
}

func (c *Coordinator) PageSize() int {
	return c.pageSize
}

func (c *Coordinator) entryFor(pin library.PinID) *entry {
	e, found := c.pins[pin]
	if !found {
		e = &entry{}
		c.pins[pin] = e
	}
	return e
}

// RequestFirstPage starts the first-page search of pin unless it has been
// requested before. It returns true if a search was started.
func (c *Coordinator) RequestFirstPage(ctx context.Context, pin library.PinID, coord gps.Coordinates) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	e := c.entryFor(pin)
	if e.state != Unrequested {
		return false
	}
	c.startSearch(ctx, pin, coord, e)
	return true
}

// Observe registers fn for the first-page result of pin. A buffered result is
// delivered immediately, in the calling goroutine. A pin whose result has
// already been delivered starts a new search.
func (c *Coordinator) Observe(ctx context.Context, pin library.PinID, coord gps.Coordinates, fn Observer) *Subscription {
	sub := &Subscription{}
	c.lock.Lock()
	e := c.entryFor(pin)
	switch e.state {
	case Buffered:
		result := e.buffered
		e.buffered = search.PageResult{}
		e.state = Delivered
		c.lock.Unlock()
		deliveries.WithLabelValues("buffered").Inc()
		logging.From(ctx).Debug("Delivering buffered first page")
		fn(result)
		return sub
	case InFlight:
		e.observers = append(e.observers, observation{sub, fn})
	default:
		e.observers = append(e.observers, observation{sub, fn})
		c.startSearch(ctx, pin, coord, e)
	}
	c.lock.Unlock()
	return sub
}

// startSearch must be called with the lock held
func (c *Coordinator) startSearch(ctx context.Context, pin library.PinID, coord gps.Coordinates, e *entry) {
	e.state = InFlight
	searchesStarted.Inc()
	// the search outlives the request that triggered it
	ctx = context.WithoutCancel(ctx)
	log, ctx := logging.SubFrom(ctx, "coordinator")
	log.Debug("Starting first page search")
	go func() {
		result := c.searcher.Search(ctx, coord, 1, c.pageSize)
		c.complete(ctx, pin, e, result)
	}()
}

func (c *Coordinator) complete(ctx context.Context, pin library.PinID, e *entry, result search.PageResult) {
	log := logging.From(ctx)
	c.lock.Lock()
	if c.pins[pin] != e {
		c.lock.Unlock()
		log.Debug("Dropping result of forgotten pin")
		return
	}
	var live []observation
	for _, o := range e.observers {
		if !o.sub.Cancelled() {
			live = append(live, o)
		}
	}
	dropped := len(e.observers) - len(live)
	e.observers = nil
	if len(live) > 0 {
		e.state = Delivered
	} else {
		e.state = Buffered
		e.buffered = result
	}
	c.lock.Unlock()

	log.Debug("First page completed", zap.Int("observers", len(live)), zap.Int("dropped", dropped), zap.Stringer("result", result))
	for _, o := range live {
		if o.sub.Cancelled() {
			continue
		}
		deliveries.WithLabelValues("observer").Inc()
		o.fn(result)
	}
}

// State returns the first-page state of pin
func (c *Coordinator) State(pin library.PinID) State {
	c.lock.Lock()
	defer c.lock.Unlock()
	if e, found := c.pins[pin]; found {
		return e.state
	}
	return Unrequested
}

// Forget drops all state of pin. Results of searches still in flight are
// discarded.
func (c *Coordinator) Forget(pin library.PinID) {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.pins, pin)
}

// FetchPage fetches any page of pin in the background and passes the result
// to fn. Concurrent fetches of the same page of the same pin share one search.
func (c *Coordinator) FetchPage(ctx context.Context, pin library.PinID, coord gps.Coordinates, page int, fn Observer) {
	ctx = context.WithoutCancel(ctx)
	key := fmt.Sprintf("%s/%d", pin, page)
	ch := c.pages.DoChan(key, func() (interface{}, error) {
		return c.searcher.Search(ctx, coord, page, c.pageSize), nil
	})
	go func() {
		r := <-ch
		if r.Shared {
			logging.From(ctx).Debug("Shared page fetch", zap.Int("page", page))
		}
		fn(r.Val.(search.PageResult))
	}()
}
