package events

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	publishBuffer    = 64
	subscriberBuffer = 32
)

var dropped = promauto.NewCounter(prometheus.CounterOpts{
	Subsystem: "events",
	Name:      "dropped_total",
	Help:      "Number of events dropped because the dispatcher or a listener was too slow",
})

type Event struct {
	Pin    string      `json:"pin,omitempty"`
	Name   string      `json:"name"`
	Action string      `json:"action"`
	Data   interface{} `json:"data,omitempty"`
}

// Stream fans out published events to all listeners. Slow listeners lose
// events instead of blocking publishers.
type Stream struct {
	channel chan Event

	subcriptions chan *subscription
	unsubcribes  chan *subscription
	done         chan struct{}
}

type subscription struct {
	events chan Event
}

func NewStream() *Stream {
	return &Stream{
		channel:      make(chan Event, publishBuffer),
		subcriptions: make(chan *subscription),
		unsubcribes:  make(chan *subscription),
		done:         make(chan struct{}),
	}
}

// Publish hands e to the dispatcher without blocking. Events are dropped
// while the dispatcher lags behind or after it has stopped.
func (s *Stream) Publish(e Event) {
	select {
	case s.channel <- e:
	case <-s.done:
	default:
		dropped.Inc()
	}
}

// Listen calls f for every event until ctx is done or the stream stops
func (s *Stream) Listen(ctx context.Context, f func(e Event)) {
	subscription, ok := s.subscribe(ctx)
	if !ok {
		return
	}
	for {
		select {
		case e, ok := <-subscription.events:
			if !ok {
				return
			}
			f(e)
		case <-ctx.Done():
			select {
			case s.unsubcribes <- subscription:
			case <-s.done:
			}
			return
		}
	}
}

func (s *Stream) subscribe(ctx context.Context) (*subscription, bool) {
	sub := &subscription{
		events: make(chan Event, subscriberBuffer),
	}
	select {
	case s.subcriptions <- sub:
		return sub, true
	case <-s.done:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// Dispatch runs the stream until ctx is done
func (s *Stream) Dispatch(ctx context.Context) {
	var subscribers []*subscription
	defer func() {
		close(s.done)
		for _, sub := range subscribers {
			close(sub.events)
		}
	}()
	for {
		select {
		case sub := <-s.subcriptions:
			// New subscribe
			subscribers = append(subscribers, sub)
		case sub := <-s.unsubcribes:
			// Removed subscriber
			idx := -1
			for i := range subscribers {
				if subscribers[i] == sub {
					idx = i
					break
				}
			}
			if idx != -1 {
				close(subscribers[idx].events)
				subscribers = append(subscribers[:idx], subscribers[idx+1:]...)
			}
		case e := <-s.channel:
			for _, sub := range subscribers {
				select {
				case sub.events <- e:
				default:
					dropped.Inc()
				}
			}
		case <-ctx.Done():
			// Terminate
			return
		}
	}
}
