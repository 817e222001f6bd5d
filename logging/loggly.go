package logging

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"bitbucket.org/kleinnic74/pinphotos/consts"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	logglyEndpoint = "https://logs-01.loggly.com/bulk/%s/tag/bulk/"

	logglyThreshold     = 4096
	logglyFlushInterval = 5 * time.Second
	logglyQueueSize     = 64
)

var userAgent = "pinphotos (" + consts.GitRepo + "@" + consts.GitCommit + ")"

// logglySink batches log lines and posts them to the loggly bulk endpoint.
// Lines are dropped while the queue is full, logging never waits on the network.
type logglySink struct {
	url    string
	client *http.Client

	threshold int
	interval  time.Duration

	q        chan []byte
	done     chan struct{}
	finished chan struct{}
	close    sync.Once

	lock    sync.Mutex
	dropped int
}

func NewLogglyEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.TimeKey = "timestamp"
	return zapcore.NewJSONEncoder(cfg)
}

func NewLogglySink(token string) zap.Sink {
	return newLogglySink(fmt.Sprintf(logglyEndpoint, token), logglyThreshold, logglyFlushInterval)
}

func newLogglySink(url string, threshold int, interval time.Duration) *logglySink {
	sink := &logglySink{
		url:       url,
		client:    &http.Client{Timeout: 10 * time.Second},
		threshold: threshold,
		interval:  interval,
		q:         make(chan []byte, logglyQueueSize),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
	}
	go sink.drain()
	return sink
}

func (s *logglySink) Write(p []byte) (int, error) {
	cpy := make([]byte, len(p))
	copy(cpy, p)
	select {
	case <-s.done:
		return len(p), nil
	default:
	}
	select {
	case s.q <- cpy:
	default:
		s.lock.Lock()
		s.dropped++
		s.lock.Unlock()
	}
	return len(p), nil
}

func (s *logglySink) Sync() error {
	return nil
}

// Close pushes the pending lines and waits for the last post to complete
func (s *logglySink) Close() error {
	s.close.Do(func() { close(s.done) })
	<-s.finished
	return nil
}

func (s *logglySink) drain() {
	defer close(s.finished)
	var buffer bytes.Buffer
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	flush := func() {
		if buffer.Len() > 0 {
			s.push(buffer.Bytes())
			buffer.Reset()
		}
		s.reportDropped()
	}
	for {
		select {
		case b := <-s.q:
			buffer.Write(b)
			if buffer.Len() > s.threshold {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.done:
			for {
				select {
				case b := <-s.q:
					buffer.Write(b)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (s *logglySink) reportDropped() {
	s.lock.Lock()
	dropped := s.dropped
	s.dropped = 0
	s.lock.Unlock()
	if dropped > 0 {
		fmt.Fprintf(os.Stderr, "Loggly: dropped %d log lines\n", dropped)
	}
}

func (s *logglySink) push(data []byte) {
	post, err := http.NewRequest(http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Loggly: failed to create HTTP POST request: %s\n", err)
		return
	}
	post.Header.Set("User-Agent", userAgent)
	post.Header.Set("Content-Type", "application/json")
	r, err := s.client.Do(post)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Loggly: failed to send logs: %s\n", err)
		return
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Loggly: unexpected response status %d\n", r.StatusCode)
	}
}
