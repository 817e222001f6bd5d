package download

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bitbucket.org/kleinnic74/pinphotos/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.jpg":
			w.Write([]byte("jpeg bytes"))
		case "/empty.jpg":
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()
	f := NewFetcher(time.Second)

	data, err := f.Fetch(context.Background(), server.URL+"/ok.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg bytes"), data)

	_, err = f.Fetch(context.Background(), server.URL+"/missing.jpg")
	assert.Equal(t, domain.HTTPStatusError, domain.KindOf(err))

	_, err = f.Fetch(context.Background(), server.URL+"/empty.jpg")
	assert.Equal(t, domain.DecodeError, domain.KindOf(err))

	_, err = f.Fetch(context.Background(), "http://127.0.0.1:1/unreachable")
	assert.Equal(t, domain.NetworkError, domain.KindOf(err))
}

func TestFetchRejectsOversizedContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 16+len(r.URL.Query().Get("extra")))))
	}))
	defer server.Close()
	f := &httpFetcher{client: server.Client(), maxSize: 16}

	data, err := f.Fetch(context.Background(), server.URL+"/exact.jpg")
	require.NoError(t, err)
	assert.Len(t, data, 16)

	data, err = f.Fetch(context.Background(), server.URL+"/big.jpg?extra=1")
	assert.Nil(t, data)
	assert.Equal(t, domain.DecodeError, domain.KindOf(err))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestPoolBoundsParallelism(t *testing.T) {
	var running, maxRunning int32
	fetcher := FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			m := atomic.LoadInt32(&maxRunning)
			if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return []byte(url), nil
	})
	pool := NewPool(fetcher, 3)
	var lock sync.Mutex
	results := map[int]string{}
	for i := 0; i < 12; i++ {
		pool.Download(context.Background(), i, fmt.Sprintf("u%d", i), func(r Result) {
			lock.Lock()
			defer lock.Unlock()
			results[r.Index] = string(r.Data)
		})
	}
	pool.Wait()
	assert.Len(t, results, 12)
	assert.Equal(t, "u7", results[7])
	assert.LessOrEqual(t, atomic.LoadInt32(&maxRunning), int32(3))
}

func TestPoolCancelledContext(t *testing.T) {
	block := make(chan struct{})
	fetcher := FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		select {
		case <-block:
			return []byte("x"), nil
		case <-ctx.Done():
			return nil, domain.NewNetworkError("test", ctx.Err())
		}
	})
	pool := NewPool(fetcher, 1)
	pool.Download(context.Background(), 0, "first", func(Result) {})

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	pool.Download(ctx, 1, "second", func(r Result) { errs <- r.Err })
	cancel()
	err := <-errs
	assert.Equal(t, domain.NetworkError, domain.KindOf(err))
	close(block)
	pool.Wait()
}
