package flickr

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"bitbucket.org/kleinnic74/pinphotos/domain"
	"bitbucket.org/kleinnic74/pinphotos/domain/gps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okResponse = `{"photos":{"page":1,"pages":3,"perpage":96,"total":"250","photo":[
	{"id":"1","url_m":"https://live.staticflickr.com/1/1_m.jpg"},
	{"id":"2"},
	{"id":"3","url_m":"https://live.staticflickr.com/3/3_m.jpg"}
]},"stat":"ok"}`

func TestSearchDecodesPage(t *testing.T) {
	var seen *http.Request
	c := NewSearcherWithClient(newTestClient(func(r *http.Request) *http.Response {
		seen = r
		return response(http.StatusOK, okResponse)
	}), Options{APIKey: "key", HalfWidth: 1, HalfHeight: 1, SafeSearch: 1})

	result := c.Search(context.Background(), gps.NewCoordinates(10, 20), 1, 96)
	require.NoError(t, result.Err)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 3, result.TotalPages)
	require.Len(t, result.References, 2)
	assert.Equal(t, "https://live.staticflickr.com/3/3_m.jpg", result.References[1].URL)
	assert.Equal(t, 1, result.References[1].Position)

	q := seen.URL.Query()
	assert.Equal(t, "flickr.photos.search", q.Get("method"))
	assert.Equal(t, "key", q.Get("api_key"))
	assert.Equal(t, "19,9,21,11", q.Get("bbox"))
	assert.Equal(t, "url_m", q.Get("extras"))
	assert.Equal(t, "json", q.Get("format"))
	assert.Equal(t, "1", q.Get("nojsoncallback"))
	assert.Equal(t, "96", q.Get("per_page"))
	assert.Equal(t, "1", q.Get("page"))
}

func TestSearchFailures(t *testing.T) {
	data := []struct {
		name   string
		status int
		body   string
		kind   domain.ErrorKind
	}{
		{"status", http.StatusServiceUnavailable, "", domain.HTTPStatusError},
		{"malformed", http.StatusOK, "{not json", domain.DecodeError},
		{"api", http.StatusOK, `{"stat":"fail","code":100,"message":"Invalid API Key"}`, domain.APIError},
		{"missing photos", http.StatusOK, `{"stat":"ok"}`, domain.DecodeError},
		{"bad total", http.StatusOK, `{"stat":"ok","photos":{"total":"many","photo":[]}}`, domain.DecodeError},
	}
	for _, d := range data {
		t.Run(d.name, func(t *testing.T) {
			c := NewSearcherWithClient(newTestClient(func(r *http.Request) *http.Response {
				return response(d.status, d.body)
			}), DefaultOptions())
			result := c.Search(context.Background(), gps.NewCoordinates(0, 0), 1, 96)
			assert.Equal(t, d.kind, domain.KindOf(result.Err))
			assert.Empty(t, result.References)
		})
	}
}

func TestSearchTransportError(t *testing.T) {
	c := NewSearcherWithClient(&http.Client{Transport: failingTransport{}}, DefaultOptions())
	result := c.Search(context.Background(), gps.NewCoordinates(0, 0), 1, 96)
	assert.Equal(t, domain.NetworkError, domain.KindOf(result.Err))
}

func TestSearchNeverCaches(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(okResponse))
	}))
	defer server.Close()
	o := DefaultOptions()
	o.Endpoint = server.URL
	c := NewSearcher(o)
	c.Search(context.Background(), gps.NewCoordinates(1, 1), 2, 96)
	c.Search(context.Background(), gps.NewCoordinates(1, 1), 2, 96)
	assert.Equal(t, 2, requests)
}

type RoundTripperFunc func(*http.Request) *http.Response

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func newTestClient(roundTripFunc RoundTripperFunc) *http.Client {
	return &http.Client{
		Transport: roundTripFunc,
	}
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}
