package rest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bitbucket.org/kleinnic74/pinphotos/coordinator"
	"bitbucket.org/kleinnic74/pinphotos/domain/gps"
	"bitbucket.org/kleinnic74/pinphotos/download"
	"bitbucket.org/kleinnic74/pinphotos/events"
	"bitbucket.org/kleinnic74/pinphotos/gallery"
	"bitbucket.org/kleinnic74/pinphotos/library"
	"bitbucket.org/kleinnic74/pinphotos/library/boltstore"
	"bitbucket.org/kleinnic74/pinphotos/rest/cursor"
	"bitbucket.org/kleinnic74/pinphotos/search"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

const (
	timeout   = 2 * time.Second
	tick      = 5 * time.Millisecond
	albumSize = 4
)

func testJPEG(t *testing.T, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("Failed to encode test image: %s", err)
	}
	return buf.Bytes()
}

type testAPI struct {
	router  *mux.Router
	repo    library.Repository
	stream  *events.Stream
	gallery *gallery.Gallery
}

func newTestAPI(t *testing.T) *testAPI {
	db, err := bolt.Open(filepath.Join(t.TempDir(), "pins.db"), 0644, nil)
	require.NoError(t, err)
	store, err := boltstore.NewBoltStore(db)
	require.NoError(t, err)

	photo := testJPEG(t, 200, 100)
	searcher := search.SearcherFunc(func(ctx context.Context, c gps.Coordinates, page, pageSize int) search.PageResult {
		refs := make([]search.PhotoReference, 6)
		for i := range refs {
			refs[i] = search.PhotoReference{URL: fmt.Sprintf("http://photos/%d/%d", page, i), Position: i}
		}
		return search.PageResult{Page: page, TotalPages: 1, References: refs}
	})
	pool := download.NewPool(download.FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		return photo, nil
	}), 2)

	ctx, cancel := context.WithCancel(context.Background())
	stream := events.NewStream()
	go stream.Dispatch(ctx)
	g := gallery.New(ctx, store, coordinator.New(searcher, 12), pool, events.NewPresenter(stream), albumSize)
	t.Cleanup(func() {
		g.Close(context.Background())
		cancel()
		pool.Wait()
		store.Close()
	})

	api := &testAPI{router: mux.NewRouter(), repo: store, stream: stream, gallery: g}
	NewPinsHandler(g, store).InitRoutes(api.router)
	photos := NewPhotosHandler(store)
	photos.InitRoutes(api.router)
	photos.InitThumbRoutes(api.router)
	NewSSEHandler(stream).InitRoutes(api.router)
	NewWebsocketHandler(stream).InitRoutes(api.router)
	return api
}

func (api *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	WithMiddleWares(api.router, "test").ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	require.NoError(t, json.NewDecoder(rr.Body).Decode(v))
}

func (api *testAPI) dropPin(t *testing.T) library.PinID {
	rr := api.do(t, http.MethodPost, "/pins", map[string]float64{"latitude": 48.85, "longitude": 2.35})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var pin library.Pin
	decode(t, rr, &pin)
	assert.Equal(t, "/pins/"+string(pin.ID), rr.Header().Get("Location"))
	return pin.ID
}

func (api *testAPI) openCommittedView(t *testing.T, id library.PinID) {
	rr := api.do(t, http.MethodPost, "/pins/"+string(id)+"/view", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Eventually(t, func() bool {
		var state gallery.ViewState
		rr := api.do(t, http.MethodGet, "/pins/"+string(id)+"/view", nil)
		return rr.Code == http.StatusOK &&
			json.NewDecoder(rr.Body).Decode(&state) == nil &&
			state.CommittedCount == albumSize
	}, timeout, tick)
}

func TestDropPinValidation(t *testing.T) {
	api := newTestAPI(t)
	data := []struct {
		Name string
		Body string
	}{
		{"not json", "{"},
		{"missing longitude", `{"latitude": 10}`},
		{"latitude out of range", `{"latitude": 91, "longitude": 0}`},
		{"longitude out of range", `{"latitude": 0, "longitude": -181}`},
	}
	for _, d := range data {
		t.Run(d.Name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/pins", strings.NewReader(d.Body))
			rr := httptest.NewRecorder()
			api.router.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestListPins(t *testing.T) {
	api := newTestAPI(t)
	for i := 0; i < 3; i++ {
		api.dropPin(t)
	}
	rr := api.do(t, http.MethodGet, "/pins?p=2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var page struct {
		Data  []gallery.PinSummary `json:"data"`
		Links []cursor.Link        `json:"links"`
	}
	decode(t, rr, &page)
	assert.Len(t, page.Data, 2)
	require.Len(t, page.Links, 1)
	assert.Equal(t, cursor.LinkNext, page.Links[0].Name)

	rr = api.do(t, http.MethodGet, "/pins?c="+url.QueryEscape(page.Links[0].Href), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page.Data, page.Links = nil, nil
	decode(t, rr, &page)
	assert.Len(t, page.Data, 1)
	require.Len(t, page.Links, 1)
	assert.Equal(t, cursor.LinkPrevious, page.Links[0].Name)
}

func TestViewLifecycle(t *testing.T) {
	api := newTestAPI(t)
	id := api.dropPin(t)
	base := "/pins/" + string(id)
	api.openCommittedView(t, id)

	rr := api.do(t, http.MethodGet, base+"/view/items/0", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/jpeg", rr.Header().Get("Content-Type"))
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, base+"/view/items/17", nil).Code)

	rr = api.do(t, http.MethodPost, base+"/view/select/1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var selection selectionResponse
	decode(t, rr, &selection)
	assert.Equal(t, 1, selection.Selected)
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, base+"/view/select/one", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, base+"/view/select/99", nil).Code)

	rr = api.do(t, http.MethodPost, base+"/view/remove", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var state gallery.ViewState
	decode(t, rr, &state)
	assert.Len(t, state.Album.Items, albumSize-1)
	assert.Empty(t, state.Selected)

	rr = api.do(t, http.MethodPost, base+"/view/remove", removeRequest{Indices: []int{0}})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = api.do(t, http.MethodGet, base+"/photos", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var photos struct {
		Data []library.Photo `json:"data"`
	}
	decode(t, rr, &photos)
	assert.Len(t, photos.Data, albumSize-2)

	rr = api.do(t, http.MethodPost, base+"/view/retry", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var retry retryResponse
	decode(t, rr, &retry)
	assert.Zero(t, retry.Retried)

	assert.Equal(t, http.StatusAccepted, api.do(t, http.MethodPost, base+"/view/next", nil).Code)

	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, base+"/view", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, base+"/view", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, base+"/view/next", nil).Code)

	rr = api.do(t, http.MethodPost, base+"/view", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	state = gallery.ViewState{}
	decode(t, rr, &state)
	assert.Equal(t, gallery.ModePhotos, state.Mode)
}

func TestPhotoContent(t *testing.T) {
	api := newTestAPI(t)
	id := api.dropPin(t)
	api.openCommittedView(t, id)
	photos, err := api.repo.FetchPhotos(context.Background(), id)
	require.NoError(t, err)
	require.NotEmpty(t, photos)
	path := "/photos/" + string(photos[0].ID)

	rr := api.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/jpeg", rr.Header().Get("Content-Type"))
	assert.Equal(t, photos[0].Size, rr.Body.Len())

	rr = api.do(t, http.MethodGet, path+"/thumb", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	thumb, _, err := image.Decode(rr.Body)
	require.NoError(t, err)
	assert.Equal(t, 120, thumb.Bounds().Dx())

	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/photos/nope", nil).Code)
}

func TestRemovePin(t *testing.T) {
	api := newTestAPI(t)
	id := api.dropPin(t)
	api.openCommittedView(t, id)

	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, "/pins/"+string(id), nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodDelete, "/pins/"+string(id), nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, "/pins/"+string(id)+"/view", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/pins/"+string(id)+"/photos", nil).Code)
}

// publishUntil publishes e until done is closed, listeners may subscribe late
func publishUntil(stream *events.Stream, e events.Event, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-time.After(10 * time.Millisecond):
			stream.Publish(e)
		}
	}
}

func TestEventStreamFiltersByPin(t *testing.T) {
	api := newTestAPI(t)
	server := httptest.NewServer(api.router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/eventstream?pin=p1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	done := make(chan struct{})
	defer close(done)
	go publishUntil(api.stream, events.Event{Pin: "p2", Name: "album", Action: "ready"}, done)
	go publishUntil(api.stream, events.Event{Pin: "p1", Name: "selection", Action: "changed", Data: 2}, done)

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: selection", lines.Text())
	require.True(t, lines.Scan())
	var e events.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines.Text(), "data: ")), &e))
	assert.Equal(t, "p1", e.Pin)
	assert.Equal(t, "changed", e.Action)
}

func TestWebsocketFiltersByPin(t *testing.T) {
	api := newTestAPI(t)
	server := httptest.NewServer(api.router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/pins/p1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go publishUntil(api.stream, events.Event{Pin: "p2", Name: "album", Action: "ready"}, done)
	go publishUntil(api.stream, events.Event{Pin: "p1", Name: "item", Action: "loaded", Data: 3}, done)

	conn.SetReadDeadline(time.Now().Add(timeout))
	var e events.Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, "p1", e.Pin)
	assert.Equal(t, "item", e.Name)
	assert.Equal(t, float64(3), e.Data)
}
