package gallery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"bitbucket.org/kleinnic74/pinphotos/album"
	"bitbucket.org/kleinnic74/pinphotos/coordinator"
	"bitbucket.org/kleinnic74/pinphotos/domain"
	"bitbucket.org/kleinnic74/pinphotos/download"
	"bitbucket.org/kleinnic74/pinphotos/library"
	"bitbucket.org/kleinnic74/pinphotos/logging"
	"bitbucket.org/kleinnic74/pinphotos/search"
	"go.uber.org/zap"
)

var (
	ErrViewClosed    = errors.New("view is closed")
	ErrNotSelectable = errors.New("item cannot be selected")
	ErrNoSuchItem    = errors.New("no such item")
)

// ViewState is a snapshot of a view
type ViewState struct {
	Pin            library.PinID `json:"pin"`
	Mode           Mode          `json:"mode"`
	Loading        bool          `json:"loading"`
	Page           int           `json:"page,omitempty"`
	TotalPages     int           `json:"totalPages,omitempty"`
	AlbumIndex     int           `json:"albumIndex,omitempty"`
	Album          Album         `json:"album"`
	Selected       []int         `json:"selected"`
	CommittedCount int           `json:"committed"`
	EverCommitted  bool          `json:"everCommitted"`
}

// View is the photo album of one pin as the user sees it. Positions address
// the items of the currently displayed album.
type View struct {
	pin       *library.Pin
	repo      library.Repository
	coord     *coordinator.Coordinator
	pool      *download.Pool
	presenter Presenter
	albumSize int

	// downloads of the view run in ctx, cancelled on Close
	ctx    context.Context
	cancel context.CancelFunc

	lock         sync.Mutex
	mode         Mode
	photos       []*library.Photo
	session      *album.Session
	pager        *album.Pager
	album        []int
	selected     map[int]bool
	sub          *coordinator.Subscription
	loading      bool
	awaitingPage bool
	closed       bool
}

func (v *View) Pin() *library.Pin {
	return v.pin
}

// Open shows the stored photos of the pin or, if there are none, waits for
// the first page of the pin and shows its first album
func (v *View) Open(ctx context.Context) error {
	log := logging.From(v.ctx)
	photos, err := v.repo.FetchPhotos(ctx, v.pin.ID)
	if err != nil {
		return domain.NewPersistenceError("open", err)
	}
	v.lock.Lock()
	if len(photos) > 0 {
		v.mode = ModePhotos
		v.photos = photos
		v.presenter.AlbumReady(v.pin.ID, photosAlbum(photos, v.selected))
		v.lock.Unlock()
		log.Debug("Showing stored photos", zap.Int("photos", len(photos)))
		return nil
	}
	v.mode = ModeAlbum
	v.setLoading(true)
	v.lock.Unlock()

	log.Debug("Waiting for first page")
	sub := v.coord.Observe(v.ctx, v.pin.ID, v.pin.Coordinates(), v.onFirstPage)
	v.lock.Lock()
	v.sub = sub
	v.lock.Unlock()
	return nil
}

// setLoading must be called with the lock held
func (v *View) setLoading(loading bool) {
	if v.loading != loading {
		v.loading = loading
		v.presenter.LoadingChanged(v.pin.ID, loading)
	}
}

func (v *View) onFirstPage(result search.PageResult) {
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.closed {
		return
	}
	v.setLoading(false)
	if result.Err != nil {
		logging.From(v.ctx).Warn("First page failed", zap.Error(result.Err))
		v.presenter.Error(v.pin.ID, domain.KindOf(result.Err), result.Err.Error())
		return
	}
	v.mode = ModeAlbum
	v.photos = nil
	v.pager = album.NewPager(result, v.albumSize, v.fetchPage, v.onPage)
	v.showNext()
}

func (v *View) fetchPage(page int, done func(search.PageResult)) {
	v.coord.FetchPage(v.ctx, v.pin.ID, v.pin.Coordinates(), page, done)
}

func (v *View) onPage(result search.PageResult) {
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.closed {
		return
	}
	if result.Err != nil {
		logging.From(v.ctx).Warn("Page fetch failed", zap.Int("page", result.Page), zap.Error(result.Err))
		v.presenter.Error(v.pin.ID, domain.KindOf(result.Err), result.Err.Error())
	}
	if v.awaitingPage {
		v.awaitingPage = false
		v.setLoading(false)
		if result.Err == nil {
			v.showNext()
		}
	}
}

// showNext must be called with the lock held. Every album gets its own
// session, the downloads of the album it replaces are dropped.
func (v *View) showNext() {
	refs, err := v.pager.Next()
	switch err {
	case album.ErrNoMorePhotos:
		v.presenter.NoMorePhotos(v.pin.ID)
		return
	case album.ErrPageLoading:
		v.awaitingPage = true
		v.setLoading(true)
		return
	}
	if v.session != nil {
		v.session.Discard()
	}
	session := album.NewSession(v.pin.ID, v.repo)
	v.session = session
	indices := session.Add(refs)
	session.MarkDisplayed(indices...)
	v.album = indices
	v.selected = map[int]bool{}
	v.presenter.AlbumReady(v.pin.ID, referencesAlbum(session.ItemsAt(indices...), v.selected))
	v.presenter.SelectionChanged(v.pin.ID, 0)
	for i, ref := range refs {
		v.download(session, indices[i], ref)
	}
}

func (v *View) download(session *album.Session, index int, ref search.PhotoReference) {
	v.pool.Download(v.ctx, index, ref.URL, func(r download.Result) {
		v.onDownloaded(session, r)
	})
}

func (v *View) onDownloaded(session *album.Session, r download.Result) {
	commit, err := session.RecordDownload(v.ctx, r.Index, r.Data, r.Err)
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.closed || session != v.session {
		return
	}
	if pos := v.position(r.Index); pos >= 0 {
		if r.Err != nil {
			v.presenter.Error(v.pin.ID, domain.KindOf(r.Err), fmt.Sprintf("item %d: %s", pos, r.Err))
		} else {
			v.presenter.ItemLoaded(v.pin.ID, pos)
		}
	}
	if err != nil {
		v.presenter.Error(v.pin.ID, domain.KindOf(err), err.Error())
	} else if commit != nil {
		logging.From(v.ctx).Debug("Album committed", zap.Int("photos", len(commit.Photos)))
	}
}

// position must be called with the lock held
func (v *View) position(index int) int {
	for pos, i := range v.album {
		if i == index {
			return pos
		}
	}
	return -1
}

// NextAlbum shows the next album. A view showing stored photos starts a new
// collection from the first page; its first commit replaces the stored photos.
func (v *View) NextAlbum(ctx context.Context) error {
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.closed {
		return ErrViewClosed
	}
	if v.loading {
		return nil
	}
	if v.mode == ModePhotos || v.pager == nil {
		logging.From(v.ctx).Info("Starting new collection")
		v.setLoading(true)
		v.coord.FetchPage(v.ctx, v.pin.ID, v.pin.Coordinates(), 1, v.onFirstPage)
		return nil
	}
	v.showNext()
	return nil
}

// ToggleSelection selects or deselects the item at position. Only downloaded
// items can be selected.
func (v *View) ToggleSelection(position int) (int, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.closed {
		return 0, ErrViewClosed
	}
	switch v.mode {
	case ModePhotos:
		if position < 0 || position >= len(v.photos) {
			return len(v.selected), ErrNoSuchItem
		}
	default:
		if position < 0 || position >= len(v.album) {
			return len(v.selected), ErrNoSuchItem
		}
		if _, downloaded := v.session.Content(v.album[position]); !downloaded {
			return len(v.selected), ErrNotSelectable
		}
	}
	if v.selected == nil {
		v.selected = map[int]bool{}
	}
	if v.selected[position] {
		delete(v.selected, position)
	} else {
		v.selected[position] = true
	}
	v.presenter.SelectionChanged(v.pin.ID, len(v.selected))
	return len(v.selected), nil
}

// RemoveSelected removes the items at the given positions, or the selected
// items if no positions are given. Stored photos are deleted immediately,
// album items that are not stored yet are only dropped from the album.
func (v *View) RemoveSelected(ctx context.Context, positions []int) error {
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.closed {
		return ErrViewClosed
	}
	if len(positions) == 0 {
		positions = v.selectedPositions()
	}
	if len(positions) == 0 {
		return nil
	}
	log := logging.From(v.ctx)
	var err error
	if v.mode == ModePhotos {
		err = v.removePhotos(ctx, positions)
	} else {
		err = v.removeAlbumItems(ctx, positions)
	}
	if err != nil {
		log.Warn("Failed to remove items", zap.Array("positions", logging.Indices(positions)), zap.Error(err))
		v.presenter.Error(v.pin.ID, domain.KindOf(err), err.Error())
		return err
	}
	v.selected = map[int]bool{}
	v.presenter.SelectionChanged(v.pin.ID, 0)
	return nil
}

func (v *View) selectedPositions() []int {
	positions := make([]int, 0, len(v.selected))
	for pos := range v.selected {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	return positions
}

// removePhotos must be called with the lock held
func (v *View) removePhotos(ctx context.Context, positions []int) error {
	var ids []library.PhotoID
	seen := make(map[int]bool, len(positions))
	for _, pos := range positions {
		if pos >= 0 && pos < len(v.photos) && !seen[pos] {
			seen[pos] = true
			ids = append(ids, v.photos[pos].ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	if _, err := v.repo.RunBatch(ctx, library.Batch{Pin: v.pin.ID, Delete: ids}); err != nil {
		return domain.NewPersistenceError("remove", err)
	}
	photos, err := v.repo.FetchPhotos(ctx, v.pin.ID)
	if err != nil {
		return domain.NewPersistenceError("remove", err)
	}
	v.photos = photos
	v.presenter.AlbumReady(v.pin.ID, photosAlbum(photos, nil))
	return nil
}

// removeAlbumItems must be called with the lock held
func (v *View) removeAlbumItems(ctx context.Context, positions []int) error {
	if v.session == nil {
		return nil
	}
	var indices []int
	for _, pos := range positions {
		if pos >= 0 && pos < len(v.album) {
			indices = append(indices, v.album[pos])
		}
	}
	removal, err := v.session.RemoveSelected(ctx, indices)
	removed := make(map[int]bool, len(removal.Removed))
	for _, i := range removal.Removed {
		removed[i] = true
	}
	if len(removed) > 0 {
		kept := make([]int, 0, len(v.album))
		for _, i := range v.album {
			if !removed[i] {
				kept = append(kept, i)
			}
		}
		v.album = kept
		v.presenter.AlbumReady(v.pin.ID, referencesAlbum(v.session.ItemsAt(kept...), nil))
	}
	return err
}

// RetryFailed downloads the failed items again and retries a failed commit.
// It returns the number of downloads started.
func (v *View) RetryFailed(ctx context.Context) (int, error) {
	v.lock.Lock()
	if v.closed {
		v.lock.Unlock()
		return 0, ErrViewClosed
	}
	session := v.session
	v.lock.Unlock()
	if session == nil {
		return 0, nil
	}
	retried := 0
	for _, index := range session.Failed() {
		if ref, ok := session.Retry(index); ok {
			v.download(session, index, ref)
			retried++
		}
	}
	if _, err := session.Commit(v.ctx); err != nil {
		return retried, err
	}
	return retried, nil
}

// ItemContent returns the bytes of the item at position
func (v *View) ItemContent(ctx context.Context, position int) ([]byte, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.mode == ModePhotos {
		if position < 0 || position >= len(v.photos) {
			return nil, ErrNoSuchItem
		}
		data, _, err := v.repo.PhotoContent(ctx, v.photos[position].ID)
		return data, err
	}
	if position < 0 || position >= len(v.album) {
		return nil, ErrNoSuchItem
	}
	data, ok := v.session.Content(v.album[position])
	if !ok {
		return nil, ErrNoSuchItem
	}
	return data, nil
}

// State returns a snapshot of the view
func (v *View) State() ViewState {
	v.lock.Lock()
	defer v.lock.Unlock()
	state := ViewState{
		Pin:      v.pin.ID,
		Mode:     v.mode,
		Loading:  v.loading,
		Selected: v.selectedPositions(),
	}
	if v.mode == ModePhotos {
		state.Album = photosAlbum(v.photos, v.selected)
		return state
	}
	state.Album = Album{Mode: ModeAlbum, Items: []Item{}}
	if v.session != nil {
		state.Album = referencesAlbum(v.session.ItemsAt(v.album...), v.selected)
		state.CommittedCount = v.session.CommittedCount()
		state.EverCommitted = v.session.EverCommitted()
	}
	if v.pager != nil {
		state.Page, state.TotalPages, state.AlbumIndex = v.pager.Position()
	}
	return state
}

// Close navigates away from the view. Without any commit the album is
// discarded, otherwise downloaded items are appended to the stored photos.
func (v *View) Close(ctx context.Context) error {
	v.lock.Lock()
	if v.closed {
		v.lock.Unlock()
		return nil
	}
	v.closed = true
	sub, session := v.sub, v.session
	v.lock.Unlock()
	defer v.cancel()
	if sub != nil {
		sub.Cancel()
	}
	if session == nil {
		return nil
	}
	_, err := session.Close(ctx)
	return err
}
