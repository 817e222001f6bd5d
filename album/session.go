package album

import (
	"context"
	"fmt"
	"sync"

	"bitbucket.org/kleinnic74/pinphotos/domain"
	"bitbucket.org/kleinnic74/pinphotos/library"
	"bitbucket.org/kleinnic74/pinphotos/logging"
	"bitbucket.org/kleinnic74/pinphotos/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	commitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "album",
		Name:      "commits_total",
		Help:      "Number of session commits by mode (replace, append) and result",
	}, []string{"mode", "result"})
	committedPhotos = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "album",
		Name:      "committed_photos_total",
		Help:      "Number of photos written by session commits",
	})
)

// ItemState is a read-only view of one session item
type ItemState struct {
	Index      int             `json:"index"`
	URL        string          `json:"url"`
	Displayed  bool            `json:"displayed"`
	Downloaded bool            `json:"downloaded"`
	Failed     string          `json:"failed,omitempty"`
	Removed    bool            `json:"removed,omitempty"`
	Photo      library.PhotoID `json:"photo,omitempty"`
}

type item struct {
	ref       search.PhotoReference
	data      []byte
	failed    error
	displayed bool
	removed   bool
	photo     library.PhotoID
}

func (it *item) state(index int) ItemState {
	s := ItemState{
		Index:      index,
		URL:        it.ref.URL,
		Displayed:  it.displayed,
		Downloaded: it.data != nil,
		Removed:    it.removed,
		Photo:      it.photo,
	}
	if it.failed != nil {
		s.Failed = it.failed.Error()
	}
	return s
}

// Commit describes the photos written by one commit
type Commit struct {
	Photos   []*library.Photo  `json:"photos"`
	Replaced []library.PhotoID `json:"replaced,omitempty"`
}

// Removal describes the effect of RemoveSelected
type Removal struct {
	Removed []int             `json:"removed"`
	Deleted []library.PhotoID `json:"deleted,omitempty"`
	Commit  *Commit           `json:"commit,omitempty"`
}

// Session tracks the downloads of one album of photo references shown for a
// pin and commits their bytes to the repository. The first commit replaces
// the photos previously stored for the pin, later commits of the same album
// only add photos. Items keep their index for the lifetime of the session.
type Session struct {
	pin  library.PinID
	repo library.Repository

	lock           sync.Mutex
	items          []*item
	committedCount int
	everCommitted  bool
	closed         bool
}

func NewSession(pin library.PinID, repo library.Repository) *Session {
	return &Session{pin: pin, repo: repo}
}

func (s *Session) Pin() library.PinID {
	return s.pin
}

// Add appends refs to the session and returns their indices
func (s *Session) Add(refs []search.PhotoReference) []int {
	s.lock.Lock()
	defer s.lock.Unlock()
	indices := make([]int, len(refs))
	for i, ref := range refs {
		indices[i] = len(s.items)
		s.items = append(s.items, &item{ref: ref})
	}
	return indices
}

// MarkDisplayed marks items as displayed. Only displayed items are committed
// and all of them must be downloaded before a commit happens.
func (s *Session) MarkDisplayed(indices ...int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, i := range indices {
		if i >= 0 && i < len(s.items) {
			s.items[i].displayed = true
		}
	}
}

// RecordDownload records the outcome of the download of item index. A failed
// item stays not downloaded. Once every displayed item is downloaded, the
// downloaded items are committed. Recording an item that has already been
// downloaded, was removed, or belongs to a closed session has no effect.
func (s *Session) RecordDownload(ctx context.Context, index int, data []byte, err error) (*Commit, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed || index < 0 || index >= len(s.items) {
		return nil, nil
	}
	it := s.items[index]
	if it.removed || it.data != nil || it.photo != "" {
		return nil, nil
	}
	if err != nil {
		it.failed = err
		return nil, nil
	}
	if len(data) == 0 {
		it.failed = domain.NewDecodeError("download", fmt.Errorf("no content for item %d", index))
		return nil, nil
	}
	it.data = data
	it.failed = nil
	return s.commitIfReady(ctx)
}

// Commit commits the downloaded items if every displayed item is downloaded.
// It is used to retry a commit that failed.
func (s *Session) Commit(ctx context.Context) (*Commit, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil, nil
	}
	return s.commitIfReady(ctx)
}

// commitIfReady must be called with the lock held
func (s *Session) commitIfReady(ctx context.Context) (*Commit, error) {
	var pending []int
	for i, it := range s.items {
		if !it.displayed || it.removed || it.photo != "" {
			continue
		}
		if it.data == nil {
			return nil, nil
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return nil, nil
	}
	return s.commit(ctx, pending)
}

// commit must be called with the lock held. In-memory state only changes
// once the repository has accepted the batch.
func (s *Session) commit(ctx context.Context, indices []int) (*Commit, error) {
	replace := !s.everCommitted
	mode := "append"
	if replace {
		mode = "replace"
	}
	log, ctx := logging.FromWithNameAndFields(ctx, "session", zap.String("mode", mode))
	batch := library.Batch{Pin: s.pin}
	if replace {
		prior, err := s.repo.FetchPhotos(ctx, s.pin)
		if err != nil {
			commitsTotal.WithLabelValues(mode, "error").Inc()
			log.Warn("Failed to read prior photos", zap.Error(err))
			return nil, domain.NewPersistenceError("commit", err)
		}
		for _, p := range prior {
			batch.Delete = append(batch.Delete, p.ID)
		}
	}
	for _, i := range indices {
		batch.Add = append(batch.Add, s.items[i].data)
	}
	added, err := s.repo.RunBatch(ctx, batch)
	if err != nil {
		commitsTotal.WithLabelValues(mode, "error").Inc()
		log.Warn("Commit failed", zap.Error(err))
		return nil, domain.NewPersistenceError("commit", err)
	}
	for n, i := range indices {
		s.items[i].photo = added[n].ID
	}
	s.committedCount += len(added)
	s.everCommitted = true
	commitsTotal.WithLabelValues(mode, "ok").Inc()
	committedPhotos.Add(float64(len(added)))
	log.Info("Committed photos", zap.Int("added", len(added)), zap.Int("replaced", len(batch.Delete)),
		zap.Int("committed", s.committedCount))
	return &Commit{Photos: added, Replaced: batch.Delete}, nil
}

// RemoveSelected drops the given items from the session. Items that were
// already committed are deleted from the repository right away. If the removal
// leaves every displayed item downloaded, the pending items are committed.
func (s *Session) RemoveSelected(ctx context.Context, indices []int) (Removal, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	var removal Removal
	if s.closed {
		return removal, nil
	}
	var selected []int
	seen := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(s.items) || s.items[i].removed || seen[i] {
			continue
		}
		seen[i] = true
		selected = append(selected, i)
		if id := s.items[i].photo; id != "" {
			removal.Deleted = append(removal.Deleted, id)
		}
	}
	if len(removal.Deleted) > 0 {
		if _, err := s.repo.RunBatch(ctx, library.Batch{Pin: s.pin, Delete: removal.Deleted}); err != nil {
			return Removal{}, domain.NewPersistenceError("remove", err)
		}
	}
	for _, i := range selected {
		it := s.items[i]
		it.removed = true
		it.data = nil
		it.photo = ""
	}
	removal.Removed = selected
	logging.From(ctx).Debug("Removed items",
		zap.Array("indices", logging.Indices(selected)), zap.Int("deleted", len(removal.Deleted)))
	commit, err := s.commitIfReady(ctx)
	removal.Commit = commit
	return removal, err
}

// Close ends the session. A session that never committed is discarded without
// touching the repository. Otherwise downloaded items that are not committed
// yet are appended. Later downloads are ignored.
func (s *Session) Close(ctx context.Context) (*Commit, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil, nil
	}
	s.closed = true
	log := logging.From(ctx)
	if !s.everCommitted {
		log.Debug("Discarding uncommitted session", zap.Int("items", len(s.items)))
		s.items = nil
		return nil, nil
	}
	var pending []int
	for i, it := range s.items {
		if it.displayed && !it.removed && it.photo == "" && it.data != nil {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}
	return s.commit(ctx, pending)
}

// Discard ends the session without writing anything, the album it tracks is
// no longer displayed. Later downloads are ignored.
func (s *Session) Discard() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closed = true
	s.items = nil
}

// Items returns the state of all items
func (s *Session) Items() []ItemState {
	s.lock.Lock()
	defer s.lock.Unlock()
	states := make([]ItemState, len(s.items))
	for i, it := range s.items {
		states[i] = it.state(i)
	}
	return states
}

// ItemsAt returns the state of the items with the given indices
func (s *Session) ItemsAt(indices ...int) []ItemState {
	s.lock.Lock()
	defer s.lock.Unlock()
	states := make([]ItemState, 0, len(indices))
	for _, i := range indices {
		if i >= 0 && i < len(s.items) {
			states = append(states, s.items[i].state(i))
		}
	}
	return states
}

// Content returns the downloaded bytes of item index
func (s *Session) Content(index int) ([]byte, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if index < 0 || index >= len(s.items) || s.items[index].data == nil {
		return nil, false
	}
	return s.items[index].data, true
}

// Failed returns the displayed items whose download failed
func (s *Session) Failed() []int {
	s.lock.Lock()
	defer s.lock.Unlock()
	var failed []int
	for i, it := range s.items {
		if it.displayed && !it.removed && it.data == nil && it.failed != nil {
			failed = append(failed, i)
		}
	}
	return failed
}

// Retry clears the failure of item index so that a new download result is
// accepted. It returns the reference to download again.
func (s *Session) Retry(index int) (search.PhotoReference, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed || index < 0 || index >= len(s.items) {
		return search.PhotoReference{}, false
	}
	it := s.items[index]
	if it.removed || it.data != nil || it.failed == nil {
		return search.PhotoReference{}, false
	}
	it.failed = nil
	return it.ref, true
}

func (s *Session) CommittedCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.committedCount
}

func (s *Session) EverCommitted() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.everCommitted
}

// FullyCommitted returns true if every displayed item has been committed
func (s *Session) FullyCommitted() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	displayed := 0
	for _, it := range s.items {
		if !it.displayed || it.removed {
			continue
		}
		displayed++
		if it.photo == "" {
			return false
		}
	}
	return displayed > 0
}
