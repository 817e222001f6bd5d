package album

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"bitbucket.org/kleinnic74/pinphotos/domain"
	"bitbucket.org/kleinnic74/pinphotos/domain/gps"
	"bitbucket.org/kleinnic74/pinphotos/library"
	"bitbucket.org/kleinnic74/pinphotos/library/boltstore"
	"bitbucket.org/kleinnic74/pinphotos/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// flakyRepo fails batches while failing is set
type flakyRepo struct {
	library.Repository
	failing bool
	batches int
}

func (r *flakyRepo) RunBatch(ctx context.Context, b library.Batch) ([]*library.Photo, error) {
	if r.failing {
		return nil, errors.New("disk full")
	}
	r.batches++
	return r.Repository.RunBatch(ctx, b)
}

func newTestRepo(t *testing.T) (*flakyRepo, *library.Pin) {
	db, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"), 0644, nil)
	require.NoError(t, err)
	store, err := boltstore.NewBoltStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	pin := library.NewPin(gps.NewCoordinates(52.52, 13.4))
	require.NoError(t, store.AddPin(context.Background(), pin))
	return &flakyRepo{Repository: store}, pin
}

func bytesOf(i int) []byte {
	return []byte(fmt.Sprintf("image-%d", i))
}

func displayedSession(repo library.Repository, pin library.PinID, n int) (*Session, []int) {
	s := NewSession(pin, repo)
	indices := s.Add(refs(n))
	s.MarkDisplayed(indices...)
	return s, indices
}

func storedPhotos(t *testing.T, repo library.Repository, pin library.PinID) []*library.Photo {
	photos, err := repo.FetchPhotos(context.Background(), pin)
	require.NoError(t, err)
	return photos
}

func TestReverseOrderDownloadsCommitOnceReplacingPrior(t *testing.T) {
	repo, pin := newTestRepo(t)
	ctx := context.Background()
	_, err := repo.RunBatch(ctx, library.Batch{Pin: pin.ID, Add: [][]byte{[]byte("old1"), []byte("old2"), []byte("old3")}})
	require.NoError(t, err)
	repo.batches = 0

	s, indices := displayedSession(repo, pin.ID, AlbumSize)
	var commits []*Commit
	for i := len(indices) - 1; i >= 0; i-- {
		c, err := s.RecordDownload(ctx, indices[i], bytesOf(i), nil)
		require.NoError(t, err)
		if c != nil {
			commits = append(commits, c)
		}
	}
	require.Len(t, commits, 1)
	assert.Len(t, commits[0].Photos, 24)
	assert.Len(t, commits[0].Replaced, 3)
	assert.Equal(t, 1, repo.batches)
	assert.Len(t, storedPhotos(t, repo, pin.ID), 24)
	assert.Equal(t, 24, s.CommittedCount())
	assert.True(t, s.EverCommitted())
	assert.True(t, s.FullyCommitted())
}

func TestRecordDownloadIsIdempotent(t *testing.T) {
	repo, pin := newTestRepo(t)
	ctx := context.Background()
	s, indices := displayedSession(repo, pin.ID, 3)

	_, err := s.RecordDownload(ctx, indices[0], bytesOf(0), nil)
	require.NoError(t, err)
	c, err := s.RecordDownload(ctx, indices[0], bytesOf(0), nil)
	require.NoError(t, err)
	assert.Nil(t, c)
	s.RecordDownload(ctx, indices[1], bytesOf(1), nil)
	c, err = s.RecordDownload(ctx, indices[2], bytesOf(2), nil)
	require.NoError(t, err)
	require.NotNil(t, c)

	c, err = s.RecordDownload(ctx, indices[2], bytesOf(2), nil)
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Len(t, storedPhotos(t, repo, pin.ID), 3)
	assert.Equal(t, 1, repo.batches)
}

func TestConcurrentDownloadsCommitOnce(t *testing.T) {
	repo, pin := newTestRepo(t)
	ctx := context.Background()
	s, indices := displayedSession(repo, pin.ID, AlbumSize)

	var wg sync.WaitGroup
	for _, i := range indices {
		for dup := 0; dup < 2; dup++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				s.RecordDownload(ctx, i, bytesOf(i), nil)
			}(i)
		}
	}
	wg.Wait()
	assert.Len(t, storedPhotos(t, repo, pin.ID), AlbumSize)
	assert.Equal(t, 1, repo.batches)
}

func TestLaterCommitsOnlyAppend(t *testing.T) {
	repo, pin := newTestRepo(t)
	ctx := context.Background()
	s, first := displayedSession(repo, pin.ID, 2)
	for _, i := range first {
		s.RecordDownload(ctx, i, bytesOf(i), nil)
	}
	require.Len(t, storedPhotos(t, repo, pin.ID), 2)

	second := s.Add(refs(3))
	s.MarkDisplayed(second...)
	var commit *Commit
	for _, i := range second {
		c, err := s.RecordDownload(ctx, i, bytesOf(i), nil)
		require.NoError(t, err)
		if c != nil {
			commit = c
		}
	}
	require.NotNil(t, commit)
	assert.Empty(t, commit.Replaced)
	assert.Len(t, commit.Photos, 3)
	assert.Len(t, storedPhotos(t, repo, pin.ID), 5)
	assert.Equal(t, 5, s.CommittedCount())
}

func TestCloseBeforeCommitLeavesRepositoryUnchanged(t *testing.T) {
	repo, pin := newTestRepo(t)
	ctx := context.Background()
	prior, err := repo.AddPhoto(ctx, pin.ID, []byte("prior"))
	require.NoError(t, err)
	repo.batches = 0

	s, indices := displayedSession(repo, pin.ID, AlbumSize)
	for _, i := range indices[:10] {
		c, err := s.RecordDownload(ctx, i, bytesOf(i), nil)
		require.NoError(t, err)
		assert.Nil(t, c)
	}
	c, err := s.Close(ctx)
	require.NoError(t, err)
	assert.Nil(t, c)
	for _, i := range indices[10:] {
		c, _ := s.RecordDownload(ctx, i, bytesOf(i), nil)
		assert.Nil(t, c)
	}
	assert.Equal(t, 0, repo.batches)
	photos := storedPhotos(t, repo, pin.ID)
	require.Len(t, photos, 1)
	assert.Equal(t, prior.ID, photos[0].ID)
}

func TestCloseAfterCommitAppendsDownloaded(t *testing.T) {
	repo, pin := newTestRepo(t)
	ctx := context.Background()
	s, first := displayedSession(repo, pin.ID, 2)
	for _, i := range first {
		s.RecordDownload(ctx, i, bytesOf(i), nil)
	}
	second := s.Add(refs(3))
	s.MarkDisplayed(second...)
	s.RecordDownload(ctx, second[0], bytesOf(10), nil)

	c, err := s.Close(ctx)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Len(t, c.Photos, 1)
	assert.Empty(t, c.Replaced)
	c, _ = s.RecordDownload(ctx, second[1], bytesOf(11), nil)
	assert.Nil(t, c)
	assert.Len(t, storedPhotos(t, repo, pin.ID), 3)
}

func TestFailedItemStallsCommitUntilRetried(t *testing.T) {
	repo, pin := newTestRepo(t)
	ctx := context.Background()
	s, indices := displayedSession(repo, pin.ID, 3)
	s.RecordDownload(ctx, indices[0], bytesOf(0), nil)
	s.RecordDownload(ctx, indices[1], nil, domain.NewHTTPStatusError("download", 404))
	c, err := s.RecordDownload(ctx, indices[2], bytesOf(2), nil)
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Equal(t, []int{indices[1]}, s.Failed())

	ref, ok := s.Retry(indices[1])
	require.True(t, ok)
	assert.Equal(t, refs(3)[1], ref)
	_, ok = s.Retry(indices[0])
	assert.False(t, ok)

	c, err = s.RecordDownload(ctx, indices[1], bytesOf(1), nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Len(t, c.Photos, 3)
	assert.Empty(t, s.Failed())
}

func TestPersistenceErrorLeavesStateUnchanged(t *testing.T) {
	repo, pin := newTestRepo(t)
	ctx := context.Background()
	s, indices := displayedSession(repo, pin.ID, 2)
	repo.failing = true
	s.RecordDownload(ctx, indices[0], bytesOf(0), nil)
	_, err := s.RecordDownload(ctx, indices[1], bytesOf(1), nil)
	assert.Equal(t, domain.PersistenceError, domain.KindOf(err))
	assert.False(t, s.EverCommitted())
	assert.Equal(t, 0, s.CommittedCount())
	for _, item := range s.Items() {
		assert.True(t, item.Downloaded)
		assert.Empty(t, item.Photo)
	}

	repo.failing = false
	c, err := s.Commit(ctx)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Len(t, c.Photos, 2)
	assert.True(t, s.EverCommitted())
}

func TestRemoveUncommittedItemsOnlyFilters(t *testing.T) {
	repo, pin := newTestRepo(t)
	ctx := context.Background()
	s, indices := displayedSession(repo, pin.ID, 3)
	s.RecordDownload(ctx, indices[0], bytesOf(0), nil)
	s.RecordDownload(ctx, indices[1], nil, errors.New("timeout"))

	removal, err := s.RemoveSelected(ctx, []int{indices[1]})
	require.NoError(t, err)
	assert.Equal(t, []int{indices[1]}, removal.Removed)
	assert.Empty(t, removal.Deleted)
	assert.Nil(t, removal.Commit)
	assert.Equal(t, 0, repo.batches)

	c, err := s.RecordDownload(ctx, indices[2], bytesOf(2), nil)
	require.NoError(t, err)
	require.NotNil(t, c, "removing the failed item unblocks the commit")
	assert.Len(t, c.Photos, 2)
}

func TestRemoveCommittedItemsDeletesPhotos(t *testing.T) {
	repo, pin := newTestRepo(t)
	ctx := context.Background()
	s, indices := displayedSession(repo, pin.ID, 3)
	for _, i := range indices {
		s.RecordDownload(ctx, i, bytesOf(i), nil)
	}
	removed := s.ItemsAt(indices[0])[0].Photo
	require.NotEmpty(t, removed)

	removal, err := s.RemoveSelected(ctx, []int{indices[0], indices[0], 99})
	require.NoError(t, err)
	assert.Equal(t, []library.PhotoID{removed}, removal.Deleted)
	photos := storedPhotos(t, repo, pin.ID)
	assert.Len(t, photos, 2)
	for _, p := range photos {
		assert.NotEqual(t, removed, p.ID)
	}
	_, ok := s.Content(indices[0])
	assert.False(t, ok)
}

func TestRemoveFailsWithPersistenceError(t *testing.T) {
	repo, pin := newTestRepo(t)
	ctx := context.Background()
	s, indices := displayedSession(repo, pin.ID, 1)
	s.RecordDownload(ctx, indices[0], bytesOf(0), nil)
	repo.failing = true
	_, err := s.RemoveSelected(ctx, indices)
	assert.Equal(t, domain.PersistenceError, domain.KindOf(err))
	assert.False(t, s.ItemsAt(indices[0])[0].Removed)
}

func TestUndisplayedItemsDoNotBlockCommit(t *testing.T) {
	repo, pin := newTestRepo(t)
	ctx := context.Background()
	s := NewSession(pin.ID, repo)
	indices := s.Add(refs(4))
	s.MarkDisplayed(indices[:2]...)
	s.RecordDownload(ctx, indices[0], bytesOf(0), nil)
	c, err := s.RecordDownload(ctx, indices[1], bytesOf(1), nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Len(t, c.Photos, 2)
	assert.False(t, s.ItemsAt(indices[2])[0].Displayed)
}

func TestDiscardIgnoresLaterDownloads(t *testing.T) {
	repo, pin := newTestRepo(t)
	ctx := context.Background()
	s, indices := displayedSession(repo, pin.ID, 2)
	_, err := s.RecordDownload(ctx, indices[0], bytesOf(0), nil)
	require.NoError(t, err)

	s.Discard()
	c, err := s.RecordDownload(ctx, indices[1], bytesOf(1), nil)
	require.NoError(t, err)
	assert.Nil(t, c)
	c, err = s.Close(ctx)
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Empty(t, storedPhotos(t, repo, pin.ID))
	assert.Zero(t, repo.batches)
}

func TestCommitLogsPinOnce(t *testing.T) {
	repo, pin := newTestRepo(t)
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := logging.Context(context.Background(), zap.New(core).With(zap.String("pin", string(pin.ID))))

	s, indices := displayedSession(repo, pin.ID, 2)
	for i, index := range indices {
		_, err := s.RecordDownload(ctx, index, bytesOf(i), nil)
		require.NoError(t, err)
	}
	_, err := s.RemoveSelected(ctx, indices[:1])
	require.NoError(t, err)

	entries := logs.All()
	require.NotEmpty(t, entries)
	for _, e := range entries {
		pins := 0
		for _, f := range e.Context {
			if f.Key == "pin" {
				pins++
			}
		}
		assert.Equal(t, 1, pins, "%s: %v", e.Message, e.Context)
	}
}
