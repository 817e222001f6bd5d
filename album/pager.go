package album

import (
	"errors"
	"sync"

	"bitbucket.org/kleinnic74/pinphotos/search"
)

var (
	// ErrNoMorePhotos is returned when the last album of the last page has been shown
	ErrNoMorePhotos = errors.New("no more photos")
	// ErrPageLoading is returned while the next page is being fetched
	ErrPageLoading = errors.New("next page is loading")
)

// PageFetcher fetches a page in the background and calls done with the result
type PageFetcher func(page int, done func(search.PageResult))

// Pager hands out the albums of consecutive pages. When the last album of a
// page is handed out and more pages exist, the next page is prefetched.
type Pager struct {
	lock       sync.Mutex
	fetch      PageFetcher
	onPage     func(search.PageResult)
	albumSize  int
	page       search.PageResult
	albumIndex int
	pending    bool
}

// NewPager creates a pager starting before the first album of first. onPage is
// called, outside of the pager's lock, whenever a prefetched page resolves.
func NewPager(first search.PageResult, albumSize int, fetch PageFetcher, onPage func(search.PageResult)) *Pager {
	if albumSize <= 0 {
		albumSize = AlbumSize
	}
	return &Pager{
		fetch:     fetch,
		onPage:    onPage,
		albumSize: albumSize,
		page:      first,
	}
}

// Next returns the next album
func (p *Pager) Next() ([]search.PhotoReference, error) {
	album, fetchPage, err := p.next()
	if fetchPage > 0 {
		p.fetch(fetchPage, p.resolve)
	}
	return album, err
}

func (p *Pager) next() (album []search.PhotoReference, fetchPage int, err error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	refs := p.page.References
	from, to := Bounds(len(refs), p.albumIndex+1, p.albumSize)
	if from >= len(refs) {
		if p.page.Page >= p.page.TotalPages {
			return nil, 0, ErrNoMorePhotos
		}
		return nil, p.startPrefetch(), ErrPageLoading
	}
	p.albumIndex++
	if to == len(refs) && p.page.Page < p.page.TotalPages {
		fetchPage = p.startPrefetch()
	}
	album = make([]search.PhotoReference, to-from)
	copy(album, refs[from:to])
	return album, fetchPage, nil
}

// startPrefetch returns the page to fetch, or 0 if a fetch is already pending
func (p *Pager) startPrefetch() int {
	if p.pending {
		return 0
	}
	p.pending = true
	return p.page.Page + 1
}

func (p *Pager) resolve(result search.PageResult) {
	p.lock.Lock()
	p.pending = false
	if result.Err == nil {
		p.page = result
		p.albumIndex = 0
	}
	p.lock.Unlock()
	if p.onPage != nil {
		p.onPage(result)
	}
}

// Position returns the current page number, the total number of pages and the
// number of albums handed out from the current page
func (p *Pager) Position() (page, totalPages, albumIndex int) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.page.Page, p.page.TotalPages, p.albumIndex
}

func (p *Pager) Pending() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.pending
}
