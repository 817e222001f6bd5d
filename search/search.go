// Package search defines the paginated remote photo search used to populate
// the albums of a pin.
package search

import (
	"context"
	"fmt"

	"bitbucket.org/kleinnic74/pinphotos/domain/gps"
)

const (
	// MaxResults is the number of results a remote search returns at most,
	// regardless of the total it reports
	MaxResults = 4100
	// DefaultPageSize is four albums of 24 photos
	DefaultPageSize = 96
)

// PhotoReference is a remote photo at a position in a page
type PhotoReference struct {
	URL      string `json:"url"`
	Position int    `json:"position"`
}

// PageResult is the outcome of one page fetch. Exactly one is produced per
// fetch attempt; when Err is set References and TotalPages are meaningless.
type PageResult struct {
	Page       int              `json:"page"`
	References []PhotoReference `json:"references"`
	TotalPages int              `json:"totalPages"`
	Err        error            `json:"-"`
}

func (r PageResult) IsEmpty() bool {
	return r.Err == nil && len(r.References) == 0
}

func (r PageResult) HasMorePages() bool {
	return r.Err == nil && r.Page < r.TotalPages
}

func (r PageResult) String() string {
	if r.Err != nil {
		return fmt.Sprintf("page %d: %s", r.Page, r.Err)
	}
	return fmt.Sprintf("page %d/%d: %d references", r.Page, r.TotalPages, len(r.References))
}

// Searcher searches for photos around a coordinate. Page numbers are 1-based.
// Implementations must not cache: each call issues a new search.
type Searcher interface {
	Search(ctx context.Context, c gps.Coordinates, page, pageSize int) PageResult
}

type SearcherFunc func(ctx context.Context, c gps.Coordinates, page, pageSize int) PageResult

func (f SearcherFunc) Search(ctx context.Context, c gps.Coordinates, page, pageSize int) PageResult {
	return f(ctx, c, page, pageSize)
}

// TotalPages returns the number of pages of pageSize needed for the given
// reported total, capped at MaxResults
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	if total > MaxResults {
		total = MaxResults
	}
	return (total + pageSize - 1) / pageSize
}
