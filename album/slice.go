// Package album slices search pages into albums, tracks the downloads of the
// displayed photos and commits them to the repository.
package album

import (
	"bitbucket.org/kleinnic74/pinphotos/search"
)

const (
	AlbumSize     = 24
	AlbumsPerPage = 4
	PageSize      = AlbumSize * AlbumsPerPage
)

// Bounds returns the range [from, to) of the 1-based albumIndex in a page of n
// references. The range is empty when the album lies beyond the page.
func Bounds(n, albumIndex, albumSize int) (from, to int) {
	if albumIndex < 1 || albumSize <= 0 {
		return n, n
	}
	from = (albumIndex - 1) * albumSize
	if from >= n {
		return n, n
	}
	to = from + albumSize
	if to > n {
		to = n
	}
	return from, to
}

// SliceAlbum returns the references of the 1-based albumIndex of page
func SliceAlbum(page search.PageResult, albumIndex, albumSize int) []search.PhotoReference {
	from, to := Bounds(len(page.References), albumIndex, albumSize)
	return page.References[from:to]
}
