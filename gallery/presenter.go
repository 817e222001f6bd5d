package gallery

import (
	"bitbucket.org/kleinnic74/pinphotos/domain"
	"bitbucket.org/kleinnic74/pinphotos/library"
)

// Presenter receives the notifications of the views. Implementations must not
// call back into the view that notifies them.
type Presenter interface {
	LoadingChanged(pin library.PinID, loading bool)
	AlbumReady(pin library.PinID, album Album)
	NoMorePhotos(pin library.PinID)
	Error(pin library.PinID, kind domain.ErrorKind, msg string)
	SelectionChanged(pin library.PinID, count int)
	ItemLoaded(pin library.PinID, position int)
}

// NopPresenter discards all notifications
type NopPresenter struct{}

func (NopPresenter) LoadingChanged(library.PinID, bool) {}
func (NopPresenter) AlbumReady(library.PinID, Album) {}
func (NopPresenter) NoMorePhotos(library.PinID) {}
func (NopPresenter) Error(library.PinID, domain.ErrorKind, string) {}
func (NopPresenter) SelectionChanged(library.PinID, int) {}
func (NopPresenter) ItemLoaded(library.PinID, int) {}
