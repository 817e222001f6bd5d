package events

import (
	"bitbucket.org/kleinnic74/pinphotos/domain"
	"bitbucket.org/kleinnic74/pinphotos/gallery"
	"bitbucket.org/kleinnic74/pinphotos/library"
)

// Event names published by Presenter
const (
	Loading   = "loading"
	Album     = "album"
	Selection = "selection"
	Item      = "item"
	Error     = "error"
)

// ErrorData is the payload of error events
type ErrorData struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

// Presenter publishes the notifications of gallery views to a stream
type Presenter struct {
	stream *Stream
}

var _ gallery.Presenter = (*Presenter)(nil)

func NewPresenter(stream *Stream) *Presenter {
	return &Presenter{stream: stream}
}

func (p *Presenter) publish(pin library.PinID, name, action string, data interface{}) {
	p.stream.Publish(Event{Pin: string(pin), Name: name, Action: action, Data: data})
}

func (p *Presenter) LoadingChanged(pin library.PinID, loading bool) {
	action := "stopped"
	if loading {
		action = "started"
	}
	p.publish(pin, Loading, action, nil)
}

func (p *Presenter) AlbumReady(pin library.PinID, album gallery.Album) {
	p.publish(pin, Album, "ready", album)
}

func (p *Presenter) NoMorePhotos(pin library.PinID) {
	p.publish(pin, Album, "exhausted", nil)
}

func (p *Presenter) Error(pin library.PinID, kind domain.ErrorKind, msg string) {
	p.publish(pin, Error, kind.String(), ErrorData{Kind: kind, Message: msg})
}

func (p *Presenter) SelectionChanged(pin library.PinID, count int) {
	p.publish(pin, Selection, "changed", count)
}

func (p *Presenter) ItemLoaded(pin library.PinID, position int) {
	p.publish(pin, Item, "loaded", position)
}
