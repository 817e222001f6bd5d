package gallery

import (
	"bitbucket.org/kleinnic74/pinphotos/album"
	"bitbucket.org/kleinnic74/pinphotos/library"
)

// Mode tells whether a view shows stored photos or an album of remote references
type Mode string

const (
	ModePhotos = Mode("photos")
	ModeAlbum  = Mode("album")
)

// Item is one entry of the displayed album, addressed by its position
type Item struct {
	Position   int             `json:"position"`
	URL        string          `json:"url,omitempty"`
	Photo      library.PhotoID `json:"photo,omitempty"`
	Downloaded bool            `json:"downloaded"`
	Failed     bool            `json:"failed,omitempty"`
	Selected   bool            `json:"selected,omitempty"`
}

// Album is what a view displays
type Album struct {
	Mode  Mode   `json:"mode"`
	Items []Item `json:"items"`
}

func photosAlbum(photos []*library.Photo, selected map[int]bool) Album {
	items := make([]Item, len(photos))
	for i, p := range photos {
		items[i] = Item{Position: i, Photo: p.ID, Downloaded: true, Selected: selected[i]}
	}
	return Album{Mode: ModePhotos, Items: items}
}

func referencesAlbum(states []album.ItemState, selected map[int]bool) Album {
	items := make([]Item, len(states))
	for i, s := range states {
		items[i] = Item{
			Position:   i,
			URL:        s.URL,
			Photo:      s.Photo,
			Downloaded: s.Downloaded,
			Failed:     s.Failed != "",
			Selected:   selected[i],
		}
	}
	return Album{Mode: ModeAlbum, Items: items}
}
