package domain

import (
	"bytes"
	"errors"
	"time"

	"github.com/h2non/filetype"
	"github.com/rwcarlsen/goexif/exif"
)

const sniffLen = 261

var (
	ErrUnknownFormat = errors.New("unknown media format")
)

// Meta describes the downloaded bytes of a photo
type Meta struct {
	Mime    string    `json:"mime"`
	Ext     string    `json:"ext"`
	TakenAt time.Time `json:"takenAt,omitempty"`
}

// Inspect sniffs the format of the given content and, for formats carrying
// EXIF data, extracts the capture date
func Inspect(data []byte) (Meta, error) {
	header := data
	if len(header) > sniffLen {
		header = header[:sniffLen]
	}
	kind, err := filetype.Match(header)
	if err != nil || kind == filetype.Unknown {
		return Meta{Mime: "application/octet-stream"}, ErrUnknownFormat
	}
	meta := Meta{Mime: kind.MIME.Value, Ext: kind.Extension}
	if kind.Extension == "jpg" || kind.Extension == "tif" {
		if ex, err := exif.Decode(bytes.NewReader(data)); err == nil {
			if taken, err := ex.DateTime(); err == nil {
				meta.TakenAt = taken
			}
		}
	}
	return meta, nil
}

// MimeOf returns the sniffed MIME type of data, or application/octet-stream
func MimeOf(data []byte) string {
	meta, _ := Inspect(data)
	return meta.Mime
}
