package library

import (
	"encoding/hex"
	"time"

	"bitbucket.org/kleinnic74/pinphotos/domain"
	"github.com/google/uuid"
	"github.com/reusee/mmh3"
)

// PhotoID is the unique identifier of a Photo
type PhotoID string

// BinaryHash is the hash of the binary content of a photo
type BinaryHash string

func (h BinaryHash) String() string {
	return string(h)
}

// HashOf computes the content hash of the given photo bytes
func HashOf(data []byte) BinaryHash {
	h := mmh3.New128()
	h.Write(data)
	return BinaryHash(hex.EncodeToString(h.Sum(nil)))
}

// Photo is the stored meta-data of a photo. The image bytes are kept apart
// and are read with Repository.PhotoContent.
type Photo struct {
	ID      PhotoID    `json:"id"`
	Pin     PinID      `json:"pin"`
	Seq     uint64     `json:"seq"`
	Size    int        `json:"size"`
	Mime    string     `json:"mime"`
	TakenAt time.Time  `json:"takenAt,omitempty"`
	Hash    BinaryHash `json:"hash"`
	AddedAt time.Time  `json:"addedAt"`
}

// NewPhoto creates the record for a photo of pin with the given content. Seq
// is assigned by the repository.
func NewPhoto(pin PinID, data []byte) *Photo {
	meta, _ := domain.Inspect(data)
	return &Photo{
		ID:      PhotoID(uuid.New().String()),
		Pin:     pin,
		Size:    len(data),
		Mime:    meta.Mime,
		TakenAt: meta.TakenAt,
		Hash:    HashOf(data),
		AddedAt: time.Now().UTC(),
	}
}
