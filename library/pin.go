package library

import (
	"time"

	"bitbucket.org/kleinnic74/pinphotos/domain/gps"
	"github.com/google/uuid"
)

// PinID is the unique identifier of a Pin
type PinID string

type Pin struct {
	ID        PinID     `json:"id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewPin creates a pin with a new random ID at the given location
func NewPin(c gps.Coordinates) *Pin {
	return &Pin{
		ID:        PinID(uuid.New().String()),
		Latitude:  c.Lat(),
		Longitude: c.Long(),
		CreatedAt: time.Now().UTC(),
	}
}

func (p *Pin) Coordinates() gps.Coordinates {
	return gps.NewCoordinates(p.Latitude, p.Longitude)
}
