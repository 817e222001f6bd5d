// Package library defines the persistent model of pins and their photos and the
// repository through which they are stored.
package library

import (
	"context"
	"errors"
	"fmt"
)

// Repository stores pins and the photos downloaded for them. Implementations
// must apply a Batch atomically: either all of its deletions and additions
// become visible or none does.
type Repository interface {
	AddPin(ctx context.Context, pin *Pin) error
	GetPin(ctx context.Context, id PinID) (*Pin, error)
	// DeletePin deletes the pin and all of its photos
	DeletePin(ctx context.Context, id PinID) error
	FetchPins(ctx context.Context) ([]*Pin, error)
	FetchPinsPaged(ctx context.Context, start, maxCount uint) ([]*Pin, bool, error)

	// FetchPhotos returns the photos of the given pin in insertion order
	FetchPhotos(ctx context.Context, pin PinID) ([]*Photo, error)
	CountPhotos(ctx context.Context, pin PinID) (int, error)
	AddPhoto(ctx context.Context, pin PinID, data []byte) (*Photo, error)
	DeletePhoto(ctx context.Context, id PhotoID) error
	GetPhoto(ctx context.Context, id PhotoID) (*Photo, error)
	PhotoContent(ctx context.Context, id PhotoID) ([]byte, *Photo, error)

	// RunBatch applies all operations of b in one transaction and returns the
	// photos it created, in the order of b.Add
	RunBatch(ctx context.Context, b Batch) ([]*Photo, error)
}

// ClosableRepository is a Repository that can be closed
type ClosableRepository interface {
	Repository

	Close() error
}

type ErrNotFound string

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("Not found: %s", string(e))
}

func NotFound(id string) error {
	return ErrNotFound(id)
}

// IsNotFound returns true if err or any error it wraps is a not-found error
// of this package
func IsNotFound(err error) bool {
	var notFound ErrNotFound
	return errors.As(err, &notFound)
}
