package library

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

var (
	ErrEmptyBatch = errors.New("batch has no operations")
)

// Batch is a set of photo operations against a single pin
type Batch struct {
	Pin    PinID
	Delete []PhotoID
	Add    [][]byte
}

func (b Batch) IsEmpty() bool {
	return len(b.Delete) == 0 && len(b.Add) == 0
}

// Validate checks the batch before it is applied, reporting all problems at once
func (b Batch) Validate() (err error) {
	if b.Pin == "" {
		err = multierr.Append(err, errors.New("batch without pin"))
	}
	if b.IsEmpty() {
		err = multierr.Append(err, ErrEmptyBatch)
	}
	for i, id := range b.Delete {
		if id == "" {
			err = multierr.Append(err, fmt.Errorf("empty photo id at delete #%d", i))
		}
	}
	for i, data := range b.Add {
		if len(data) == 0 {
			err = multierr.Append(err, fmt.Errorf("empty content at add #%d", i))
		}
	}
	return
}
