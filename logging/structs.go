package logging

import (
	"go.uber.org/zap/zapcore"
)

// Indices logs a list of album item indices as an array
type Indices []int

func (a Indices) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, i := range a {
		enc.AppendInt(i)
	}
	return nil
}
