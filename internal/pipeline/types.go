package pipeline

import (
	"context"
	"errors"
)

// SplitPattern is the chunking rule handed to the model runner: input text
// is split on runs of newline characters, one segment per chunk.
const SplitPattern = `\n+`

// Request contains parameters for one synthesis call.
type Request struct {
	Text  string
	Voice string
	Speed float64
}

// Segment is one unit of audio output corresponding to one split portion of
// the input text. PCM is 16-bit little-endian mono at the pipeline's sample
// rate.
type Segment struct {
	Index     int
	Graphemes string
	Phonemes  string
	PCM       []byte
}

// Pipeline is the contract for the text-to-speech model. Segments arrive in
// chunk order and the stream is finite; callers drain it fully per request.
type Pipeline interface {
	Synthesize(ctx context.Context, req Request) (<-chan Segment, <-chan error)
}

// ErrNotReady is returned when synthesis is requested before (or after a
// failed) pipeline initialization.
var ErrNotReady = errors.New("pipeline not initialized")
