package pipeline

import (
	"context"
	"encoding/binary"
	"regexp"

	"github.com/newslett/ttsd/internal/config"
)

var splitRe = regexp.MustCompile(SplitPattern)

// mockPipeline synthesizes deterministic audio without a model. It applies
// the same newline chunking rule as the real runner and derives each
// segment's samples from the chunk text, so distinct chunks produce distinct
// audio and segment order is observable in the output.
type mockPipeline struct {
	cfg config.PipelineConfig
}

func NewMockPipeline(cfg config.PipelineConfig) Pipeline {
	return &mockPipeline{cfg: cfg}
}

func (m *mockPipeline) Synthesize(ctx context.Context, req Request) (<-chan Segment, <-chan error) {
	segments := make(chan Segment)
	errs := make(chan error, 1)
	go func() {
		defer close(segments)
		defer close(errs)

		index := 0
		for _, chunk := range splitRe.Split(req.Text, -1) {
			if chunk == "" {
				continue
			}
			select {
			case segments <- Segment{
				Index:     index,
				Graphemes: chunk,
				Phonemes:  chunk,
				PCM:       tonePCM(chunk),
			}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
			index++
		}
	}()
	return segments, errs
}

// tonePCM maps each byte of the chunk to one 16-bit sample.
func tonePCM(chunk string) []byte {
	pcm := make([]byte, len(chunk)*2)
	for i := 0; i < len(chunk); i++ {
		sample := int16(chunk[i]) << 6
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(sample))
	}
	return pcm
}
