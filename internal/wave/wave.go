// Package wave renders raw PCM into a WAV container.
package wave

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Encode wraps 16-bit little-endian PCM in a WAV container at the given
// sample rate and channel count.
func Encode(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, errors.New("pcm payload not aligned")
	}

	samples := make([]int, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:   samples,
	}

	out := &seekBuffer{}
	enc := wav.NewEncoder(out, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return out.data, nil
}

// seekBuffer is an in-memory io.WriteSeeker. The wav encoder seeks back to
// patch header sizes on Close, which bytes.Buffer cannot support.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.data) {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(b.pos) + offset
	case io.SeekEnd:
		pos = int64(len(b.data)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if pos < 0 {
		return 0, errors.New("negative seek position")
	}
	b.pos = int(pos)
	return pos, nil
}
