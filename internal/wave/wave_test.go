package wave

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/go-audio/wav"
)

func TestEncodeRoundTrip(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768, 42}
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}

	data, err := Encode(pcm, 24000, 1)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		t.Fatal("expected a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if buf.Format.SampleRate != 24000 {
		t.Fatalf("expected sample rate 24000, got %d", buf.Format.SampleRate)
	}
	if buf.Format.NumChannels != 1 {
		t.Fatalf("expected mono, got %d channels", buf.Format.NumChannels)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(buf.Data))
	}
	for i, s := range samples {
		if buf.Data[i] != int(s) {
			t.Fatalf("sample %d: expected %d, got %d", i, s, buf.Data[i])
		}
	}
}

func TestEncodeEmpty(t *testing.T) {
	data, err := Encode(nil, 24000, 1)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		t.Fatal("expected a valid wav file for empty pcm")
	}
}

func TestEncodeRejectsUnaligned(t *testing.T) {
	if _, err := Encode([]byte{0x01}, 24000, 1); err == nil {
		t.Fatal("expected error for odd-length pcm")
	}
}
