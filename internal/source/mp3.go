// ABOUTME: MP3 decode source
// ABOUTME: go-mp3 byte stream converted to interleaved int32 samples
package source

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"

	"github.com/kanade-player/kanade-go/internal/audio"
	"github.com/kanade-player/kanade-go/internal/buffer"
)

// mp3ChunkBytes is how much decoded PCM one Decode call pulls.
const mp3ChunkBytes = 32768

type mp3Source struct {
	file    *os.File
	decoder *mp3.Decoder
	spec    audio.StreamSpec
	meta    meta
	chunk   []byte
}

func newMP3(f *os.File, path string) (Source, error) {
	m := probeMeta(f, path)

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}

	return &mp3Source{
		file:    f,
		decoder: dec,
		spec: audio.StreamSpec{
			SampleRate: dec.SampleRate(),
			Channels:   2, // go-mp3 always yields stereo
			Mode:       audio.ModePCM,
		},
		meta:  m,
		chunk: make([]byte, mp3ChunkBytes),
	}, nil
}

func (s *mp3Source) Spec() (audio.StreamSpec, bool) { return s.spec, true }

func (s *mp3Source) Decode(dst *buffer.Staging) error {
	n, err := s.decoder.Read(s.chunk)
	if n > 0 {
		// go-mp3 output is 16-bit little-endian; scale into the high
		// bits of the 32-bit pipeline range.
		count := n / 2
		samples := make([]int32, count)
		for i := 0; i < count; i++ {
			samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(s.chunk[i*2:])))
		}
		dst.Push(samples)
	}
	if err == io.EOF {
		if n > 0 {
			return nil
		}
		return ErrEndOfStream
	}
	if err != nil {
		return fmt.Errorf("mp3 decode: %w", err)
	}
	return nil
}

func (s *mp3Source) Metadata() (string, string, string) {
	return s.meta.title, s.meta.artist, s.meta.album
}

func (s *mp3Source) Close() error { return s.file.Close() }
