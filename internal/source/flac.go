// ABOUTME: FLAC decode source
// ABOUTME: Frame-by-frame parse with subframe interleaving
package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mewkiz/flac"

	"github.com/kanade-player/kanade-go/internal/audio"
	"github.com/kanade-player/kanade-go/internal/buffer"
)

type flacSource struct {
	file     *os.File
	stream   *flac.Stream
	spec     audio.StreamSpec
	bitDepth int
	meta     meta
}

func newFLAC(f *os.File, path string) (Source, error) {
	m := probeMeta(f, path)

	stream, err := flac.New(f)
	if err != nil {
		return nil, fmt.Errorf("decode flac: %w", err)
	}

	info := stream.Info
	return &flacSource{
		file:   f,
		stream: stream,
		spec: audio.StreamSpec{
			SampleRate: int(info.SampleRate),
			Channels:   int(info.NChannels),
			Mode:       audio.ModePCM,
		},
		bitDepth: int(info.BitsPerSample),
		meta:     m,
	}, nil
}

func (s *flacSource) Spec() (audio.StreamSpec, bool) { return s.spec, true }

func (s *flacSource) Decode(dst *buffer.Staging) error {
	frame, err := s.stream.ParseNext()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrEndOfStream
		}
		// A torn frame; resync on the next parse.
		return fmt.Errorf("%w: flac frame: %v", ErrSkipped, err)
	}

	// Shift per-channel subframe samples into the 32-bit pipeline range
	// and interleave.
	shift := uint(32 - s.bitDepth)
	samples := make([]int32, 0, int(frame.BlockSize)*s.spec.Channels)
	for i := 0; i < int(frame.BlockSize); i++ {
		for ch := 0; ch < s.spec.Channels; ch++ {
			samples = append(samples, frame.Subframes[ch].Samples[i]<<shift)
		}
	}
	dst.Push(samples)
	return nil
}

func (s *flacSource) Metadata() (string, string, string) {
	return s.meta.title, s.meta.artist, s.meta.album
}

func (s *flacSource) Close() error { return s.file.Close() }
