// ABOUTME: Ogg/Opus decode source
// ABOUTME: libopusfile stream reads converted to int32 samples
package source

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/hraban/opus.v2"

	"github.com/kanade-player/kanade-go/internal/audio"
	"github.com/kanade-player/kanade-go/internal/buffer"
)

// opusMaxFrame is the maximum opus frame duration in samples per channel
// (120 ms at 48 kHz).
const opusMaxFrame = 5760

type opusSource struct {
	file   *os.File
	stream *opus.Stream
	spec   audio.StreamSpec
	meta   meta
	pcm    []int16
}

func newOpus(f *os.File, path string) (Source, error) {
	m := probeMeta(f, path)

	channels, err := opusHeadChannels(f)
	if err != nil {
		return nil, fmt.Errorf("decode opus: %w", err)
	}

	stream, err := opus.NewStream(f)
	if err != nil {
		return nil, fmt.Errorf("decode opus: %w", err)
	}

	return &opusSource{
		file:   f,
		stream: stream,
		spec: audio.StreamSpec{
			// Opus always decodes at 48 kHz.
			SampleRate: 48000,
			Channels:   channels,
			Mode:       audio.ModePCM,
		},
		meta: m,
		pcm:  make([]int16, opusMaxFrame*channels),
	}, nil
}

// opusHeadChannels reads the channel count from the OpusHead packet on the
// first Ogg page. The stream reads interleave at this count, which the
// opusfile binding does not expose itself. Leaves f positioned at the
// start.
func opusHeadChannels(f *os.File) (int, error) {
	head := make([]byte, 512)
	n, err := f.ReadAt(head, 0)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("read header: %w", err)
	}
	head = head[:n]

	idx := bytes.Index(head, []byte("OpusHead"))
	if idx < 0 || idx+10 > len(head) {
		return 0, fmt.Errorf("OpusHead packet not found")
	}
	// OpusHead layout: 8-byte magic, 1-byte version, 1-byte channel count.
	channels := int(head[idx+9])
	if channels < 1 {
		return 0, fmt.Errorf("OpusHead declares %d channels", channels)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return channels, nil
}

func (s *opusSource) Spec() (audio.StreamSpec, bool) { return s.spec, true }

func (s *opusSource) Decode(dst *buffer.Staging) error {
	// Read reports samples per channel; the buffer holds n*channels
	// interleaved values.
	n, err := s.stream.Read(s.pcm)
	if n > 0 {
		total := n * s.spec.Channels
		samples := make([]int32, total)
		for i := 0; i < total; i++ {
			samples[i] = audio.SampleFromInt16(s.pcm[i])
		}
		dst.Push(samples)
	}
	if err == io.EOF || (err == nil && n == 0) {
		if n > 0 {
			return nil
		}
		return ErrEndOfStream
	}
	if err != nil {
		return fmt.Errorf("opus decode: %w", err)
	}
	return nil
}

func (s *opusSource) Metadata() (string, string, string) {
	return s.meta.title, s.meta.artist, s.meta.album
}

func (s *opusSource) Close() error {
	s.stream.Close()
	return s.file.Close()
}
