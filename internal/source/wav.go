// ABOUTME: WAV decode source
// ABOUTME: RIFF chunk walk plus 16/24/32-bit PCM conversion
package source

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/kanade-player/kanade-go/internal/audio"
	"github.com/kanade-player/kanade-go/internal/buffer"
)

const wavChunkBytes = 32768

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

type wavSource struct {
	file      *os.File
	spec      audio.StreamSpec
	meta      meta
	bytesPer  int
	remaining int64
	chunk     []byte
}

func newWAV(f *os.File, path string) (Source, error) {
	m := probeMeta(f, path)

	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return nil, fmt.Errorf("read riff header: %w", err)
	}
	if string(riff[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a wave file")
	}

	src := &wavSource{file: f, meta: m, chunk: make([]byte, wavChunkBytes)}

	var haveFmt bool
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(f, hdr[:]); err != nil {
			return nil, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			var fmtChunk [16]byte
			if _, err := io.ReadFull(f, fmtChunk[:]); err != nil {
				return nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			format := binary.LittleEndian.Uint16(fmtChunk[0:2])
			if format != wavFormatPCM && format != wavFormatExtensible {
				return nil, fmt.Errorf("unsupported wav encoding %#x", format)
			}
			channels := int(binary.LittleEndian.Uint16(fmtChunk[2:4]))
			rate := int(binary.LittleEndian.Uint32(fmtChunk[4:8]))
			bits := int(binary.LittleEndian.Uint16(fmtChunk[14:16]))
			if bits != 16 && bits != 24 && bits != 32 {
				return nil, fmt.Errorf("unsupported wav bit depth %d", bits)
			}
			src.spec = audio.StreamSpec{SampleRate: rate, Channels: channels, Mode: audio.ModePCM}
			src.bytesPer = bits / 8
			haveFmt = true
			if rest := size - 16; rest > 0 {
				if _, err := f.Seek(rest+rest&1, io.SeekCurrent); err != nil {
					return nil, err
				}
			}
		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("wav data chunk before fmt chunk")
			}
			src.remaining = size
			return src, nil
		default:
			if _, err := f.Seek(size+size&1, io.SeekCurrent); err != nil {
				return nil, err
			}
		}
	}
}

func (s *wavSource) Spec() (audio.StreamSpec, bool) { return s.spec, s.bytesPer != 0 }

func (s *wavSource) Decode(dst *buffer.Staging) error {
	if s.remaining <= 0 {
		return ErrEndOfStream
	}

	frameBytes := s.bytesPer * s.spec.Channels
	want := int64(len(s.chunk) - len(s.chunk)%frameBytes)
	if want > s.remaining {
		want = s.remaining - s.remaining%int64(frameBytes)
		if want == 0 {
			s.remaining = 0
			return ErrEndOfStream
		}
	}

	n, err := io.ReadFull(s.file, s.chunk[:want])
	n -= n % frameBytes
	if n > 0 {
		s.remaining -= int64(n)
		count := n / s.bytesPer
		samples := make([]int32, count)
		for i := 0; i < count; i++ {
			off := i * s.bytesPer
			switch s.bytesPer {
			case 2:
				samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(s.chunk[off:])))
			case 3:
				samples[i] = audio.SampleFrom24Bit([3]byte{s.chunk[off], s.chunk[off+1], s.chunk[off+2]})
			case 4:
				samples[i] = int32(binary.LittleEndian.Uint32(s.chunk[off:]))
			}
		}
		dst.Push(samples)
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		s.remaining = 0
		if n > 0 {
			return nil
		}
		return ErrEndOfStream
	}
	if err != nil {
		return fmt.Errorf("wav read: %w", err)
	}
	return nil
}

func (s *wavSource) Metadata() (string, string, string) {
	return s.meta.title, s.meta.artist, s.meta.album
}

func (s *wavSource) Close() error { return s.file.Close() }
