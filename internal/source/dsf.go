// ABOUTME: DSF (DSD stream file) source
// ABOUTME: Bit-packed 1-bit samples carried in unsigned 32-bit containers
package source

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/kanade-player/kanade-go/internal/audio"
	"github.com/kanade-player/kanade-go/internal/buffer"
)

// dsfHeader is the fixed front matter of a DSF file: the DSD chunk, the
// fmt chunk and the data chunk header, all little-endian.
type dsfHeader struct {
	dsdChunkSize  uint64
	fileSize      uint64
	metadataPtr   uint64
	fmtChunkSize  uint64
	formatVersion uint32
	formatID      uint32
	channelType   uint32
	channelNum    uint32
	sampleFreq    uint32
	bitsPerSample uint32
	sampleCount   uint64
	blockSize     uint32
	dataChunkSize uint64
}

type dsfSource struct {
	file      *os.File
	spec      audio.StreamSpec
	meta      meta
	blockSize int
	remaining int64
	set       []byte
	packed    []uint32
}

func parseDSFHeader(r io.Reader) (*dsfHeader, error) {
	var raw [92]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return nil, fmt.Errorf("read dsf header: %w", err)
	}
	if string(raw[0:4]) != "DSD " {
		return nil, fmt.Errorf("missing DSD chunk marker")
	}
	if string(raw[28:32]) != "fmt " {
		return nil, fmt.Errorf("missing fmt chunk marker")
	}
	if string(raw[80:84]) != "data" {
		return nil, fmt.Errorf("missing data chunk marker")
	}

	h := &dsfHeader{
		dsdChunkSize:  binary.LittleEndian.Uint64(raw[4:12]),
		fileSize:      binary.LittleEndian.Uint64(raw[12:20]),
		metadataPtr:   binary.LittleEndian.Uint64(raw[20:28]),
		fmtChunkSize:  binary.LittleEndian.Uint64(raw[32:40]),
		formatVersion: binary.LittleEndian.Uint32(raw[40:44]),
		formatID:      binary.LittleEndian.Uint32(raw[44:48]),
		channelType:   binary.LittleEndian.Uint32(raw[48:52]),
		channelNum:    binary.LittleEndian.Uint32(raw[52:56]),
		sampleFreq:    binary.LittleEndian.Uint32(raw[56:60]),
		bitsPerSample: binary.LittleEndian.Uint32(raw[60:64]),
		sampleCount:   binary.LittleEndian.Uint64(raw[64:72]),
		blockSize:     binary.LittleEndian.Uint32(raw[72:76]),
		dataChunkSize: binary.LittleEndian.Uint64(raw[84:92]),
	}

	if h.dsdChunkSize+h.fmtChunkSize+h.dataChunkSize > h.fileSize {
		return nil, fmt.Errorf("dsf chunk sizes exceed file size")
	}
	if h.blockSize == 0 || h.channelNum == 0 {
		return nil, fmt.Errorf("dsf header has zero block size or channels")
	}
	return h, nil
}

func newDSF(f *os.File) (Source, error) {
	m := probeMeta(f, f.Name())

	h, err := parseDSFHeader(f)
	if err != nil {
		return nil, err
	}

	// Sample data starts right after the 12-byte data chunk header.
	dataStart := int64(h.dsdChunkSize + h.fmtChunkSize + 12)
	if _, err := f.Seek(dataStart, io.SeekStart); err != nil {
		return nil, err
	}

	channels := int(h.channelNum)
	blockSize := int(h.blockSize)
	return &dsfSource{
		file: f,
		spec: audio.StreamSpec{
			SampleRate: int(h.sampleFreq),
			Channels:   channels,
			Mode:       audio.ModeDSD,
		},
		meta:      m,
		blockSize: blockSize,
		remaining: int64(h.dataChunkSize) - 12,
		set:       make([]byte, blockSize*channels),
		packed:    make([]uint32, blockSize/4*channels),
	}, nil
}

func (s *dsfSource) Spec() (audio.StreamSpec, bool) { return s.spec, true }

// Decode reads one block per channel and interleaves the 1-bit sample
// bytes into unsigned 32-bit containers, four bytes at a time. The bit
// layout is preserved exactly; only the container signedness changes on
// the way into the int32 pipeline.
func (s *dsfSource) Decode(dst *buffer.Staging) error {
	if s.remaining <= 0 {
		return ErrEndOfStream
	}

	want := int64(len(s.set))
	if want > s.remaining {
		want = s.remaining
	}

	n, err := io.ReadFull(s.file, s.set[:want])
	if n > 0 {
		s.remaining -= int64(n)
		stride := n / s.spec.Channels
		stride -= stride % 4
		if stride == 0 {
			s.remaining = 0
			return ErrEndOfStream
		}

		count := 0
		for off := 0; off < stride; off += 4 {
			for ch := 0; ch < s.spec.Channels; ch++ {
				block := s.set[ch*stride:]
				s.packed[count] = binary.LittleEndian.Uint32(block[off : off+4])
				count++
			}
		}

		samples := make([]int32, count)
		audio.ReinterpretSigned(s.packed[:count], samples)
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
		return fmt.Errorf("dsf read: %w", err)
	}
	return nil
}

func (s *dsfSource) Metadata() (string, string, string) {
	return s.meta.title, s.meta.artist, s.meta.album
}

func (s *dsfSource) Close() error { return s.file.Close() }
