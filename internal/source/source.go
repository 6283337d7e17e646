// ABOUTME: Decode source boundary consumed by the streaming engine
// ABOUTME: Magic-byte sniffing selects one of a closed set of readers
package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kanade-player/kanade-go/internal/audio"
	"github.com/kanade-player/kanade-go/internal/buffer"
)

// ErrEndOfStream reports that a source will never produce more samples.
var ErrEndOfStream = errors.New("source: end of stream")

// ErrSkipped reports a recoverable per-packet condition (malformed packet,
// foreign track, metadata update). The caller retries on the next
// iteration; no buffered data is lost.
var ErrSkipped = errors.New("source: packet skipped")

// Source yields interleaved 32-bit samples from one media file.
//
// Decode pushes the next chunk into dst and returns nil, ErrEndOfStream,
// ErrSkipped, or a fatal error. Any error that is neither sentinel means
// the source is unusable and must not be pulled again.
type Source interface {
	// Spec reports the resolved stream format; ok is false while the
	// format is undetermined, which rejects the source before playback.
	Spec() (spec audio.StreamSpec, ok bool)

	// Decode produces the next chunk of samples into dst.
	Decode(dst *buffer.Staging) error

	// Metadata reports title, artist and album for display.
	Metadata() (title, artist, album string)

	Close() error
}

// Magic markers for the supported container formats.
var (
	magicDSD  = []byte("DSD ")
	magicFLAC = []byte("fLaC")
	magicRIFF = []byte("RIFF")
	magicOgg  = []byte("OggS")
	magicID3  = []byte("ID3")
)

// Open sniffs the file's leading bytes and builds the matching source.
// The variant set is fixed; anything unrecognised is rejected up front.
func Open(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}

	head := make([]byte, 4)
	if _, err := io.ReadFull(f, head); err != nil {
		f.Close()
		return nil, fmt.Errorf("read file header: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	var src Source
	switch {
	case bytesEqual(head, magicDSD):
		src, err = newDSF(f)
	case bytesEqual(head, magicFLAC):
		src, err = newFLAC(f, path)
	case bytesEqual(head, magicRIFF):
		src, err = newWAV(f, path)
	case bytesEqual(head, magicOgg):
		src, err = newOpus(f, path)
	case bytesEqual(head[:3], magicID3) || isMP3Sync(head):
		src, err = newMP3(f, path)
	default:
		f.Close()
		return nil, fmt.Errorf("unsupported media format in %s", path)
	}
	if err != nil {
		f.Close()
		return nil, err
	}

	if spec, ok := src.Spec(); !ok {
		src.Close()
		return nil, fmt.Errorf("undetermined stream format in %s", path)
	} else if err := spec.Validate(); err != nil {
		src.Close()
		return nil, fmt.Errorf("reject %s: %w", path, err)
	}
	return src, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) < len(b) {
		return false
	}
	for i := range b {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// isMP3Sync matches a bare MPEG audio frame sync word (11 set bits).
func isMP3Sync(head []byte) bool {
	return len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0
}
