// ABOUTME: Audio type definitions
// ABOUTME: Stream specs, sample scaling and bit reinterpretation helpers
package audio

import "fmt"

// Mode selects how the 32-bit sample containers are interpreted by the
// output device.
type Mode int

const (
	// ModePCM carries one signed 32-bit PCM sample per container.
	ModePCM Mode = iota
	// ModeDSD carries 32 one-bit DSD samples packed into an unsigned
	// 32-bit container. Containers pass through the pipeline bit-exact.
	ModeDSD
)

func (m Mode) String() string {
	switch m {
	case ModePCM:
		return "pcm"
	case ModeDSD:
		return "dsd"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// StreamSpec describes a decoded stream. It is immutable once a source is
// open; a new spec only appears when a new source is opened.
type StreamSpec struct {
	SampleRate int
	Channels   int
	Mode       Mode
}

// Validate rejects specs that cannot be played before any hardware state
// is touched.
func (s StreamSpec) Validate() error {
	if s.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", s.SampleRate)
	}
	if s.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", s.Channels)
	}
	return nil
}

func (s StreamSpec) String() string {
	return fmt.Sprintf("%s %dHz %dch", s.Mode, s.SampleRate, s.Channels)
}

// SampleFromInt16 positions a 16-bit sample in the high bits of the 32-bit
// range.
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 16
}

// SampleToInt16 narrows a full-scale 32-bit sample to 16 bits.
func SampleToInt16(sample int32) int16 {
	return int16(sample >> 16)
}

// SampleFrom24Bit reconstructs a little-endian 24-bit sample and positions
// it in the high bits of the 32-bit range.
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24 bits.
	if val&0x800000 != 0 {
		val |= ^int32(0xFFFFFF)
	}
	return val << 8
}

// ReinterpretUnsigned reinterprets signed containers as unsigned ones,
// preserving the bit layout exactly. Used on the DSD write path where the
// device consumes unsigned 32-bit containers.
func ReinterpretUnsigned(src []int32, dst []uint32) int {
	n := len(src)
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = uint32(src[i])
	}
	return n
}

// ReinterpretSigned is the inverse of ReinterpretUnsigned.
func ReinterpretSigned(src []uint32, dst []int32) int {
	n := len(src)
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = int32(src[i])
	}
	return n
}
