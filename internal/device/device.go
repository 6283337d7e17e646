// ABOUTME: Playback device sink contract
// ABOUTME: ALSA-style state model over a hardware output handle
package device

import (
	"errors"
	"time"

	"github.com/kanade-player/kanade-go/internal/audio"
)

// State mirrors the ALSA PCM state machine for a playback stream.
type State int

const (
	StateOpen State = iota
	StatePrepared
	StateRunning
	StatePaused
	StateXRun
	StateDraining
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StatePrepared:
		return "PREPARED"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateXRun:
		return "XRUN"
	case StateDraining:
		return "DRAINING"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// ErrNotConfigured is returned by operations that need a configured stream.
var ErrNotConfigured = errors.New("device: not configured")

// Sink is the playback half of a hardware device.
//
// Unit contract: Write takes and reports interleaved samples, never frames.
// The sink alone converts between the two (frames = samples / channels from
// the configured spec); callers track sample counts end to end.
type Sink interface {
	// Configure sets hardware parameters for the spec. It must be called
	// before the first Write and again after every source switch. If
	// samples are in flight the caller drops them first via Drop.
	Configure(spec audio.StreamSpec) error

	// Write submits interleaved samples, blocking at most for the bounded
	// hardware latency, and returns the count actually accepted. A short
	// count is normal when the hardware buffer is near full.
	Write(samples []int32) (int, error)

	// State reports the current device state.
	State() State

	// Prepare readies an Open or XRun device for Start.
	Prepare() error

	// Start begins playback consumption; valid only from Prepared.
	Start() error

	// Pause toggles the paused state without touching buffered samples.
	Pause(pause bool) error

	// Drop purges any samples buffered in the hardware without playing
	// them, returning the device to Open.
	Drop() error

	// Drain blocks until everything previously written has played.
	Drain() error

	// Wait blocks until the device is ready for more data or the timeout
	// elapses. This is the control loop's sole suspension point.
	Wait(timeout time.Duration) error

	// Close releases the device handle.
	Close() error
}
