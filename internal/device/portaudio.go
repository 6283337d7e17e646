// ABOUTME: PortAudio-backed device sink
// ABOUTME: Blocking interleaved int32 writes with software state tracking
package device

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/kanade-player/kanade-go/internal/audio"
)

// waitFrames is the readiness threshold for Wait: the device counts as
// ready once this many frames of hardware buffer space are free.
const waitFrames = 2048

// PortAudio is a Sink over a PortAudio output stream. The stream is opened
// with a pointer-to-slice buffer binding so each blocking Write can submit
// a different number of frames.
type PortAudio struct {
	name       string
	spec       audio.StreamSpec
	stream     *portaudio.Stream
	buf        []int32
	state      State
	started    bool
	resumePlay bool
}

// OpenPortAudio initialises PortAudio and binds to the output device whose
// name contains the given string. An empty name selects the default output.
func OpenPortAudio(name string) (*PortAudio, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	return &PortAudio{name: name, state: StateOpen}, nil
}

func (d *PortAudio) lookupDevice() (*portaudio.DeviceInfo, error) {
	if d.name == "" || d.name == "default" {
		return portaudio.DefaultOutputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	for _, dev := range devices {
		if dev.MaxOutputChannels > 0 && strings.Contains(dev.Name, d.name) {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("no output device matching %q", d.name)
}

// Configure opens an output stream for the spec, replacing any previous
// stream. DSD-mode containers are written bit-exact as 32-bit words.
func (d *PortAudio) Configure(spec audio.StreamSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if d.stream != nil {
		if err := d.Drop(); err != nil {
			return err
		}
	}

	dev, err := d.lookupDevice()
	if err != nil {
		return err
	}
	if dev.MaxOutputChannels < spec.Channels {
		return fmt.Errorf("device %q supports %d channels, stream needs %d",
			dev.Name, dev.MaxOutputChannels, spec.Channels)
	}

	params := portaudio.HighLatencyParameters(nil, dev)
	params.Output.Channels = spec.Channels
	params.SampleRate = float64(spec.SampleRate)
	params.FramesPerBuffer = portaudio.FramesPerBufferUnspecified

	d.buf = nil
	stream, err := portaudio.OpenStream(params, &d.buf)
	if err != nil {
		return fmt.Errorf("open stream on %q: %w", dev.Name, err)
	}

	d.stream = stream
	d.spec = spec
	d.started = false
	d.resumePlay = false
	d.state = StatePrepared

	log.Printf("Device configured: %s on %q", spec, dev.Name)
	return nil
}

func (d *PortAudio) State() State { return d.state }

// Write submits up to the currently free hardware buffer space, whole
// frames only, and returns the number of samples accepted.
func (d *PortAudio) Write(samples []int32) (int, error) {
	if d.stream == nil {
		return 0, ErrNotConfigured
	}

	freeFrames, err := d.stream.AvailableToWrite()
	if err != nil {
		return 0, fmt.Errorf("query write space: %w", err)
	}

	n := freeFrames * d.spec.Channels
	if n > len(samples) {
		n = len(samples)
	}
	n -= n % d.spec.Channels
	if n == 0 {
		return 0, nil
	}

	d.buf = samples[:n]
	err = d.stream.Write()
	d.buf = nil
	if err == portaudio.OutputUnderflowed {
		// Data was still queued; the engine recovers via Prepare.
		d.state = StateXRun
		return n, nil
	}
	if err != nil {
		return 0, fmt.Errorf("write %d frames: %w", n/d.spec.Channels, err)
	}
	return n, nil
}

// Prepare recovers an Open or XRun device so Start is valid again.
func (d *PortAudio) Prepare() error {
	if d.stream == nil {
		return ErrNotConfigured
	}
	if d.started {
		d.state = StateRunning
	} else {
		d.state = StatePrepared
	}
	return nil
}

func (d *PortAudio) Start() error {
	if d.stream == nil {
		return ErrNotConfigured
	}
	if d.started {
		d.state = StateRunning
		return nil
	}
	if err := d.stream.Start(); err != nil {
		return fmt.Errorf("start stream: %w", err)
	}
	d.started = true
	d.state = StateRunning
	return nil
}

// streamOp names the stream call a pause toggle requires.
type streamOp int

const (
	opNone streamOp = iota
	opStop
	opStart
)

// pauseTransition maps a pause toggle onto the required stream call, the
// next state, and whether a later resume should restart the stream. A
// pause landing before the first start has no stream to stop but still
// holds playback: the state moves to Paused so the engine stops feeding,
// and the matching resume returns to Prepared.
func pauseTransition(state State, resumePlay, pause bool) (streamOp, State, bool) {
	if pause {
		switch state {
		case StateRunning:
			return opStop, StatePaused, true
		case StatePrepared:
			return opNone, StatePaused, false
		}
		return opNone, state, resumePlay
	}
	if state != StatePaused {
		return opNone, state, resumePlay
	}
	if resumePlay {
		return opStart, StateRunning, false
	}
	return opNone, StatePrepared, false
}

func (d *PortAudio) Pause(pause bool) error {
	if d.stream == nil {
		return ErrNotConfigured
	}

	op, next, resume := pauseTransition(d.state, d.resumePlay, pause)
	switch op {
	case opStop:
		if err := d.stream.Stop(); err != nil {
			return fmt.Errorf("pause stream: %w", err)
		}
		d.started = false
	case opStart:
		if err := d.stream.Start(); err != nil {
			return fmt.Errorf("resume stream: %w", err)
		}
		d.started = true
	}
	d.state = next
	d.resumePlay = resume
	return nil
}

// Drop discards anything buffered in the hardware and closes the stream so
// the next Configure starts clean.
func (d *PortAudio) Drop() error {
	if d.stream == nil {
		return nil
	}
	if d.started {
		if err := d.stream.Abort(); err != nil {
			return fmt.Errorf("abort stream: %w", err)
		}
		d.started = false
	}
	if err := d.stream.Close(); err != nil {
		return fmt.Errorf("close stream: %w", err)
	}
	d.stream = nil
	d.state = StateOpen
	d.resumePlay = false
	return nil
}

// Drain blocks until all written samples have played, then stops.
func (d *PortAudio) Drain() error {
	if d.stream == nil {
		return nil
	}
	d.state = StateDraining
	if d.started {
		// Stop plays out everything already queued before returning.
		if err := d.stream.Stop(); err != nil {
			return fmt.Errorf("drain stream: %w", err)
		}
		d.started = false
	}
	d.state = StateOpen
	return nil
}

// Wait polls for hardware buffer vacancy. Returning at the timeout without
// vacancy is not an error; the caller's loop simply comes around again.
func (d *PortAudio) Wait(timeout time.Duration) error {
	if d.stream == nil {
		return ErrNotConfigured
	}

	deadline := time.Now().Add(timeout)
	for {
		free, err := d.stream.AvailableToWrite()
		if err != nil {
			return fmt.Errorf("query write space: %w", err)
		}
		if free >= waitFrames {
			return nil
		}
		if remaining := time.Until(deadline); remaining <= 0 {
			return nil
		} else if remaining < 2*time.Millisecond {
			time.Sleep(remaining)
		} else {
			time.Sleep(2 * time.Millisecond)
		}
	}
}

func (d *PortAudio) Close() error {
	var firstErr error
	if d.stream != nil {
		if err := d.Drop(); err != nil {
			firstErr = err
		}
	}
	if err := portaudio.Terminate(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("portaudio terminate: %w", err)
	}
	return firstErr
}
