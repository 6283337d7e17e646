// ABOUTME: Streaming engine control loop
// ABOUTME: Bridges decode source, ring buffer, staging queue and device sink
package engine

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kanade-player/kanade-go/internal/audio"
	"github.com/kanade-player/kanade-go/internal/buffer"
	"github.com/kanade-player/kanade-go/internal/device"
	"github.com/kanade-player/kanade-go/internal/source"
)

// DefaultWaitTimeout paces the loop's sole suspension point and bounds
// command latency.
const DefaultWaitTimeout = 32 * time.Millisecond

// DefaultMaxSkipped bounds consecutive recoverable decode errors; a source
// that skips this many packets without producing a sample is treated as
// fatally stuck instead of spinning the loop.
const DefaultMaxSkipped = 4096

// ErrSourceRejected marks a source that failed validation before any
// playback state was touched. A running session survives a switch to such
// a source; a session cannot start on one.
var ErrSourceRejected = errors.New("engine: source rejected")

// OpenFunc builds a decode source for a media path.
type OpenFunc func(path string) (source.Source, error)

// Config wires an Engine.
type Config struct {
	Sink         device.Sink
	Open         OpenFunc
	Mailbox      *Mailbox      // optional; one is created if nil
	RingCapacity int           // samples; defaults to buffer.RingCapacity
	WaitTimeout  time.Duration // defaults to DefaultWaitTimeout
	MaxSkipped   int           // defaults to DefaultMaxSkipped
}

// Status is a point-in-time playback snapshot for UIs and controllers.
type Status struct {
	Title    string
	Artist   string
	Album    string
	Spec     audio.StreamSpec
	Device   device.State
	Buffered int // unplayed samples across ring and staging
	EOF      bool
}

// Engine owns the playback session: the decode source, the ring buffer,
// the staging queue and the device sink. All of them are touched only from
// the goroutine running Run; external input arrives through the mailbox.
type Engine struct {
	sink        device.Sink
	open        OpenFunc
	mailbox     *Mailbox
	ring        *buffer.Ring
	staging     *buffer.Staging
	waitTimeout time.Duration
	maxSkipped  int

	src     source.Source
	spec    audio.StreamSpec
	eof     bool
	skipped int

	stop chan struct{}

	mu     sync.Mutex
	status Status
}

func New(cfg Config) *Engine {
	if cfg.Mailbox == nil {
		cfg.Mailbox = NewMailbox(DefaultMailboxDepth)
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	if cfg.MaxSkipped <= 0 {
		cfg.MaxSkipped = DefaultMaxSkipped
	}

	return &Engine{
		sink:        cfg.Sink,
		open:        cfg.Open,
		mailbox:     cfg.Mailbox,
		ring:        buffer.NewRing(cfg.RingCapacity),
		staging:     buffer.NewStaging(),
		waitTimeout: cfg.WaitTimeout,
		maxSkipped:  cfg.MaxSkipped,
		stop:        make(chan struct{}),
	}
}

// Mailbox returns the command channel controllers submit to.
func (e *Engine) Mailbox() *Mailbox { return e.mailbox }

// Status returns the latest playback snapshot. Safe from any goroutine.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Stop asks a running engine to drain and return. Safe from any
// goroutine; repeated calls are no-ops.
func (e *Engine) Stop() {
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
}

func (e *Engine) stopped() bool {
	select {
	case <-e.stop:
		return true
	default:
		return false
	}
}

// configure resolves the spec of a new source and reconfigures the device
// for it. The new source is validated before any hardware or buffer state
// is touched; on rejection the previous session is left intact.
func (e *Engine) configure(path string) error {
	src, err := e.open(path)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrSourceRejected, path, err)
	}

	spec, ok := src.Spec()
	if !ok {
		src.Close()
		return fmt.Errorf("%w: open %s: stream format undetermined", ErrSourceRejected, path)
	}
	if err := spec.Validate(); err != nil {
		src.Close()
		return fmt.Errorf("%w: open %s: %w", ErrSourceRejected, path, err)
	}

	// Commit point: the old stream's buffered samples are intentionally
	// discarded, they are meaningless under the new format.
	if e.src != nil {
		e.src.Close()
	}
	e.src = src
	e.spec = spec
	e.eof = false
	e.skipped = 0
	e.ring.Reset()
	e.staging.Reset()

	if err := e.sink.Drop(); err != nil {
		return fmt.Errorf("purge device: %w", err)
	}
	if err := e.sink.Configure(spec); err != nil {
		return fmt.Errorf("configure device: %w", err)
	}
	if st := e.sink.State(); st != device.StateRunning && st != device.StatePrepared {
		if err := e.sink.Prepare(); err != nil {
			return fmt.Errorf("prepare device: %w", err)
		}
	}

	title, artist, album := src.Metadata()
	log.Printf("Playing %s by %s (%s)", title, artist, spec)

	e.mu.Lock()
	e.status = Status{Title: title, Artist: artist, Album: album, Spec: spec, Device: e.sink.State()}
	e.mu.Unlock()
	return nil
}

// Run streams the file at path until end-of-stream drains, Stop is called,
// or a fatal error surfaces. It blocks for the whole session and must own
// its goroutine: its waits are hardware-paced.
func (e *Engine) Run(path string) error {
	if err := e.configure(path); err != nil {
		return err
	}
	defer func() {
		if e.src != nil {
			e.src.Close()
			e.src = nil
		}
	}()

	for !e.stopped() {
		// One command per iteration, applied before any sample moves.
		if cmd, ok := e.mailbox.Poll(); ok {
			if err := e.apply(cmd); err != nil {
				return err
			}
		}

		if err := e.sink.Wait(e.waitTimeout); err != nil {
			return fmt.Errorf("device wait: %w", err)
		}

		st := e.sink.State()
		if st == device.StatePaused {
			// Buffered samples stay untouched across a pause.
			e.snapshot()
			continue
		}
		if st != device.StateRunning && st != device.StatePrepared {
			if err := e.sink.Prepare(); err != nil {
				return fmt.Errorf("recover device: %w", err)
			}
		}

		// Oldest data first: drain the ring before anything newer.
		if err := e.flushRing(); err != nil {
			return err
		}

		// Promote staged samples into whatever vacancy the flush opened.
		if e.staging.Len() > 0 {
			e.staging.Drop(e.ring.Write(e.staging.Peek()))
		}

		if e.ring.Len() > 0 {
			// Back-pressure: never decode ahead of the buffer draining.
			e.snapshot()
			continue
		}

		if e.eof && e.staging.Len() == 0 {
			break
		}

		if err := e.decodeOnce(); err != nil {
			// Fatal: stop pulling, but still try to play out whatever
			// the hardware already holds.
			if derr := e.sink.Drain(); derr != nil {
				log.Printf("Drain after fatal error failed: %v", derr)
			}
			return err
		}

		if st := e.sink.State(); st != device.StateRunning && st != device.StatePaused {
			if err := e.sink.Start(); err != nil {
				return fmt.Errorf("start device: %w", err)
			}
		}
		e.snapshot()
	}

	if err := e.sink.Drain(); err != nil {
		return fmt.Errorf("drain device: %w", err)
	}
	e.snapshot()
	return nil
}

func (e *Engine) apply(cmd Command) error {
	switch cmd.Kind {
	case CommandSwitchSource:
		if err := e.configure(cmd.Path); err != nil {
			if errors.Is(err, ErrSourceRejected) {
				// Rejection happens before any playback state is
				// touched, so the running session continues as if the
				// command never arrived.
				log.Printf("Source switch rejected: %v", err)
				return nil
			}
			return err
		}
	case CommandPause:
		if err := e.sink.Pause(true); err != nil {
			return fmt.Errorf("pause device: %w", err)
		}
	case CommandResume:
		if err := e.sink.Pause(false); err != nil {
			return fmt.Errorf("resume device: %w", err)
		}
	}
	return nil
}

// flushRing writes ring-resident samples to the device, honoring the
// wrap-around split. Sample FIFO order is total: the wrapped half is only
// attempted once the front half was fully accepted.
func (e *Engine) flushRing() error {
	if e.ring.Len() == 0 {
		return nil
	}

	front, wrapped := e.ring.ReadAvailable()
	n, err := e.sink.Write(front)
	if err != nil {
		return fmt.Errorf("device write: %w", err)
	}
	advanced := n
	if n == len(front) && len(wrapped) > 0 {
		n, err = e.sink.Write(wrapped)
		if err != nil {
			return fmt.Errorf("device write: %w", err)
		}
		advanced += n
	}
	e.ring.AdvanceRead(advanced)
	return nil
}

// decodeOnce pulls one chunk from the source. Fresh samples go to the
// device immediately; overflow lands in the ring, then stays staged.
func (e *Engine) decodeOnce() error {
	err := e.src.Decode(e.staging)
	switch {
	case err == nil:
		e.skipped = 0
	case isEOS(err):
		e.eof = true
		return nil
	case isSkipped(err):
		e.skipped++
		if e.skipped >= e.maxSkipped {
			return fmt.Errorf("decoder made no progress after %d skipped packets: %w", e.skipped, err)
		}
		return nil
	default:
		return fmt.Errorf("decode: %w", err)
	}

	if e.staging.Len() > 0 {
		n, werr := e.sink.Write(e.staging.Peek())
		if werr != nil {
			return fmt.Errorf("device write: %w", werr)
		}
		e.staging.Drop(n)
	}
	if e.staging.Len() > 0 {
		e.staging.Drop(e.ring.Write(e.staging.Peek()))
	}
	return nil
}

func (e *Engine) snapshot() {
	e.mu.Lock()
	e.status.Device = e.sink.State()
	e.status.Buffered = e.ring.Len() + e.staging.Len()
	e.status.EOF = e.eof
	e.mu.Unlock()
}

func isEOS(err error) bool     { return errors.Is(err, source.ErrEndOfStream) }
func isSkipped(err error) bool { return errors.Is(err, source.ErrSkipped) }
