// ABOUTME: High-level Player API for local playback
// ABOUTME: Owns the sink, the engine goroutine and the command mailbox
package kanade

import (
	"fmt"
	"sync"

	"github.com/kanade-player/kanade-go/internal/device"
	"github.com/kanade-player/kanade-go/internal/engine"
	"github.com/kanade-player/kanade-go/internal/source"
)

// Config holds player configuration.
type Config struct {
	// DeviceName selects the output device by substring match.
	// Empty picks the system default.
	DeviceName string

	// Sink overrides the output device. When set, DeviceName is ignored
	// and the caller keeps ownership of the sink's lifetime. Intended
	// for tests.
	Sink device.Sink

	// Open overrides source construction. Defaults to source.Open.
	Open engine.OpenFunc
}

// Status is a point-in-time playback snapshot.
type Status = engine.Status

// Player plays local media files on an output device. A Player is good
// for one Play call; create a new one for the next session.
type Player struct {
	eng  *engine.Engine
	sink device.Sink

	ownSink bool
	done    chan struct{}

	mu      sync.Mutex
	started bool
	err     error
}

// NewPlayer opens the output device and prepares an engine around it.
func NewPlayer(cfg Config) (*Player, error) {
	sink := cfg.Sink
	ownSink := false
	if sink == nil {
		var err error
		sink, err = device.OpenPortAudio(cfg.DeviceName)
		if err != nil {
			return nil, fmt.Errorf("open output device: %w", err)
		}
		ownSink = true
	}

	open := cfg.Open
	if open == nil {
		open = func(path string) (source.Source, error) {
			return source.Open(path)
		}
	}

	eng := engine.New(engine.Config{
		Sink: sink,
		Open: open,
	})

	return &Player{
		eng:     eng,
		sink:    sink,
		ownSink: ownSink,
		done:    make(chan struct{}),
	}, nil
}

// Play starts playback of path on the engine goroutine. It returns
// immediately; completion is observable through Done and Err.
func (p *Player) Play(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("player already started")
	}
	p.started = true

	go func() {
		err := p.eng.Run(path)
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	}()
	return nil
}

// Pause requests a pause. No-op when already paused.
func (p *Player) Pause() error {
	return p.eng.Mailbox().Submit(engine.Command{Kind: engine.CommandPause})
}

// Resume requests playback to continue.
func (p *Player) Resume() error {
	return p.eng.Mailbox().Submit(engine.Command{Kind: engine.CommandResume})
}

// SwitchSource discards the current track and starts path instead.
func (p *Player) SwitchSource(path string) error {
	return p.eng.Mailbox().Submit(engine.Command{Kind: engine.CommandSwitchSource, Path: path})
}

// Mailbox exposes the raw command channel for external controllers.
func (p *Player) Mailbox() *engine.Mailbox { return p.eng.Mailbox() }

// Status returns the latest playback snapshot.
func (p *Player) Status() Status { return p.eng.Status() }

// Done is closed when the engine goroutine returns.
func (p *Player) Done() <-chan struct{} { return p.done }

// Err reports how playback ended. Valid after Done is closed; nil means
// the track drained to completion.
func (p *Player) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stop asks the engine to drain and return. Playback that already ended
// makes this a no-op.
func (p *Player) Stop() {
	p.eng.Stop()
}

// Close stops playback and releases the device if the player opened it.
func (p *Player) Close() error {
	p.eng.Stop()

	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if started {
		<-p.done
	}

	if p.ownSink {
		return p.sink.Close()
	}
	return nil
}
