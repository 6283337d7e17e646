// ABOUTME: Control-plane commands and the engine mailbox
// ABOUTME: Bounded FIFO, non-blocking on both ends
package engine

import "errors"

// CommandKind tags a playback command.
type CommandKind int

const (
	// CommandSwitchSource replaces the current source with a new file.
	// This is the only command allowed to discard buffered samples.
	CommandSwitchSource CommandKind = iota
	// CommandPause suspends device consumption, keeping buffers intact.
	CommandPause
	// CommandResume reverses a pause.
	CommandResume
)

func (k CommandKind) String() string {
	switch k {
	case CommandSwitchSource:
		return "switch-source"
	case CommandPause:
		return "pause"
	case CommandResume:
		return "resume"
	default:
		return "unknown"
	}
}

// Command is a fire-and-forget control intent. Commands apply atomically
// relative to the loop iteration that dequeues them, in submission order.
type Command struct {
	Kind CommandKind
	Path string // media path for CommandSwitchSource
}

// ErrMailboxFull is returned when a controller outruns the engine.
var ErrMailboxFull = errors.New("engine: command mailbox full")

// DefaultMailboxDepth bounds how many commands can queue while the engine
// is inside a device wait.
const DefaultMailboxDepth = 32

// Mailbox carries commands from controller goroutines into the engine.
// Submission never blocks; the engine polls at most one command per loop
// iteration, so command latency is bounded by the device wait.
type Mailbox struct {
	ch chan Command
}

func NewMailbox(depth int) *Mailbox {
	if depth <= 0 {
		depth = DefaultMailboxDepth
	}
	return &Mailbox{ch: make(chan Command, depth)}
}

// Submit enqueues a command without blocking.
func (m *Mailbox) Submit(cmd Command) error {
	select {
	case m.ch <- cmd:
		return nil
	default:
		return ErrMailboxFull
	}
}

// Poll dequeues the oldest pending command, if any.
func (m *Mailbox) Poll() (Command, bool) {
	select {
	case cmd := <-m.ch:
		return cmd, true
	default:
		return Command{}, false
	}
}
