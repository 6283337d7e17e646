// ABOUTME: Tests for the streaming engine control loop
// ABOUTME: Scripted fake sink and source drive the state machine deterministically
package engine

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kanade-player/kanade-go/internal/audio"
	"github.com/kanade-player/kanade-go/internal/buffer"
	"github.com/kanade-player/kanade-go/internal/device"
	"github.com/kanade-player/kanade-go/internal/source"
)

// fakeSink is a scripted device: Wait grants it `perWait` samples of
// acceptance budget, Write consumes the budget, and every accepted sample
// is recorded in order.
type fakeSink struct {
	state      device.State
	space      int
	perWait    int
	written    []int32
	configured []audio.StreamSpec
	drops      int
	drained    bool
	starts     int
	pauses     int
	waits      int
	onWait     func(s *fakeSink, n int)
}

func newFakeSink(perWait int) *fakeSink {
	return &fakeSink{state: device.StateOpen, perWait: perWait}
}

func (s *fakeSink) Configure(spec audio.StreamSpec) error {
	s.configured = append(s.configured, spec)
	s.state = device.StatePrepared
	return nil
}

func (s *fakeSink) Write(samples []int32) (int, error) {
	n := s.space
	if n > len(samples) {
		n = len(samples)
	}
	s.written = append(s.written, samples[:n]...)
	s.space -= n
	return n, nil
}

func (s *fakeSink) State() device.State { return s.state }

func (s *fakeSink) Prepare() error {
	if s.state == device.StateOpen || s.state == device.StateXRun {
		s.state = device.StatePrepared
	}
	return nil
}

func (s *fakeSink) Start() error {
	s.starts++
	s.state = device.StateRunning
	return nil
}

func (s *fakeSink) Pause(pause bool) error {
	if pause && (s.state == device.StateRunning || s.state == device.StatePrepared) {
		s.state = device.StatePaused
		s.pauses++
	} else if !pause && s.state == device.StatePaused {
		// A pause taken before the first start resumes to prepared, as
		// the real sink does.
		if s.starts > 0 {
			s.state = device.StateRunning
		} else {
			s.state = device.StatePrepared
		}
	}
	return nil
}

func (s *fakeSink) Drop() error {
	s.drops++
	s.state = device.StateOpen
	return nil
}

func (s *fakeSink) Drain() error {
	s.drained = true
	s.state = device.StateOpen
	return nil
}

func (s *fakeSink) Wait(time.Duration) error {
	s.waits++
	s.space += s.perWait
	if s.onWait != nil {
		s.onWait(s, s.waits)
	}
	return nil
}

func (s *fakeSink) Close() error { return nil }

// fakeSource replays a script of decode results.
type fakeSource struct {
	spec    audio.StreamSpec
	specOK  bool
	chunks  [][]int32
	tailErr error // returned once chunks are exhausted
	decodes int
	closed  bool
}

func newFakeSource(chunks ...[]int32) *fakeSource {
	return &fakeSource{
		spec:    audio.StreamSpec{SampleRate: 44100, Channels: 1, Mode: audio.ModePCM},
		specOK:  true,
		chunks:  chunks,
		tailErr: source.ErrEndOfStream,
	}
}

func (f *fakeSource) Spec() (audio.StreamSpec, bool) { return f.spec, f.specOK }

func (f *fakeSource) Decode(dst *buffer.Staging) error {
	f.decodes++
	if len(f.chunks) == 0 {
		return f.tailErr
	}
	dst.Push(f.chunks[0])
	f.chunks = f.chunks[1:]
	return nil
}

func (f *fakeSource) Metadata() (string, string, string) {
	return "title", "artist", "album"
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func openMap(sources map[string]*fakeSource) OpenFunc {
	return func(path string) (source.Source, error) {
		src, ok := sources[path]
		if !ok {
			return nil, fmt.Errorf("no such file %s", path)
		}
		return src, nil
	}
}

func run(t *testing.T, e *Engine, path string) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- e.Run(path) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not finish")
		return nil
	}
}

func TestScenarioTrickleThroughTinyRing(t *testing.T) {
	// Capacity 8, decode yields one sample at a time, device consumes 3
	// per wait cycle: receipt order must be exactly 1..10.
	chunks := make([][]int32, 10)
	for i := range chunks {
		chunks[i] = []int32{int32(i + 1)}
	}
	src := newFakeSource(chunks...)
	sink := newFakeSink(3)

	e := New(Config{
		Sink:         sink,
		Open:         openMap(map[string]*fakeSource{"a": src}),
		RingCapacity: 8,
	})

	if err := run(t, e, "a"); err != nil {
		t.Fatal(err)
	}

	if len(sink.written) != 10 {
		t.Fatalf("device received %d samples, want 10: %v", len(sink.written), sink.written)
	}
	for i, v := range sink.written {
		if v != int32(i+1) {
			t.Fatalf("receipt order %v, want 1..10", sink.written)
		}
	}
	if !sink.drained {
		t.Error("expected drain at end of stream")
	}
	if sink.starts == 0 {
		t.Error("device was never started")
	}
	if src.decodes < 10 {
		t.Errorf("expected at least 10 decode calls, got %d", src.decodes)
	}
}

func TestFIFOPreservationAcrossBursts(t *testing.T) {
	// Bursty chunks larger than the ring force the staging path; the
	// device must still see one gapless ordered stream.
	var want []int32
	var chunks [][]int32
	next := int32(0)
	for _, size := range []int{5, 40, 1, 17, 64, 3} {
		chunk := make([]int32, size)
		for i := range chunk {
			chunk[i] = next
			next++
		}
		want = append(want, chunk...)
		chunks = append(chunks, chunk)
	}

	src := newFakeSource(chunks...)
	sink := newFakeSink(7)
	e := New(Config{
		Sink:         sink,
		Open:         openMap(map[string]*fakeSource{"a": src}),
		RingCapacity: 16,
	})

	if err := run(t, e, "a"); err != nil {
		t.Fatal(err)
	}

	if len(sink.written) != len(want) {
		t.Fatalf("device received %d samples, want %d", len(sink.written), len(want))
	}
	for i := range want {
		if sink.written[i] != want[i] {
			t.Fatalf("sample %d: got %d, want %d (no gaps or duplicates allowed)",
				i, sink.written[i], want[i])
		}
	}
}

func TestBackpressureNeverDecodesAhead(t *testing.T) {
	src := newFakeSource([]int32{1, 2, 3, 4, 5})
	sink := newFakeSink(0) // device accepts nothing

	e := New(Config{
		Sink:         sink,
		Open:         openMap(map[string]*fakeSource{"a": src}),
		RingCapacity: 16,
	})
	sink.onWait = func(s *fakeSink, n int) {
		if n >= 20 {
			e.Stop()
		}
	}

	if err := run(t, e, "a"); err != nil {
		t.Fatal(err)
	}

	// One decode filled the ring; with the device stalled, the engine
	// must not pull again.
	if src.decodes != 1 {
		t.Errorf("expected exactly 1 decode call with a stalled device, got %d", src.decodes)
	}
}

func TestPauseIdempotenceAndResume(t *testing.T) {
	src := newFakeSource([]int32{1, 2, 3})
	sink := newFakeSink(0)
	sink.space = 2 // initial budget: first two samples reach the device

	var e *Engine
	sink.onWait = func(s *fakeSink, n int) {
		switch n {
		case 2:
			e.Mailbox().Submit(Command{Kind: CommandPause})
		case 3:
			e.Mailbox().Submit(Command{Kind: CommandPause}) // second pause is a no-op
		case 6:
			e.Mailbox().Submit(Command{Kind: CommandResume})
			s.space = 100
		}
	}

	e = New(Config{
		Sink:         sink,
		Open:         openMap(map[string]*fakeSource{"a": src}),
		RingCapacity: 16,
	})

	if err := run(t, e, "a"); err != nil {
		t.Fatal(err)
	}

	if sink.pauses != 1 {
		t.Errorf("expected exactly one pause transition, got %d", sink.pauses)
	}
	want := []int32{1, 2, 3}
	if len(sink.written) != len(want) {
		t.Fatalf("device received %v, want %v", sink.written, want)
	}
	for i := range want {
		if sink.written[i] != want[i] {
			t.Fatalf("resume disturbed the buffered samples: %v", sink.written)
		}
	}
}

func TestPauseBeforeFirstStart(t *testing.T) {
	// A pause that lands before any sample was fed must hold playback;
	// nothing reaches the device until the resume.
	src := newFakeSource([]int32{1, 2, 3})
	sink := newFakeSink(50)

	var e *Engine
	sink.onWait = func(s *fakeSink, n int) {
		if n == 3 && len(s.written) != 0 {
			t.Errorf("device received %v while paused", s.written)
		}
		if n == 4 {
			e.Mailbox().Submit(Command{Kind: CommandResume})
		}
	}

	e = New(Config{
		Sink: sink,
		Open: openMap(map[string]*fakeSource{"a": src}),
	})
	if err := e.Mailbox().Submit(Command{Kind: CommandPause}); err != nil {
		t.Fatal(err)
	}

	if err := run(t, e, "a"); err != nil {
		t.Fatal(err)
	}

	if sink.pauses != 1 {
		t.Errorf("expected one pause transition, got %d", sink.pauses)
	}
	want := []int32{1, 2, 3}
	if len(sink.written) != len(want) {
		t.Fatalf("device received %v, want %v", sink.written, want)
	}
	for i := range want {
		if sink.written[i] != want[i] {
			t.Fatalf("samples disturbed across the pause: %v", sink.written)
		}
	}
}

func TestSwitchSourceDiscard(t *testing.T) {
	old := newFakeSource([]int32{5, 6, 7})
	fresh := newFakeSource([]int32{100, 101})
	fresh.spec = audio.StreamSpec{SampleRate: 48000, Channels: 2, Mode: audio.ModePCM}
	sink := newFakeSink(0)

	var e *Engine
	sink.onWait = func(s *fakeSink, n int) {
		if n == 4 {
			e.Mailbox().Submit(Command{Kind: CommandSwitchSource, Path: "b"})
			s.perWait = 50
		}
	}

	e = New(Config{
		Sink:         sink,
		Open:         openMap(map[string]*fakeSource{"a": old, "b": fresh}),
		RingCapacity: 16,
	})

	if err := run(t, e, "a"); err != nil {
		t.Fatal(err)
	}

	want := []int32{100, 101}
	if len(sink.written) != len(want) || sink.written[0] != 100 || sink.written[1] != 101 {
		t.Fatalf("device received %v, want %v; stale samples must never play", sink.written, want)
	}
	if sink.drops == 0 {
		t.Error("expected a hardware purge before reconfiguration")
	}
	if len(sink.configured) != 2 {
		t.Fatalf("expected two configurations, got %d", len(sink.configured))
	}
	if sink.configured[1] != fresh.spec {
		t.Errorf("second configuration = %v, want %v", sink.configured[1], fresh.spec)
	}
	if !old.closed {
		t.Error("old source was not closed")
	}
}

func TestSwitchRejectionKeepsSession(t *testing.T) {
	// A switch to an unopenable path is rejected before any playback
	// state changes; the running track plays out as if the command never
	// arrived.
	src := newFakeSource([]int32{5, 6, 7})
	sink := newFakeSink(0)

	var e *Engine
	sink.onWait = func(s *fakeSink, n int) {
		if n == 4 {
			e.Mailbox().Submit(Command{Kind: CommandSwitchSource, Path: "missing"})
			s.perWait = 50
		}
	}

	e = New(Config{
		Sink:         sink,
		Open:         openMap(map[string]*fakeSource{"a": src}),
		RingCapacity: 16,
	})

	if err := run(t, e, "a"); err != nil {
		t.Fatalf("rejected switch must not end the session: %v", err)
	}

	want := []int32{5, 6, 7}
	if len(sink.written) != len(want) {
		t.Fatalf("device received %v, want %v", sink.written, want)
	}
	for i := range want {
		if sink.written[i] != want[i] {
			t.Fatalf("buffered samples disturbed by rejected switch: %v", sink.written)
		}
	}
	if len(sink.configured) != 1 {
		t.Errorf("expected no reconfiguration, got %d", len(sink.configured))
	}
	if !sink.drained {
		t.Error("expected drain at end of stream")
	}
}

func TestSessionCannotStartOnRejectedSource(t *testing.T) {
	sink := newFakeSink(10)
	e := New(Config{
		Sink: sink,
		Open: openMap(map[string]*fakeSource{}),
	})

	err := run(t, e, "missing")
	if !errors.Is(err, ErrSourceRejected) {
		t.Fatalf("expected ErrSourceRejected, got %v", err)
	}
}

func TestDrainCompleteness(t *testing.T) {
	// End of stream arrives while samples are still buffered; all of
	// them must reach the device before the engine stops.
	src := newFakeSource([]int32{1, 2, 3, 4, 5, 6, 7, 8})
	sink := newFakeSink(1) // slow consumption, one sample per wait

	e := New(Config{
		Sink:         sink,
		Open:         openMap(map[string]*fakeSource{"a": src}),
		RingCapacity: 4,
	})

	if err := run(t, e, "a"); err != nil {
		t.Fatal(err)
	}

	if len(sink.written) != 8 {
		t.Fatalf("device received %d samples before stop, want all 8", len(sink.written))
	}
	if !sink.drained {
		t.Error("expected device drain after buffers emptied")
	}
}

func TestRecoverableErrorsAreBounded(t *testing.T) {
	src := newFakeSource()
	src.tailErr = source.ErrSkipped // skips forever, never progresses
	sink := newFakeSink(10)

	e := New(Config{
		Sink:       sink,
		Open:       openMap(map[string]*fakeSource{"a": src}),
		MaxSkipped: 25,
	})

	err := run(t, e, "a")
	if err == nil {
		t.Fatal("expected a stuck decoder to surface as fatal")
	}
	if src.decodes < 25 {
		t.Errorf("expected at least 25 retries before giving up, got %d", src.decodes)
	}
	if !sink.drained {
		t.Error("expected opportunistic drain after fatal decode error")
	}
}

func TestFatalDecodeErrorStopsEngine(t *testing.T) {
	src := newFakeSource([]int32{1, 2})
	src.tailErr = errors.New("unrecoverable corruption")
	sink := newFakeSink(10)

	e := New(Config{
		Sink: sink,
		Open: openMap(map[string]*fakeSource{"a": src}),
	})

	err := run(t, e, "a")
	if !errors.Is(err, src.tailErr) {
		t.Fatalf("expected fatal decode error, got %v", err)
	}
	if !sink.drained {
		t.Error("expected opportunistic drain after fatal decode error")
	}
	// The two good samples still made it out.
	if len(sink.written) != 2 {
		t.Errorf("device received %v, want the 2 pre-error samples", sink.written)
	}
}

func TestUndeterminedSpecRejectedBeforeHardware(t *testing.T) {
	src := newFakeSource([]int32{1})
	src.specOK = false
	sink := newFakeSink(10)

	e := New(Config{
		Sink: sink,
		Open: openMap(map[string]*fakeSource{"a": src}),
	})

	if err := run(t, e, "a"); err == nil {
		t.Fatal("expected rejection of undetermined spec")
	}
	if len(sink.configured) != 0 || sink.drops != 0 {
		t.Error("hardware state was touched before spec validation")
	}
	if !src.closed {
		t.Error("rejected source was not closed")
	}
}

func TestInvalidSpecRejected(t *testing.T) {
	src := newFakeSource([]int32{1})
	src.spec = audio.StreamSpec{SampleRate: 44100, Channels: 0}
	sink := newFakeSink(10)

	e := New(Config{
		Sink: sink,
		Open: openMap(map[string]*fakeSource{"a": src}),
	})

	if err := run(t, e, "a"); err == nil {
		t.Fatal("expected rejection of zero-channel spec")
	}
	if len(sink.configured) != 0 {
		t.Error("device configured despite invalid spec")
	}
}

func TestXRunRecovery(t *testing.T) {
	src := newFakeSource([]int32{1, 2, 3, 4})
	sink := newFakeSink(2)

	var e *Engine
	sink.onWait = func(s *fakeSink, n int) {
		if n == 2 {
			s.state = device.StateXRun // simulate an underrun
		}
	}

	e = New(Config{
		Sink: sink,
		Open: openMap(map[string]*fakeSource{"a": src}),
	})

	if err := run(t, e, "a"); err != nil {
		t.Fatal(err)
	}
	if len(sink.written) != 4 {
		t.Errorf("device received %v, want all 4 samples after recovery", sink.written)
	}
}

func TestMailboxOrderAndBounds(t *testing.T) {
	m := NewMailbox(3)

	cmds := []Command{
		{Kind: CommandPause},
		{Kind: CommandResume},
		{Kind: CommandSwitchSource, Path: "x"},
	}
	for _, c := range cmds {
		if err := m.Submit(c); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Submit(Command{Kind: CommandPause}); !errors.Is(err, ErrMailboxFull) {
		t.Errorf("expected ErrMailboxFull, got %v", err)
	}

	for i, want := range cmds {
		got, ok := m.Poll()
		if !ok {
			t.Fatalf("poll %d: empty mailbox", i)
		}
		if got != want {
			t.Errorf("poll %d: got %v, want %v (FIFO required)", i, got, want)
		}
	}
	if _, ok := m.Poll(); ok {
		t.Error("expected empty mailbox after draining")
	}
}

func TestStatusSnapshot(t *testing.T) {
	src := newFakeSource([]int32{1, 2, 3})
	sink := newFakeSink(10)

	e := New(Config{
		Sink: sink,
		Open: openMap(map[string]*fakeSource{"a": src}),
	})

	if err := run(t, e, "a"); err != nil {
		t.Fatal(err)
	}

	st := e.Status()
	if st.Title != "title" || st.Artist != "artist" {
		t.Errorf("unexpected metadata in status: %+v", st)
	}
	if !st.EOF {
		t.Error("expected EOF recorded in final status")
	}
	if st.Buffered != 0 {
		t.Errorf("expected empty buffers at end, got %d", st.Buffered)
	}
}
