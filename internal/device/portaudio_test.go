// ABOUTME: Tests for the PortAudio sink state logic
// ABOUTME: Covers pause transitions without touching real hardware
package device

import (
	"testing"
)

func TestPauseTransition(t *testing.T) {
	tests := []struct {
		name       string
		state      State
		resumePlay bool
		pause      bool
		wantOp     streamOp
		wantState  State
		wantResume bool
	}{
		{
			name:      "pause while running stops the stream",
			state:     StateRunning,
			pause:     true,
			wantOp: opStop, wantState: StatePaused, wantResume: true,
		},
		{
			name:      "pause before first start is recorded",
			state:     StatePrepared,
			pause:     true,
			wantOp: opNone, wantState: StatePaused, wantResume: false,
		},
		{
			name:       "pause while paused is a no-op",
			state:      StatePaused,
			resumePlay: true,
			pause:      true,
			wantOp: opNone, wantState: StatePaused, wantResume: true,
		},
		{
			name:   "pause after xrun leaves recovery to prepare",
			state:  StateXRun,
			pause:  true,
			wantOp: opNone, wantState: StateXRun, wantResume: false,
		},
		{
			name:       "resume restarts a stream that was playing",
			state:      StatePaused,
			resumePlay: true,
			pause:      false,
			wantOp: opStart, wantState: StateRunning, wantResume: false,
		},
		{
			name:      "resume of a pre-start pause returns to prepared",
			state:     StatePaused,
			pause:     false,
			wantOp: opNone, wantState: StatePrepared, wantResume: false,
		},
		{
			name:      "resume while running is a no-op",
			state:     StateRunning,
			pause:     false,
			wantOp: opNone, wantState: StateRunning, wantResume: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, state, resume := pauseTransition(tt.state, tt.resumePlay, tt.pause)
			if op != tt.wantOp || state != tt.wantState || resume != tt.wantResume {
				t.Errorf("pauseTransition(%v, %v, %v) = (%v, %v, %v), want (%v, %v, %v)",
					tt.state, tt.resumePlay, tt.pause,
					op, state, resume,
					tt.wantOp, tt.wantState, tt.wantResume)
			}
		})
	}
}
