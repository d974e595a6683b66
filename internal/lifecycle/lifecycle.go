// Package lifecycle tracks process state the health endpoint reports: uptime and
// whether the server is draining for shutdown.
package lifecycle

import (
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// State is shared by main (which flips it on SIGTERM/SIGINT) and the health handler.
type State struct {
	clock        clockwork.Clock
	startedAt    time.Time
	shuttingDown atomic.Bool
	ready        atomic.Bool
}

// New returns a State that started now. A nil clock selects the real clock.
func New(clock clockwork.Clock) *State {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &State{clock: clock, startedAt: clock.Now()}
}

// BeginShutdown marks the process as draining. Health returns 503 shutting-down from then on.
func (s *State) BeginShutdown() {
	s.shuttingDown.Store(true)
}

// ShuttingDown reports whether the process is draining and should not receive new traffic.
func (s *State) ShuttingDown() bool {
	return s.shuttingDown.Load()
}

// MarkReady records that startup work (initial cache warm) has finished.
func (s *State) MarkReady() {
	s.ready.Store(true)
}

// Ready reports whether MarkReady was called.
func (s *State) Ready() bool {
	return s.ready.Load()
}

// Uptime is the time since New.
func (s *State) Uptime() time.Duration {
	return s.clock.Since(s.startedAt)
}
