package realtime

import (
	"context"
	"log/slog"
	"time"
)

// IdleState is a snapshot of everything the silence monitor needs to judge
// whether the conversation has gone quiet.
type IdleState struct {
	// LastActivity is the wall-clock time of the most recent meaningful
	// event. Zero means no activity has been observed yet, in which case
	// the monitor never fires.
	LastActivity time.Time

	// Responding is true while the server is generating a response.
	Responding bool

	// Playing is true while a chunk is being rendered.
	Playing bool

	// PendingAudio is true while playback chunks are still queued.
	PendingAudio bool
}

// SilenceMonitor periodically probes the session and ends it after a
// sustained quiet period. It only fires when the session is fully quiescent:
// no response in flight, nothing playing, nothing queued.
type SilenceMonitor struct {
	timeout  time.Duration
	interval time.Duration
	probe    func() IdleState
	onIdle   func()
	log      *slog.Logger
	now      func() time.Time
}

// NewSilenceMonitor creates a monitor that calls onIdle once the probed
// state has been quiet for longer than timeout.
func NewSilenceMonitor(timeout time.Duration, probe func() IdleState, onIdle func(), logger *slog.Logger) *SilenceMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SilenceMonitor{
		timeout:  timeout,
		interval: time.Second,
		probe:    probe,
		onIdle:   onIdle,
		log:      logger.With("component", "silence-monitor"),
		now:      time.Now,
	}
}

// Run blocks until the monitor fires or ctx is cancelled. It fires at most
// once.
func (m *SilenceMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.check() {
				m.onIdle()
				return
			}
		}
	}
}

func (m *SilenceMonitor) check() bool {
	s := m.probe()
	if s.LastActivity.IsZero() {
		return false
	}
	if s.Responding || s.Playing || s.PendingAudio {
		return false
	}
	idle := m.now().Sub(s.LastActivity)
	if idle <= m.timeout {
		return false
	}
	m.log.Info("session idle, ending", "idle", idle.Round(time.Second))
	return true
}
