// Package session runs the outer conversation loop: wait for the wake
// word, hold one realtime conversation, announce due reminders, repeat.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shotaro311/chappy-AI/internal/config"
	"github.com/shotaro311/chappy-AI/pkg/audioio"
	"github.com/shotaro311/chappy-AI/pkg/calendar"
	"github.com/shotaro311/chappy-AI/pkg/realtime"
	"github.com/shotaro311/chappy-AI/pkg/tools"
	"github.com/shotaro311/chappy-AI/pkg/vad"
	"github.com/shotaro311/chappy-AI/pkg/wakeword"
)

// Conversation is one voice session. Satisfied by realtime.Session; tests
// substitute a fake.
type Conversation interface {
	Open(ctx context.Context) error
	Run(ctx context.Context, frames <-chan []byte, calls []tools.Call) error
	Speak(text string) error
	SendText(text string) error
	Close() error
}

// ErrNoConversation is returned by Say when no conversation is active.
var ErrNoConversation = errors.New("session: no active conversation")

// Hooks let the dashboard observe the manager without coupling to it.
type Hooks struct {
	// OnTranscript receives assistant transcript text.
	OnTranscript func(text string)

	// OnState receives coarse state changes: "waiting", "conversing".
	OnState func(state string)
}

// Manager owns the microphone, the wake listener and the calendar, and
// spins up one Conversation per wake.
type Manager struct {
	cfg      *config.Config
	apiKey   string
	store    calendar.Store
	source   audioio.Source
	sink     audioio.Sink
	listener wakeword.Listener
	hooks    Hooks
	log      *slog.Logger

	// newConversation is the session factory. Overridden in tests.
	newConversation func() Conversation

	convMu sync.Mutex
	active Conversation

	reminders *calendar.ReminderScheduler
	announced map[string]time.Time
}

// New creates a manager. listener may be nil, in which case Run holds a
// single conversation and returns instead of looping on the wake word.
func New(cfg *config.Config, apiKey string, store calendar.Store, source audioio.Source, sink audioio.Sink, listener wakeword.Listener, hooks Hooks, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:      cfg,
		apiKey:   apiKey,
		store:    store,
		source:   source,
		sink:     sink,
		listener: listener,
		hooks:    hooks,
		log:      logger.With("component", "manager"),
		reminders: calendar.NewReminderScheduler(store,
			time.Duration(cfg.Calendar.LookaheadMinutes)*time.Minute, logger),
		announced: make(map[string]time.Time),
	}
	m.newConversation = m.buildConversation
	return m
}

func (m *Manager) buildConversation() Conversation {
	s := realtime.NewSession(realtime.NewConfig(
		realtime.WithAPIKey(m.apiKey),
		realtime.WithEndpoint(m.cfg.Realtime.Endpoint),
		realtime.WithModel(m.cfg.Realtime.Model),
		realtime.WithVoice(m.cfg.Realtime.Voice),
		realtime.WithInputSampleRate(m.cfg.Audio.SampleRate),
		realtime.WithWireSampleRate(m.cfg.Realtime.SampleRate),
		realtime.WithUtteranceLimit(time.Duration(m.cfg.Timeouts.UtteranceTimeoutSec)*time.Second),
		realtime.WithIdleTimeout(time.Duration(m.cfg.Timeouts.SessionTimeoutSec)*time.Second),
		realtime.WithVADSilence(time.Duration(m.cfg.Realtime.ServerVADIdleTimeoutSec)*time.Second),
		realtime.WithTools(tools.Schemas()),
		realtime.WithSink(m.sink),
		realtime.WithLogger(m.log),
		realtime.WithTranscriptHandler(m.hooks.OnTranscript),
	))
	s.SetToolHandler(tools.NewDispatcher(m.store, s, m.log).Dispatch)
	return s
}

// Run is the main loop. It returns when ctx is cancelled or, with no wake
// listener configured, after a single conversation.
func (m *Manager) Run(ctx context.Context) error {
	// The wake listener and each conversation read the same capture
	// stream, so the source runs for the life of the loop.
	if err := m.source.Start(ctx); err != nil {
		return err
	}
	defer m.source.Stop()

	remCtx, cancelReminders := context.WithCancel(ctx)
	defer cancelReminders()
	go m.announceLoop(remCtx)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if m.listener != nil {
			m.setState("waiting")
			if err := m.listener.Wait(ctx); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, wakeword.ErrSourceClosed) {
					return nil
				}
				return err
			}
		}

		m.setState("conversing")
		if err := m.converse(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.log.Error("conversation failed", "error", err)
		}

		if m.listener == nil {
			return nil
		}
	}
}

// RunOnce replays tool calls through a connection-less conversation. This
// is the dry-run path: no credential, no network, no audio hardware.
func (m *Manager) RunOnce(ctx context.Context, calls []tools.Call) error {
	conv := m.newConversation()
	defer conv.Close()
	return conv.Run(ctx, nil, calls)
}

func (m *Manager) converse(ctx context.Context) error {
	// Hard cap per conversation, independent of any idle detection.
	maxSession := time.Duration(m.cfg.Realtime.MaxSessionMinutes) * time.Minute
	ctx, cancel := context.WithTimeout(ctx, maxSession)
	defer cancel()

	conv := m.newConversation()
	defer conv.Close()

	if err := conv.Open(ctx); err != nil {
		return err
	}

	m.convMu.Lock()
	m.active = conv
	m.convMu.Unlock()
	defer func() {
		m.convMu.Lock()
		m.active = nil
		m.convMu.Unlock()
	}()

	// Local idle backstop: if the microphone hears no speech for well
	// past the session timeout, stop feeding frames even when no server
	// events arrive to say so.
	clock := vad.NewIdleClock(vad.NewRMSDetector(),
		3*time.Duration(m.cfg.Timeouts.SessionTimeoutSec)*time.Second)

	frames := make(chan []byte, 32)
	go func() {
		defer close(frames)
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-m.source.Stream():
				if !ok {
					return
				}
				clock.Update(chunk.Samples)
				if clock.ShouldEndSession() {
					m.log.Info("no local speech, ending conversation")
					return
				}
				select {
				case frames <- chunk.Bytes():
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	err := conv.Run(ctx, frames, nil)
	if errors.Is(err, context.DeadlineExceeded) {
		m.log.Info("conversation hit the session cap", "cap", maxSession)
		return nil
	}
	return err
}

// announceLoop speaks reminders as their windows open. Outside a
// conversation announcements go to the transcript hook and log.
func (m *Manager) announceLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.announceDue(time.Now())
		}
	}
}

func (m *Manager) announceDue(now time.Time) {
	due, err := m.reminders.Due(now)
	if err != nil {
		m.log.Warn("reminder check failed", "error", err)
		return
	}

	for _, evt := range due {
		if _, done := m.announced[evt.ID]; done {
			continue
		}
		m.announced[evt.ID] = now
		text := "Reminder: " + evt.Title + " at " + evt.Start.Format("15:04") + "."
		m.log.Info("reminder due", "title", evt.Title, "start", evt.Start)
		if m.hooks.OnTranscript != nil {
			m.hooks.OnTranscript(text)
		}
	}

	// Drop bookkeeping for events whose start has long passed.
	for id, at := range m.announced {
		if now.Sub(at) > 24*time.Hour {
			delete(m.announced, id)
		}
	}
}

// Say injects typed text into the active conversation as user input. The
// dashboard's text box lands here.
func (m *Manager) Say(text string) error {
	m.convMu.Lock()
	conv := m.active
	m.convMu.Unlock()
	if conv == nil {
		return ErrNoConversation
	}
	return conv.SendText(text)
}

func (m *Manager) setState(state string) {
	if m.hooks.OnState != nil {
		m.hooks.OnState(state)
	}
}
