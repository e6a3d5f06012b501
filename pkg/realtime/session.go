// Package realtime drives a full-duplex voice session against an
// OpenAI-style realtime websocket API: microphone frames up, synthesized
// speech and tool calls down.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/shotaro311/chappy-AI/pkg/audioio"
	"github.com/shotaro311/chappy-AI/pkg/tools"
)

// ToolHandler executes one validated tool call. The session speaks an
// apology and keeps running when the handler reports a validation error.
type ToolHandler func(call tools.Call) error

// Session is one voice conversation. It owns the websocket connection, the
// playback relay and the silence monitor, and serializes all outbound
// writes.
//
// A session may also run without a connection at all: tool calls are still
// dispatched and confirmations are logged instead of spoken. This is the
// dry-run mode used in tests and offline development.
type Session struct {
	cfg *Config
	log *slog.Logger
	id  string

	relay       *Relay
	toolHandler ToolHandler

	sendMu sync.Mutex
	conn   Conn

	// sayMu guards pendingSay and makes the responding check atomic with
	// the response.create send, so a confirmation spoken from another
	// goroutine cannot race a response.created on the receive loop.
	sayMu      sync.Mutex
	pendingSay []string

	running        atomic.Bool
	responding     atomic.Bool
	utteranceStart atomic.Int64 // unix nanos; 0 = no open utterance
	lastActivity   atomic.Int64 // unix nanos; 0 = nothing observed yet

	cancel    context.CancelFunc
	recvDone  chan struct{}
	monDone   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// discardSink renders nothing. Used when no playback device is configured.
type discardSink struct{}

func (discardSink) Start(context.Context) error         { return nil }
func (discardSink) Stop() error                         { return nil }
func (discardSink) Write(context.Context, []byte) error { return nil }
func (discardSink) Clear() error                        { return nil }
func (discardSink) Name() string                        { return "discard" }
func (discardSink) Close() error                        { return nil }

var _ audioio.Sink = discardSink{}

// NewSession creates a session from cfg. No I/O happens until Open.
func NewSession(cfg *Config) *Session {
	id := uuid.NewString()[:8]
	s := &Session{
		cfg:  cfg,
		log:  cfg.Logger.With("component", "session", "session_id", id),
		id:   id,
		done: make(chan struct{}),
	}
	sink := audioio.Sink(discardSink{})
	if cfg.Sink != nil {
		sink = cfg.Sink
	}
	s.relay = NewRelay(sink, cfg.Logger, s.touchActivity)
	return s
}

// ID is the short session identifier used in logs.
func (s *Session) ID() string { return s.id }

// SetToolHandler installs the tool dispatcher. Must be called before Open
// or Run.
func (s *Session) SetToolHandler(fn ToolHandler) { s.toolHandler = fn }

// Done is closed once the session has fully shut down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Connected reports whether a websocket connection is open.
func (s *Session) Connected() bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.conn != nil
}

// Open dials the realtime endpoint, configures the remote session and
// starts the receive loop, playback relay and silence monitor. The
// credential is checked before any I/O.
func (s *Session) Open(ctx context.Context) error {
	if s.cfg.APIKey == "" {
		return ErrMissingAPIKey
	}
	if s.Connected() {
		return ErrAlreadyOpen
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	url := s.cfg.Endpoint + "?model=" + s.cfg.Model
	conn, err := s.cfg.Dialer.Dial(ctx, url, header)
	if err != nil {
		return err
	}

	s.sendMu.Lock()
	s.conn = conn
	s.sendMu.Unlock()

	if err := s.send(msgSessionUpdate(s.cfg.Instructions, s.cfg.Voice, s.cfg.VADSilence, s.cfg.ToolSchemas)); err != nil {
		s.sendMu.Lock()
		s.conn = nil
		s.sendMu.Unlock()
		conn.Close()
		return err
	}

	// Lifetime context for the background tasks; Open's ctx only scopes
	// the dial.
	lifetime, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if s.cfg.Sink != nil {
		if err := s.cfg.Sink.Start(lifetime); err != nil {
			cancel()
			s.sendMu.Lock()
			s.conn = nil
			s.sendMu.Unlock()
			conn.Close()
			return err
		}
	}
	s.running.Store(true)

	s.relay.Start(lifetime)

	s.recvDone = make(chan struct{})
	go s.receiveLoop()

	monitor := NewSilenceMonitor(s.cfg.IdleTimeout, s.idleState, func() { go s.Close() }, s.cfg.Logger)
	s.monDone = make(chan struct{})
	go func() {
		defer close(s.monDone)
		monitor.Run(lifetime)
	}()

	s.log.Info("session opened", "model", s.cfg.Model, "voice", s.cfg.Voice)
	return nil
}

// Close shuts the session down: background tasks are cancelled and awaited
// before the connection is closed and the playback device is stopped.
// The sink itself stays open; whoever supplied it closes it, so one device
// can serve consecutive sessions. Idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.running.Store(false)
		if s.cancel != nil {
			s.cancel()
		}

		s.sendMu.Lock()
		conn := s.conn
		s.conn = nil
		s.sendMu.Unlock()
		if conn != nil {
			conn.Close()
		}

		if s.recvDone != nil {
			<-s.recvDone
		}
		if s.monDone != nil {
			<-s.monDone
		}
		s.relay.Close()

		if s.cfg.Sink != nil {
			s.closeErr = s.cfg.Sink.Stop()
		}
		close(s.done)
		s.log.Info("session closed")
	})
	return s.closeErr
}

// Run replays any queued tool calls, then pumps capture frames into the
// session until the source closes, ctx is cancelled or the session ends
// itself. frames may be nil when only tool replay is wanted.
func (s *Session) Run(ctx context.Context, frames <-chan []byte, calls []tools.Call) error {
	for _, call := range calls {
		s.runTool("", call)
	}

	if frames == nil {
		if !s.Connected() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			err := s.IngestAudioFrame(frame)
			switch {
			case errors.Is(err, ErrSessionClosed):
				return nil
			case IsConnectionError(err):
				return err
			case err != nil:
				s.log.Warn("dropped capture frame", "error", err)
			}
		}
	}
}

// IngestAudioFrame resamples one capture frame to the wire rate and uploads
// it. When the current utterance has been running longer than the limit a
// commit is forced so long speech is segmented without waiting for server
// silence detection.
func (s *Session) IngestAudioFrame(frame []byte) error {
	if !s.running.Load() {
		return ErrSessionClosed
	}

	pcm := audioio.ResampleBytes(frame, s.cfg.InputSampleRate, s.cfg.WireSampleRate)
	if err := s.send(msgAudioAppend(pcm)); err != nil {
		return err
	}
	s.touchActivity()
	s.maybeForceCommit()
	return nil
}

// Speak voices text through the session. Confirmations queue behind an
// in-flight response so a response is never requested while one is active.
// Without a connection the utterance is logged instead.
func (s *Session) Speak(text string) error {
	s.touchActivity()
	if s.cfg.OnTranscript != nil {
		s.cfg.OnTranscript(text)
	}
	if !s.Connected() {
		s.log.Info("utterance (no connection)", "text", text)
		return nil
	}

	s.sayMu.Lock()
	s.pendingSay = append(s.pendingSay, text)
	s.sayMu.Unlock()
	return s.pumpSay()
}

// SendText injects a typed user message and requests a spoken reply. Used
// by the dashboard's text input.
func (s *Session) SendText(text string) error {
	s.touchActivity()
	if err := s.send(msgUserText(text)); err != nil {
		return err
	}
	s.sayMu.Lock()
	defer s.sayMu.Unlock()
	if !s.responding.Load() {
		return s.send(msgResponseCreate())
	}
	return nil
}

func (s *Session) pumpSay() error {
	s.sayMu.Lock()
	defer s.sayMu.Unlock()
	if s.responding.Load() || len(s.pendingSay) == 0 {
		return nil
	}
	text := s.pendingSay[0]
	s.pendingSay = s.pendingSay[1:]
	return s.send(msgSpokenResponse(text))
}

func (s *Session) send(v any) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	if err := s.conn.WriteJSON(v); err != nil {
		return NewConnectionError("write", err)
	}
	return nil
}

func (s *Session) touchActivity() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Session) idleState() IdleState {
	var last time.Time
	if n := s.lastActivity.Load(); n != 0 {
		last = time.Unix(0, n)
	}
	return IdleState{
		LastActivity: last,
		Responding:   s.responding.Load(),
		Playing:      s.relay.Playing(),
		PendingAudio: s.relay.Pending() > 0,
	}
}

func (s *Session) maybeForceCommit() {
	start := s.utteranceStart.Load()
	if start == 0 {
		return
	}
	if time.Since(time.Unix(0, start)) <= s.cfg.UtteranceLimit {
		return
	}
	if err := s.send(msgAudioCommit()); err != nil {
		s.log.Warn("force commit failed", "error", err)
		return
	}
	s.log.Debug("forced commit of long utterance")
	// Re-arm: the user is still talking, the next segment starts now.
	s.utteranceStart.Store(time.Now().UnixNano())
}

func (s *Session) receiveLoop() {
	defer close(s.recvDone)

	for {
		s.sendMu.Lock()
		conn := s.conn
		s.sendMu.Unlock()
		if conn == nil {
			return
		}

		data, err := conn.ReadMessage()
		if err != nil {
			if s.running.Load() {
				s.log.Error("connection lost", "error", NewConnectionError("read", err))
				s.running.Store(false)
				go s.Close()
			}
			return
		}

		evt, err := DecodeServerEvent(data)
		if err != nil {
			// A malformed frame is dropped; it must not end the session.
			s.log.Warn("dropping frame", "error", err)
			continue
		}
		s.handleEvent(evt)
	}
}

func (s *Session) handleEvent(evt *ServerEvent) {
	switch evt.Kind() {
	case KindSessionReady:
		s.log.Debug("session ready", "type", evt.Type)

	case KindSpeechStarted:
		// Barge-in: drop queued playback immediately, cancel only if a
		// response is actually in flight.
		s.utteranceStart.Store(time.Now().UnixNano())
		s.touchActivity()
		s.relay.Flush()
		if s.cfg.Sink != nil {
			if err := s.cfg.Sink.Clear(); err != nil {
				s.log.Warn("sink clear failed", "error", err)
			}
		}
		if s.responding.Load() {
			if err := s.send(msgResponseCancel()); err != nil {
				s.log.Warn("cancel failed", "error", err)
			}
		}

	case KindSpeechStopped:
		s.utteranceStart.Store(0)
		s.touchActivity()

	case KindCommitted:
		s.utteranceStart.Store(0)
		s.touchActivity()
		if !s.responding.Load() {
			if err := s.send(msgResponseCreate()); err != nil {
				s.log.Warn("response request failed", "error", err)
			}
		}

	case KindResponseCreated:
		s.sayMu.Lock()
		s.responding.Store(true)
		s.sayMu.Unlock()
		s.touchActivity()

	case KindResponseDone:
		s.sayMu.Lock()
		s.responding.Store(false)
		s.sayMu.Unlock()
		s.touchActivity()
		if err := s.pumpSay(); err != nil {
			s.log.Warn("queued utterance failed", "error", err)
		}

	case KindTranscriptDelta:
		s.touchActivity()
		if s.cfg.OnTranscript != nil {
			s.cfg.OnTranscript(evt.Delta)
		}

	case KindAudioDelta:
		pcm, err := evt.AudioPayload()
		if err != nil {
			s.log.Warn("dropping audio delta", "error", err)
			return
		}
		s.relay.Enqueue(pcm)

	case KindToolCall:
		s.runTool(evt.CallID, tools.Call{Name: evt.Name, Arguments: []byte(evt.Arguments)})

	case KindError:
		s.log.Error("server error", "error", evt.Err())

	default:
		s.log.Debug("ignoring event", "type", evt.Type)
	}
}

func (s *Session) runTool(callID string, call tools.Call) {
	s.touchActivity()
	if s.toolHandler == nil {
		s.log.Warn("tool call with no handler", "name", call.Name)
		return
	}

	err := s.toolHandler(call)
	outcome := "success"
	switch {
	case tools.IsValidationError(err):
		outcome = "invalid arguments"
		s.log.Warn("rejected tool call", "name", call.Name, "error", err)
		if serr := s.Speak("Sorry, I couldn't process that request."); serr != nil {
			s.log.Warn("apology failed", "error", serr)
		}
	case err != nil:
		outcome = "internal error"
		s.log.Error("tool call failed", "name", call.Name, "error", err)
	default:
		s.log.Info("tool call handled", "name", call.Name)
	}

	if callID != "" && s.Connected() {
		if err := s.send(msgToolResult(callID, outcome)); err != nil {
			s.log.Warn("tool result send failed", "error", err)
		}
	}
}
