package realtime

import (
	"log/slog"
	"time"

	"github.com/shotaro311/chappy-AI/pkg/audioio"
)

// DefaultInstructions is the system prompt sent with session.update when
// the caller provides none.
const DefaultInstructions = "You are Chappy, a friendly voice assistant that manages the user's " +
	"calendar. Keep answers short and conversational. Use the provided tools " +
	"to schedule, delete and list reminders; never invent calendar state."

// Config holds everything a Session needs. Construct it with NewConfig and
// options; zero values are filled with workable defaults.
type Config struct {
	APIKey          string
	Endpoint        string
	Model           string
	Voice           string
	Instructions    string
	InputSampleRate int
	WireSampleRate  int
	UtteranceLimit  time.Duration
	IdleTimeout     time.Duration
	VADSilence      time.Duration
	ToolSchemas     []map[string]any
	Sink            audioio.Sink
	Logger          *slog.Logger

	// Dialer is the transport factory. Defaults to a gorilla websocket
	// dialer; tests inject a fake.
	Dialer Dialer

	// OnTranscript, if set, receives assistant transcript deltas as they
	// stream in.
	OnTranscript func(text string)
}

// Option mutates a Config.
type Option func(*Config)

// NewConfig builds a Config from defaults plus options.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		Endpoint:        "wss://api.openai.com/v1/realtime",
		Model:           "gpt-4o-realtime-preview",
		Voice:           "alloy",
		Instructions:    DefaultInstructions,
		InputSampleRate: 16000,
		WireSampleRate:  24000,
		UtteranceLimit:  2 * time.Second,
		IdleTimeout:     10 * time.Second,
		VADSilence:      500 * time.Millisecond,
		Dialer:          wsDialer{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// WithAPIKey sets the bearer credential.
func WithAPIKey(key string) Option { return func(c *Config) { c.APIKey = key } }

// WithEndpoint overrides the websocket endpoint.
func WithEndpoint(url string) Option { return func(c *Config) { c.Endpoint = url } }

// WithModel selects the realtime model.
func WithModel(model string) Option { return func(c *Config) { c.Model = model } }

// WithVoice selects the synthesis voice.
func WithVoice(voice string) Option { return func(c *Config) { c.Voice = voice } }

// WithInstructions overrides the system prompt.
func WithInstructions(text string) Option { return func(c *Config) { c.Instructions = text } }

// WithInputSampleRate declares the capture rate; frames are resampled to
// the wire rate before upload.
func WithInputSampleRate(hz int) Option { return func(c *Config) { c.InputSampleRate = hz } }

// WithUtteranceLimit sets the force-commit threshold for long utterances.
func WithUtteranceLimit(d time.Duration) Option { return func(c *Config) { c.UtteranceLimit = d } }

// WithIdleTimeout sets the quiet period after which the session ends itself.
func WithIdleTimeout(d time.Duration) Option { return func(c *Config) { c.IdleTimeout = d } }

// WithVADSilence sets how long the server waits through silence before
// treating the utterance as finished. Sent with session.update.
func WithVADSilence(d time.Duration) Option { return func(c *Config) { c.VADSilence = d } }

// WithWireSampleRate overrides the protocol sample rate frames are
// resampled to before upload.
func WithWireSampleRate(hz int) Option { return func(c *Config) { c.WireSampleRate = hz } }

// WithTools registers the function schemas advertised at session start.
func WithTools(schemas []map[string]any) Option { return func(c *Config) { c.ToolSchemas = schemas } }

// WithSink sets the playback device.
func WithSink(sink audioio.Sink) Option { return func(c *Config) { c.Sink = sink } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(c *Config) { c.Logger = l } }

// WithDialer substitutes the transport factory.
func WithDialer(d Dialer) Option { return func(c *Config) { c.Dialer = d } }

// WithTranscriptHandler streams assistant transcript text to fn.
func WithTranscriptHandler(fn func(text string)) Option {
	return func(c *Config) { c.OnTranscript = fn }
}
