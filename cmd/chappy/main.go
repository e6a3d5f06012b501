// Chappy - voice calendar assistant over the OpenAI Realtime API.
// Speech in, speech out, with reminders kept in a local or Google calendar.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shotaro311/chappy-AI/internal/config"
	"github.com/shotaro311/chappy-AI/internal/log"
	"github.com/shotaro311/chappy-AI/pkg/audioio"
	"github.com/shotaro311/chappy-AI/pkg/calendar"
	"github.com/shotaro311/chappy-AI/pkg/session"
	"github.com/shotaro311/chappy-AI/pkg/tools"
	"github.com/shotaro311/chappy-AI/pkg/wakeword"
	"github.com/shotaro311/chappy-AI/pkg/web"
)

func main() {
	configDir := flag.String("config", "config", "configuration directory (base.yaml plus overlays)")
	env := flag.String("env", "", "environment overlay name, e.g. pc.dev")
	dryRun := flag.Bool("dry-run", false, "replay tool calls from the command line without connecting")
	flag.Parse()

	cfg, err := config.Load(*configDir, *env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Logging.Level)
	logger := log.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := openStore(ctx, cfg)
	if closer, ok := store.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	if *dryRun {
		if err := runDry(ctx, cfg, store, flag.Args()); err != nil {
			logger.Error("dry run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		logger.Warn("OPENAI_API_KEY is not set, running in dry-run mode")
		if err := runDry(ctx, cfg, store, flag.Args()); err != nil {
			logger.Error("dry run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	source, sink, err := openAudio(cfg.Audio)
	if err != nil {
		logger.Error("audio setup failed", "error", err)
		os.Exit(1)
	}
	defer source.Close()
	defer sink.Close()

	hooks := session.Hooks{}
	var dashboard *web.Server
	if cfg.Web.Enabled {
		dashboard = web.NewServer(cfg.Web, store, logger)
		hooks.OnTranscript = dashboard.AddTranscript
		hooks.OnState = dashboard.SetState
		go func() {
			if err := dashboard.Start(); err != nil {
				logger.Error("dashboard failed", "error", err)
			}
		}()
		defer dashboard.Shutdown()
	}

	manager := session.New(&cfg, apiKey, store, source, sink,
		wakeword.NewEnergyListener(source), hooks, logger)
	if dashboard != nil {
		dashboard.OnSay = manager.Say
	}

	logger.Info("chappy starting", "mode", cfg.Mode, "model", cfg.Realtime.Model)
	if err := manager.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("manager stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("chappy stopped")
}

// openStore picks the calendar backend: Google when credentials are
// present, otherwise SQLite when a path is configured, otherwise memory.
func openStore(ctx context.Context, cfg config.Config) calendar.Store {
	logger := log.L()
	defaults := calendar.Defaults{
		DurationMinutes: cfg.Calendar.DefaultDurationMinutes,
		ReminderMinutes: cfg.Calendar.ReminderMinutesDefault,
	}

	google := calendar.GoogleConfig{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		RefreshToken: os.Getenv("GOOGLE_REFRESH_TOKEN"),
		CalendarID:   os.Getenv("GOOGLE_CALENDAR_ID"),
	}
	if google.Complete() {
		fallback := openLocalStore(ctx, cfg, defaults)
		store, err := calendar.NewGoogleStore(ctx, google, fallback, defaults, logger)
		if err == nil {
			logger.Info("using Google Calendar")
			return store
		}
		logger.Warn("Google Calendar unavailable, using local store", "error", err)
		return fallback
	}

	return openLocalStore(ctx, cfg, defaults)
}

func openLocalStore(ctx context.Context, cfg config.Config, defaults calendar.Defaults) calendar.Store {
	logger := log.L()
	if cfg.Calendar.StorePath != "" {
		store, err := calendar.OpenSQLite(ctx, cfg.Calendar.StorePath, defaults, logger)
		if err == nil {
			logger.Info("using SQLite calendar", "path", cfg.Calendar.StorePath)
			return store
		}
		logger.Warn("SQLite unavailable, using in-memory calendar", "error", err)
	}
	return calendar.NewMemoryStore(defaults)
}

// openAudio resolves the configured capture and playback devices. Hardware
// backends plug in through the audioio.Source and audioio.Sink interfaces;
// the built-in "mock" device keeps headless environments working.
func openAudio(cfg config.AudioConfig) (audioio.Source, audioio.Sink, error) {
	switch cfg.InputDevice {
	case "", "mock":
		return audioio.NewMockSource(cfg.SampleRate), audioio.NewMockSink(), nil
	default:
		return nil, nil, fmt.Errorf("unknown audio device %q", cfg.InputDevice)
	}
}

// runDry replays tool calls given as JSON arguments, e.g.
//
//	chappy -dry-run '{"name":"schedule_reminder","arguments":{"title":"Meeting","datetime":"2026-09-01T10:00:00Z"}}'
//
// No credential, network or audio hardware is touched.
func runDry(ctx context.Context, cfg config.Config, store calendar.Store, args []string) error {
	calls := make([]tools.Call, 0, len(args))
	for _, arg := range args {
		call, err := tools.ParseCall([]byte(arg))
		if err != nil {
			return err
		}
		calls = append(calls, call)
	}

	manager := session.New(&cfg, "", store,
		audioio.NewMockSource(cfg.Audio.SampleRate), audioio.NewMockSink(),
		nil, session.Hooks{}, log.L())

	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return manager.RunOnce(runCtx, calls)
}
