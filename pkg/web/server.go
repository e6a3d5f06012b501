// Package web serves the local status dashboard: a small JSON API plus a
// websocket feed of transcript and reminder activity.
package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/shotaro311/chappy-AI/internal/config"
	"github.com/shotaro311/chappy-AI/pkg/calendar"
)

// Status is the dashboard's view of the assistant.
type Status struct {
	State         string `json:"state"`
	UpcomingCount int    `json:"upcoming_count"`
	LastUtterance string `json:"last_utterance"`
	FeedClients   int    `json:"feed_clients"`
}

// FeedEntry is one line of the live feed.
type FeedEntry struct {
	Time    string `json:"time"`
	Kind    string `json:"kind"` // transcript, state, reminder
	Message string `json:"message"`
}

const feedBacklog = 200

// Server is the dashboard HTTP server.
type Server struct {
	app   *fiber.App
	cfg   config.WebConfig
	store calendar.Store
	log   *slog.Logger
	feed  *Hub

	mu      sync.RWMutex
	state   string
	last    string
	backlog [][]byte

	// OnSay, when set, forwards typed dashboard input into the active
	// conversation.
	OnSay func(text string) error

	now func() time.Time
}

// NewServer creates the dashboard server. It does not listen until Start.
func NewServer(cfg config.WebConfig, store calendar.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:   cfg,
		store: store,
		log:   logger.With("component", "web"),
		feed:  NewHub(logger),
		state: "starting",
		now:   time.Now,
	}

	app := fiber.New(fiber.Config{
		AppName:               "chappy dashboard",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/events", s.handleEvents)
	api.Post("/say", s.handleSay)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/feed", websocket.New(s.handleFeedWS))

	s.app = app
	return s
}

// Start listens on the configured address and blocks.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Bind, s.cfg.Port)
	s.log.Info("dashboard listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// SetState records a coarse state change and pushes it to the feed.
func (s *Server) SetState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.push("state", state)
}

// AddTranscript records one line of assistant output.
func (s *Server) AddTranscript(text string) {
	s.mu.Lock()
	s.last = text
	s.mu.Unlock()
	s.push("transcript", text)
}

func (s *Server) push(kind, message string) {
	entry := FeedEntry{
		Time:    s.now().Format("15:04:05"),
		Kind:    kind,
		Message: message,
	}

	s.mu.Lock()
	if data, err := json.Marshal(entry); err == nil {
		s.backlog = append(s.backlog, data)
		if len(s.backlog) > feedBacklog {
			s.backlog = s.backlog[1:]
		}
	}
	s.mu.Unlock()

	s.feed.BroadcastJSON(entry)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	upcoming, err := s.store.ListUpcoming(s.now())
	if err != nil {
		s.log.Warn("status event count failed", "error", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.JSON(Status{
		State:         s.state,
		UpcomingCount: len(upcoming),
		LastUtterance: s.last,
		FeedClients:   s.feed.ClientCount(),
	})
}

func (s *Server) handleEvents(c *fiber.Ctx) error {
	events, err := s.store.ListUpcoming(s.now())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if events == nil {
		events = []calendar.Event{}
	}
	return c.JSON(events)
}

type sayRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSay(c *fiber.Ctx) error {
	var req sayRequest
	if err := c.BodyParser(&req); err != nil || req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "text is required"})
	}
	if s.OnSay == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "no active conversation"})
	}
	if err := s.OnSay(req.Text); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (s *Server) handleFeedWS(c *websocket.Conn) {
	s.mu.RLock()
	backlog := make([][]byte, len(s.backlog))
	copy(backlog, s.backlog)
	s.mu.RUnlock()

	s.feed.Serve(c, backlog)
}
