package web

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shotaro311/chappy-AI/internal/config"
	"github.com/shotaro311/chappy-AI/pkg/calendar"
)

func newTestServer(t *testing.T) (*Server, *calendar.MemoryStore) {
	t.Helper()
	store := calendar.NewMemoryStore(calendar.DefaultDefaults())
	cfg := config.Default().Web
	return NewServer(cfg, store, nil), store
}

func getJSON(t *testing.T, s *Server, path string, out any) int {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("decode %s: %v (%s)", path, err, body)
		}
	}
	return resp.StatusCode
}

func TestHandleStatus(t *testing.T) {
	s, store := newTestServer(t)
	store.Upsert("Meeting", time.Now().UTC().Add(time.Hour), 0, 0)
	s.SetState("conversing")
	s.AddTranscript("Scheduled.")

	var status Status
	if code := getJSON(t, s, "/api/status", &status); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if status.State != "conversing" {
		t.Errorf("state = %q", status.State)
	}
	if status.UpcomingCount != 1 {
		t.Errorf("upcoming = %d", status.UpcomingCount)
	}
	if status.LastUtterance != "Scheduled." {
		t.Errorf("last utterance = %q", status.LastUtterance)
	}
}

func TestHandleEvents(t *testing.T) {
	t.Run("lists upcoming", func(t *testing.T) {
		s, store := newTestServer(t)
		store.Upsert("Meeting", time.Now().UTC().Add(time.Hour), 0, 0)

		var events []calendar.Event
		if code := getJSON(t, s, "/api/events", &events); code != http.StatusOK {
			t.Fatalf("status %d", code)
		}
		if len(events) != 1 || events[0].Title != "Meeting" {
			t.Errorf("events = %v", events)
		}
	})

	t.Run("empty calendar is an empty array", func(t *testing.T) {
		s, _ := newTestServer(t)
		var events []calendar.Event
		if code := getJSON(t, s, "/api/events", &events); code != http.StatusOK {
			t.Fatalf("status %d", code)
		}
		if events == nil || len(events) != 0 {
			t.Errorf("expected [], got %v", events)
		}
	})
}

func TestHandleSay(t *testing.T) {
	post := func(t *testing.T, s *Server, body string) int {
		t.Helper()
		req, _ := http.NewRequest(http.MethodPost, "/api/say", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.app.Test(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	t.Run("forwards text into the conversation", func(t *testing.T) {
		s, _ := newTestServer(t)
		var got string
		s.OnSay = func(text string) error {
			got = text
			return nil
		}
		if code := post(t, s, `{"text":"hello"}`); code != http.StatusOK {
			t.Fatalf("status %d", code)
		}
		if got != "hello" {
			t.Errorf("forwarded %q", got)
		}
	})

	t.Run("no active conversation", func(t *testing.T) {
		s, _ := newTestServer(t)
		if code := post(t, s, `{"text":"hello"}`); code != http.StatusServiceUnavailable {
			t.Errorf("status %d", code)
		}
	})

	t.Run("empty text rejected", func(t *testing.T) {
		s, _ := newTestServer(t)
		s.OnSay = func(string) error { return nil }
		if code := post(t, s, `{}`); code != http.StatusBadRequest {
			t.Errorf("status %d", code)
		}
	})
}

func TestFeedBacklogIsBounded(t *testing.T) {
	s, _ := newTestServer(t)
	for i := 0; i < feedBacklog+50; i++ {
		s.AddTranscript("line")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.backlog) != feedBacklog {
		t.Errorf("backlog grew to %d", len(s.backlog))
	}
}
