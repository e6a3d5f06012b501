package web

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
)

type fakeWriter struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (f *fakeWriter) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if messageType == websocket.TextMessage {
		buf := make([]byte, len(data))
		copy(buf, data)
		f.frames = append(f.frames, buf)
	}
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func TestHubBroadcast(t *testing.T) {
	h := NewHub(nil)

	w := &fakeWriter{}
	c := h.register(nil)
	c.w = w
	go c.writePump()
	defer h.unregister(c)

	h.BroadcastJSON(FeedEntry{Kind: "transcript", Message: "hi"})

	deadline := time.Now().Add(time.Second)
	for w.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if w.count() != 1 {
		t.Fatalf("expected 1 frame, got %d", w.count())
	}
	if h.ClientCount() != 1 {
		t.Errorf("client count = %d", h.ClientCount())
	}
}

func TestHubReplaysBacklog(t *testing.T) {
	h := NewHub(nil)

	backlog := [][]byte{[]byte(`{"n":1}`), []byte(`{"n":2}`)}
	w := &fakeWriter{}
	c := h.register(backlog)
	c.w = w
	go c.writePump()
	defer h.unregister(c)

	deadline := time.Now().Add(time.Second)
	for w.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if w.count() != 2 {
		t.Fatalf("backlog not replayed: %d frames", w.count())
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	h := NewHub(nil)

	// No write pump: the send queue fills and the client must be dropped.
	c := h.register(nil)
	c.w = &fakeWriter{err: errors.New("stalled")}

	for i := 0; i < clientBuffer+10; i++ {
		h.BroadcastJSON(FeedEntry{Message: "x"})
	}

	if h.ClientCount() != 0 {
		t.Errorf("slow client not dropped: %d remain", h.ClientCount())
	}
}
