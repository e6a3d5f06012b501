package audioio

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by mock backends after Close.
var ErrClosed = errors.New("audioio: backend closed")

// MockSource is an in-memory Source for tests. Chunks queued with Push are
// delivered on Stream once the source is started.
type MockSource struct {
	mu      sync.Mutex
	rate    int
	stream  chan Chunk
	pending []Chunk
	started bool
	closed  bool
}

// NewMockSource creates a mock source at the given sample rate.
func NewMockSource(sampleRate int) *MockSource {
	return &MockSource{
		rate:   sampleRate,
		stream: make(chan Chunk, 64),
	}
}

// Push queues a chunk for delivery. Safe before or after Start.
func (m *MockSource) Push(c Chunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.started {
		m.stream <- c
		return
	}
	m.pending = append(m.pending, c)
}

// PushBytes queues raw PCM16 bytes at the source rate.
func (m *MockSource) PushBytes(pcm []byte) {
	var c Chunk
	c.FromBytes(pcm, m.rate)
	m.Push(c)
}

func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if !m.started {
		m.started = true
		if m.stream == nil {
			m.stream = make(chan Chunk, 64)
		}
		for _, c := range m.pending {
			m.stream <- c
		}
		m.pending = nil
	}
	return nil
}

// Stop ends the current capture run and closes its stream. The source can
// restart: the next Start opens a fresh stream. Close is the terminal stop.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	if m.stream != nil {
		close(m.stream)
		m.stream = nil
	}
	return nil
}

func (m *MockSource) Stream() <-chan Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream
}

func (m *MockSource) SampleRate() int { return m.rate }
func (m *MockSource) Name() string    { return "mock" }

func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.started = false
	if m.stream != nil {
		close(m.stream)
		m.stream = nil
	}
	return nil
}

// MockSink is an in-memory Sink for tests. It records every buffer written
// and can simulate slow hardware and device failures.
type MockSink struct {
	mu      sync.Mutex
	written [][]byte
	cleared int
	started bool
	closed  bool

	// WriteDelay simulates a blocking output device.
	WriteDelay time.Duration

	// WriteErr, when set, is returned by every Write.
	WriteErr error
}

// NewMockSink creates a mock sink.
func NewMockSink() *MockSink {
	return &MockSink{}
}

func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.started = true
	return nil
}

func (m *MockSink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	return nil
}

func (m *MockSink) Write(ctx context.Context, pcm []byte) error {
	if m.WriteDelay > 0 {
		select {
		case <-time.After(m.WriteDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.WriteErr != nil {
		return m.WriteErr
	}
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	m.written = append(m.written, buf)
	return nil
}

func (m *MockSink) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared++
	return nil
}

func (m *MockSink) Name() string { return "mock" }

func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.started = false
	return nil
}

// Written returns a copy of all buffers written so far.
func (m *MockSink) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.written))
	copy(out, m.written)
	return out
}

// ClearCount returns how many times Clear was called.
func (m *MockSink) ClearCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleared
}
