package realtime

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shotaro311/chappy-AI/pkg/audioio"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRelayRendersInOrder(t *testing.T) {
	sink := audioio.NewMockSink()
	r := NewRelay(sink, nil, nil)
	r.Start(context.Background())
	defer r.Close()

	chunks := [][]byte{{1, 1}, {2, 2}, {3, 3}}
	for _, c := range chunks {
		r.Enqueue(c)
	}

	waitFor(t, func() bool { return len(sink.Written()) == 3 }, "chunks not rendered")

	for i, got := range sink.Written() {
		if !bytes.Equal(got, chunks[i]) {
			t.Errorf("chunk %d out of order: %v", i, got)
		}
	}
}

func TestRelayEnqueueNeverBlocks(t *testing.T) {
	sink := audioio.NewMockSink()
	sink.WriteDelay = time.Hour // device wedged
	r := NewRelay(sink, nil, nil)
	r.Start(context.Background())
	defer r.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			r.Enqueue([]byte{byte(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked behind a slow sink")
	}
}

func TestRelayFlush(t *testing.T) {
	t.Run("discards pending chunks", func(t *testing.T) {
		sink := audioio.NewMockSink()
		sink.WriteDelay = 50 * time.Millisecond
		r := NewRelay(sink, nil, nil)
		r.Start(context.Background())
		defer r.Close()

		for i := 0; i < 10; i++ {
			r.Enqueue([]byte{byte(i)})
		}
		waitFor(t, func() bool { return r.Playing() }, "playback never started")
		r.Flush()

		// The in-flight chunk may finish; everything queued must not.
		time.Sleep(150 * time.Millisecond)
		if n := len(sink.Written()); n > 2 {
			t.Errorf("flush left %d chunks rendered", n)
		}
		if r.Pending() != 0 {
			t.Errorf("queue not empty after flush: %d", r.Pending())
		}
	})

	t.Run("empty and single are no different", func(t *testing.T) {
		r := NewRelay(audioio.NewMockSink(), nil, nil)
		r.Start(context.Background())
		defer r.Close()

		r.Flush()
		r.Enqueue([]byte{1})
		r.Flush()
		r.Flush()
		if r.Pending() != 0 {
			t.Error("flush must always leave an empty queue")
		}
	})
}

func TestRelayPlaybackErrorSkipsChunk(t *testing.T) {
	sink := audioio.NewMockSink()
	sink.WriteErr = errors.New("device gone")
	r := NewRelay(sink, nil, nil)
	r.Start(context.Background())
	defer r.Close()

	r.Enqueue([]byte{1})
	r.Enqueue([]byte{2})

	waitFor(t, func() bool { return r.Pending() == 0 && !r.Playing() }, "relay stalled on sink error")
}

func TestRelayActivityCallback(t *testing.T) {
	sink := audioio.NewMockSink()
	var touches atomic.Int32
	r := NewRelay(sink, nil, func() { touches.Add(1) })
	r.Start(context.Background())
	defer r.Close()

	r.Enqueue([]byte{1})
	r.Enqueue([]byte{2})
	waitFor(t, func() bool { return touches.Load() == 2 }, "activity callback not fired per chunk")
}

func TestRelayCloseIsIdempotentAndAwaited(t *testing.T) {
	sink := audioio.NewMockSink()
	r := NewRelay(sink, nil, nil)
	r.Start(context.Background())

	r.Enqueue([]byte{1})
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	// After Close the goroutine is gone; enqueues are dropped.
	r.Enqueue([]byte{9})
	if r.Pending() != 0 {
		t.Error("enqueue after close must be a no-op")
	}
}
