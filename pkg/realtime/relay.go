package realtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/shotaro311/chappy-AI/pkg/audioio"
)

// Relay decouples websocket receipt of audio deltas from playback. The
// receive loop enqueues without blocking; a single playback goroutine
// drains the queue into the sink in FIFO order.
//
// The queue is a mutex/cond pair rather than a channel so that Flush can
// atomically discard everything pending during a barge-in.
type Relay struct {
	sink       audioio.Sink
	log        *slog.Logger
	onActivity func()

	mu     sync.Mutex
	cond   *sync.Cond
	queue  [][]byte
	closed bool

	playing atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRelay creates a relay over the given sink. onActivity, if non-nil, is
// called after every chunk finishes rendering.
func NewRelay(sink audioio.Sink, logger *slog.Logger, onActivity func()) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Relay{
		sink:       sink,
		log:        logger.With("component", "relay"),
		onActivity: onActivity,
		done:       make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Start launches the playback goroutine.
func (r *Relay) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go r.playbackLoop(ctx)
}

// Enqueue appends one PCM chunk. It never blocks and is safe after Close,
// where it becomes a no-op.
func (r *Relay) Enqueue(pcm []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.queue = append(r.queue, pcm)
	r.cond.Signal()
}

// Flush atomically discards every pending chunk. Audio already handed to
// the sink is not interrupted here; the caller clears the sink separately.
// Flushing an empty or single-chunk queue is equivalent to flushing a full
// one.
func (r *Relay) Flush() {
	r.mu.Lock()
	r.queue = nil
	r.mu.Unlock()
}

// Playing reports whether a chunk is currently being rendered.
func (r *Relay) Playing() bool { return r.playing.Load() }

// Pending reports the number of queued chunks not yet rendered.
func (r *Relay) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Idle reports whether nothing is queued and nothing is rendering.
func (r *Relay) Idle() bool {
	r.mu.Lock()
	empty := len(r.queue) == 0
	r.mu.Unlock()
	return empty && !r.playing.Load()
}

// Close stops the playback goroutine, discarding anything still queued,
// and waits for it to exit. Idempotent.
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.queue = nil
	r.cond.Broadcast()
	r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
	return nil
}

func (r *Relay) playbackLoop(ctx context.Context) {
	defer close(r.done)

	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.closed {
			r.cond.Wait()
		}
		if r.closed {
			r.mu.Unlock()
			return
		}
		chunk := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()

		r.playing.Store(true)
		err := r.sink.Write(ctx, chunk)
		r.playing.Store(false)

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Skip the chunk; one device hiccup must not end the session.
			r.log.Error("playback failed, skipping chunk", "error", &PlaybackError{Cause: err})
			continue
		}
		if r.onActivity != nil {
			r.onActivity()
		}
	}
}
