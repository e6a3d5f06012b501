// Package wakeword defines the wake-word contract that gates session
// startup. Real keyword models are external collaborators; the package
// ships the interface and a trivial energy-based stand-in.
package wakeword

import (
	"context"
	"errors"
	"io"

	"github.com/shotaro311/chappy-AI/pkg/audioio"
	"github.com/shotaro311/chappy-AI/pkg/vad"
)

// ErrSourceClosed is returned when the audio source ends before a wake
// event occurs.
var ErrSourceClosed = errors.New("wakeword: audio source closed")

// Listener blocks until a wake event occurs.
type Listener interface {
	// Wait blocks until the wake word is heard or ctx is cancelled.
	Wait(ctx context.Context) error

	io.Closer
}

// EnergyListener treats sustained speech energy as a wake event. It is a
// stand-in for a real keyword model and shares the VAD's hysteresis so
// random noise does not wake the assistant.
type EnergyListener struct {
	source   audioio.Source
	detector vad.Detector
}

// NewEnergyListener creates a listener over the given source.
func NewEnergyListener(source audioio.Source) *EnergyListener {
	return &EnergyListener{
		source:   source,
		detector: vad.NewRMSDetector(),
	}
}

// Wait consumes frames from the source until speech is detected.
func (l *EnergyListener) Wait(ctx context.Context) error {
	l.detector.Reset()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-l.source.Stream():
			if !ok {
				return ErrSourceClosed
			}
			if l.detector.IsSpeech(chunk.Samples) {
				return nil
			}
		}
	}
}

// Close is a no-op; the listener does not own the source.
func (l *EnergyListener) Close() error { return nil }
