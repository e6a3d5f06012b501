// Package audioio defines the audio capture and playback contracts for
// chappy and the PCM16 helpers shared by the rest of the system.
//
// Capture and playback devices are external collaborators: the package
// ships interfaces plus mock backends, not hardware drivers.
package audioio

import (
	"context"
	"io"
)

// Chunk is one frame of mono PCM16 audio tagged with its sample rate.
type Chunk struct {
	// Samples contains PCM16 audio samples (little-endian on the wire).
	Samples []int16

	// SampleRate is the sample rate of this chunk in Hz.
	SampleRate int
}

// Bytes returns the raw little-endian bytes of the chunk.
func (c *Chunk) Bytes() []byte {
	return SamplesToBytes(c.Samples)
}

// FromBytes populates the chunk from raw PCM16 little-endian bytes.
func (c *Chunk) FromBytes(data []byte, sampleRate int) {
	c.SampleRate = sampleRate
	c.Samples = BytesToSamples(data)
}

// Duration returns the chunk duration in seconds.
func (c *Chunk) Duration() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Source captures audio from a microphone or other input device.
type Source interface {
	// Start begins audio capture.
	Start(ctx context.Context) error

	// Stop halts audio capture. It is safe to call Stop multiple times.
	Stop() error

	// Stream returns a channel that receives audio chunks.
	// The channel is closed when the source is stopped.
	Stream() <-chan Chunk

	// SampleRate returns the capture sample rate in Hz.
	SampleRate() int

	// Name returns the backend name (e.g. "mock").
	Name() string

	// Close releases all resources. After Close the source cannot restart.
	io.Closer
}

// Sink plays audio to a speaker or other output device.
type Sink interface {
	// Start begins audio playback.
	Start(ctx context.Context) error

	// Stop halts audio playback. It is safe to call Stop multiple times.
	Stop() error

	// Write sends a raw PCM16 buffer to the output device.
	// This may block on hardware until the buffer is accepted.
	Write(ctx context.Context, pcm []byte) error

	// Clear discards all buffered audio immediately.
	// Use this to interrupt playback when the user barges in.
	Clear() error

	// Name returns the backend name (e.g. "mock").
	Name() string

	// Close releases all resources. After Close the sink cannot restart.
	io.Closer
}
