// Package vad provides a pure-Go voice activity detector based on RMS
// energy with hysteresis, plus the idle-session clock built on top of it.
package vad

import (
	"sync"
	"time"

	"github.com/shotaro311/chappy-AI/pkg/audioio"
)

// Detector classifies a PCM frame as speech or silence.
type Detector interface {
	// IsSpeech returns true if the frame is considered speech.
	IsSpeech(samples []int16) bool

	// Reset clears internal state.
	Reset()
}

// RMSDetector uses hysteresis to avoid flickering between speech and
// silence: speech starts after speechFrames consecutive loud frames and
// ends after silenceFrames consecutive quiet ones.
type RMSDetector struct {
	speechThreshold  float64
	silenceThreshold float64
	speechFrames     int
	silenceFrames    int

	inSpeech     bool
	speechCount  int
	silenceCount int
}

// NewRMSDetector returns a detector tuned for 16kHz 20ms frames.
func NewRMSDetector() *RMSDetector {
	return &RMSDetector{
		speechThreshold:  0.015,
		silenceThreshold: 0.008,
		speechFrames:     3,  // ~60ms to start
		silenceFrames:    30, // ~600ms to end
	}
}

func (d *RMSDetector) IsSpeech(samples []int16) bool {
	level := audioio.CalculateRMS(samples)

	if d.inSpeech {
		if level < d.silenceThreshold {
			d.silenceCount++
			d.speechCount = 0
			if d.silenceCount >= d.silenceFrames {
				d.inSpeech = false
				d.silenceCount = 0
			}
		} else {
			d.silenceCount = 0
		}
	} else {
		if level >= d.speechThreshold {
			d.speechCount++
			d.silenceCount = 0
			if d.speechCount >= d.speechFrames {
				d.inSpeech = true
				d.speechCount = 0
			}
		} else {
			d.speechCount = 0
		}
	}

	return d.inSpeech
}

func (d *RMSDetector) Reset() {
	d.inSpeech = false
	d.speechCount = 0
	d.silenceCount = 0
}

// IdleClock tracks the time of the last locally detected speech and decides
// when a session has gone idle.
type IdleClock struct {
	mu         sync.Mutex
	detector   Detector
	lastSpeech time.Time
	timeout    time.Duration
	now        func() time.Time
}

// NewIdleClock wraps a detector with an idle timeout. The clock starts at
// construction time so a session that never hears speech still times out.
func NewIdleClock(detector Detector, timeout time.Duration) *IdleClock {
	return &IdleClock{
		detector:   detector,
		timeout:    timeout,
		lastSpeech: time.Now(),
		now:        time.Now,
	}
}

// Update feeds one frame through the detector and advances the clock on
// speech.
func (c *IdleClock) Update(samples []int16) {
	speech := c.detector.IsSpeech(samples)
	if speech {
		c.mu.Lock()
		c.lastSpeech = c.now()
		c.mu.Unlock()
	}
}

// ShouldEndSession reports whether the idle timeout has elapsed since the
// last detected speech.
func (c *IdleClock) ShouldEndSession() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Sub(c.lastSpeech) > c.timeout
}
