package vad

import (
	"testing"
	"time"
)

func loudFrame() []int16 {
	f := make([]int16, 320)
	for i := range f {
		f[i] = 8000
	}
	return f
}

func quietFrame() []int16 {
	return make([]int16, 320)
}

func TestRMSDetector(t *testing.T) {
	t.Run("speech starts after consecutive loud frames", func(t *testing.T) {
		d := NewRMSDetector()
		if d.IsSpeech(loudFrame()) {
			t.Error("single loud frame should not trigger speech")
		}
		d.IsSpeech(loudFrame())
		if !d.IsSpeech(loudFrame()) {
			t.Error("three loud frames should trigger speech")
		}
	})

	t.Run("speech survives brief silence", func(t *testing.T) {
		d := NewRMSDetector()
		for i := 0; i < 3; i++ {
			d.IsSpeech(loudFrame())
		}
		for i := 0; i < 5; i++ {
			if !d.IsSpeech(quietFrame()) {
				t.Fatal("brief silence should not end speech")
			}
		}
	})

	t.Run("sustained silence ends speech", func(t *testing.T) {
		d := NewRMSDetector()
		for i := 0; i < 3; i++ {
			d.IsSpeech(loudFrame())
		}
		var speech bool
		for i := 0; i < 30; i++ {
			speech = d.IsSpeech(quietFrame())
		}
		if speech {
			t.Error("30 silent frames should end speech")
		}
	})

	t.Run("reset clears state", func(t *testing.T) {
		d := NewRMSDetector()
		for i := 0; i < 3; i++ {
			d.IsSpeech(loudFrame())
		}
		d.Reset()
		if d.IsSpeech(quietFrame()) {
			t.Error("detector should be silent after reset")
		}
	})
}

func TestIdleClock(t *testing.T) {
	base := time.Now()

	t.Run("fresh clock is not idle", func(t *testing.T) {
		c := NewIdleClock(NewRMSDetector(), 10*time.Second)
		if c.ShouldEndSession() {
			t.Error("fresh clock should not be idle")
		}
	})

	t.Run("idle after timeout without speech", func(t *testing.T) {
		c := NewIdleClock(NewRMSDetector(), 10*time.Second)
		now := base
		c.now = func() time.Time { return now }
		c.lastSpeech = base

		now = base.Add(11 * time.Second)
		if !c.ShouldEndSession() {
			t.Error("clock should be idle after timeout")
		}
	})

	t.Run("speech advances the clock", func(t *testing.T) {
		c := NewIdleClock(NewRMSDetector(), 10*time.Second)
		now := base
		c.now = func() time.Time { return now }
		c.lastSpeech = base

		now = base.Add(9 * time.Second)
		for i := 0; i < 3; i++ {
			c.Update(loudFrame())
		}
		now = base.Add(15 * time.Second)
		if c.ShouldEndSession() {
			t.Error("speech at t=9s should hold the session past t=15s")
		}
	})
}
