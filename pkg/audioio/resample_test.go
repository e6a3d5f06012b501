package audioio

import (
	"math"
	"testing"
)

func TestResample(t *testing.T) {
	t.Run("length follows rate ratio", func(t *testing.T) {
		cases := []struct {
			n, from, to int
		}{
			{160, 16000, 24000},
			{320, 16000, 24000},
			{240, 24000, 16000},
			{100, 8000, 24000},
			{7, 16000, 24000},
		}
		for _, c := range cases {
			in := make([]int16, c.n)
			out := Resample(in, c.from, c.to)
			want := int(math.Round(float64(c.n) * float64(c.to) / float64(c.from)))
			if len(out) != want {
				t.Errorf("resample %d @%d->%d: got %d samples, want %d",
					c.n, c.from, c.to, len(out), want)
			}
		}
	})

	t.Run("equal rates are identity", func(t *testing.T) {
		in := []int16{1, -2, 3, -4, 32767, -32768}
		out := Resample(in, 16000, 16000)
		if len(out) != len(in) {
			t.Fatalf("length changed: %d != %d", len(out), len(in))
		}
		for i := range in {
			if out[i] != in[i] {
				t.Errorf("sample %d changed: %d != %d", i, out[i], in[i])
			}
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if out := Resample(nil, 16000, 24000); len(out) != 0 {
			t.Errorf("expected empty output, got %d samples", len(out))
		}
	})

	t.Run("constant signal stays constant", func(t *testing.T) {
		in := make([]int16, 160)
		for i := range in {
			in[i] = 1000
		}
		out := Resample(in, 16000, 24000)
		for i, s := range out {
			if s != 1000 {
				t.Fatalf("sample %d: got %d, want 1000", i, s)
			}
		}
	})
}

func TestByteConversion(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		in := []int16{0, 1, -1, 256, -256, 32767, -32768}
		out := BytesToSamples(SamplesToBytes(in))
		if len(out) != len(in) {
			t.Fatalf("length mismatch: %d != %d", len(out), len(in))
		}
		for i := range in {
			if out[i] != in[i] {
				t.Errorf("sample %d: got %d, want %d", i, out[i], in[i])
			}
		}
	})

	t.Run("little endian layout", func(t *testing.T) {
		data := SamplesToBytes([]int16{0x0102})
		if data[0] != 0x02 || data[1] != 0x01 {
			t.Errorf("expected little-endian bytes, got % x", data)
		}
	})
}

func TestCalculateRMS(t *testing.T) {
	if rms := CalculateRMS(nil); rms != 0 {
		t.Errorf("empty frame should be silent, got %f", rms)
	}
	if rms := CalculateRMS(make([]int16, 160)); rms != 0 {
		t.Errorf("zero frame should be silent, got %f", rms)
	}

	loud := make([]int16, 160)
	for i := range loud {
		loud[i] = 16000
	}
	if rms := CalculateRMS(loud); rms < 0.4 || rms > 0.6 {
		t.Errorf("half-scale frame should be near 0.49, got %f", rms)
	}
}
