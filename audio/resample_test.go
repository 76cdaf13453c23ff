package audio

import (
	"math"
	"testing"
)

func TestResampleIdentity(t *testing.T) {
	samples := []int16{1, 2, 3, 4, 5}
	got := Resample(samples, 16000, 16000)
	if len(got) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(got))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d changed: %d != %d", i, got[i], samples[i])
		}
	}
}

func TestResampleEmpty(t *testing.T) {
	got := Resample(nil, 48000, 16000)
	if len(got) != 0 {
		t.Errorf("expected empty output, got %d samples", len(got))
	}
}

func TestResampleOutputLength(t *testing.T) {
	cases := []struct {
		name       string
		inputLen   int
		inputRate  int
		outputRate int
		want       int
	}{
		{"downsample 48k to 16k", 300, 48000, 16000, 100},
		{"downsample 44.1k to 16k", 441, 44100, 16000, 160},
		{"upsample 8k to 16k", 100, 8000, 16000, 200},
		{"tiny input keeps one sample", 1, 48000, 16000, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			samples := make([]int16, tc.inputLen)
			got := Resample(samples, tc.inputRate, tc.outputRate)
			if len(got) != tc.want {
				t.Errorf("expected %d samples, got %d", tc.want, len(got))
			}
		})
	}
}

func TestResampleInterpolates(t *testing.T) {
	// Upsampling 2x the pair (0, 100) puts the midpoint at 50.
	got := Resample([]int16{0, 100}, 8000, 16000)
	if len(got) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(got))
	}
	if got[0] != 0 {
		t.Errorf("expected first sample 0, got %d", got[0])
	}
	if got[1] != 50 {
		t.Errorf("expected interpolated sample 50, got %d", got[1])
	}
}

func TestResampleExtremes(t *testing.T) {
	// Full-scale input must survive the round trip without wrapping.
	samples := []int16{math.MaxInt16, math.MaxInt16, math.MinInt16, math.MinInt16}
	got := Resample(samples, 32000, 16000)
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
	if got[0] != math.MaxInt16 {
		t.Errorf("expected %d, got %d", math.MaxInt16, got[0])
	}
}
