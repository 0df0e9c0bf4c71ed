// SPDX-License-Identifier: MIT
package signal

import (
	"math"
	"testing"
)

func TestGenerateSineWave(t *testing.T) {
	tests := []struct {
		name       string
		frames     int
		channels   int
		sampleRate float64
		frequency  float64
	}{
		{"A4 Mono", 1024, 1, 44100, 440.0},
		{"1kHz Stereo", 960, 2, 48000, 1000.0},
		{"Low Sample Rate", 1024, 1, 8000, 440.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GenerateSineWave(tt.frames, tt.channels, tt.sampleRate, tt.frequency, 0.9)

			if len(result) != tt.frames*tt.channels {
				t.Fatalf("GenerateSineWave() buffer size = %d, want %d", len(result), tt.frames*tt.channels)
			}
			for i := 0; i < len(result); i += tt.channels {
				for c := 1; c < tt.channels; c++ {
					if result[i+c] != result[i] {
						t.Fatalf("channel %d differs at frame %d", c, i/tt.channels)
					}
				}
			}

			// Two zero crossings per cycle, allowing 20% for phase alignment.
			crossCount := 0
			for i := tt.channels; i < len(result); i += tt.channels {
				prev, cur := result[i-tt.channels], result[i]
				if (prev < 0 && cur >= 0) || (prev >= 0 && cur < 0) {
					crossCount++
				}
			}
			expected := float64(tt.frames) / (tt.sampleRate / tt.frequency / 2)
			if math.Abs(float64(crossCount)-expected) > 0.2*expected {
				t.Errorf("zero crossings = %d, expected approximately %.1f", crossCount, expected)
			}
		})
	}
}

func TestPeakAmplitude(t *testing.T) {
	tests := []struct {
		name   string
		buffer []int32
		want   int32
	}{
		{"Empty", nil, 0},
		{"Silence", []int32{0, 0, 0}, 0},
		{"Positive Peak", []int32{1, 5, -3}, 5},
		{"Negative Peak", []int32{1, -7, 3}, 7},
		{"Full Scale", []int32{math.MaxInt32, -math.MaxInt32}, math.MaxInt32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PeakAmplitude(tt.buffer); got != tt.want {
				t.Errorf("PeakAmplitude() = %d, want %d", got, tt.want)
			}
		})
	}

	buf := GenerateSineWave(1024, 2, 48000, 1000, 0.5)
	allocs := testing.AllocsPerRun(100, func() {
		PeakAmplitude(buf)
	})
	if allocs > 0 {
		t.Errorf("PeakAmplitude allocated memory: got %.1f allocs, want 0", allocs)
	}
}

func TestLevelDB(t *testing.T) {
	if got := LevelDB(math.MaxInt32); got != 0 {
		t.Errorf("LevelDB(full scale) = %f, want 0", got)
	}
	if got := LevelDB(math.MaxInt32 / 2); math.Abs(got+6.02) > 0.01 {
		t.Errorf("LevelDB(half scale) = %f, want about -6.02", got)
	}
	if got := LevelDB(0); !math.IsInf(got, -1) {
		t.Errorf("LevelDB(0) = %f, want -Inf", got)
	}
}

func TestDominantFrequency(t *testing.T) {
	tests := []struct {
		name       string
		channels   int
		channel    int
		sampleRate float64
		frequency  float64
	}{
		{"1kHz Mono", 1, 0, 48000, 1000},
		{"440Hz Right Channel", 2, 1, 44100, 440},
		{"Low Rate", 1, 0, 8000, 250},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := GenerateSineWave(4096, tt.channels, tt.sampleRate, tt.frequency, 0.5)
			got := DominantFrequency(buf, tt.channels, tt.channel, tt.sampleRate)
			if resolution := tt.sampleRate / 4096; math.Abs(got-tt.frequency) > resolution {
				t.Errorf("DominantFrequency() = %.1f, want %.1f within %.1f", got, tt.frequency, resolution)
			}
		})
	}

	if got := DominantFrequency(make([]int32, 512), 1, 0, 48000); got != 0 {
		t.Errorf("DominantFrequency(silence) = %f, want 0", got)
	}
	if got := DominantFrequency([]int32{1, 2}, 2, 2, 48000); got != 0 {
		t.Errorf("DominantFrequency(bad channel) = %f, want 0", got)
	}
}

func BenchmarkPeakAmplitude(b *testing.B) {
	buf := GenerateSineWave(1024, 2, 48000, 1000, 0.5)
	b.ReportAllocs()
	for b.Loop() {
		PeakAmplitude(buf)
	}
}
