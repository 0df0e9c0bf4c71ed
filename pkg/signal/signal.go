// SPDX-License-Identifier: MIT

// Package signal generates and measures 32-bit PCM test signals.
package signal

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// GenerateSineWave returns frames of an interleaved sine tone, the same
// sample on every channel, at the given fraction of full scale.
func GenerateSineWave(frames, channels int, sampleRate, frequency, amplitude float64) []int32 {
	buffer := make([]int32, frames*channels)
	for i := range frames {
		t := float64(i) / sampleRate
		v := int32(math.Sin(2*math.Pi*frequency*t) * math.MaxInt32 * amplitude)
		for c := range channels {
			buffer[i*channels+c] = v
		}
	}
	return buffer
}

// PeakAmplitude returns the largest absolute sample value. The loop is
// branchless so it can run on the audio callback.
func PeakAmplitude(buffer []int32) int32 {
	var peak int32
	for _, sample := range buffer {
		mask := sample >> 31
		amplitude := (sample ^ mask) - mask
		diff := amplitude - peak
		peak += diff &^ (diff >> 31)
	}
	return peak
}

// LevelDB converts an absolute sample value to decibels relative to full
// scale. Silence is -Inf.
func LevelDB(peak int32) float64 {
	if peak <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(float64(peak)/math.MaxInt32)
}

// DominantFrequency returns the strongest frequency of one channel of an
// interleaved buffer, to the resolution of sampleRate/frames. It returns 0
// for silence or when the buffer holds fewer than two frames.
func DominantFrequency(buffer []int32, channels, channel int, sampleRate float64) float64 {
	if channels <= 0 || channel < 0 || channel >= channels {
		return 0
	}
	n := len(buffer) / channels
	if n < 2 {
		return 0
	}
	seq := make([]float64, n)
	for i := range seq {
		seq[i] = float64(buffer[i*channels+channel]) / math.MaxInt32
	}
	window.Hann(seq)

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, seq)
	best, bestMag := 0, 0.0
	for i := 1; i < len(coeffs); i++ {
		if m := cmplx.Abs(coeffs[i]); m > bestMag {
			best, bestMag = i, m
		}
	}
	return fft.Freq(best) * sampleRate
}
