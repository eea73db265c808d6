// Package audio turns a live sample stream into a continuously refreshed
// (volume, pitch) pair.
package audio

import (
	"fmt"
	"math"
	"math/cmplx"

	algofft "github.com/cwbudde/algo-fft"

	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
)

// DefaultWindow matches the 2048-point analyser used by the browser client.
const DefaultWindow = 2048

// RMS returns the root-mean-square of a normalized window. Empty windows are 0.
func RMS(window []float32) float64 {
	if len(window) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range window {
		v := float64(s)
		sumSquares += v * v
	}
	rms := math.Sqrt(sumSquares / float64(len(window)))
	if math.IsNaN(rms) || rms < 0 {
		return 0
	}
	return rms
}

// PeakFrequency picks the loudest bin and converts its index to Hz as
// index * nyquist / binCount. No interpolation is applied, so the estimate is
// quantized to the bin width and prone to octave errors on weak input.
func PeakFrequency(magnitudes []float64, sampleRate int) float64 {
	if len(magnitudes) == 0 || sampleRate <= 0 {
		return 0
	}
	maxIndex := 0
	for i := 1; i < len(magnitudes); i++ {
		if magnitudes[i] > magnitudes[maxIndex] {
			maxIndex = i
		}
	}
	nyquist := float64(sampleRate) / 2
	return float64(maxIndex) * nyquist / float64(len(magnitudes))
}

// Analyzer computes AudioSamples for fixed-size windows. It reuses its FFT
// plan and buffers, so a single Analyzer must not be shared across goroutines.
type Analyzer struct {
	size    int
	forward func(dst []complex128, src []float64)
	in      []float64
	spec    []complex128
	mags    []float64
}

// MinWindow is the smallest analysis window NewAnalyzer accepts.
const MinWindow = 32

// NewAnalyzer builds an analyzer for windows of the given size. The size must
// be a power of two of at least MinWindow.
func NewAnalyzer(size int) (*Analyzer, error) {
	if size < MinWindow || size&(size-1) != 0 {
		return nil, fmt.Errorf("audio: window size %d must be a power of two >= 32", size)
	}
	plan, err := algofft.NewPlanReal64(size)
	if err != nil {
		return nil, fmt.Errorf("audio: fft plan: %w", err)
	}
	return &Analyzer{
		size:    size,
		forward: func(dst []complex128, src []float64) {
			plan.Forward(dst, src)
		},
		in:   make([]float64, size),
		spec: make([]complex128, size/2+1),
		mags: make([]float64, size/2),
	}, nil
}

// Size returns the window length in samples.
func (a *Analyzer) Size() int {
	return a.size
}

// Analyze returns the volume and pitch estimate for one window. Windows
// shorter than Size are zero padded; longer windows are truncated.
func (a *Analyzer) Analyze(window []float32, sampleRate int) domain.AudioSample {
	if len(window) > a.size {
		window = window[:a.size]
	}
	for i := range a.in {
		a.in[i] = 0
	}
	for i, s := range window {
		a.in[i] = float64(s)
	}

	a.forward(a.spec, a.in)
	for k := range a.mags {
		a.mags[k] = cmplx.Abs(a.spec[k])
	}

	return domain.AudioSample{
		Volume:  RMS(window),
		PitchHz: PeakFrequency(a.mags, sampleRate),
	}
}

// Magnitudes exposes the last computed magnitude spectrum (binCount = Size/2).
func (a *Analyzer) Magnitudes() []float64 {
	out := make([]float64, len(a.mags))
	copy(out, a.mags)
	return out
}
