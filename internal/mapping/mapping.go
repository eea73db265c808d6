// Package mapping turns audio features into drawing parameters. Two profiles
// are supported and selected by name; neither is treated as canonical.
package mapping

import (
	"fmt"
	"math"
	"sort"

	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
)

const (
	ProfileVivid    = "vivid"
	ProfileSpectrum = "spectrum"
)

// Profile maps one audio sample to drawing parameters.
type Profile interface {
	Name() string
	Map(sample domain.AudioSample) domain.DrawingParameters
	WidthRange() (min, max float64)
}

// Vivid cycles hue quickly with pitch and brightens with volume.
//
//	width = clamp(volume*200, 5, 40)
//	hue   = (pitch*10) mod 360
//	sat   = clamp(50+volume*50, 0, 100)
//	light = clamp(30+volume*30, 0, 80)
type Vivid struct{}

func (Vivid) Name() string { return ProfileVivid }

func (Vivid) WidthRange() (float64, float64) { return 5, 40 }

func (p Vivid) Map(s domain.AudioSample) domain.DrawingParameters {
	v, pitch := sanitize(s)
	lo, hi := p.WidthRange()
	hue := math.Mod(pitch*10, 360)
	return domain.DrawingParameters{
		StrokeWidthPx: clamp(v*200, lo, hi),
		Color: domain.HSL{
			Hue:        hue,
			Saturation: clamp(50+v*50, 0, 100),
			Lightness:  clamp(30+v*30, 0, 80),
		},
	}
}

// Spectrum spreads the 80–1100 Hz voice range linearly over the color wheel.
// The hue is deliberately left unclamped; HSL consumers wrap it.
//
//	width = clamp(volume*10, 1, 50)
//	hue   = (pitch-80)/(1100-80)*360
type Spectrum struct{}

const (
	spectrumLowHz  = 80
	spectrumHighHz = 1100
)

func (Spectrum) Name() string { return ProfileSpectrum }

func (Spectrum) WidthRange() (float64, float64) { return 1, 50 }

func (p Spectrum) Map(s domain.AudioSample) domain.DrawingParameters {
	v, pitch := sanitize(s)
	lo, hi := p.WidthRange()
	return domain.DrawingParameters{
		StrokeWidthPx: clamp(v*10, lo, hi),
		Color: domain.HSL{
			Hue:        (pitch - spectrumLowHz) / (spectrumHighHz - spectrumLowHz) * 360,
			Saturation: 70,
			Lightness:  50,
		},
	}
}

// DefaultFallback is used while the microphone is off: a narrow amber line.
var DefaultFallback = domain.DrawingParameters{
	StrokeWidthPx: 3,
	Color:         domain.HSL{Hue: 30, Saturation: 70, Lightness: 50},
}

// Mapper applies a profile when audio is live and a fixed fallback otherwise.
// It is a value type: swap profiles by replacing the Mapper.
type Mapper struct {
	Profile  Profile
	Fallback domain.DrawingParameters
}

// New returns a Mapper for the named profile with DefaultFallback.
func New(profile string) (Mapper, error) {
	p, err := Lookup(profile)
	if err != nil {
		return Mapper{}, err
	}
	return Mapper{Profile: p, Fallback: DefaultFallback}, nil
}

// Parameters maps sample when active is true, otherwise returns the fallback.
func (m Mapper) Parameters(sample domain.AudioSample, active bool) domain.DrawingParameters {
	if !active || m.Profile == nil {
		return m.Fallback
	}
	return m.Profile.Map(sample)
}

var registry = map[string]Profile{
	ProfileVivid:    Vivid{},
	ProfileSpectrum: Spectrum{},
}

// Lookup returns the profile registered under name.
func Lookup(name string) (Profile, error) {
	p, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("mapping: %q: %w", name, domain.ErrUnknownProfile)
	}
	return p, nil
}

// Names lists the registered profiles in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sanitize forces NaN, infinite and negative readings to zero so the width
// clamp always holds.
func sanitize(s domain.AudioSample) (float64, float64) {
	v, p := s.Volume, s.PitchHz
	if math.IsNaN(v) || v < 0 {
		v = 0
	}
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		p = 0
	}
	return v, p
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
