// Package signal implements the sample sources a generator can play:
// periodic waveforms, pulse waves and colored noise.
//
// A Config describes a source and is a closed set of variants (Waveform,
// PulseWave, Noise). NewSource turns a validated Config into a Source that
// owns the running state (phase accumulator, noise generator) and produces
// interleaved float32 PCM frames on demand.
//
// Source.Generate is safe to call from a real-time audio callback: it does
// not allocate, lock, or perform I/O, and runs in time proportional to the
// number of frames requested. A Source is not safe for concurrent use; a
// generator publishes a new Source instead of mutating a running one.
package signal

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParameter is wrapped by every validation error in this package.
var ErrInvalidParameter = errors.New("invalid parameter")

// Kind identifies the variant of a Config.
type Kind int

const (
	KindWaveform Kind = iota + 1
	KindPulseWave
	KindNoise
)

func (k Kind) String() string {
	switch k {
	case KindWaveform:
		return "waveform"
	case KindPulseWave:
		return "pulsewave"
	case KindNoise:
		return "noise"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Config is the parameter set of one source variant. The variant set is
// closed: only Waveform, PulseWave and Noise implement it.
type Config interface {
	// Kind returns the variant.
	Kind() Kind
	// Validate reports an error wrapping ErrInvalidParameter when the
	// parameters violate a precondition.
	Validate() error

	sealed()
}

// Source generates frames for one Config. Construct it with NewSource.
type Source struct {
	cfg      Config
	kind     Kind
	channels int

	osc   oscillator // KindWaveform, KindPulseWave
	noise noiseGen   // KindNoise
}

// NewSource validates cfg and builds fresh generation state for it,
// starting at phase zero (or at the seed, for noise).
func NewSource(cfg Config, sampleRate, channels int) (*Source, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil source config", ErrInvalidParameter)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidParameter, sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("%w: channel count must be positive, got %d", ErrInvalidParameter, channels)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Source{cfg: cfg, kind: cfg.Kind(), channels: channels}
	switch c := cfg.(type) {
	case Waveform:
		s.osc = newWaveformOscillator(c, sampleRate)
	case PulseWave:
		s.osc = newPulseOscillator(c, sampleRate)
	case Noise:
		s.noise = newNoiseGen(c)
	}
	return s, nil
}

// Config returns the configuration the source was built from.
func (s *Source) Config() Config {
	return s.cfg
}

// Kind returns the variant of the source.
func (s *Source) Kind() Kind {
	return s.kind
}

// Channels returns the number of interleaved channels per frame.
func (s *Source) Channels() int {
	return s.channels
}

// Generate writes frames interleaved frames into out and returns the number
// of frames written, which is less than frames only if out is too short.
// Every channel of a frame carries the same sample. Consecutive calls
// continue the signal without a phase discontinuity.
func (s *Source) Generate(out []float32, frames int) int {
	ch := s.channels
	if limit := len(out) / ch; frames > limit {
		frames = limit
	}
	if frames <= 0 {
		return 0
	}

	switch s.kind {
	case KindWaveform, KindPulseWave:
		for i := 0; i < frames; i++ {
			v := float32(s.osc.next())
			frame := out[i*ch : i*ch+ch]
			for c := range frame {
				frame[c] = v
			}
		}
	case KindNoise:
		for i := 0; i < frames; i++ {
			v := float32(s.noise.next())
			frame := out[i*ch : i*ch+ch]
			for c := range frame {
				frame[c] = v
			}
		}
	default:
		clear(out[:frames*ch])
	}
	return frames
}

func validFrequency(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return fmt.Errorf("%w: frequency must be a positive number, got %v", ErrInvalidParameter, f)
	}
	return nil
}

func validAmplitude(a float64) error {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return fmt.Errorf("%w: amplitude must be finite, got %v", ErrInvalidParameter, a)
	}
	return nil
}
