package signal

import (
	"fmt"
	"math"
	"strings"
)

// Shape selects the periodic function of a Waveform.
type Shape int

const (
	ShapeSine Shape = iota + 1
	ShapeSquare
	ShapeTriangle
	ShapeSawtooth
)

var shapeNames = map[Shape]string{
	ShapeSine:     "sine",
	ShapeSquare:   "square",
	ShapeTriangle: "triangle",
	ShapeSawtooth: "sawtooth",
}

func (s Shape) String() string {
	if name, ok := shapeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

// ParseShape converts a shape name ("sine", "square", "triangle",
// "sawtooth") to a Shape.
func ParseShape(name string) (Shape, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range shapeNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown waveform shape %q", ErrInvalidParameter, name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Shape) MarshalText() ([]byte, error) {
	if _, ok := shapeNames[s]; !ok {
		return nil, fmt.Errorf("%w: unknown waveform shape %d", ErrInvalidParameter, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Shape) UnmarshalText(text []byte) error {
	v, err := ParseShape(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Waveform is a periodic tone.
type Waveform struct {
	Shape     Shape
	Frequency float64 // Hz, > 0
	Amplitude float64 // peak value, conventionally in [0, 1]
}

func (Waveform) Kind() Kind { return KindWaveform }
func (Waveform) sealed()    {}

// Validate checks the shape, frequency and amplitude.
func (w Waveform) Validate() error {
	if _, ok := shapeNames[w.Shape]; !ok {
		return fmt.Errorf("%w: unknown waveform shape %d", ErrInvalidParameter, int(w.Shape))
	}
	if err := validFrequency(w.Frequency); err != nil {
		return err
	}
	return validAmplitude(w.Amplitude)
}

// PulseWave is a rectangular wave that is high for DutyCycle of each period.
type PulseWave struct {
	Frequency float64 // Hz, > 0
	Amplitude float64
	DutyCycle float64 // fraction of the period spent high, in [0, 1]
}

func (PulseWave) Kind() Kind { return KindPulseWave }
func (PulseWave) sealed()    {}

// Validate checks the frequency, amplitude and duty cycle.
func (p PulseWave) Validate() error {
	if err := validFrequency(p.Frequency); err != nil {
		return err
	}
	if err := validAmplitude(p.Amplitude); err != nil {
		return err
	}
	if math.IsNaN(p.DutyCycle) || p.DutyCycle < 0 || p.DutyCycle > 1 {
		return fmt.Errorf("%w: duty cycle must be in [0, 1], got %v", ErrInvalidParameter, p.DutyCycle)
	}
	return nil
}

// oscillator is a phase accumulator shared by waveforms and pulse waves.
// phase is the position within the current period, in [0, 1).
type oscillator struct {
	phase float64
	step  float64
	amp   float64
	shape Shape
	duty  float64
}

func newWaveformOscillator(w Waveform, sampleRate int) oscillator {
	return oscillator{
		step:  w.Frequency / float64(sampleRate),
		amp:   w.Amplitude,
		shape: w.Shape,
		duty:  0.5,
	}
}

func newPulseOscillator(p PulseWave, sampleRate int) oscillator {
	return oscillator{
		step:  p.Frequency / float64(sampleRate),
		amp:   p.Amplitude,
		shape: ShapeSquare,
		duty:  p.DutyCycle,
	}
}

func (o *oscillator) next() float64 {
	t := o.phase
	var v float64
	switch o.shape {
	case ShapeSine:
		v = math.Sin(2 * math.Pi * t)
	case ShapeSquare:
		if t < o.duty {
			v = 1
		} else {
			v = -1
		}
	case ShapeTriangle:
		v = 2*math.Abs(2*(t-0.5)) - 1
	case ShapeSawtooth:
		v = 2 * (t - 0.5)
	}
	_, o.phase = math.Modf(o.phase + o.step)
	return v * o.amp
}
