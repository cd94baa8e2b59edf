package signal

import (
	"fmt"
	"math/bits"
	"strings"
)

// NoiseColor selects the spectral shape of a Noise source.
type NoiseColor int

const (
	NoiseWhite NoiseColor = iota + 1
	NoisePink
	NoiseBrownian
)

var noiseNames = map[NoiseColor]string{
	NoiseWhite:    "white",
	NoisePink:     "pink",
	NoiseBrownian: "brownian",
}

func (c NoiseColor) String() string {
	if name, ok := noiseNames[c]; ok {
		return name
	}
	return fmt.Sprintf("NoiseColor(%d)", int(c))
}

// ParseNoiseColor converts "white", "pink" or "brownian" (also "brown") to a
// NoiseColor.
func ParseNoiseColor(name string) (NoiseColor, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "brown" {
		return NoiseBrownian, nil
	}
	for c, n := range noiseNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown noise color %q", ErrInvalidParameter, name)
}

// MarshalText implements encoding.TextMarshaler.
func (c NoiseColor) MarshalText() ([]byte, error) {
	if _, ok := noiseNames[c]; !ok {
		return nil, fmt.Errorf("%w: unknown noise color %d", ErrInvalidParameter, int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *NoiseColor) UnmarshalText(text []byte) error {
	v, err := ParseNoiseColor(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Noise is a pseudo-random signal. Two sources built from the same Noise
// produce identical output.
type Noise struct {
	Color     NoiseColor
	Seed      int32 // 0 selects DefaultSeed
	Amplitude float64
}

func (Noise) Kind() Kind { return KindNoise }
func (Noise) sealed()    {}

// Validate checks the color and amplitude. Every seed is valid.
func (n Noise) Validate() error {
	if _, ok := noiseNames[n.Color]; !ok {
		return fmt.Errorf("%w: unknown noise color %d", ErrInvalidParameter, int(n.Color))
	}
	return validAmplitude(n.Amplitude)
}

// DefaultSeed replaces a zero seed, which would lock the generator at zero.
const DefaultSeed = 4321

// Park-Miller minimal standard generator.
const (
	lcgMultiplier = 48271
	lcgModulus    = 2147483647
)

const (
	pinkRows = 16
	pinkGain = 1.0 / 10

	brownStep  = 0.0625
	brownDecay = 1.005
)

type noiseGen struct {
	color NoiseColor
	amp   float64
	state int64

	pinkBins    [pinkRows]float64
	pinkSum     float64
	pinkCounter uint32

	brown float64
}

func newNoiseGen(n Noise) noiseGen {
	seed := int64(n.Seed)
	if seed < 0 {
		seed = -seed
	}
	seed %= lcgModulus
	if seed == 0 {
		seed = DefaultSeed
	}
	return noiseGen{color: n.Color, amp: n.Amplitude, state: seed}
}

// white returns a uniformly distributed value in [-1, 1).
func (g *noiseGen) white() float64 {
	g.state = (lcgMultiplier * g.state) % lcgModulus
	return 2*float64(g.state)/lcgModulus - 1
}

// pink uses the Voss-McCartney algorithm: row k is refreshed every 2^k
// samples, selected by the trailing zeros of a running counter.
func (g *noiseGen) pink() float64 {
	g.pinkCounter++
	if k := bits.TrailingZeros32(g.pinkCounter); k < pinkRows {
		v := g.white()
		g.pinkSum += v - g.pinkBins[k]
		g.pinkBins[k] = v
	}
	return clamp((g.pinkSum + g.white()) * pinkGain)
}

// brownian is leaky integrated white noise.
func (g *noiseGen) brownian() float64 {
	g.brown = clamp((g.brown + g.white()*brownStep) / brownDecay)
	return g.brown
}

func (g *noiseGen) next() float64 {
	var v float64
	switch g.color {
	case NoiseWhite:
		v = g.white()
	case NoisePink:
		v = g.pink()
	case NoiseBrownian:
		v = g.brownian()
	}
	return v * g.amp
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
