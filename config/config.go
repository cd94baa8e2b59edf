// Package config holds the settings of a tone generator host: audio
// backend, stream format, buffer sizing and the initial signal source.
//
// Settings are layered: Default, then an optional TOML file, then TONEGEN_*
// environment variables (a .env file is loaded into the environment
// first), then command-line flags registered with RegisterFlags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/drgolem/go-tonegen/device"
	"github.com/drgolem/go-tonegen/signal"
)

// EnvPrefix prefixes every environment variable the package reads.
const EnvPrefix = "TONEGEN_"

// ErrInvalid wraps every validation and parse error of a Config.
var ErrInvalid = errors.New("config: invalid")

// Config holds the settings of a generator host.
type Config struct {
	Backend         string       `toml:"backend"`
	Format          string       `toml:"format"`
	Channels        int          `toml:"channels"`
	SampleRate      int          `toml:"sample_rate"`
	BufferSeconds   int          `toml:"buffer_seconds"`
	FramesPerBuffer int          `toml:"frames_per_buffer"`
	Source          SourceConfig `toml:"source"`
}

// SourceConfig selects the initial signal source. Kind picks which of the
// remaining fields apply.
type SourceConfig struct {
	Kind      string            `toml:"kind"` // waveform, pulsewave or noise
	Shape     signal.Shape      `toml:"shape"`
	Frequency float64           `toml:"frequency"`
	Amplitude float64           `toml:"amplitude"`
	DutyCycle float64           `toml:"duty_cycle"`
	Color     signal.NoiseColor `toml:"color"`
	Seed      int32             `toml:"seed"`
}

// Default returns a stereo 48 kHz setup on malgo playing a 440 Hz sine.
func Default() Config {
	return Config{
		Backend:         "malgo",
		Format:          "f32",
		Channels:        2,
		SampleRate:      48000,
		BufferSeconds:   1,
		FramesPerBuffer: 480,
		Source: SourceConfig{
			Kind:      signal.KindWaveform.String(),
			Shape:     signal.ShapeSine,
			Frequency: 440,
			Amplitude: 0.5,
			DutyCycle: 0.5,
			Color:     signal.NoiseWhite,
		},
	}
}

// ParseFromFile reads a TOML file on top of Default.
func ParseFromFile(file string) (*Config, error) {
	bs, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file at %q: %w", file, err)
	}

	cfg := Default()
	md, err := toml.Decode(string(bs), &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config from TOML file %q: %w", file, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown keys in %q: %v", ErrInvalid, file, undecoded)
	}
	return &cfg, nil
}

// Load builds a Config from Default, the TOML file (skipped when file is
// empty), a .env file in the working directory if there is one, and the
// environment.
func Load(file string) (*Config, error) {
	cfg := Default()
	if file != "" {
		parsed, err := ParseFromFile(file)
		if err != nil {
			return nil, err
		}
		cfg = *parsed
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from TONEGEN_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := lookup(EnvPrefix + name); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}

	str("BACKEND", &c.Backend)
	str("FORMAT", &c.Format)
	integer("CHANNELS", &c.Channels)
	integer("SAMPLE_RATE", &c.SampleRate)
	integer("BUFFER_SECONDS", &c.BufferSeconds)
	integer("FRAMES_PER_BUFFER", &c.FramesPerBuffer)
	str("SOURCE", &c.Source.Kind)
	float("FREQUENCY", &c.Source.Frequency)
	float("AMPLITUDE", &c.Source.Amplitude)
	float("DUTY_CYCLE", &c.Source.DutyCycle)

	if v, ok := lookup(EnvPrefix + "SHAPE"); ok {
		if err := c.Source.Shape.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("%sSHAPE: %w", EnvPrefix, err))
		}
	}
	if v, ok := lookup(EnvPrefix + "NOISE_COLOR"); ok {
		if err := c.Source.Color.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("%sNOISE_COLOR: %w", EnvPrefix, err))
		}
	}
	if v, ok := lookup(EnvPrefix + "SEED"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSEED: %w", EnvPrefix, err))
		} else {
			c.Source.Seed = int32(n)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// RegisterFlags binds the fields to flags on fs, using the current values
// as defaults. Call it after Load and before fs.Parse.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Backend, "backend", c.Backend, "audio backend: "+strings.Join(device.Names(), ", "))
	fs.StringVar(&c.Format, "format", c.Format, "sample format")
	fs.IntVar(&c.Channels, "channels", c.Channels, "number of channels")
	fs.IntVar(&c.SampleRate, "samplerate", c.SampleRate, "sample rate in Hz")
	fs.IntVar(&c.BufferSeconds, "buffer", c.BufferSeconds, "ring buffer duration in seconds")
	fs.IntVar(&c.FramesPerBuffer, "frames", c.FramesPerBuffer, "device period in frames")
	fs.StringVar(&c.Source.Kind, "source", c.Source.Kind, "signal source: waveform, pulsewave or noise")
	fs.TextVar(&c.Source.Shape, "shape", c.Source.Shape, "waveform shape: sine, square, triangle, sawtooth")
	fs.Float64Var(&c.Source.Frequency, "freq", c.Source.Frequency, "frequency in Hz")
	fs.Float64Var(&c.Source.Amplitude, "amp", c.Source.Amplitude, "amplitude")
	fs.Float64Var(&c.Source.DutyCycle, "duty", c.Source.DutyCycle, "pulse wave duty cycle")
	fs.TextVar(&c.Source.Color, "noise", c.Source.Color, "noise color: white, pink, brownian")
	fs.Var(int32Value{&c.Source.Seed}, "seed", "noise seed, 0 picks the default")
}

// ParseFlags builds the configuration of a command-line host: defaults and
// environment, then the TOML file named by -config, then every flag given in
// args. Host-specific flags must already be registered on fs.
func ParseFlags(fs *flag.FlagSet, args []string) (*Config, error) {
	path := fs.String("config", "", "TOML configuration file")

	cfg, err := Load("")
	if err != nil {
		return nil, err
	}
	cfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *path == "" {
		return cfg, nil
	}

	loaded, err := Load(*path)
	if err != nil {
		return nil, err
	}
	overrides := flag.NewFlagSet(fs.Name(), flag.ContinueOnError)
	loaded.RegisterFlags(overrides)

	var errs []error
	fs.Visit(func(f *flag.Flag) {
		if overrides.Lookup(f.Name) == nil {
			return
		}
		if err := overrides.Set(f.Name, f.Value.String()); err != nil {
			errs = append(errs, fmt.Errorf("-%s: %w", f.Name, err))
		}
	})
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return loaded, nil
}

type int32Value struct{ p *int32 }

func (v int32Value) String() string {
	if v.p == nil {
		return "0"
	}
	return strconv.FormatInt(int64(*v.p), 10)
}

func (v int32Value) Set(s string) error {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return err
	}
	*v.p = int32(n)
	return nil
}

// DeviceFormat parses Format.
func (c Config) DeviceFormat() (device.Format, error) {
	return device.ParseFormat(c.Format)
}

// Signal converts the source settings to a signal.Config.
func (s SourceConfig) Signal() (signal.Config, error) {
	var cfg signal.Config
	switch strings.ToLower(s.Kind) {
	case signal.KindWaveform.String(), "":
		cfg = signal.Waveform{Shape: s.Shape, Frequency: s.Frequency, Amplitude: s.Amplitude}
	case signal.KindPulseWave.String(), "pulse":
		cfg = signal.PulseWave{Frequency: s.Frequency, Amplitude: s.Amplitude, DutyCycle: s.DutyCycle}
	case signal.KindNoise.String():
		cfg = signal.Noise{Color: s.Color, Seed: s.Seed, Amplitude: s.Amplitude}
	default:
		return nil, fmt.Errorf("%w: unknown source kind %q", ErrInvalid, s.Kind)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: source: %w", ErrInvalid, err)
	}
	return cfg, nil
}

// Validate checks everything a generator would reject at Init.
func (c Config) Validate() error {
	var errs []error
	if _, err := device.Lookup(c.Backend); err != nil {
		errs = append(errs, err)
	}
	if f, err := c.DeviceFormat(); err != nil {
		errs = append(errs, err)
	} else if f != device.FormatFloat32 {
		errs = append(errs, fmt.Errorf("unsupported sample format %v", f))
	}
	if c.Channels <= 0 {
		errs = append(errs, fmt.Errorf("channels must be positive, got %d", c.Channels))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate must be positive, got %d", c.SampleRate))
	}
	if c.BufferSeconds <= 0 {
		errs = append(errs, fmt.Errorf("buffer duration must be positive, got %d", c.BufferSeconds))
	}
	if c.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("frames per buffer must be positive, got %d", c.FramesPerBuffer))
	} else if c.SampleRate > 0 && c.BufferSeconds > 0 && (c.FramesPerBuffer-1)/c.BufferSeconds >= c.SampleRate {
		// FramesPerBuffer > SampleRate*BufferSeconds without overflow
		errs = append(errs, fmt.Errorf("frames per buffer %d exceeds the %d s buffer", c.FramesPerBuffer, c.BufferSeconds))
	}
	if _, err := c.Source.Signal(); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}
