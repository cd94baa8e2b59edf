package config

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drgolem/go-tonegen/device"
	"github.com/drgolem/go-tonegen/signal"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	src, err := cfg.Source.Signal()
	require.NoError(t, err)
	assert.Equal(t, signal.Waveform{Shape: signal.ShapeSine, Frequency: 440, Amplitude: 0.5}, src)

	f, err := cfg.DeviceFormat()
	require.NoError(t, err)
	assert.Equal(t, device.FormatFloat32, f)
}

func TestParseFromFile(t *testing.T) {
	path := writeFile(t, "tonegen.toml", `
backend = "clock"
channels = 1
sample_rate = 44100

[source]
kind = "pulsewave"
frequency = 220.5
duty_cycle = 0.25
`)

	cfg, err := ParseFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "clock", cfg.Backend)
	assert.Equal(t, 1, cfg.Channels)
	assert.Equal(t, 44100, cfg.SampleRate)
	// untouched keys keep their defaults
	assert.Equal(t, 1, cfg.BufferSeconds)
	assert.Equal(t, 480, cfg.FramesPerBuffer)
	assert.Equal(t, 0.5, cfg.Source.Amplitude)

	src, err := cfg.Source.Signal()
	require.NoError(t, err)
	assert.Equal(t, signal.PulseWave{Frequency: 220.5, Amplitude: 0.5, DutyCycle: 0.25}, src)
}

func TestParseFromFileEnums(t *testing.T) {
	path := writeFile(t, "noise.toml", `
[source]
kind = "noise"
shape = "Triangle"
color = "brown"
seed = -7
`)

	cfg, err := ParseFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, signal.ShapeTriangle, cfg.Source.Shape)
	assert.Equal(t, signal.NoiseBrownian, cfg.Source.Color)

	src, err := cfg.Source.Signal()
	require.NoError(t, err)
	assert.Equal(t, signal.Noise{Color: signal.NoiseBrownian, Seed: -7, Amplitude: 0.5}, src)
}

func TestParseFromFileErrors(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		_, err := ParseFromFile(filepath.Join(t.TempDir(), "nope.toml"))
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
	t.Run("syntax", func(t *testing.T) {
		_, err := ParseFromFile(writeFile(t, "bad.toml", "channels = "))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config")
	})
	t.Run("bad shape", func(t *testing.T) {
		_, err := ParseFromFile(writeFile(t, "shape.toml", "[source]\nshape = \"wobble\"\n"))
		require.Error(t, err)
	})
	t.Run("unknown key", func(t *testing.T) {
		_, err := ParseFromFile(writeFile(t, "extra.toml", "volume = 11\n"))
		require.ErrorIs(t, err, ErrInvalid)
		assert.Contains(t, err.Error(), "volume")
	})
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(mapLookup(map[string]string{
		"TONEGEN_BACKEND":           "oto",
		"TONEGEN_CHANNELS":          " 4 ",
		"TONEGEN_SAMPLE_RATE":       "96000",
		"TONEGEN_BUFFER_SECONDS":    "3",
		"TONEGEN_FRAMES_PER_BUFFER": "256",
		"TONEGEN_SOURCE":            "noise",
		"TONEGEN_NOISE_COLOR":       "pink",
		"TONEGEN_SEED":              "99",
		"TONEGEN_AMPLITUDE":         "0.25",
		"TONEGEN_SHAPE":             "sawtooth",
		"UNRELATED":                 "x",
	}))
	require.NoError(t, err)

	assert.Equal(t, "oto", cfg.Backend)
	assert.Equal(t, 4, cfg.Channels)
	assert.Equal(t, 96000, cfg.SampleRate)
	assert.Equal(t, 3, cfg.BufferSeconds)
	assert.Equal(t, 256, cfg.FramesPerBuffer)
	assert.Equal(t, signal.ShapeSawtooth, cfg.Source.Shape)
	assert.Equal(t, 440.0, cfg.Source.Frequency)

	src, err := cfg.Source.Signal()
	require.NoError(t, err)
	assert.Equal(t, signal.Noise{Color: signal.NoisePink, Seed: 99, Amplitude: 0.25}, src)
}

func TestApplyEnvErrors(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(mapLookup(map[string]string{
		"TONEGEN_CHANNELS":    "two",
		"TONEGEN_FREQUENCY":   "loud",
		"TONEGEN_SEED":        "99999999999",
		"TONEGEN_NOISE_COLOR": "purple",
	}))
	require.ErrorIs(t, err, ErrInvalid)
	for _, name := range []string{"CHANNELS", "FREQUENCY", "SEED", "NOISE_COLOR"} {
		assert.Contains(t, err.Error(), EnvPrefix+name)
	}
	// failed values leave the field alone
	assert.Equal(t, 2, cfg.Channels)
	assert.Equal(t, 440.0, cfg.Source.Frequency)
}

func TestDotEnvFile(t *testing.T) {
	path := writeFile(t, ".env", "TONEGEN_FREQUENCY=1000\nTONEGEN_SOURCE=pulse\nTONEGEN_DUTY_CYCLE=0.1\n")
	env, err := godotenv.Read(path)
	require.NoError(t, err)

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(mapLookup(env)))

	src, err := cfg.Source.Signal()
	require.NoError(t, err)
	assert.Equal(t, signal.PulseWave{Frequency: 1000, Amplitude: 0.5, DutyCycle: 0.1}, src)
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "tonegen.toml", "backend = \"clock\"\nchannels = 1\n")
	t.Setenv("TONEGEN_CHANNELS", "6")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "clock", cfg.Backend)
	assert.Equal(t, 6, cfg.Channels, "environment overrides the file")

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "malgo", cfg.Backend)
	assert.Equal(t, 6, cfg.Channels)
}

func TestRegisterFlags(t *testing.T) {
	cfg := Default()
	cfg.Channels = 1

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	assert.Equal(t, "1", fs.Lookup("channels").DefValue)

	require.NoError(t, fs.Parse([]string{
		"-backend", "clock",
		"-samplerate", "22050",
		"-shape", "square",
		"-freq", "880",
		"-noise", "pink",
		"-seed", "12",
	}))
	assert.Equal(t, "clock", cfg.Backend)
	assert.Equal(t, 1, cfg.Channels)
	assert.Equal(t, 22050, cfg.SampleRate)
	assert.Equal(t, signal.ShapeSquare, cfg.Source.Shape)
	assert.Equal(t, 880.0, cfg.Source.Frequency)
	assert.Equal(t, signal.NoisePink, cfg.Source.Color)
	assert.Equal(t, int32(12), cfg.Source.Seed)

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg.RegisterFlags(fs)
	assert.Error(t, fs.Parse([]string{"-shape", "wobble"}))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Backend = "alsa-direct" }},
		{"unknown format", func(c *Config) { c.Format = "u8" }},
		{"int16 format", func(c *Config) { c.Format = "s16" }},
		{"zero channels", func(c *Config) { c.Channels = 0 }},
		{"negative rate", func(c *Config) { c.SampleRate = -1 }},
		{"zero buffer", func(c *Config) { c.BufferSeconds = 0 }},
		{"zero period", func(c *Config) { c.FramesPerBuffer = 0 }},
		{"period longer than buffer", func(c *Config) { c.FramesPerBuffer = 96000 }},
		{"unknown kind", func(c *Config) { c.Source.Kind = "chirp" }},
		{"zero frequency", func(c *Config) { c.Source.Frequency = 0 }},
		{"duty above one", func(c *Config) {
			c.Source.Kind = "pulsewave"
			c.Source.DutyCycle = 1.5
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestValidatePeriodFillingBuffer(t *testing.T) {
	cfg := Default()
	cfg.SampleRate = 8000
	cfg.BufferSeconds = 2
	cfg.FramesPerBuffer = 16000
	assert.NoError(t, cfg.Validate())

	cfg.FramesPerBuffer = 16001
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Channels = 0
	cfg.SampleRate = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channels")
	assert.Contains(t, err.Error(), "sample rate")
}

func TestSourceSignalErrors(t *testing.T) {
	_, err := SourceConfig{Kind: "noise", Amplitude: 1}.Signal()
	require.ErrorIs(t, err, ErrInvalid)
	assert.ErrorIs(t, err, signal.ErrInvalidParameter, "zero color is rejected by the signal validator")
}

func TestParseFlags(t *testing.T) {
	path := writeFile(t, "tonegen.toml", "backend = \"clock\"\nchannels = 1\nsample_rate = 8000\n")

	fs := flag.NewFlagSet("tonegen", flag.ContinueOnError)
	duration := fs.Duration("duration", 0, "")
	cfg, err := ParseFlags(fs, []string{"-config", path, "-samplerate", "16000", "-seed", "-3", "-duration", "2s"})
	require.NoError(t, err)

	assert.Equal(t, "clock", cfg.Backend, "from the file")
	assert.Equal(t, 1, cfg.Channels, "from the file")
	assert.Equal(t, 16000, cfg.SampleRate, "flags beat the file")
	assert.Equal(t, int32(-3), cfg.Source.Seed)
	assert.Equal(t, "2s", duration.String())
}

func TestParseFlagsWithoutFile(t *testing.T) {
	t.Setenv("TONEGEN_BACKEND", "oto")

	fs := flag.NewFlagSet("tonegen", flag.ContinueOnError)
	cfg, err := ParseFlags(fs, []string{"-channels", "3"})
	require.NoError(t, err)
	assert.Equal(t, "oto", cfg.Backend)
	assert.Equal(t, 3, cfg.Channels)
}

func TestParseFlagsMissingFile(t *testing.T) {
	fs := flag.NewFlagSet("tonegen", flag.ContinueOnError)
	_, err := ParseFlags(fs, []string{"-config", filepath.Join(t.TempDir(), "missing.toml")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
