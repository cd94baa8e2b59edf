// Package device abstracts the audio output backends a generator can drive.
//
// A Backend opens a Device for a Config and a DataFunc. Once started, the
// device calls the DataFunc from its own thread whenever it needs the next
// period of output, at most one call in flight at a time. Stop and Close
// return only after any in-flight call has finished.
package device

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/golang/glog"

	"github.com/drgolem/go-tonegen/portaudio"
)

var (
	// ErrUnknownBackend is returned by Lookup for an unregistered name.
	ErrUnknownBackend = errors.New("device: unknown backend")
	// ErrInvalidConfig wraps every Config validation error.
	ErrInvalidConfig = errors.New("device: invalid config")
)

// Format is a sample format.
type Format int

const (
	FormatFloat32 Format = iota + 1
	FormatInt16
)

func (f Format) String() string {
	switch f {
	case FormatFloat32:
		return "f32"
	case FormatInt16:
		return "s16"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// BytesPerSample returns the size of one sample, or 0 for unknown formats.
func (f Format) BytesPerSample() int {
	switch f {
	case FormatFloat32:
		return 4
	case FormatInt16:
		return 2
	default:
		return 0
	}
}

// ParseFormat accepts "f32"/"float32" and "s16"/"int16".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "f32", "float32":
		return FormatFloat32, nil
	case "s16", "int16":
		return FormatInt16, nil
	}
	return 0, fmt.Errorf("%w: unknown sample format %q", ErrInvalidConfig, s)
}

// DataFunc fills out with frames interleaved frames. len(out) is
// frames*channels. It runs on the device thread.
type DataFunc func(out []float32, frames int)

type Config struct {
	Format          Format
	Channels        int
	SampleRate      int
	FramesPerBuffer int
}

// Validate checks that every field is positive and the format is
// FormatFloat32, the only format backends produce.
func (c Config) Validate() error {
	if c.Format != FormatFloat32 {
		return fmt.Errorf("%w: unsupported sample format %v", ErrInvalidConfig, c.Format)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("%w: channels must be positive, got %d", ErrInvalidConfig, c.Channels)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidConfig, c.SampleRate)
	}
	if c.FramesPerBuffer <= 0 {
		return fmt.Errorf("%w: frames per buffer must be positive, got %d", ErrInvalidConfig, c.FramesPerBuffer)
	}
	return nil
}

// Backend opens output devices.
type Backend interface {
	Open(cfg Config, fn DataFunc) (Device, error)
}

// Device is an opened output device.
type Device interface {
	// Name is a human readable description of the device.
	Name() string
	Start() error
	Stop() error
	Close() error
}

var backends = map[string]func() Backend{
	"malgo":     func() Backend { return &Malgo{} },
	"portaudio": func() Backend { return &PortAudio{Device: portaudio.DefaultDevice} },
	"oto":       func() Backend { return &Oto{} },
	"clock":     func() Backend { return &Clock{} },
}

// Lookup returns a Backend with default settings by name.
func Lookup(name string) (Backend, error) {
	newBackend, ok := backends[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w %q (have %s)", ErrUnknownBackend, name, strings.Join(Names(), ", "))
	}
	return newBackend(), nil
}

// Names lists the backends Lookup knows, sorted.
func Names() []string {
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// invoke calls fn, silencing out if it panics so a faulty generator cannot
// take the device thread down.
func invoke(fn DataFunc, out []float32, frames int) {
	defer func() {
		if r := recover(); r != nil {
			clear(out)
			glog.Errorf("device: panic in data callback: %v", r)
		}
	}()
	fn(out, frames)
}
