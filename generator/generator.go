// Package generator plays synthetic audio on an output device and keeps a
// copy of everything played in a lock-free ring buffer for a consumer to
// read.
//
// The device callback is the only producer; the goroutine calling
// GetBuffer, GetAvailableFrames or ReadPCM is the only consumer. Lifecycle
// and configuration calls may come from any goroutine and are serialized.
//
//	g := generator.New(&device.Malgo{})
//	if err := g.Init(device.FormatFloat32, 2, 48000, 1); err != nil {
//	    return err
//	}
//	defer g.Destroy()
//	g.SetWaveform(signal.ShapeSine, 440, 0.5)
//	g.Start()
//	n, _ := g.GetBuffer(samples)
package generator

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/golang/glog"

	"github.com/drgolem/go-tonegen/circular"
	"github.com/drgolem/go-tonegen/device"
	"github.com/drgolem/go-tonegen/signal"
)

// DefaultFramesPerBuffer is the device period requested unless
// WithFramesPerBuffer says otherwise: 10 ms at 48 kHz.
const DefaultFramesPerBuffer = 480

// DefaultSource is the source active right after Init.
var DefaultSource signal.Config = signal.Waveform{Shape: signal.ShapeSine, Frequency: 440, Amplitude: 0.5}

// State is a generator lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateStopped
	StateRunning
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures a Generator created by New.
type Option func(*Generator)

// WithFramesPerBuffer sets the device period in frames.
func WithFramesPerBuffer(n int) Option {
	return func(g *Generator) { g.framesPerBuffer = n }
}

// WithDefaultSource replaces DefaultSource for this generator.
func WithDefaultSource(cfg signal.Config) Option {
	return func(g *Generator) { g.defaultSource = cfg }
}

// Generator plays a signal source on an output device and keeps what it
// played for the consumer.
type Generator struct {
	backend         device.Backend
	framesPerBuffer int
	defaultSource   signal.Config

	// mu serializes lifecycle, configuration and consumer calls. The
	// device callback never takes it.
	mu    sync.Mutex
	state State

	// Fixed by Init.
	channels   int
	sampleRate int
	dev        device.Device
	buf        *circular.Buffer[float32]

	source atomic.Pointer[signal.Source]
	stats  counters
}

// New returns an uninitialized generator that will play through backend.
func New(backend device.Backend, opts ...Option) *Generator {
	g := &Generator{
		backend:         backend,
		framesPerBuffer: DefaultFramesPerBuffer,
		defaultSource:   DefaultSource,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Init opens the device and allocates a ring buffer holding
// bufferSeconds of audio. The default source becomes active and the
// generator is left stopped. The device does not call back before Start,
// so the fields the callback reads are set last.
//
// On failure the generator stays uninitialized and holds no resources.
func (g *Generator) Init(format device.Format, channels, sampleRate, bufferSeconds int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateUninitialized {
		return fmt.Errorf("%w: Init called on a %v generator", ErrInvalidState, g.state)
	}
	switch {
	case format != device.FormatFloat32:
		return fmt.Errorf("%w: unsupported sample format %v", ErrInvalidParameter, format)
	case channels <= 0:
		return fmt.Errorf("%w: channels must be positive, got %d", ErrInvalidParameter, channels)
	case sampleRate <= 0:
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidParameter, sampleRate)
	case bufferSeconds <= 0:
		return fmt.Errorf("%w: buffer duration must be positive, got %d s", ErrInvalidParameter, bufferSeconds)
	case g.framesPerBuffer <= 0:
		return fmt.Errorf("%w: frames per buffer must be positive, got %d", ErrInvalidParameter, g.framesPerBuffer)
	}

	capacity := bufferCapacity(format, channels, sampleRate, bufferSeconds)
	if g.framesPerBuffer > capacity/channels {
		return fmt.Errorf("%w: device period of %d frames does not fit a %d s buffer",
			ErrInvalidParameter, g.framesPerBuffer, bufferSeconds)
	}

	src, err := signal.NewSource(g.defaultSource, sampleRate, channels)
	if err != nil {
		return fmt.Errorf("default source: %w", err)
	}

	dev, err := g.backend.Open(device.Config{
		Format:          format,
		Channels:        channels,
		SampleRate:      sampleRate,
		FramesPerBuffer: g.framesPerBuffer,
	}, g.process)
	if err != nil {
		glog.Errorf("generator: open device: %v", err)
		return fmt.Errorf("%w: open device: %w", ErrDevice, err)
	}

	buf, err := circular.New[float32](capacity)
	if err != nil {
		glog.Errorf("generator: allocate %d sample buffer: %v", capacity, err)
		err = fmt.Errorf("%w: %d sample buffer: %w", ErrAllocationFailed, capacity, err)
		if closeErr := dev.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("%w: close device: %w", ErrDevice, closeErr))
		}
		return err
	}

	g.channels, g.sampleRate = channels, sampleRate
	g.dev, g.buf = dev, buf
	g.source.Store(src)
	g.state = StateStopped

	glog.Infof("generator: initialized on %q: %v, %d ch, %d Hz, %d s buffer (%d samples), source %v",
		dev.Name(), format, channels, sampleRate, bufferSeconds, capacity, src.Kind())
	return nil
}

// bufferCapacity returns the ring size in samples: the byte size
// sampleRate*channels*bytesPerSample*seconds divided by the sample size.
// Results beyond circular.MaxCapacity are clamped just past it so that
// allocation fails instead of overflowing.
func bufferCapacity(format device.Format, channels, sampleRate, seconds int) int {
	const limit = circular.MaxCapacity + 1
	bps := format.BytesPerSample()
	bytes := sampleRate
	for _, f := range []int{channels, bps, seconds} {
		if bytes > limit*bps/f {
			return limit
		}
		bytes *= f
	}
	return bytes / bps
}

// SetWaveform makes a periodic waveform the active source.
func (g *Generator) SetWaveform(shape signal.Shape, frequency, amplitude float64) error {
	return g.SetSource(signal.Waveform{Shape: shape, Frequency: frequency, Amplitude: amplitude})
}

// SetPulseWave makes a pulse wave the active source.
func (g *Generator) SetPulseWave(frequency, amplitude, dutyCycle float64) error {
	return g.SetSource(signal.PulseWave{Frequency: frequency, Amplitude: amplitude, DutyCycle: dutyCycle})
}

// SetNoise makes a noise generator the active source.
func (g *Generator) SetNoise(color signal.NoiseColor, seed int32, amplitude float64) error {
	return g.SetSource(signal.Noise{Color: color, Seed: seed, Amplitude: amplitude})
}

// SetSource builds a fresh source for cfg and publishes it to the device
// callback in one atomic step. An invalid cfg leaves the current source
// playing.
func (g *Generator) SetSource(cfg signal.Config) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireInitialized("SetSource"); err != nil {
		return err
	}
	src, err := signal.NewSource(cfg, g.sampleRate, g.channels)
	if err != nil {
		glog.Warningf("generator: rejected source %+v: %v", cfg, err)
		return err
	}
	g.source.Store(src)
	glog.V(1).Infof("generator: source %v %+v", cfg.Kind(), cfg)
	return nil
}

// Start begins playback.
func (g *Generator) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateStopped {
		return fmt.Errorf("%w: Start called on a %v generator", ErrInvalidState, g.state)
	}
	if err := g.dev.Start(); err != nil {
		glog.Errorf("generator: start device: %v", err)
		return fmt.Errorf("%w: start device: %w", ErrDevice, err)
	}
	g.state = StateRunning
	glog.Info("generator: started")
	return nil
}

// Stop halts playback. When it returns no device callback is in flight.
// Unread samples stay in the buffer.
func (g *Generator) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateRunning {
		return fmt.Errorf("%w: Stop called on a %v generator", ErrInvalidState, g.state)
	}
	if err := g.dev.Stop(); err != nil {
		glog.Errorf("generator: stop device: %v", err)
		return fmt.Errorf("%w: stop device: %w", ErrDevice, err)
	}
	g.state = StateStopped
	glog.Info("generator: stopped")
	return nil
}

// Destroy stops the device if it is running and releases the device and
// the buffer. The generator is destroyed even when the backend reports
// errors; they are returned joined.
func (g *Generator) Destroy() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireInitialized("Destroy"); err != nil {
		return err
	}

	var errs []error
	if g.state == StateRunning {
		if err := g.dev.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("%w: stop device: %w", ErrDevice, err))
		}
	}
	if err := g.dev.Close(); err != nil {
		errs = append(errs, fmt.Errorf("%w: close device: %w", ErrDevice, err))
	}

	stats := g.stats.snapshot(g.buf.Overruns())
	g.source.Store(nil)
	g.buf.Close()
	g.dev = nil
	g.state = StateDestroyed

	err := errors.Join(errs...)
	if err != nil {
		glog.Errorf("generator: destroyed with errors: %v", err)
	} else {
		glog.Infof("generator: destroyed (%v)", stats)
	}
	return err
}

// GetBuffer copies up to len(out) samples, rounded down to whole frames,
// and returns the number of samples copied. Zero means nothing was
// available yet.
func (g *Generator) GetBuffer(out []float32) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireInitialized("GetBuffer"); err != nil {
		return 0, err
	}
	want := len(out) - len(out)%g.channels
	n := g.buf.Read(out[:want])
	if n == 0 && want > 0 {
		g.stats.underrunReads.Add(1)
	}
	return n, nil
}

// GetAvailableFrames returns the number of whole frames ready to read.
func (g *Generator) GetAvailableFrames() (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireInitialized("GetAvailableFrames"); err != nil {
		return 0, err
	}
	return g.buf.Available() / g.channels, nil
}

// ReadPCM fills buf.Data like GetBuffer and stamps buf with the
// generator's format.
func (g *Generator) ReadPCM(buf *audio.Float32Buffer) (int, error) {
	if buf == nil {
		return 0, fmt.Errorf("%w: nil buffer", ErrInvalidParameter)
	}
	n, err := g.GetBuffer(buf.Data)
	if err != nil {
		return 0, err
	}
	buf.Format = g.Format()
	buf.SourceBitDepth = 32
	return n, nil
}

// Format returns the stream format, or nil unless the generator is
// initialized and not yet destroyed.
func (g *Generator) Format() *audio.Format {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.requireInitialized("Format") != nil {
		return nil
	}
	return &audio.Format{NumChannels: g.channels, SampleRate: g.sampleRate}
}

// State returns the current lifecycle state.
func (g *Generator) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// ActiveKind returns the kind of the active source, or 0 when there is
// none.
func (g *Generator) ActiveKind() signal.Kind {
	if src := g.source.Load(); src != nil {
		return src.Kind()
	}
	return 0
}

// Stats returns a snapshot of the diagnostics counters.
func (g *Generator) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	var overruns uint64
	if g.buf != nil {
		overruns = g.buf.Overruns()
	}
	return g.stats.snapshot(overruns)
}

func (g *Generator) requireInitialized(op string) error {
	if g.state != StateStopped && g.state != StateRunning {
		return fmt.Errorf("%w: %s called on a %v generator", ErrInvalidState, op, g.state)
	}
	return nil
}
