package device

import (
	"errors"
	"sync"
)

// Manual is a backend for tests. Its devices never run on their own: the
// caller drives the data callback with ManualDevice.Tick. Setting one of
// the error fields makes the matching operation fail; set them before the
// device is shared with other goroutines.
type Manual struct {
	OpenErr  error
	StartErr error
	StopErr  error
	CloseErr error

	mu   sync.Mutex
	last *ManualDevice
}

func (m *Manual) Open(cfg Config, fn DataFunc) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m.last = &ManualDevice{
		backend: m,
		cfg:     cfg,
		fn:      fn,
		out:     make([]float32, cfg.FramesPerBuffer*cfg.Channels),
	}
	return m.last, nil
}

// Device returns the most recently opened device, or nil.
func (m *Manual) Device() *ManualDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// ManualDevice is a device opened by Manual.
type ManualDevice struct {
	backend *Manual
	cfg     Config
	fn      DataFunc

	mu      sync.Mutex
	out     []float32
	running bool
	closed  bool
	ticks   int
}

var errManualClosed = errors.New("manual device is closed")

func (d *ManualDevice) Name() string { return "manual" }

// Config returns the configuration the device was opened with.
func (d *ManualDevice) Config() Config { return d.cfg }

func (d *ManualDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return errManualClosed
	}
	if err := d.backend.StartErr; err != nil {
		return err
	}
	d.running = true
	return nil
}

func (d *ManualDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return errManualClosed
	}
	if err := d.backend.StopErr; err != nil {
		return err
	}
	d.running = false
	return nil
}

func (d *ManualDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.backend.CloseErr; err != nil {
		return err
	}
	d.running = false
	d.closed = true
	return nil
}

// Tick runs the data callback for frames frames on the calling goroutine
// and returns the device output, which stays valid until the next Tick.
// It returns nil without calling back when the device is not running.
func (d *ManualDevice) Tick(frames int) []float32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running || frames <= 0 {
		return nil
	}
	n := frames * d.cfg.Channels
	if cap(d.out) < n {
		d.out = make([]float32, n)
	}
	out := d.out[:n]
	d.fn(out, frames)
	d.ticks++
	return out
}

// Running reports whether the device is started.
func (d *ManualDevice) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Closed reports whether Close has succeeded.
func (d *ManualDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Ticks returns the number of callbacks delivered.
func (d *ManualDevice) Ticks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ticks
}
