package device

import (
	"errors"
	"sync"
	"time"
)

// Clock is a software device: a goroutine invokes the DataFunc once per
// period of FramesPerBuffer frames, paced by a time.Ticker. The generated
// samples go nowhere, which makes it suitable for headless hosts and tests.
type Clock struct{}

func (Clock) Open(cfg Config, fn DataFunc) (Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	period := time.Duration(cfg.FramesPerBuffer) * time.Second / time.Duration(cfg.SampleRate)
	if period <= 0 {
		period = time.Millisecond
	}
	return &clockDevice{
		fn:     fn,
		frames: cfg.FramesPerBuffer,
		out:    make([]float32, cfg.FramesPerBuffer*cfg.Channels),
		period: period,
	}, nil
}

type clockDevice struct {
	fn     DataFunc
	frames int
	out    []float32
	period time.Duration

	mu     sync.Mutex
	stop   chan struct{}
	done   chan struct{}
	closed bool
}

func (d *clockDevice) Name() string { return "software clock" }

func (d *clockDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return errors.New("clock device is closed")
	}
	if d.stop != nil {
		return errors.New("clock device already started")
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.run(d.stop, d.done)
	return nil
}

func (d *clockDevice) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			invoke(d.fn, d.out, d.frames)
		}
	}
}

// Stop returns after the ticker goroutine has exited.
func (d *clockDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stop == nil {
		return errors.New("clock device not started")
	}
	close(d.stop)
	<-d.done
	d.stop, d.done = nil, nil
	return nil
}

func (d *clockDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stop != nil {
		close(d.stop)
		<-d.done
		d.stop, d.done = nil, nil
	}
	d.closed = true
	return nil
}
