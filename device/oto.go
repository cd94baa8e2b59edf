package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Oto plays through an oto player. oto allows one context per process, so
// every Oto device in a process must use the same sample rate and channel
// count.
type Oto struct {
	// BufferSize is oto's internal buffer duration. Zero picks oto's
	// default.
	BufferSize time.Duration
}

var (
	otoMu     sync.Mutex
	otoCtx    *oto.Context
	otoParams [2]int // sample rate, channels
)

func otoContext(sampleRate, channels int, bufferSize time.Duration) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if otoParams != [2]int{sampleRate, channels} {
			return nil, fmt.Errorf("oto context already running at %d Hz, %d channels", otoParams[0], otoParams[1])
		}
		return otoCtx, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   bufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	otoCtx = ctx
	otoParams = [2]int{sampleRate, channels}
	return ctx, nil
}

func (o *Oto) Open(cfg Config, fn DataFunc) (Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, err := otoContext(cfg.SampleRate, cfg.Channels, o.BufferSize)
	if err != nil {
		return nil, err
	}

	r := newOtoReader(cfg, fn)
	return &otoDevice{reader: r, player: ctx.NewPlayer(r)}, nil
}

// otoReader is the io.Reader oto pulls from; each Read is one callback.
type otoReader struct {
	fn       DataFunc
	channels int
	scratch  []float32
}

func newOtoReader(cfg Config, fn DataFunc) *otoReader {
	return &otoReader{
		fn:       fn,
		channels: cfg.Channels,
		scratch:  make([]float32, cfg.FramesPerBuffer*cfg.Channels),
	}
}

// Read fills p with little-endian float32 frames, generating at most one
// scratch buffer per pass. A trailing partial frame is zero filled.
func (r *otoReader) Read(p []byte) (int, error) {
	frameBytes := 4 * r.channels
	maxFrames := len(r.scratch) / r.channels

	off := 0
	for len(p)-off >= frameBytes {
		frames := min((len(p)-off)/frameBytes, maxFrames)
		out := r.scratch[:frames*r.channels]
		invoke(r.fn, out, frames)
		for _, v := range out {
			binary.LittleEndian.PutUint32(p[off:], math.Float32bits(v))
			off += 4
		}
	}
	clear(p[off:])
	return len(p), nil
}

type otoDevice struct {
	reader *otoReader
	player *oto.Player
	closed bool
}

func (d *otoDevice) Name() string { return "oto default output" }

func (d *otoDevice) Start() error {
	if d.closed {
		return errors.New("oto player is closed")
	}
	d.player.Play()
	return nil
}

func (d *otoDevice) Stop() error {
	if d.closed {
		return errors.New("oto player is closed")
	}
	d.player.Pause()
	return nil
}

func (d *otoDevice) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.player.Close(); err != nil {
		return fmt.Errorf("failed to close oto player: %w", err)
	}
	return nil
}
