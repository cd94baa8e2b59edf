package device

import (
	"encoding/binary"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stereo = Config{Format: FormatFloat32, Channels: 2, SampleRate: 48000, FramesPerBuffer: 480}

func ramp(out []float32, frames int) {
	for i := range out {
		out[i] = float32(i)
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, 4, FormatFloat32.BytesPerSample())
	assert.Equal(t, 2, FormatInt16.BytesPerSample())
	assert.Equal(t, 0, Format(0).BytesPerSample())
	assert.Equal(t, "f32", FormatFloat32.String())

	f, err := ParseFormat("float32")
	require.NoError(t, err)
	assert.Equal(t, FormatFloat32, f)
	_, err = ParseFormat("u8")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, stereo.Validate())

	bad := []Config{
		{Format: FormatInt16, Channels: 2, SampleRate: 48000, FramesPerBuffer: 480},
		{Format: FormatFloat32, Channels: 0, SampleRate: 48000, FramesPerBuffer: 480},
		{Format: FormatFloat32, Channels: 2, SampleRate: -1, FramesPerBuffer: 480},
		{Format: FormatFloat32, Channels: 2, SampleRate: 48000, FramesPerBuffer: 0},
	}
	for _, c := range bad {
		assert.ErrorIs(t, c.Validate(), ErrInvalidConfig, "%+v", c)
	}
}

func TestLookup(t *testing.T) {
	assert.Equal(t, []string{"clock", "malgo", "oto", "portaudio"}, Names())

	for _, name := range Names() {
		b, err := Lookup(name)
		require.NoError(t, err)
		assert.NotNil(t, b)
	}

	b, err := Lookup("PortAudio")
	require.NoError(t, err)
	assert.Equal(t, -1, b.(*PortAudio).Device)

	_, err = Lookup("jack")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestManualLifecycle(t *testing.T) {
	m := &Manual{}
	var calls int
	dev, err := m.Open(stereo, func(out []float32, frames int) {
		calls++
		assert.Len(t, out, frames*2)
		ramp(out, frames)
	})
	require.NoError(t, err)
	md := m.Device()
	require.Same(t, dev, Device(md))
	assert.Equal(t, "manual", dev.Name())
	assert.Equal(t, stereo, md.Config())

	assert.Nil(t, md.Tick(480), "not started")
	require.NoError(t, dev.Start())
	assert.True(t, md.Running())

	out := md.Tick(1000)
	require.Len(t, out, 2000)
	assert.Equal(t, float32(1999), out[1999])
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, md.Ticks())

	require.NoError(t, dev.Stop())
	assert.Nil(t, md.Tick(480))
	require.NoError(t, dev.Close())
	assert.True(t, md.Closed())
	assert.Error(t, dev.Start())
}

func TestManualFailures(t *testing.T) {
	boom := errors.New("boom")

	_, err := (&Manual{OpenErr: boom}).Open(stereo, ramp)
	assert.ErrorIs(t, err, boom)

	_, err = (&Manual{}).Open(Config{}, ramp)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	m := &Manual{StartErr: boom, StopErr: boom, CloseErr: boom}
	dev, err := m.Open(stereo, ramp)
	require.NoError(t, err)
	assert.ErrorIs(t, dev.Start(), boom)
	assert.ErrorIs(t, dev.Stop(), boom)
	assert.ErrorIs(t, dev.Close(), boom)
	assert.False(t, m.Device().Closed())
}

func TestClockDevice(t *testing.T) {
	var calls, badSize atomic.Int64
	dev, err := (&Clock{}).Open(Config{Format: FormatFloat32, Channels: 1, SampleRate: 48000, FramesPerBuffer: 48}, func(out []float32, frames int) {
		if len(out) != frames || frames != 48 {
			badSize.Add(1)
		}
		calls.Add(1)
	})
	require.NoError(t, err)
	assert.Equal(t, "software clock", dev.Name())

	assert.Error(t, dev.Stop(), "not started")
	require.NoError(t, dev.Start())
	assert.Error(t, dev.Start(), "already started")

	require.Eventually(t, func() bool { return calls.Load() >= 5 }, 2*time.Second, time.Millisecond)
	require.NoError(t, dev.Stop())

	// Stop is synchronous: no callback may follow it.
	stopped := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load())
	assert.Zero(t, badSize.Load())

	require.NoError(t, dev.Start())
	require.NoError(t, dev.Close())
	assert.Error(t, dev.Start())
}

func TestInvokeRecoversPanic(t *testing.T) {
	out := []float32{1, 2, 3, 4}
	assert.NotPanics(t, func() {
		invoke(func(out []float32, frames int) {
			out[0] = 9
			panic("generator bug")
		}, out, 2)
	})
	assert.Equal(t, []float32{0, 0, 0, 0}, out)
}

func TestOtoReader(t *testing.T) {
	cfg := Config{Format: FormatFloat32, Channels: 2, SampleRate: 48000, FramesPerBuffer: 4}
	var calls int
	r := newOtoReader(cfg, func(out []float32, frames int) {
		calls++
		for i := range out {
			out[i] = 0.25
		}
	})

	// 10 frames plus 3 stray bytes; scratch holds 4 frames per pass.
	p := make([]byte, 10*8+3)
	for i := range p {
		p[i] = 0xff
	}
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, len(p), n)
	assert.Equal(t, 3, calls)

	for i := 0; i < 20; i++ {
		assert.Equal(t, float32(0.25), math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:])))
	}
	assert.Equal(t, []byte{0, 0, 0}, p[80:])
}

func TestMalgoNullBackend(t *testing.T) {
	var calls atomic.Int64
	dev, err := (&Malgo{Backends: []malgo.Backend{malgo.BackendNull}}).Open(stereo, func(out []float32, frames int) {
		clear(out)
		calls.Add(1)
	})
	if err != nil {
		t.Skipf("miniaudio null backend unavailable: %v", err)
	}
	defer dev.Close()

	require.NoError(t, dev.Start())
	require.Eventually(t, func() bool { return calls.Load() > 0 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, dev.Stop())
}

func TestPortAudioDefaultDevice(t *testing.T) {
	var calls atomic.Int64
	dev, err := (&PortAudio{Device: -1}).Open(stereo, func(out []float32, frames int) {
		clear(out)
		calls.Add(1)
	})
	if err != nil {
		t.Skipf("No default output device available: %v", err)
	}
	defer dev.Close()

	assert.NotEmpty(t, dev.Name())
	require.NoError(t, dev.Start())
	require.Eventually(t, func() bool { return calls.Load() > 0 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, dev.Stop())
}
