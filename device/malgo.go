package device

import (
	"fmt"
	"unsafe"

	"github.com/gen2brain/malgo"
	"github.com/golang/glog"
)

// Malgo plays through miniaudio.
type Malgo struct {
	// Backends restricts the miniaudio backends tried, in order. Nil picks
	// the platform default.
	Backends []malgo.Backend
}

type malgoDevice struct {
	ctx  *malgo.AllocatedContext
	dev  *malgo.Device
	name string
}

func (m *Malgo) Open(cfg Config, fn DataFunc) (Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext(m.Backends, malgo.ContextConfig{}, func(message string) {
		glog.V(2).Infof("miniaudio: %s", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.FramesPerBuffer)
	deviceConfig.Alsa.NoMMap = 1

	channels := cfg.Channels
	onData := func(pOutput, _ []byte, frameCount uint32) {
		frames := int(frameCount)
		n := frames * channels
		if n == 0 || len(pOutput) < n*4 {
			return
		}
		out := unsafe.Slice((*float32)(unsafe.Pointer(&pOutput[0])), n)
		invoke(fn, out, frames)
	}

	dev, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to initialize malgo playback device: %w", err)
	}

	return &malgoDevice{ctx: ctx, dev: dev, name: defaultPlaybackName(ctx)}, nil
}

func defaultPlaybackName(ctx *malgo.AllocatedContext) string {
	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return "miniaudio playback"
	}
	for _, info := range infos {
		if info.IsDefault != 0 {
			return info.Name()
		}
	}
	return "miniaudio playback"
}

func (d *malgoDevice) Name() string { return d.name }

func (d *malgoDevice) Start() error {
	if err := d.dev.Start(); err != nil {
		return fmt.Errorf("failed to start malgo device: %w", err)
	}
	return nil
}

func (d *malgoDevice) Stop() error {
	if err := d.dev.Stop(); err != nil {
		return fmt.Errorf("failed to stop malgo device: %w", err)
	}
	return nil
}

func (d *malgoDevice) Close() error {
	d.dev.Uninit()
	err := d.ctx.Uninit()
	d.ctx.Free()
	if err != nil {
		return fmt.Errorf("failed to uninit malgo context: %w", err)
	}
	return nil
}
