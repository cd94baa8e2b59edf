package device

import (
	"errors"
	"fmt"

	"github.com/drgolem/go-tonegen/portaudio"
)

// PortAudio plays through a PortAudio callback stream.
type PortAudio struct {
	// Device is a PortAudio device index, or portaudio.DefaultDevice.
	Device int
	// HighLatency trades latency for robustness against scheduling jitter.
	HighLatency bool
}

type portAudioDevice struct {
	stream *portaudio.OutputStream
}

func (p *PortAudio) Open(cfg Config, fn DataFunc) (Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	stream, err := portaudio.OpenOutputStream(portaudio.OutputParameters{
		Device:          p.Device,
		Channels:        cfg.Channels,
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.FramesPerBuffer,
		HighLatency:     p.HighLatency,
	}, func(out []float32, frames int, _ portaudio.StreamCallbackFlags) portaudio.StreamCallbackResult {
		fn(out, frames)
		return portaudio.Continue
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to open portaudio stream: %w", err), portaudio.Terminate())
	}
	return &portAudioDevice{stream: stream}, nil
}

func (d *portAudioDevice) Name() string {
	info := d.stream.Device()
	if info.HostApi == "" {
		return info.Name
	}
	return fmt.Sprintf("%s (%s)", info.Name, info.HostApi)
}

func (d *portAudioDevice) Start() error {
	if err := d.stream.Start(); err != nil {
		return fmt.Errorf("failed to start portaudio stream: %w", err)
	}
	return nil
}

func (d *portAudioDevice) Stop() error {
	if err := d.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop portaudio stream: %w", err)
	}
	return nil
}

func (d *portAudioDevice) Close() error {
	var errs []error
	if err := d.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close portaudio stream: %w", err))
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("failed to terminate portaudio: %w", err))
	}
	return errors.Join(errs...)
}
