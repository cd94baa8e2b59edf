// Package portaudio is a small cgo binding to PortAudio covering what a
// tone generator needs: library lifetime, output device discovery and
// float32 callback-driven output streams.
//
// # Quick Start
//
//	if err := portaudio.Initialize(); err != nil {
//	    return err
//	}
//	defer portaudio.Terminate()
//
//	stream, err := portaudio.OpenOutputStream(portaudio.OutputParameters{
//	    Device:          portaudio.DefaultDevice,
//	    Channels:        2,
//	    SampleRate:      48000,
//	    FramesPerBuffer: 480,
//	}, func(out []float32, frames int, flags portaudio.StreamCallbackFlags) portaudio.StreamCallbackResult {
//	    // fill out with frames*2 interleaved samples
//	    return portaudio.Continue
//	})
//	defer stream.Close()
//	stream.Start()
//
// # Thread Safety
//
// Initialize and Terminate are reference counted and safe for concurrent
// use. An OutputStream must be driven by one goroutine at a time.
//
// # Audio Callback Constraints
//
// Callbacks run on PortAudio's real-time thread, not on a Go goroutine the
// program started. In callbacks:
//   - use pre-allocated buffers only
//   - do not allocate, block, lock or log
//   - return quickly (well under one buffer period)
package portaudio

/*
#cgo pkg-config: portaudio-2.0
#include <portaudio.h>

PaDeviceIndex Pa_GetDefaultOutputDevice(void);
const PaHostErrorInfo* Pa_GetLastHostErrorInfo(void);
*/
import "C"
import (
	"errors"
	"fmt"
	"sync"
)

var (
	// initialized tracks the initialization reference count
	initialized int
	// initMu protects the initialized counter
	initMu sync.Mutex
)

// ErrNoDevice is returned when no default output device is available.
var ErrNoDevice = errors.New("portaudio: no default output device available")

type SampleFormat int

const (
	SampleFmtFloat32 SampleFormat = C.paFloat32
	SampleFmtInt32   SampleFormat = C.paInt32
	SampleFmtInt16   SampleFormat = C.paInt16
)

// SampleSize returns the size in bytes of one sample, or 0 for unknown
// formats.
func SampleSize(format SampleFormat) int {
	switch format {
	case SampleFmtFloat32, SampleFmtInt32:
		return 4
	case SampleFmtInt16:
		return 2
	default:
		return 0
	}
}

// Time is a PortAudio time value in seconds.
type Time float64

type PaError struct {
	ErrorCode int
}

func (e *PaError) Error() string {
	return ErrorText(e.ErrorCode)
}

// UnanticipatedHostError represents a host-specific error that occurred
// within the underlying audio API (ALSA, CoreAudio, WASAPI, etc.).
type UnanticipatedHostError struct {
	Code          int
	Text          string
	HostApiType   int
	HostErrorCode int
	HostErrorText string
}

func (e *UnanticipatedHostError) Error() string {
	if e.HostErrorText != "" {
		return fmt.Sprintf("%s [Host API error %d: %s]", e.Text, e.HostErrorCode, e.HostErrorText)
	}
	return fmt.Sprintf("%s [Host API error %d]", e.Text, e.HostErrorCode)
}

func VersionText() string {
	return C.GoString(C.Pa_GetVersionInfo().versionText)
}

func ErrorText(code int) string {
	return C.GoString(C.Pa_GetErrorText(C.PaError(code)))
}

// newError converts a PortAudio error code, extracting host details for
// unanticipated host errors.
func newError(code C.PaError) error {
	if code == C.paNoError {
		return nil
	}

	if code == C.paUnanticipatedHostError {
		if hostErr := C.Pa_GetLastHostErrorInfo(); hostErr != nil {
			return &UnanticipatedHostError{
				Code:          int(code),
				Text:          C.GoString(C.Pa_GetErrorText(code)),
				HostApiType:   int(hostErr.hostApiType),
				HostErrorCode: int(hostErr.errorCode),
				HostErrorText: C.GoString(hostErr.errorText),
			}
		}
	}

	return &PaError{int(code)}
}

// Initialize initializes the PortAudio library. Calls are reference
// counted; each successful Initialize must be matched by a Terminate.
func Initialize() error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized == 0 {
		if errCode := C.Pa_Initialize(); errCode != C.paNoError {
			return newError(errCode)
		}
	}
	initialized++
	return nil
}

// Terminate releases one Initialize reference and shuts the library down
// when the last one is released.
func Terminate() error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized == 0 {
		return nil
	}

	initialized--
	if initialized == 0 {
		if errCode := C.Pa_Terminate(); errCode != C.paNoError {
			initialized++ // restore count on error
			return newError(errCode)
		}
	}
	return nil
}

type DeviceInfo struct {
	// Index is the PortAudio device index used when opening streams
	Index                    int
	Name                     string
	HostApi                  string
	MaxOutputChannels        int
	DefaultLowOutputLatency  Time
	DefaultHighOutputLatency Time
	DefaultSampleRate        float64
}

func DeviceInfoAt(index int) (*DeviceInfo, error) {
	di := C.Pa_GetDeviceInfo(C.PaDeviceIndex(index))
	if di == nil {
		return nil, fmt.Errorf("portaudio: invalid device index %d", index)
	}

	info := DeviceInfo{
		Index:                    index,
		Name:                     C.GoString(di.name),
		MaxOutputChannels:        int(di.maxOutputChannels),
		DefaultLowOutputLatency:  Time(di.defaultLowOutputLatency),
		DefaultHighOutputLatency: Time(di.defaultHighOutputLatency),
		DefaultSampleRate:        float64(di.defaultSampleRate),
	}
	if hi := C.Pa_GetHostApiInfo(di.hostApi); hi != nil {
		info.HostApi = C.GoString(hi.name)
	}
	return &info, nil
}

// OutputDevices returns every device with at least one output channel.
func OutputDevices() ([]*DeviceInfo, error) {
	count := int(C.Pa_GetDeviceCount())
	if count < 0 {
		return nil, &PaError{count}
	}

	devices := make([]*DeviceInfo, 0, count)
	for i := 0; i < count; i++ {
		info, err := DeviceInfoAt(i)
		if err != nil {
			return nil, err
		}
		if info.MaxOutputChannels > 0 {
			devices = append(devices, info)
		}
	}
	return devices, nil
}

// DefaultOutputDevice returns the host's default output device.
func DefaultOutputDevice() (*DeviceInfo, error) {
	index := int(C.Pa_GetDefaultOutputDevice())
	if index < 0 {
		return nil, ErrNoDevice
	}
	return DeviceInfoAt(index)
}

// IsFormatSupported reports whether device can play channels of format at
// sampleRate.
func IsFormatSupported(device, channels int, format SampleFormat, sampleRate float64) error {
	params := C.PaStreamParameters{
		device:       C.PaDeviceIndex(device),
		channelCount: C.int(channels),
		sampleFormat: C.PaSampleFormat(format),
	}
	if errCode := C.Pa_IsFormatSupported(nil, &params, C.double(sampleRate)); errCode != C.paFormatIsSupported {
		return newError(errCode)
	}
	return nil
}
