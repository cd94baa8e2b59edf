package portaudio

/*
#cgo pkg-config: portaudio-2.0
#include <portaudio.h>
#include <stdlib.h>

extern int goOutputBridge(void *output, unsigned long frameCount,
                          unsigned long statusFlags, long streamId);

static int outputCallback(const void *input, void *output,
                          unsigned long frameCount,
                          const PaStreamCallbackTimeInfo* timeInfo,
                          PaStreamCallbackFlags statusFlags,
                          void *userData) {
    // userData points to a malloc'd long containing the stream ID
    long streamId = *(long*)userData;
    return goOutputBridge(output, frameCount, (unsigned long)statusFlags, streamId);
}

static int openOutputStream(void** stream,
                            PaDeviceIndex device,
                            int channels,
                            double suggestedLatency,
                            double sampleRate,
                            unsigned long framesPerBuffer,
                            void *userData) {
    PaStreamParameters out;
    out.device = device;
    out.channelCount = channels;
    out.sampleFormat = paFloat32;
    out.suggestedLatency = suggestedLatency;
    out.hostApiSpecificStreamInfo = NULL;
    return Pa_OpenStream((PaStream**)stream, NULL, &out, sampleRate, framesPerBuffer,
                         paClipOff, outputCallback, userData);
}
*/
import "C"
import (
	"errors"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/golang/glog"
)

// DefaultDevice selects the host's default output device.
const DefaultDevice = -1

// OutputCallback fills out with frames interleaved float32 frames.
// len(out) is frames times the stream's channel count.
//
// The callback runs in a real-time context. Avoid:
//   - Memory allocation/deallocation
//   - File I/O or console output
//   - Mutex locks or context switching
type OutputCallback func(out []float32, frames int, flags StreamCallbackFlags) StreamCallbackResult

// StreamCallbackResult indicates what the callback wants the stream to do
type StreamCallbackResult int

const (
	// Continue tells PortAudio to continue invoking the callback
	Continue StreamCallbackResult = 0
	// Complete tells PortAudio to finish playing remaining buffers then stop
	Complete StreamCallbackResult = 1
	// Abort tells PortAudio to stop immediately, discarding buffered data
	Abort StreamCallbackResult = 2
)

// StreamCallbackFlags provides information about the stream state
type StreamCallbackFlags uint

const (
	// OutputUnderflow indicates output buffer had insufficient data
	OutputUnderflow StreamCallbackFlags = 0x00000004
	// OutputOverflow indicates output data was discarded
	OutputOverflow StreamCallbackFlags = 0x00000008
	// PrimingOutput indicates initial output is being generated
	PrimingOutput StreamCallbackFlags = 0x00000010
)

// OutputParameters describes a float32 output stream.
type OutputParameters struct {
	// Device is a device index, or DefaultDevice.
	Device          int
	Channels        int
	SampleRate      float64
	FramesPerBuffer int
	// HighLatency uses the device's default high output latency instead
	// of the low one.
	HighLatency bool
}

type streamEntry struct {
	callback OutputCallback
	channels int
}

// Streams are looked up by integer ID so no Go pointer is handed to C.
// sync.Map keeps the lookup on the audio thread free of locks.
var (
	streamRegistry sync.Map // int -> *streamEntry
	nextStreamID   atomic.Int64
)

func registerStream(e *streamEntry) int {
	id := int(nextStreamID.Add(1))
	streamRegistry.Store(id, e)
	return id
}

func unregisterStream(id int) {
	streamRegistry.Delete(id)
}

func lookupStream(id int) (*streamEntry, bool) {
	v, ok := streamRegistry.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*streamEntry), true
}

// OutputStream is an open callback-driven float32 output stream.
type OutputStream struct {
	stream unsafe.Pointer
	id     int
	idPtr  *C.long
	device *DeviceInfo
	open   bool
}

// OpenOutputStream opens (but does not start) an output stream that pulls
// samples from fn. Initialize must have been called.
func OpenOutputStream(p OutputParameters, fn OutputCallback) (*OutputStream, error) {
	if fn == nil {
		return nil, errors.New("portaudio: callback cannot be nil")
	}
	if p.Channels <= 0 {
		return nil, errors.New("portaudio: channel count must be positive")
	}
	if p.SampleRate <= 0 {
		return nil, errors.New("portaudio: sample rate must be positive")
	}
	if p.FramesPerBuffer <= 0 {
		return nil, errors.New("portaudio: framesPerBuffer must be positive")
	}

	var (
		dev *DeviceInfo
		err error
	)
	if p.Device == DefaultDevice {
		dev, err = DefaultOutputDevice()
	} else {
		dev, err = DeviceInfoAt(p.Device)
	}
	if err != nil {
		return nil, err
	}

	latency := dev.DefaultLowOutputLatency
	if p.HighLatency {
		latency = dev.DefaultHighOutputLatency
	}

	id := registerStream(&streamEntry{callback: fn, channels: p.Channels})

	// The C callback dereferences this to recover the stream ID. Passing
	// the ID itself as a pointer value would fail checkptr under -race.
	idPtr := (*C.long)(C.malloc(C.size_t(unsafe.Sizeof(C.long(0)))))
	*idPtr = C.long(id)

	s := &OutputStream{id: id, idPtr: idPtr, device: dev}
	errCode := C.openOutputStream(&s.stream,
		C.PaDeviceIndex(dev.Index),
		C.int(p.Channels),
		C.double(latency),
		C.double(p.SampleRate),
		C.ulong(p.FramesPerBuffer),
		unsafe.Pointer(idPtr))
	if errCode != C.paNoError {
		C.free(unsafe.Pointer(idPtr))
		unregisterStream(id)
		return nil, newError(C.PaError(errCode))
	}

	s.open = true
	return s, nil
}

// Device returns the device the stream plays on.
func (s *OutputStream) Device() *DeviceInfo {
	return s.device
}

func (s *OutputStream) Start() error {
	if !s.open {
		return &PaError{int(C.paBadStreamPtr)}
	}
	return newError(C.Pa_StartStream(s.stream))
}

// Stop waits for pending buffers to play and the callback to return.
func (s *OutputStream) Stop() error {
	if !s.open {
		return &PaError{int(C.paBadStreamPtr)}
	}
	return newError(C.Pa_StopStream(s.stream))
}

// IsActive reports whether the stream is currently running its callback.
func (s *OutputStream) IsActive() (bool, error) {
	if !s.open {
		return false, &PaError{int(C.paBadStreamPtr)}
	}
	r := C.Pa_IsStreamActive(s.stream)
	if r < 0 {
		return false, newError(C.PaError(r))
	}
	return r == 1, nil
}

// Close closes the stream and unregisters its callback. Closing a closed
// stream is a no-op.
func (s *OutputStream) Close() error {
	if !s.open {
		return nil
	}
	if errCode := C.Pa_CloseStream(s.stream); errCode != C.paNoError {
		return newError(errCode)
	}
	s.open = false

	unregisterStream(s.id)
	C.free(unsafe.Pointer(s.idPtr))
	s.idPtr = nil
	return nil
}

//export goOutputBridge
func goOutputBridge(output unsafe.Pointer, frameCount C.ulong, statusFlags C.ulong, streamID C.long) (result C.int) {
	e, ok := lookupStream(int(streamID))
	if !ok || output == nil {
		return C.int(Abort)
	}

	frames := int(frameCount)
	out := unsafe.Slice((*float32)(output), frames*e.channels)

	// A panicking callback silences the buffer and aborts the stream.
	defer func() {
		if r := recover(); r != nil {
			clear(out)
			glog.Errorf("portaudio: panic in output callback (stream %d): %v", streamID, r)
			result = C.int(Abort)
		}
	}()

	return C.int(e.callback(out, frames, StreamCallbackFlags(statusFlags)))
}
