package audio

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/dwkim-hr/intervox/pkg/logger"
)

var (
	// ErrPermissionDenied indicates the user or OS refused microphone access
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceNotFound indicates no usable capture device exists
	ErrDeviceNotFound = errors.New("no capture device found")
)

// Device is a handle on an acquired microphone. It owns exactly one Stream;
// releasing the device closes the stream and frees the underlying hardware.
type Device interface {
	// Stream returns the PCM16 stream fed by the device callback
	Stream() *Stream
	// Release stops capture and frees the device. Safe to call repeatedly;
	// only the first call has any effect.
	Release() error
}

// CaptureDevice drives the default system microphone through malgo and feeds
// every callback chunk into its stream
type CaptureDevice struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	stream *Stream

	releaseOnce sync.Once
	releaseErr  error
	logger      *logger.Logger
}

// AcquireDevice opens the default capture device in 16-bit PCM at the given
// format and starts delivering audio. Failures are classified so callers can
// distinguish a denied permission from missing hardware.
func AcquireDevice(sampleRate, channels int, log *logger.Logger) (*CaptureDevice, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}

	d := &CaptureDevice{
		ctx:    mctx,
		stream: NewStream(sampleRate, channels, log),
		logger: log.Named("capture-device"),
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(channels)
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			d.stream.Write(input)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		mctx.Uninit()
		mctx.Free()
		return nil, classifyDeviceError(fmt.Errorf("initializing capture device: %w", err))
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		mctx.Uninit()
		mctx.Free()
		return nil, classifyDeviceError(fmt.Errorf("starting capture device: %w", err))
	}

	d.device = device
	d.logger.Info("Capture device acquired",
		logger.Int("sample_rate", sampleRate),
		logger.Int("channels", channels))
	return d, nil
}

// Stream returns the stream fed by this device
func (d *CaptureDevice) Stream() *Stream {
	return d.stream
}

// Release stops the device, closes the stream, and frees the audio context.
// Repeat calls return the first call's result without touching the hardware
// again.
func (d *CaptureDevice) Release() error {
	d.releaseOnce.Do(func() {
		if d.device != nil {
			d.device.Uninit()
			d.device = nil
		}
		if err := d.stream.Close(); err != nil {
			d.releaseErr = fmt.Errorf("closing stream: %w", err)
		}
		if d.ctx != nil {
			d.ctx.Uninit()
			d.ctx.Free()
			d.ctx = nil
		}
		d.logger.Info("Capture device released")
	})
	return d.releaseErr
}

// classifyDeviceError maps backend error text onto the typed sentinel errors
func classifyDeviceError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "access denied") || strings.Contains(msg, "permission"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case strings.Contains(msg, "no device") || strings.Contains(msg, "device not found") || strings.Contains(msg, "does not exist"):
		return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	default:
		return err
	}
}
