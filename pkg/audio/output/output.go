// ABOUTME: Audio output device interface and backend factory
// ABOUTME: Wraps backend sinks with lifecycle state, software controls and position tracking
package output

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
	"go.uber.org/zap"
)

// Backend names accepted by NewFactory
const (
	BackendOto       = "oto"
	BackendMalgo     = "malgo"
	BackendPortAudio = "portaudio"
	BackendNull      = "null"
)

var (
	// ErrDeviceUnavailable means the device could not be opened or started
	ErrDeviceUnavailable = errors.New("output device unavailable")
	// ErrNotOpen is returned by operations that need an open device
	ErrNotOpen = errors.New("output device not open")
	// ErrUnknownBackend is returned by NewFactory for unrecognised names
	ErrUnknownBackend = errors.New("unknown output backend")
)

// Device is an output line for signed 16-bit little-endian PCM
type Device interface {
	// Negotiate returns the format the device will accept for want
	Negotiate(want audio.Format) (audio.Format, error)

	// Open prepares the device. bufferSize is in bytes, <= 0 for the backend default.
	Open(format audio.Format, bufferSize int) error

	Start() error

	// Write blocks until the device accepts p. A concurrent Close unblocks it.
	Write(p []byte) (int, error)

	// Flush discards queued audio
	Flush()

	// Drain waits for queued audio to play out
	Drain()

	Stop() error
	Close() error

	IsOpen() bool
	IsRunning() bool
	Format() audio.Format

	// BufferSize reports the device buffer in bytes, -1 when the backend does not say
	BufferSize() int

	// MicrosecondPosition is the playback position since Open
	MicrosecondPosition() int64

	// Controls returns the controls of the open device; absent controls are nil
	Controls() Controls
}

// Factory enumerates and creates devices for one backend
type Factory interface {
	Name() string
	ListDevices() ([]string, error)

	// Device returns the named device; an empty name selects the default
	Device(name string) (Device, error)
}

// NewFactory returns the factory for a backend name
func NewFactory(backend string) (Factory, error) {
	switch backend {
	case "", BackendOto:
		return otoFactory{}, nil
	case BackendMalgo:
		return newMalgoFactory(), nil
	case BackendPortAudio:
		return newPortAudioFactory()
	case BackendNull:
		return NewNullFactory(false), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// Backends lists the backend names accepted by NewFactory
func Backends() []string {
	return []string{BackendOto, BackendMalgo, BackendPortAudio, BackendNull}
}

// sink is the backend half of a line
type sink interface {
	negotiate(want audio.Format) (audio.Format, error)
	open(format audio.Format, bufferSize int) (int, error)
	start() error
	write(p []byte) (int, error)
	flush()
	drain()
	stop() error
	close() error

	// buffered is the number of accepted bytes not yet played
	buffered() int
}

// drainTimeout bounds how long a line waits for queued audio to play out
const drainTimeout = 2 * time.Second

// line implements Device on top of a sink
type line struct {
	name string
	sink sink
	log  *zap.Logger

	mu         sync.Mutex
	format     audio.Format
	bufferSize int
	controls   Controls

	open    atomic.Bool
	running atomic.Bool
	written atomic.Int64

	scratch []byte
}

// newLine wraps s. Software controls persist across reopens of the line.
func newLine(name string, s sink, software bool) *line {
	l := &line{
		name:       name,
		sink:       s,
		log:        zap.L().Named("output").With(zap.String("device", name)),
		bufferSize: -1,
	}
	if software {
		l.controls = SoftwareControls()
	}
	return l
}

func (l *line) Negotiate(want audio.Format) (audio.Format, error) {
	if !want.Valid() {
		return audio.Format{}, fmt.Errorf("%w: invalid format %s", ErrDeviceUnavailable, want)
	}
	return l.sink.negotiate(want)
}

func (l *line) Open(format audio.Format, bufferSize int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.open.Load() {
		if format == l.format {
			return nil
		}
		l.log.Info("Format change detected, reopening device",
			zap.Stringer("from", l.format), zap.Stringer("to", format))
		l.closeLocked()
	}

	if format.BitDepth != 16 {
		return fmt.Errorf("%w: only 16-bit output is supported, got %d-bit", ErrDeviceUnavailable, format.BitDepth)
	}

	size, err := l.sink.open(format, bufferSize)
	if err != nil {
		return err
	}

	l.format = format
	l.bufferSize = size
	l.written.Store(0)
	l.open.Store(true)

	l.log.Info("Audio output opened", zap.Stringer("format", format), zap.Int("buffer", size))
	return nil
}

func (l *line) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.open.Load() {
		return ErrNotOpen
	}
	if l.running.Load() {
		return nil
	}
	if err := l.sink.start(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	l.running.Store(true)
	return nil
}

func (l *line) Write(p []byte) (int, error) {
	if !l.open.Load() {
		return 0, ErrNotOpen
	}

	out := p
	if l.controls.active() {
		if cap(l.scratch) < len(p) {
			l.scratch = make([]byte, len(p))
		}
		out = l.scratch[:len(p)]
		copy(out, p)
		l.controls.Apply(out, l.format.Channels)
	}

	n, err := l.sink.write(out)
	l.written.Add(int64(n))
	if err != nil && !l.open.Load() {
		return n, ErrNotOpen
	}
	return n, err
}

func (l *line) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.open.Load() {
		return
	}
	l.written.Add(-int64(l.sink.buffered()))
	l.sink.flush()
}

func (l *line) Drain() {
	if !l.open.Load() || !l.running.Load() {
		return
	}
	l.sink.drain()
}

func (l *line) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running.Load() {
		return nil
	}
	l.running.Store(false)
	return l.sink.stop()
}

func (l *line) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.closeLocked()
}

func (l *line) closeLocked() error {
	if !l.open.Load() {
		return nil
	}
	l.open.Store(false)
	l.running.Store(false)
	err := l.sink.close()
	l.log.Debug("Audio output closed")
	return err
}

func (l *line) IsOpen() bool    { return l.open.Load() }
func (l *line) IsRunning() bool { return l.running.Load() }

func (l *line) Format() audio.Format {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.format
}

func (l *line) BufferSize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open.Load() {
		return -1
	}
	return l.bufferSize
}

func (l *line) MicrosecondPosition() int64 {
	if !l.open.Load() {
		return 0
	}
	format := l.Format()
	played := l.written.Load() - int64(l.sink.buffered())
	if played <= 0 || format.FrameSize() == 0 {
		return 0
	}
	frames := played / int64(format.FrameSize())
	return frames * 1_000_000 / int64(format.SampleRate)
}

func (l *line) Controls() Controls {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open.Load() {
		return Controls{}
	}
	return l.controls
}

// bytesToDuration converts a PCM byte count to play time
func bytesToDuration(n int, format audio.Format) time.Duration {
	bps := format.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}
