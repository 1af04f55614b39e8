// ABOUTME: Null audio output that discards PCM
// ABOUTME: Optionally paces writes at the real-time rate of the opened format
package output

import (
	"sync"
	"time"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
)

// NullDeviceName is the single device of the null backend
const NullDeviceName = "null"

// NullFactory creates devices that discard audio
type NullFactory struct {
	realtime bool
}

// NewNullFactory returns a null backend. With realtime set, writes block
// for the play time of the data written.
func NewNullFactory(realtime bool) *NullFactory {
	return &NullFactory{realtime: realtime}
}

func (f *NullFactory) Name() string { return BackendNull }

func (f *NullFactory) ListDevices() ([]string, error) {
	return []string{NullDeviceName}, nil
}

func (f *NullFactory) Device(name string) (Device, error) {
	return newLine(NullDeviceName, &nullSink{realtime: f.realtime}, false), nil
}

type nullSink struct {
	realtime bool

	mu     sync.Mutex
	format audio.Format
	closed chan struct{}
}

func (n *nullSink) negotiate(want audio.Format) (audio.Format, error) {
	want.BitDepth = 16
	return want, nil
}

func (n *nullSink) open(format audio.Format, bufferSize int) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.format = format
	n.closed = make(chan struct{})
	if bufferSize <= 0 {
		return -1, nil
	}
	return bufferSize, nil
}

func (n *nullSink) start() error { return nil }

func (n *nullSink) write(p []byte) (int, error) {
	n.mu.Lock()
	format, closed := n.format, n.closed
	n.mu.Unlock()

	if closed == nil {
		return 0, ErrNotOpen
	}
	if !n.realtime {
		return len(p), nil
	}

	timer := time.NewTimer(bytesToDuration(len(p), format))
	defer timer.Stop()
	select {
	case <-timer.C:
		return len(p), nil
	case <-closed:
		return 0, ErrNotOpen
	}
}

func (n *nullSink) flush()      {}
func (n *nullSink) drain()      {}
func (n *nullSink) stop() error { return nil }

func (n *nullSink) close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed != nil {
		close(n.closed)
		n.closed = nil
	}
	return nil
}

func (n *nullSink) buffered() int { return 0 }
