// ABOUTME: Output line wrapper owned by the player
// ABOUTME: Scoped open, start and teardown operations, each a no-op on a closed device
package streamplayer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio/output"
	"go.uber.org/zap"
)

type outlet struct {
	log *zap.Logger

	mu  sync.Mutex
	dev output.Device
}

func newOutlet(dev output.Device, log *zap.Logger) *outlet {
	return &outlet{dev: dev, log: log}
}

func (o *outlet) device() output.Device {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dev
}

// replace swaps in a new device, closing the old one
func (o *outlet) replace(dev output.Device) {
	o.mu.Lock()
	old := o.dev
	o.dev = dev
	o.mu.Unlock()

	if old != nil && old != dev {
		if err := old.Close(); err != nil {
			o.log.Warn("Failed to close previous output device", zap.Error(err))
		}
	}
}

func (o *outlet) open(format audio.Format, bufferSize int) error {
	if err := o.device().Open(format, bufferSize); err != nil {
		if errors.Is(err, output.ErrDeviceUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return nil
}

// startable reports whether the device is open and not running
func (o *outlet) startable() bool {
	dev := o.device()
	return dev.IsOpen() && !dev.IsRunning()
}

func (o *outlet) start() error {
	dev := o.device()
	if !dev.IsOpen() {
		return fmt.Errorf("%w: device not open", ErrDeviceUnavailable)
	}
	if dev.IsRunning() {
		return nil
	}
	return dev.Start()
}

func (o *outlet) write(p []byte) (int, error) {
	return o.device().Write(p)
}

func (o *outlet) flushAndStop() {
	dev := o.device()
	if !dev.IsOpen() {
		return
	}
	dev.Flush()
	if err := dev.Stop(); err != nil {
		o.log.Warn("Failed to stop output device", zap.Error(err))
	}
}

func (o *outlet) drainStopAndClose() {
	dev := o.device()
	if !dev.IsOpen() {
		return
	}
	dev.Drain()
	if err := dev.Stop(); err != nil {
		o.log.Warn("Failed to stop output device", zap.Error(err))
	}
	o.close(dev)
}

func (o *outlet) flushAndClose() {
	dev := o.device()
	if !dev.IsOpen() {
		return
	}
	dev.Flush()
	if err := dev.Stop(); err != nil {
		o.log.Warn("Failed to stop output device", zap.Error(err))
	}
	o.close(dev)
}

func (o *outlet) close(dev output.Device) {
	if err := dev.Close(); err != nil {
		o.log.Warn("Failed to close output device", zap.Error(err))
	}
}

func (o *outlet) isOpen() bool    { return o.device().IsOpen() }
func (o *outlet) isRunning() bool { return o.device().IsRunning() }

func (o *outlet) micros() int64 {
	return o.device().MicrosecondPosition()
}

func (o *outlet) bufferSize() int {
	return o.device().BufferSize()
}

func (o *outlet) controls() output.Controls {
	return o.device().Controls()
}
