// ABOUTME: Player configuration with defaults
// ABOUTME: Zero values are replaced with defaults when the player is created
package streamplayer

import (
	"time"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio/output"
	"go.uber.org/zap"
)

// Default configuration values
const (
	DefaultChunkSize = 4096
	DefaultPausePoll = 50 * time.Millisecond
	DefaultStopGrace = time.Second
)

// Config holds player configuration
type Config struct {
	// Devices creates output devices (default: the oto backend)
	Devices output.Factory

	// DeviceName selects an output device; empty means the backend default
	DeviceName string

	// ChunkSize is the PCM byte count read and written per loop iteration (default: 4096)
	ChunkSize int

	// PausePoll is how often a paused worker checks for resume (default: 50ms)
	PausePoll time.Duration

	// StopGrace bounds the wait for a previous worker to exit (default: 1s)
	StopGrace time.Duration

	// Speed scales the output sample rate (default: 1)
	Speed float64

	// OutputBufferSize is the requested device buffer in bytes, -1 for the device default
	OutputBufferSize int

	// Logger receives engine logs (default: zap.L())
	Logger *zap.Logger
}

func (c *Config) applyDefaults() error {
	if c.Devices == nil {
		f, err := output.NewFactory(output.BackendOto)
		if err != nil {
			return err
		}
		c.Devices = f
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.PausePoll <= 0 {
		c.PausePoll = DefaultPausePoll
	}
	if c.StopGrace <= 0 {
		c.StopGrace = DefaultStopGrace
	}
	if c.Speed <= 0 {
		c.Speed = 1
	}
	if c.OutputBufferSize == 0 {
		c.OutputBufferSize = -1
	}
	if c.Logger == nil {
		c.Logger = zap.L()
	}
	return nil
}
