// ABOUTME: Oto-based audio output implementation
// ABOUTME: Streams PCM through a pipe into a persistent oto player with software controls
package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"
)

// otoDefaultDevice is the only device name oto exposes
const otoDefaultDevice = "default"

// oto allows one context per process; it is created on first open and kept.
var otoShared struct {
	mu     sync.Mutex
	ctx    *oto.Context
	format audio.Format
}

func otoContext(format audio.Format, bufferSize int) (*oto.Context, error) {
	otoShared.mu.Lock()
	defer otoShared.mu.Unlock()

	if otoShared.ctx != nil {
		if otoShared.format != format {
			return nil, fmt.Errorf("%w: oto context is fixed at %s, cannot open %s",
				ErrDeviceUnavailable, otoShared.format, format)
		}
		if err := otoShared.ctx.Resume(); err != nil {
			return nil, fmt.Errorf("%w: resume oto context: %v", ErrDeviceUnavailable, err)
		}
		return otoShared.ctx, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	}
	if bufferSize > 0 {
		op.BufferSize = bytesToDuration(bufferSize, format)
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create oto context: %v", ErrDeviceUnavailable, err)
	}
	<-readyChan

	otoShared.ctx = ctx
	otoShared.format = format
	zap.L().Named("output").Info("Oto context initialized", zap.Stringer("format", format))
	return ctx, nil
}

// otoFormat is the format of the live context, if any
func otoFormat() (audio.Format, bool) {
	otoShared.mu.Lock()
	defer otoShared.mu.Unlock()
	return otoShared.format, otoShared.ctx != nil
}

type otoFactory struct{}

func (otoFactory) Name() string { return BackendOto }

func (otoFactory) ListDevices() ([]string, error) {
	return []string{otoDefaultDevice}, nil
}

func (otoFactory) Device(name string) (Device, error) {
	if name != "" && name != otoDefaultDevice {
		return nil, fmt.Errorf("%w: oto has no device %q", ErrDeviceUnavailable, name)
	}
	return newLine(otoDefaultDevice, &otoSink{}, true), nil
}

// otoSink feeds a persistent player from a pipe
type otoSink struct {
	mu         sync.Mutex
	ctx        *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	bufferSize int
	playing    bool
}

func (o *otoSink) negotiate(want audio.Format) (audio.Format, error) {
	if have, ok := otoFormat(); ok {
		return have, nil
	}
	want.BitDepth = 16
	return want, nil
}

func (o *otoSink) open(format audio.Format, bufferSize int) (int, error) {
	ctx, err := otoContext(format, bufferSize)
	if err != nil {
		return 0, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.ctx = ctx
	o.bufferSize = bufferSize
	o.newPlayerLocked()

	if bufferSize <= 0 {
		return -1, nil
	}
	return bufferSize, nil
}

// newPlayerLocked creates the pipe and the player reading from it
func (o *otoSink) newPlayerLocked() {
	o.pipeReader, o.pipeWriter = io.Pipe()
	o.player = o.ctx.NewPlayer(o.pipeReader)
	if o.bufferSize > 0 {
		o.player.SetBufferSize(o.bufferSize)
	}
}

func (o *otoSink) start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil {
		return ErrNotOpen
	}
	o.player.Play()
	o.playing = true
	return nil
}

func (o *otoSink) write(p []byte) (int, error) {
	o.mu.Lock()
	pw := o.pipeWriter
	o.mu.Unlock()
	if pw == nil {
		return 0, ErrNotOpen
	}

	n, err := pw.Write(p)
	if err != nil {
		return n, fmt.Errorf("pipe write failed: %w", err)
	}
	return n, nil
}

// flush drops whatever the player has buffered by replacing it
func (o *otoSink) flush() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil {
		return
	}
	o.closePlayerLocked()
	o.newPlayerLocked()
	if o.playing {
		o.player.Play()
	}
}

func (o *otoSink) drain() {
	deadline := time.Now().Add(drainTimeout)
	for time.Now().Before(deadline) {
		o.mu.Lock()
		p := o.player
		o.mu.Unlock()
		if p == nil || p.BufferedSize() == 0 || !p.IsPlaying() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (o *otoSink) stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player != nil {
		o.player.Pause()
	}
	o.playing = false
	return nil
}

func (o *otoSink) close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.closePlayerLocked()
	o.playing = false
	if o.ctx != nil {
		if err := o.ctx.Suspend(); err != nil {
			zap.L().Named("output").Warn("Oto suspend failed", zap.Error(err))
		}
		o.ctx = nil
	}
	return nil
}

func (o *otoSink) closePlayerLocked() {
	if o.pipeWriter != nil {
		o.pipeWriter.CloseWithError(ErrNotOpen)
		o.pipeWriter = nil
	}
	if o.player != nil {
		o.player.Pause()
		o.player.Close()
		o.player = nil
	}
	if o.pipeReader != nil {
		o.pipeReader.Close()
		o.pipeReader = nil
	}
}

func (o *otoSink) buffered() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil {
		return 0
	}
	return o.player.BufferedSize()
}
