// ABOUTME: Malgo-based audio output implementation
// ABOUTME: Uses miniaudio via malgo with device enumeration and a blocking ring buffer
package output

import (
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
	"github.com/gen2brain/malgo"
	"go.uber.org/zap"
)

// malgoFactory shares one miniaudio context between its devices
type malgoFactory struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

func newMalgoFactory() *malgoFactory {
	return &malgoFactory{}
}

func (f *malgoFactory) Name() string { return BackendMalgo }

func (f *malgoFactory) context() (*malgo.AllocatedContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ctx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
			zap.L().Named("malgo").Debug(message)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to initialize malgo context: %v", ErrDeviceUnavailable, err)
		}
		f.ctx = ctx
	}
	return f.ctx, nil
}

func (f *malgoFactory) playbackDevices() ([]malgo.DeviceInfo, error) {
	ctx, err := f.context()
	if err != nil {
		return nil, err
	}
	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate playback devices: %v", ErrDeviceUnavailable, err)
	}
	return infos, nil
}

func (f *malgoFactory) ListDevices() ([]string, error) {
	infos, err := f.playbackDevices()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}

func (f *malgoFactory) Device(name string) (Device, error) {
	ctx, err := f.context()
	if err != nil {
		return nil, err
	}
	s := &malgoSink{ctx: ctx}

	if name != "" {
		infos, err := f.playbackDevices()
		if err != nil {
			return nil, err
		}
		found := false
		for i := range infos {
			if infos[i].Name() == name {
				s.deviceInfo = &infos[i]
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: no playback device named %q", ErrDeviceUnavailable, name)
		}
	} else {
		name = "default"
	}
	return newLine(name, s, true), nil
}

// Close releases the shared miniaudio context
func (f *malgoFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ctx != nil {
		if err := f.ctx.Uninit(); err != nil {
			zap.L().Named("output").Warn("malgo context uninit error", zap.Error(err))
		}
		f.ctx.Free()
		f.ctx = nil
	}
	return nil
}

// malgoSink plays PCM pulled by the miniaudio data callback
type malgoSink struct {
	ctx        *malgo.AllocatedContext
	deviceInfo *malgo.DeviceInfo

	mu     sync.Mutex
	device *malgo.Device
	ring   *RingBuffer
}

func (m *malgoSink) negotiate(want audio.Format) (audio.Format, error) {
	// miniaudio converts rate and channel layout itself
	want.BitDepth = 16
	return want, nil
}

func (m *malgoSink) open(format audio.Format, bufferSize int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if bufferSize <= 0 {
		// 500ms
		bufferSize = format.BytesPerSecond() / 2
	}
	bufferSize -= bufferSize % format.FrameSize()
	ring := NewRingBuffer(bufferSize)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1
	if m.deviceInfo != nil {
		deviceConfig.Playback.DeviceID = m.deviceInfo.ID.Pointer()
	}

	deviceCallbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			ring.Read(pOutputSample[:int(frameCount)*format.FrameSize()])
		},
	}

	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to initialize playback device: %v", ErrDeviceUnavailable, err)
	}

	m.device = device
	m.ring = ring
	return bufferSize, nil
}

func (m *malgoSink) start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return ErrNotOpen
	}
	return m.device.Start()
}

func (m *malgoSink) write(p []byte) (int, error) {
	m.mu.Lock()
	ring := m.ring
	m.mu.Unlock()
	if ring == nil {
		return 0, ErrNotOpen
	}
	return ring.Write(p)
}

func (m *malgoSink) flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ring != nil {
		m.ring.Reset()
	}
}

func (m *malgoSink) drain() {
	m.mu.Lock()
	ring := m.ring
	m.mu.Unlock()
	if ring == nil {
		return
	}
	deadline := time.Now().Add(drainTimeout)
	for ring.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
}

func (m *malgoSink) stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil || !m.device.IsStarted() {
		return nil
	}
	if err := m.device.Stop(); err != nil {
		return fmt.Errorf("device stop: %w", err)
	}
	return nil
}

func (m *malgoSink) close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ring != nil {
		m.ring.Close()
		m.ring = nil
	}
	if m.device != nil {
		if m.device.IsStarted() {
			if err := m.device.Stop(); err != nil {
				zap.L().Named("output").Warn("device stop error", zap.Error(err))
			}
		}
		m.device.Uninit()
		m.device = nil
	}
	return nil
}

func (m *malgoSink) buffered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ring == nil {
		return 0
	}
	return m.ring.Len()
}
