//go:build portaudio

// ABOUTME: PortAudio output implementation
// ABOUTME: Cross-platform audio output using a blocking PortAudio stream
package output

import (
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
	"github.com/gordonklaus/portaudio"
)

// portaudioFramesPerBuffer is the blocking write granularity
const portaudioFramesPerBuffer = 1024

type portAudioFactory struct{}

func newPortAudioFactory() (Factory, error) {
	return portAudioFactory{}, nil
}

func (portAudioFactory) Name() string { return BackendPortAudio }

// withPortAudio runs fn between Initialize and Terminate
func withPortAudio(fn func() error) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: failed to initialize portaudio: %v", ErrDeviceUnavailable, err)
	}
	defer portaudio.Terminate()
	return fn()
}

func (portAudioFactory) ListDevices() ([]string, error) {
	var names []string
	err := withPortAudio(func() error {
		devices, err := portaudio.Devices()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		for _, d := range devices {
			if d.MaxOutputChannels > 0 {
				names = append(names, d.Name)
			}
		}
		return nil
	})
	return names, err
}

func (portAudioFactory) Device(name string) (Device, error) {
	label := name
	if label == "" {
		label = "default"
	}
	return newLine(label, &portAudioSink{name: name}, true), nil
}

// portAudioSink writes fixed-size blocks to a blocking stream
type portAudioSink struct {
	name string

	mu       sync.Mutex
	stream   *portaudio.Stream
	buffer   []int16
	pending  int // samples staged in buffer
	channels int
}

func (p *portAudioSink) negotiate(want audio.Format) (audio.Format, error) {
	want.BitDepth = 16
	return want, nil
}

func (p *portAudioSink) findDevice() (*portaudio.DeviceInfo, error) {
	if p.name == "" {
		return portaudio.DefaultOutputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.Name == p.name && d.MaxOutputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no output device named %q", p.name)
}

func (p *portAudioSink) open(format audio.Format, bufferSize int) (int, error) {
	if err := portaudio.Initialize(); err != nil {
		return 0, fmt.Errorf("%w: failed to initialize portaudio: %v", ErrDeviceUnavailable, err)
	}

	dev, err := p.findDevice()
	if err != nil {
		portaudio.Terminate()
		return 0, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	frames := portaudioFramesPerBuffer
	if bufferSize > 0 {
		frames = bufferSize / format.FrameSize()
	}

	params := portaudio.HighLatencyParameters(nil, dev)
	params.Output.Channels = format.Channels
	params.SampleRate = float64(format.SampleRate)
	params.FramesPerBuffer = frames

	p.mu.Lock()
	defer p.mu.Unlock()

	p.buffer = make([]int16, frames*format.Channels)
	p.pending = 0
	p.channels = format.Channels

	stream, err := portaudio.OpenStream(params, &p.buffer)
	if err != nil {
		portaudio.Terminate()
		return 0, fmt.Errorf("%w: failed to open stream: %v", ErrDeviceUnavailable, err)
	}
	p.stream = stream
	return frames * format.FrameSize(), nil
}

func (p *portAudioSink) start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return ErrNotOpen
	}
	return p.stream.Start()
}

func (p *portAudioSink) write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return 0, ErrNotOpen
	}

	samples := audio.BytesToInt16(b)
	for i := 0; i < len(samples); {
		n := copy(p.buffer[p.pending:], samples[i:])
		p.pending += n
		i += n
		if p.pending == len(p.buffer) {
			if err := p.stream.Write(); err != nil && err != portaudio.OutputUnderflowed {
				return i * 2, fmt.Errorf("stream write: %w", err)
			}
			p.pending = 0
		}
	}
	return len(samples) * 2, nil
}

func (p *portAudioSink) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = 0
}

// drain pads the staged block with silence and writes it
func (p *portAudioSink) drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil || p.pending == 0 {
		return
	}
	for i := p.pending; i < len(p.buffer); i++ {
		p.buffer[i] = 0
	}
	p.stream.Write()
	p.pending = 0
}

func (p *portAudioSink) stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return nil
	}
	return p.stream.Stop()
}

func (p *portAudioSink) close() error {
	// Abort first so a blocked Write returns before the lock is taken
	if s := p.stream; s != nil {
		s.Abort()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return nil
	}
	err := p.stream.Close()
	p.stream = nil
	p.pending = 0
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	return err
}

func (p *portAudioSink) buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending * 2
}
