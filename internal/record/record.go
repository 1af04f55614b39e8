// ABOUTME: WAV recording of the PCM a player writes to its output device
// ABOUTME: A listener that starts a file on open and finalises it when playback stops
package record

import (
	"fmt"
	"os"
	"sync"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/streamplayer"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.uber.org/zap"
)

// Recorder is a streamplayer.Listener that tees progress PCM into a WAV
// file. Each opened source restarts the file.
type Recorder struct {
	path string
	log  *zap.Logger

	mu       sync.Mutex
	file     *os.File
	enc      *wav.Encoder
	buf      *goaudio.IntBuffer
	channels int
	rate     int
	frames   int64
}

// New creates a recorder writing to path
func New(path string, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.L()
	}
	return &Recorder{path: path, log: log.Named("record"), channels: 2, rate: 44100}
}

func (r *Recorder) Opened(origin any, properties map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.finishLocked(); err != nil {
		r.log.Warn("Failed to finish previous recording", zap.Error(err))
	}
	if ch, ok := properties[streamplayer.PropOutputChannels].(int); ok && ch > 0 {
		r.channels = ch
	}
	if rate, ok := properties[streamplayer.PropOutputSampleRate].(int); ok && rate > 0 {
		r.rate = rate
	}
}

func (r *Recorder) Progress(encodedBytes, microseconds int64, pcm []byte, properties map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.enc == nil {
		if err := r.startLocked(); err != nil {
			r.log.Error("Failed to start recording", zap.String("path", r.path), zap.Error(err))
			return
		}
	}

	samples := audio.BytesToInt16(pcm)
	if cap(r.buf.Data) < len(samples) {
		r.buf.Data = make([]int, len(samples))
	}
	r.buf.Data = r.buf.Data[:len(samples)]
	for i, s := range samples {
		r.buf.Data[i] = int(s)
	}
	if err := r.enc.Write(r.buf); err != nil {
		r.log.Error("Failed to write recording", zap.Error(err))
		return
	}
	r.frames += int64(len(samples) / r.channels)
}

func (r *Recorder) StatusUpdated(e streamplayer.Event) {
	switch e.Status {
	case streamplayer.Stopped, streamplayer.Unset:
	default:
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.finishLocked(); err != nil {
		r.log.Error("Failed to finish recording", zap.Error(err))
	}
}

// Frames returns the frames written to the current or last file
func (r *Recorder) Frames() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Close finalises any open recording
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finishLocked()
}

func (r *Recorder) startLocked() error {
	f, err := os.Create(r.path)
	if err != nil {
		return fmt.Errorf("create %s: %w", r.path, err)
	}
	r.file = f
	r.enc = wav.NewEncoder(f, r.rate, 16, r.channels, 1)
	r.buf = &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: r.channels, SampleRate: r.rate},
		SourceBitDepth: 16,
	}
	r.frames = 0
	r.log.Info("Recording started", zap.String("path", r.path), zap.Int("rate", r.rate), zap.Int("channels", r.channels))
	return nil
}

func (r *Recorder) finishLocked() error {
	if r.enc == nil {
		return nil
	}
	err := r.enc.Close()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	r.log.Info("Recording finished", zap.String("path", r.path), zap.Int64("frames", r.frames))
	r.enc = nil
	r.file = nil
	return err
}
