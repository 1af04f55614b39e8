// ABOUTME: Synthesised WAV fixtures for tests
// ABOUTME: Encodes sine tones with go-audio/wav so no binary fixtures are committed
package testaudio

import (
	"bytes"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeSeeker is an in-memory io.WriteSeeker for the wav encoder
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	if end := w.pos + len(p); end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	n := copy(w.buf[w.pos:], p)
	w.pos += n
	return n, nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		w.pos = int(offset)
	case io.SeekCurrent:
		w.pos += int(offset)
	case io.SeekEnd:
		w.pos = len(w.buf) + int(offset)
	}
	return int64(w.pos), nil
}

// Tone returns a 16-bit WAV of a 440Hz sine at half scale
func Tone(t testing.TB, rate, channels int, seconds float64) []byte {
	t.Helper()

	frames := int(float64(rate) * seconds)
	data := make([]int, frames*channels)
	for i := 0; i < frames; i++ {
		v := int(16383 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
		for ch := 0; ch < channels; ch++ {
			data[i*channels+ch] = v
		}
	}

	ws := &writeSeeker{}
	enc := wav.NewEncoder(ws, rate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("failed to encode wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("failed to close wav encoder: %v", err)
	}
	return bytes.Clone(ws.buf)
}

// ToneFile writes Tone to a temporary file and returns its path
func ToneFile(t testing.TB, rate, channels int, seconds float64) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := os.WriteFile(path, Tone(t, rate, channels, seconds), 0o644); err != nil {
		t.Fatalf("failed to write wav: %v", err)
	}
	return path
}
