// ABOUTME: Tests for file, URL and stream sources
// ABOUTME: Uses synthesised WAV data served from disk, httptest and memory
package source

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/Resonate-Protocol/streamplayer-go/internal/testaudio"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
)

func TestNewDispatch(t *testing.T) {
	u, _ := url.Parse("https://radio.example/live.mp3")

	tests := []struct {
		name    string
		origin  any
		kind    Kind
		wantErr bool
	}{
		{"path", "/music/track.flac", File, false},
		{"file url", "file:///music/track.flac", File, false},
		{"http url", "http://radio.example/live.mp3", URL, false},
		{"url value", u, URL, false},
		{"reader", bytes.NewReader(nil), Stream, false},
		{"empty string", "", 0, true},
		{"ftp url", &url.URL{Scheme: "ftp", Host: "x"}, 0, true},
		{"number", 42, 0, true},
		{"nil", nil, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.origin)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupported) {
					t.Fatalf("expected ErrUnsupported, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s.Kind() != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, s.Kind())
			}
			if s.IsByteSeekable() != (tt.kind == File) {
				t.Errorf("expected byte-seekable only for files")
			}
		})
	}
}

func TestFileURLPath(t *testing.T) {
	s, err := New("file:///music/track.flac")
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	if p := s.(*FileSource).Path(); p != "/music/track.flac" {
		t.Errorf("expected /music/track.flac, got %s", p)
	}
}

func TestFileSource(t *testing.T) {
	path := testaudio.ToneFile(t, 8000, 2, 2.5)
	s, err := New(path)
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}

	ff, err := s.FileFormat()
	if err != nil {
		t.Fatalf("file format failed: %v", err)
	}
	info, _ := os.Stat(path)
	if ff.Type != audio.CodecWAV || ff.ByteLength != info.Size() {
		t.Errorf("unexpected file format %+v", ff)
	}
	if s.DurationSeconds() != 2 || s.DurationMillis() != 2500 {
		t.Errorf("expected 2s / 2500ms, got %d / %d", s.DurationSeconds(), s.DurationMillis())
	}

	for i := 0; i < 2; i++ {
		st, err := s.DecodedStream()
		if err != nil {
			t.Fatalf("decoded stream %d failed: %v", i, err)
		}
		pcm, err := io.ReadAll(st)
		st.Close()
		if err != nil {
			t.Fatalf("read %d failed: %v", i, err)
		}
		if len(pcm) != 20000*4 {
			t.Errorf("expected %d bytes on pass %d, got %d", 20000*4, i, len(pcm))
		}
	}
}

func TestFileSourceMissing(t *testing.T) {
	s := NewFile("/does/not/exist.wav")
	if _, err := s.DecodedStream(); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
	if s.DurationSeconds() != -1 {
		t.Errorf("expected unknown duration, got %d", s.DurationSeconds())
	}
}

func TestURLSource(t *testing.T) {
	wav := testaudio.Tone(t, 8000, 1, 1)
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tone.wav" {
			http.NotFound(w, r)
			return
		}
		requests.Add(1)
		w.Header().Set("Content-Type", "audio/wav")
		w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
		w.Write(wav)
	}))
	defer srv.Close()

	s, err := New(srv.URL + "/tone.wav")
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}

	ff, err := s.FileFormat()
	if err != nil {
		t.Fatalf("file format failed: %v", err)
	}
	if ff.Type != audio.CodecWAV || ff.Format.SampleRate != 8000 || ff.Format.Channels != 1 {
		t.Errorf("unexpected file format %+v", ff)
	}
	if ff.ByteLength != int64(len(wav)) {
		t.Errorf("expected content length %d, got %d", len(wav), ff.ByteLength)
	}
	if s.DurationSeconds() != -1 {
		t.Errorf("expected unknown duration for URL, got %d", s.DurationSeconds())
	}

	st, err := s.DecodedStream()
	if err != nil {
		t.Fatalf("decoded stream failed: %v", err)
	}
	defer st.Close()
	pcm, err := io.ReadAll(st)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(pcm) != 16000 {
		t.Errorf("expected 16000 bytes, got %d", len(pcm))
	}
	if n := requests.Load(); n != 2 {
		t.Errorf("expected a fresh request per stream, got %d requests", n)
	}

	missing, _ := New(srv.URL + "/missing.wav")
	if _, err := missing.DecodedStream(); err == nil {
		t.Error("expected error for 404")
	}
}

func TestSeekableStreamReopens(t *testing.T) {
	r := bytes.NewReader(testaudio.Tone(t, 8000, 1, 0.5))
	s := NewStream(r)

	if !s.Reopenable() {
		t.Fatal("expected bytes.Reader to be reopenable")
	}
	if s.DurationMillis() != 500 {
		t.Errorf("expected 500ms from probe, got %d", s.DurationMillis())
	}

	for i := 0; i < 2; i++ {
		st, err := s.DecodedStream()
		if err != nil {
			t.Fatalf("decoded stream %d failed: %v", i, err)
		}
		pcm, _ := io.ReadAll(st)
		st.Close()
		if len(pcm) != 8000 {
			t.Errorf("expected 8000 bytes on pass %d, got %d", i, len(pcm))
		}
	}
}

func TestForwardOnlyStreamDecodesOnce(t *testing.T) {
	data := testaudio.Tone(t, 8000, 1, 0.5)
	s := NewStream(io.MultiReader(bytes.NewReader(data)))

	ff, err := s.FileFormat()
	if err != nil {
		t.Fatalf("file format failed: %v", err)
	}
	if ff.Format.SampleRate != 8000 || ff.ByteLength != -1 {
		t.Errorf("unexpected file format %+v", ff)
	}

	st, err := s.DecodedStream()
	if err != nil {
		t.Fatalf("decoded stream failed: %v", err)
	}
	pcm, _ := io.ReadAll(st)
	st.Close()
	if len(pcm) != 8000 {
		t.Errorf("expected primed stream to yield 8000 bytes, got %d", len(pcm))
	}

	if _, err := s.DecodedStream(); !errors.Is(err, ErrNotReopenable) {
		t.Errorf("expected ErrNotReopenable, got %v", err)
	}
}
