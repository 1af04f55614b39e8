// ABOUTME: Tests for the playback state machine, seeking and controls
// ABOUTME: Drives a Player against a fake output device with synthesised WAV sources
package streamplayer

import (
	"bytes"
	"errors"
	"io"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Resonate-Protocol/streamplayer-go/internal/testaudio"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio/decode"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio/output"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/source"
)

// fakeDevice records what it is given and optionally paces writes
type fakeDevice struct {
	rate     int // forced by Negotiate when > 0
	channels int // forced by Negotiate when > 0
	delay    time.Duration
	controls output.Controls

	mu      sync.Mutex
	format  audio.Format
	opens   int
	closed  chan struct{}
	written atomic.Int64
	open    atomic.Bool
	running atomic.Bool
}

func (d *fakeDevice) Negotiate(want audio.Format) (audio.Format, error) {
	if d.rate > 0 {
		want.SampleRate = d.rate
	}
	if d.channels > 0 {
		want.Channels = d.channels
	}
	return want, nil
}

func (d *fakeDevice) Open(format audio.Format, bufferSize int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open.Load() {
		return nil
	}
	d.format = format
	d.opens++
	d.closed = make(chan struct{})
	d.open.Store(true)
	return nil
}

func (d *fakeDevice) Start() error {
	if !d.open.Load() {
		return output.ErrNotOpen
	}
	d.running.Store(true)
	return nil
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if !d.open.Load() {
		return 0, output.ErrNotOpen
	}
	if d.delay > 0 {
		timer := time.NewTimer(d.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-closed:
			return 0, output.ErrNotOpen
		}
	}
	d.written.Add(int64(len(p)))
	return len(p), nil
}

func (d *fakeDevice) Flush() {}
func (d *fakeDevice) Drain() {}

func (d *fakeDevice) Stop() error {
	d.running.Store(false)
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open.Load() {
		d.open.Store(false)
		d.running.Store(false)
		close(d.closed)
	}
	return nil
}

func (d *fakeDevice) IsOpen() bool    { return d.open.Load() }
func (d *fakeDevice) IsRunning() bool { return d.running.Load() }

func (d *fakeDevice) Format() audio.Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format
}

func (d *fakeDevice) BufferSize() int {
	if !d.open.Load() {
		return -1
	}
	return 4096
}

func (d *fakeDevice) MicrosecondPosition() int64 {
	f := d.Format()
	if f.FrameSize() == 0 {
		return 0
	}
	return d.written.Load() / int64(f.FrameSize()) * 1_000_000 / int64(f.SampleRate)
}

func (d *fakeDevice) Controls() output.Controls {
	if !d.open.Load() {
		return output.Controls{}
	}
	return d.controls
}

type fakeFactory struct {
	devices map[string]*fakeDevice
}

func (f fakeFactory) Name() string { return "fake" }

func (f fakeFactory) ListDevices() ([]string, error) {
	return []string{"fake", "spare"}, nil
}

func (f fakeFactory) Device(name string) (output.Device, error) {
	if name == "" {
		name = "fake"
	}
	d, ok := f.devices[name]
	if !ok {
		return nil, output.ErrDeviceUnavailable
	}
	return d, nil
}

// recorder is a Listener that keeps every event
type recorder struct {
	mu       sync.Mutex
	events   []Event
	opened   []map[string]any
	progress int
}

func (r *recorder) Opened(origin any, properties map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, properties)
}

func (r *recorder) Progress(encodedBytes, microseconds int64, pcm []byte, properties map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress++
}

func (r *recorder) StatusUpdated(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, len(r.events))
	for i, e := range r.events {
		out[i] = e.Status
	}
	return out
}

func (r *recorder) count(s Status) int {
	n := 0
	for _, got := range r.statuses() {
		if got == s {
			n++
		}
	}
	return n
}

func (r *recorder) last(s Status) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Status == s {
			return r.events[i], true
		}
	}
	return Event{}, false
}

// waitFor polls until s has been seen n times
func (r *recorder) waitFor(t *testing.T, s Status, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if r.count(s) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %s events, got %v", n, s, r.statuses())
}

// inOrder reports whether want appears as a subsequence of got
func inOrder(got []Status, want ...Status) bool {
	i := 0
	for _, s := range got {
		if i < len(want) && s == want[i] {
			i++
		}
	}
	return i == len(want)
}

func newTestPlayer(t *testing.T, dev *fakeDevice) (*Player, *recorder) {
	t.Helper()
	p, err := New(Config{
		Devices:   fakeFactory{devices: map[string]*fakeDevice{"fake": dev, "spare": {}}},
		PausePoll: 5 * time.Millisecond,
		StopGrace: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	rec := &recorder{}
	if err := p.AddListener(rec); err != nil {
		t.Fatalf("add listener failed: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p, rec
}

func TestStatusBeforeAndAfterOpen(t *testing.T) {
	p, rec := newTestPlayer(t, &fakeDevice{})

	if !p.IsUnset() {
		t.Fatalf("expected unset before open, got %s", p.Status())
	}
	if p.DurationSeconds() != -1 || p.TotalBytes() != -1 || p.EncodedStreamPosition() != NotSpecified {
		t.Error("expected unknown duration, length and position before open")
	}

	if err := p.Open(testaudio.ToneFile(t, 8000, 1, 3.5)); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if !p.IsOpened() {
		t.Fatalf("expected opened, got %s", p.Status())
	}
	if p.DurationSeconds() != 3 || p.DurationMillis() != 3500 {
		t.Errorf("expected 3s / 3500ms, got %d / %d", p.DurationSeconds(), p.DurationMillis())
	}
	if p.TotalBytes() <= 0 {
		t.Errorf("expected known length for a file, got %d", p.TotalBytes())
	}
	if !inOrder(rec.statuses(), Opening, Opened) {
		t.Errorf("expected opening then opened, got %v", rec.statuses())
	}
	if len(rec.opened) != 1 {
		t.Errorf("expected one opened callback, got %d", len(rec.opened))
	}
}

func TestOpenFailures(t *testing.T) {
	mono := testaudio.ToneFile(t, 8000, 1, 0.5)

	tests := []struct {
		name   string
		dev    *fakeDevice
		origin any
		want   error
	}{
		{"unsupported origin", &fakeDevice{}, 42, ErrSourceUnsupported},
		{"channel mismatch", &fakeDevice{channels: 2}, mono, ErrFormatUnsupported},
		{"not audio", &fakeDevice{}, bytes.NewReader([]byte("definitely not audio data")), ErrFormatUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestPlayer(t, tt.dev)
			if err := p.Open(tt.origin); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !p.IsUnset() {
				t.Errorf("expected unset after failed open, got %s", p.Status())
			}
		})
	}
}

func TestOpenMissingFile(t *testing.T) {
	p, rec := newTestPlayer(t, &fakeDevice{})
	if err := p.Open("/does/not/exist.wav"); err == nil {
		t.Fatal("expected error opening a missing file")
	}
	if !p.IsUnset() {
		t.Errorf("expected unset, got %s", p.Status())
	}
	e, ok := rec.last(Unset)
	if !ok || e.Description == nil {
		t.Errorf("expected an unset event carrying the error, got %v", rec.statuses())
	}
}

func TestPlayToEndOfMedia(t *testing.T) {
	dev := &fakeDevice{}
	p, rec := newTestPlayer(t, dev)

	if err := p.Open(testaudio.ToneFile(t, 8000, 1, 0.5)); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := p.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	rec.waitFor(t, Stopped, 1)

	if !inOrder(rec.statuses(), Opening, Opened, Playing, EndOfMedia, Stopped) {
		t.Errorf("unexpected event order %v", rec.statuses())
	}
	if got := dev.written.Load(); got != 8000 {
		t.Errorf("expected 8000 bytes written, got %d", got)
	}
	if !p.IsStopped() {
		t.Errorf("expected stopped, got %s", p.Status())
	}
	if dev.IsOpen() {
		t.Error("expected device closed after end of media")
	}
	if rec.progress == 0 {
		t.Error("expected progress callbacks")
	}
}

func TestPlayWhenNotOpenedIsNoop(t *testing.T) {
	dev := &fakeDevice{}
	p, _ := newTestPlayer(t, dev)

	if err := p.Play(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !p.IsUnset() || dev.IsOpen() {
		t.Errorf("expected nothing to happen, status %s", p.Status())
	}
}

func TestPlayAfterStopReopens(t *testing.T) {
	dev := &fakeDevice{}
	p, rec := newTestPlayer(t, dev)

	if err := p.Open(testaudio.ToneFile(t, 8000, 1, 0.25)); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	p.Play()
	rec.waitFor(t, Stopped, 1)

	if err := p.Play(); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	rec.waitFor(t, Stopped, 2)

	if got := dev.written.Load(); got != 8000 {
		t.Errorf("expected the source played twice (8000 bytes), got %d", got)
	}
	if n := rec.count(Opened); n != 2 {
		t.Errorf("expected two opened events, got %d", n)
	}
}

func TestReplayFromEndOfMediaListener(t *testing.T) {
	dev := &fakeDevice{}
	p, rec := newTestPlayer(t, dev)

	var replays atomic.Int32
	p.AddListener(&Callbacks{OnStatus: func(e Event) {
		if e.Status == EndOfMedia && replays.Add(1) == 1 {
			if err := p.Play(); err != nil {
				t.Errorf("replay failed: %v", err)
			}
		}
	}})

	if err := p.Open(testaudio.ToneFile(t, 8000, 1, 0.25)); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := p.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	rec.waitFor(t, EndOfMedia, 2)
	rec.waitFor(t, Stopped, 1)
	time.Sleep(20 * time.Millisecond)

	got := rec.statuses()
	if n := rec.count(Stopped); n != 1 {
		t.Errorf("expected only the final stopped event, got %v", got)
	}
	if !inOrder(got, Playing, EndOfMedia, Opened, Playing, EndOfMedia, Stopped) {
		t.Errorf("unexpected event order %v", got)
	}
	if last := got[len(got)-1]; last != p.Status() {
		t.Errorf("last event %s does not match status %s", last, p.Status())
	}
	if written := dev.written.Load(); written != 8000 {
		t.Errorf("expected the source played twice (8000 bytes), got %d", written)
	}
}

var errBrokenMedia = errors.New("broken media")

// brokenStream fails once limit bytes of PCM have been read
type brokenStream struct {
	decode.Stream
	limit int
	read  int
}

func (s *brokenStream) Read(p []byte) (int, error) {
	if s.read >= s.limit {
		return 0, errBrokenMedia
	}
	if rest := s.limit - s.read; len(p) > rest {
		p = p[:rest]
	}
	n, err := s.Stream.Read(p)
	s.read += n
	return n, err
}

type brokenSource struct {
	*source.FileSource
	limit int
}

func (s *brokenSource) DecodedStream() (decode.Stream, error) {
	st, err := s.FileSource.DecodedStream()
	if err != nil {
		return nil, err
	}
	return &brokenStream{Stream: st, limit: s.limit}, nil
}

func TestDecodeErrorStopsPlayback(t *testing.T) {
	dev := &fakeDevice{}
	p, rec := newTestPlayer(t, dev)

	src := &brokenSource{FileSource: source.NewFile(testaudio.ToneFile(t, 8000, 1, 0.5)), limit: 1000}
	if err := p.Open(src); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := p.Play(); err != nil {
		t.Fatalf("play must not report worker failures, got %v", err)
	}
	rec.waitFor(t, Stopped, 1)

	e, _ := rec.last(Stopped)
	err, ok := e.Description.(error)
	if !ok || !errors.Is(err, ErrDecodeIO) {
		t.Fatalf("expected stopped event carrying ErrDecodeIO, got %v", e.Description)
	}
	if !strings.Contains(err.Error(), errBrokenMedia.Error()) {
		t.Errorf("expected the read failure in %v", err)
	}
	if n := rec.count(EndOfMedia); n != 0 {
		t.Errorf("expected no end of media on a decode error, got %d", n)
	}
	if got := dev.written.Load(); got != 1000 {
		t.Errorf("expected the 1000 decoded bytes written, got %d", got)
	}
	if !p.IsStopped() || dev.IsOpen() {
		t.Errorf("expected stopped with device closed, got %s open=%v", p.Status(), dev.IsOpen())
	}
}

func TestStuckWorkerIsCancelled(t *testing.T) {
	dev := &fakeDevice{delay: 10 * time.Second}
	p, err := New(Config{
		Devices:   fakeFactory{devices: map[string]*fakeDevice{"fake": dev}},
		PausePoll: 5 * time.Millisecond,
		StopGrace: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	path := testaudio.ToneFile(t, 8000, 1, 1)
	if err := p.Open(path); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := p.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	// let the worker block inside the device write
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	if err := p.Open(path); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if err := p.Play(); err != nil {
		t.Fatalf("play after cancel failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("expected the stuck worker cancelled within the grace period, took %s", elapsed)
	}
	if !p.IsPlaying() {
		t.Errorf("expected playing, got %s", p.Status())
	}
	dev.mu.Lock()
	opens := dev.opens
	dev.mu.Unlock()
	if opens != 2 {
		t.Errorf("expected the device closed and reopened, got %d opens", opens)
	}
}

func TestPauseResume(t *testing.T) {
	dev := &fakeDevice{delay: 20 * time.Millisecond}
	p, rec := newTestPlayer(t, dev)

	if p.Pause() {
		t.Error("pause must fail before playing")
	}
	if err := p.Open(testaudio.ToneFile(t, 8000, 1, 2)); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if p.Resume() {
		t.Error("resume must fail when not paused")
	}
	if err := p.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	if p.Resume() {
		t.Error("resume must fail while playing")
	}

	if !p.Pause() {
		t.Fatal("pause failed while playing")
	}
	if !p.IsPaused() {
		t.Fatalf("expected paused, got %s", p.Status())
	}
	if p.Pause() {
		t.Error("second pause must fail")
	}

	time.Sleep(100 * time.Millisecond)
	before := dev.written.Load()
	time.Sleep(100 * time.Millisecond)
	if after := dev.written.Load(); after != before {
		t.Errorf("expected no writes while paused, wrote %d bytes", after-before)
	}

	if !p.Resume() {
		t.Fatal("resume failed while paused")
	}
	if !p.IsPlaying() {
		t.Fatalf("expected playing, got %s", p.Status())
	}

	p.Stop()
	rec.waitFor(t, Stopped, 1)

	if n := rec.count(Paused); n != 1 {
		t.Errorf("expected one paused event, got %d", n)
	}
	if !inOrder(rec.statuses(), Playing, Paused, Playing, Stopped) {
		t.Errorf("unexpected event order %v", rec.statuses())
	}
}

func TestStopTwiceEmitsOnce(t *testing.T) {
	dev := &fakeDevice{delay: 20 * time.Millisecond}
	p, rec := newTestPlayer(t, dev)

	if err := p.Open(testaudio.ToneFile(t, 8000, 1, 2)); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	p.Play()
	p.Stop()
	rec.waitFor(t, Stopped, 1)
	p.Stop()

	if !p.IsStopped() {
		t.Errorf("expected stopped, got %s", p.Status())
	}
	if n := rec.count(Stopped); n != 1 {
		t.Errorf("expected a single stopped event, got %d", n)
	}
	if n := rec.count(EndOfMedia); n != 0 {
		t.Errorf("expected no end of media after an explicit stop, got %d", n)
	}
}

func TestStopWithoutPlay(t *testing.T) {
	p, rec := newTestPlayer(t, &fakeDevice{})
	p.Stop()
	if rec.count(Stopped) != 0 {
		t.Error("stop before open must not report stopped")
	}

	if err := p.Open(testaudio.ToneFile(t, 8000, 1, 0.5)); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	p.Stop()
	p.Stop()
	if !p.IsStopped() || rec.count(Stopped) != 1 {
		t.Errorf("expected one stopped event, got %v", rec.statuses())
	}
}

func TestReset(t *testing.T) {
	dev := &fakeDevice{delay: 20 * time.Millisecond}
	p, rec := newTestPlayer(t, dev)

	if err := p.Open(testaudio.ToneFile(t, 8000, 1, 2)); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	p.Play()
	p.Reset()

	if !p.IsUnset() {
		t.Fatalf("expected unset, got %s", p.Status())
	}
	if dev.IsOpen() {
		t.Error("expected device closed after reset")
	}
	if p.TotalBytes() != -1 {
		t.Error("expected session cleared")
	}
	if rec.count(Stopped) != 0 {
		t.Errorf("reset must not report stopped, got %v", rec.statuses())
	}
}

func TestSeekBytesPastEnd(t *testing.T) {
	p, rec := newTestPlayer(t, &fakeDevice{})
	if err := p.Open(testaudio.ToneFile(t, 8000, 1, 1)); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	total := p.TotalBytes()
	for _, n := range []int64{total, total + 1, total * 2} {
		skipped, err := p.SeekBytes(n)
		if err != nil || skipped != 0 {
			t.Errorf("seek to %d: expected (0, nil), got (%d, %v)", n, skipped, err)
		}
	}

	if n := rec.count(EndOfMedia); n != 3 {
		t.Errorf("expected 3 end of media events, got %d", n)
	}
	if n := rec.count(Seeking); n != 0 {
		t.Errorf("expected no seeking events, got %d", n)
	}
	if !p.IsOpened() {
		t.Errorf("expected status unchanged, got %s", p.Status())
	}

	if _, err := p.SeekBytes(-1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for negative offset, got %v", err)
	}
}

func TestSeekToRoundTrip(t *testing.T) {
	p, rec := newTestPlayer(t, &fakeDevice{})
	if err := p.Open(testaudio.ToneFile(t, 8000, 1, 10)); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	total := p.TotalBytes()

	skipped, err := p.SeekTo(4)
	if err != nil {
		t.Fatalf("seek failed: %v", err)
	}
	if skipped <= 0 {
		t.Errorf("expected bytes skipped, got %d", skipped)
	}

	// skips land on decoder block boundaries, never before the target
	const slack = 4096
	target := total * 4 / 10
	pos := p.EncodedStreamPosition()
	if pos < target || pos >= target+slack {
		t.Errorf("expected position in [%d, %d), got %d", target, target+slack, pos)
	}
	if !inOrder(rec.statuses(), Opened, Seeking, Seeked) {
		t.Errorf("unexpected event order %v", rec.statuses())
	}
	if !p.IsOpened() {
		t.Errorf("expected opened after seek, got %s", p.Status())
	}

	relTarget := pos + total*3/10
	if _, err := p.SeekSeconds(3); err != nil {
		t.Fatalf("relative seek failed: %v", err)
	}
	if got := p.EncodedStreamPosition(); got < relTarget || got >= relTarget+slack {
		t.Errorf("expected position in [%d, %d), got %d", relTarget, relTarget+slack, got)
	}

	for _, s := range []int{-1, 10, 300} {
		if _, err := p.SeekTo(s); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("seek to %ds: expected ErrInvalidArgument, got %v", s, err)
		}
	}
}

func TestSeekRestoresPlaybackState(t *testing.T) {
	tests := []struct {
		name  string
		pause bool
		want  Status
	}{
		{"playing", false, Playing},
		{"paused", true, Paused},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &fakeDevice{delay: 20 * time.Millisecond}
			p, rec := newTestPlayer(t, dev)
			if err := p.Open(testaudio.ToneFile(t, 8000, 1, 10)); err != nil {
				t.Fatalf("open failed: %v", err)
			}
			if err := p.Play(); err != nil {
				t.Fatalf("play failed: %v", err)
			}
			if tt.pause && !p.Pause() {
				t.Fatal("pause failed")
			}

			if _, err := p.SeekTo(5); err != nil {
				t.Fatalf("seek failed: %v", err)
			}
			if p.Status() != tt.want {
				t.Errorf("expected %s after seek, got %s", tt.want, p.Status())
			}
			if !inOrder(rec.statuses(), Seeking, Seeked, Playing) {
				t.Errorf("unexpected event order %v", rec.statuses())
			}
			if pos := p.EncodedStreamPosition(); pos < p.TotalBytes()/2 {
				t.Errorf("expected position past the midpoint, got %d of %d", pos, p.TotalBytes())
			}

			p.Stop()
			rec.waitFor(t, Stopped, 1)
		})
	}
}

func TestSeekNonSeekableStream(t *testing.T) {
	p, rec := newTestPlayer(t, &fakeDevice{})
	wav := testaudio.Tone(t, 8000, 1, 1)
	if err := p.Open(io.MultiReader(bytes.NewReader(wav))); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if p.TotalBytes() != -1 {
		t.Errorf("expected unknown length for a stream, got %d", p.TotalBytes())
	}

	skipped, err := p.SeekBytes(1)
	if skipped != 0 || !errors.Is(err, ErrSeekUnsupported) {
		t.Errorf("expected (0, ErrSeekUnsupported), got (%d, %v)", skipped, err)
	}
	if !p.IsOpened() {
		t.Errorf("expected status unchanged, got %s", p.Status())
	}
	if rec.count(EndOfMedia) != 1 || rec.count(Seeking) != 0 {
		t.Errorf("expected only a rejected-seek event, got %v", rec.statuses())
	}
	if _, err := p.SeekTo(0); !errors.Is(err, ErrSeekUnsupported) {
		t.Errorf("expected ErrSeekUnsupported for time seek, got %v", err)
	}
}

func TestListenersObserveOrder(t *testing.T) {
	dev := &fakeDevice{delay: 10 * time.Millisecond}
	p, first := newTestPlayer(t, dev)
	second := &recorder{}
	if err := p.AddListener(second); err != nil {
		t.Fatalf("add listener failed: %v", err)
	}

	if err := p.Open(testaudio.ToneFile(t, 8000, 1, 1)); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	p.Play()
	time.Sleep(30 * time.Millisecond)
	p.Stop()
	first.waitFor(t, Stopped, 1)
	second.waitFor(t, Stopped, 1)

	for i, rec := range []*recorder{first, second} {
		if !inOrder(rec.statuses(), Opening, Opened, Playing, Stopped) {
			t.Errorf("listener %d saw %v", i, rec.statuses())
		}
		if rec.progress == 0 {
			t.Errorf("listener %d saw no progress", i)
		}
	}
}

// funcListener is a Listener whose type cannot be compared
type funcListener func(Event)

func (f funcListener) Opened(any, map[string]any)                    {}
func (f funcListener) Progress(int64, int64, []byte, map[string]any) {}
func (f funcListener) StatusUpdated(e Event)                         { f(e) }

func TestListenerRegistration(t *testing.T) {
	p, rec := newTestPlayer(t, &fakeDevice{})

	rejected := []struct {
		name string
		l    Listener
	}{
		{"nil", nil},
		{"nil pointer", (*Callbacks)(nil)},
		{"not comparable", funcListener(func(Event) {})},
	}
	for _, tt := range rejected {
		if err := p.AddListener(tt.l); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("%s: expected ErrInvalidArgument, got %v", tt.name, err)
		}
		if p.RemoveListener(tt.l) {
			t.Errorf("%s: expected removal to report false", tt.name)
		}
	}
	if !p.RemoveListener(rec) {
		t.Error("expected registered listener to be removed")
	}
	if p.RemoveListener(rec) {
		t.Error("expected second removal to report false")
	}

	if err := p.Open(testaudio.ToneFile(t, 8000, 1, 0.5)); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if len(rec.statuses()) != 0 {
		t.Errorf("removed listener received %v", rec.statuses())
	}
}

func TestOpenedProperties(t *testing.T) {
	dev := &fakeDevice{rate: 16000}
	p, rec := newTestPlayer(t, dev)

	if err := p.Open(testaudio.ToneFile(t, 8000, 1, 0.5)); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	props := rec.opened[0]
	if props[audio.PropSampleRate] != 8000 || props[PropOutputSampleRate] != 16000 {
		t.Errorf("unexpected rates in %v", props)
	}
	if id, _ := props[PropSessionID].(string); id == "" {
		t.Error("expected a session id")
	}
	if props[audio.PropType] != string(audio.CodecWAV) {
		t.Errorf("expected wav type, got %v", props[audio.PropType])
	}

	p.Play()
	rec.waitFor(t, Stopped, 1)

	// 8000 bytes at 8kHz resampled to 16kHz
	if got := dev.written.Load(); math.Abs(float64(got-16000)) > 256 {
		t.Errorf("expected about 16000 resampled bytes, got %d", got)
	}
	if f := dev.Format(); f.SampleRate != 16000 {
		t.Errorf("expected device opened at 16kHz, got %s", f)
	}
}

func TestSpeedFactor(t *testing.T) {
	dev := &fakeDevice{}
	p, rec := newTestPlayer(t, dev)

	if err := p.SetSpeedFactor(0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if err := p.SetSpeedFactor(2); err != nil {
		t.Fatalf("set speed failed: %v", err)
	}
	if err := p.Open(testaudio.ToneFile(t, 8000, 1, 0.5)); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	p.Play()
	rec.waitFor(t, Stopped, 1)

	if f := dev.Format(); f.SampleRate != 16000 {
		t.Errorf("expected device opened at 16kHz, got %s", f)
	}
	if got := dev.written.Load(); got != 8000 {
		t.Errorf("expected the PCM passed through unchanged, got %d bytes", got)
	}
}

func TestOutputSettings(t *testing.T) {
	dev := &fakeDevice{delay: 10 * time.Millisecond}
	p, rec := newTestPlayer(t, dev)

	if p.OutputBufferSize() != -1 {
		t.Errorf("expected default buffer -1, got %d", p.OutputBufferSize())
	}
	p.SetOutputBufferSize(8192)
	if p.OutputBufferSize() != 8192 {
		t.Errorf("expected 8192, got %d", p.OutputBufferSize())
	}
	if p.CurrentOutputBufferSize() != -1 {
		t.Error("expected -1 with the device closed")
	}

	names, err := p.AvailableOutputDevices()
	if err != nil || len(names) != 2 {
		t.Fatalf("unexpected devices %v (%v)", names, err)
	}
	if err := p.SetOutputDeviceName("missing"); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable, got %v", err)
	}

	if err := p.Open(testaudio.ToneFile(t, 8000, 1, 1)); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	p.Play()
	if p.CurrentOutputBufferSize() != 4096 {
		t.Errorf("expected device buffer 4096, got %d", p.CurrentOutputBufferSize())
	}
	p.Stop()
	rec.waitFor(t, Stopped, 1)
}

func TestControls(t *testing.T) {
	dev := &fakeDevice{delay: 20 * time.Millisecond, controls: output.SoftwareControls()}
	p, rec := newTestPlayer(t, dev)

	if p.Gain() != 0 || p.Pan() != 0 || p.Balance() != 0 || p.Mute() {
		t.Error("expected neutral values without a device")
	}
	if err := p.SetGain(1); !errors.Is(err, ErrControlUnsupported) {
		t.Errorf("expected ErrControlUnsupported without a device, got %v", err)
	}
	if err := p.SetMute(true); !errors.Is(err, ErrControlUnsupported) {
		t.Errorf("expected ErrControlUnsupported without a device, got %v", err)
	}

	if err := p.Open(testaudio.ToneFile(t, 8000, 1, 2)); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	p.Play()
	p.Pause()

	if p.MaximumGain() != output.MaxGainDB || p.MinimumGain() != output.MinGainDB {
		t.Errorf("unexpected gain range [%v, %v]", p.MinimumGain(), p.MaximumGain())
	}
	if err := p.SetGain(0.5); err != nil {
		t.Fatalf("set gain failed: %v", err)
	}
	if g := p.Gain(); math.Abs(g+6.0206) > 0.001 {
		t.Errorf("expected -6.02dB, got %v", g)
	}
	if err := p.SetLogScaleGain(-12); err != nil || p.Gain() != -12 {
		t.Errorf("expected -12dB, got %v (%v)", p.Gain(), err)
	}
	if err := p.SetGain(-1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for negative gain, got %v", err)
	}
	if err := p.SetLogScaleGain(20); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument above the maximum, got %v", err)
	}

	if err := p.SetPan(0.25); err != nil {
		t.Fatalf("set pan failed: %v", err)
	}
	if e, ok := rec.last(PanChanged); !ok || e.Description != 0.25 {
		t.Errorf("expected pan event with 0.25, got %v", rec.statuses())
	}
	if p.Precision() <= 0 {
		t.Error("expected a pan precision")
	}

	if err := p.SetBalance(2); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for balance 2, got %v", err)
	}
	if err := p.SetBalance(-0.5); err != nil || p.Balance() != -0.5 {
		t.Errorf("expected balance -0.5, got %v (%v)", p.Balance(), err)
	}
	if err := p.SetMute(true); err != nil || !p.Mute() {
		t.Errorf("expected muted, got %v (%v)", p.Mute(), err)
	}

	p.Stop()
	rec.waitFor(t, Stopped, 1)
}

// eqStream records the equalizer bands it is given
type eqStream struct {
	decode.Stream
	mu    sync.Mutex
	bands []float32
}

func (s *eqStream) SetEqualizer(bands []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bands = bands
}

type eqSource struct {
	*source.FileSource
	last *eqStream
}

func (s *eqSource) DecodedStream() (decode.Stream, error) {
	st, err := s.FileSource.DecodedStream()
	if err != nil {
		return nil, err
	}
	s.last = &eqStream{Stream: st}
	return s.last, nil
}

func TestEqualizer(t *testing.T) {
	p, _ := newTestPlayer(t, &fakeDevice{})

	if err := p.SetEqualizerKey(1, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument without bands, got %v", err)
	}
	p.SetEqualizer([]float32{0, 0, 0})

	src := &eqSource{FileSource: source.NewFile(testaudio.ToneFile(t, 8000, 1, 0.5))}
	if err := p.Open(src); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if len(src.last.bands) != 3 {
		t.Fatalf("expected bands handed to the stream, got %v", src.last.bands)
	}

	if err := p.SetEqualizerKey(0.5, 1); err != nil {
		t.Fatalf("set band failed: %v", err)
	}
	src.last.mu.Lock()
	got := src.last.bands[1]
	src.last.mu.Unlock()
	if got != 0.5 {
		t.Errorf("expected band 1 at 0.5, got %v", got)
	}
	if eq := p.Equalizer(); eq[1] != 0.5 {
		t.Errorf("expected stored band 1 at 0.5, got %v", eq)
	}
}
