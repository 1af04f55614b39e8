// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests event application, key handling and rendering
package ui

import (
	"errors"
	"strings"
	"testing"

	"github.com/Resonate-Protocol/streamplayer-go/internal/meter"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/streamplayer"
	tea "github.com/charmbracelet/bubbletea"
)

type fakeController struct {
	status streamplayer.Status
	calls  []string
	gain   float64
	muted  bool
	pan    float64
	seeked int
}

func (f *fakeController) Play() error {
	f.calls = append(f.calls, "play")
	f.status = streamplayer.Playing
	return nil
}

func (f *fakeController) Pause() bool {
	f.calls = append(f.calls, "pause")
	f.status = streamplayer.Paused
	return true
}

func (f *fakeController) Resume() bool {
	f.calls = append(f.calls, "resume")
	f.status = streamplayer.Playing
	return true
}

func (f *fakeController) Stop() {
	f.calls = append(f.calls, "stop")
}

func (f *fakeController) SeekSeconds(seconds int) (int64, error) {
	f.seeked += seconds
	return 0, nil
}

func (f *fakeController) Status() streamplayer.Status { return f.status }
func (f *fakeController) Gain() float64               { return f.gain }
func (f *fakeController) Mute() bool                  { return f.muted }
func (f *fakeController) Pan() float64                { return f.pan }

func (f *fakeController) SetLogScaleGain(db float64) error {
	f.gain = db
	return nil
}

func (f *fakeController) SetMute(mute bool) error {
	return streamplayer.ErrControlUnsupported
}

func (f *fakeController) SetPan(pan float64) error {
	f.pan = pan
	return nil
}

type fixedLevels meter.Levels

func (l fixedLevels) Levels() meter.Levels { return meter.Levels(l) }

// press runs a key through Update and executes the returned command
func press(t *testing.T, m Model, key tea.KeyMsg) Model {
	t.Helper()
	next, cmd := m.Update(key)
	m = next.(Model)
	if cmd != nil {
		next, _ = m.Update(cmd())
		m = next.(Model)
	}
	return m
}

func TestNewModel(t *testing.T) {
	model := NewModel(Config{})

	if model.status != streamplayer.Unset {
		t.Errorf("expected unset status, got %s", model.status)
	}
	if model.showMeter {
		t.Error("expected meter hidden by default")
	}
	if model.View() != "Loading..." {
		t.Errorf("expected loading view before first resize, got %q", model.View())
	}
}

func TestApplyOpened(t *testing.T) {
	model := NewModel(Config{})
	model.applyOpened(OpenedMsg{
		Origin: "song.flac",
		Properties: map[string]any{
			audio.PropType:                    "flac",
			audio.PropSampleRate:              44100,
			audio.PropChannels:                2,
			audio.PropSampleSize:              16,
			audio.PropDuration:                int64(185_000_000),
			streamplayer.PropOutputSampleRate: 48000,
		},
	})

	if model.codec != "flac" || model.sampleRate != 44100 || model.channels != 2 || model.bitDepth != 16 {
		t.Errorf("unexpected format %s %d %d %d", model.codec, model.sampleRate, model.channels, model.bitDepth)
	}
	if model.outRate != 48000 {
		t.Errorf("expected output rate 48000, got %d", model.outRate)
	}
	if model.durationUS != 185_000_000 {
		t.Errorf("expected duration 185s, got %d", model.durationUS)
	}

	model.width = 80
	view := model.View()
	for _, want := range []string{"song.flac", "44100Hz Stereo 16-bit -> 48000Hz", "00:00 / 03:05"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q:\n%s", want, view)
		}
	}
}

func TestApplyEvent(t *testing.T) {
	tests := []struct {
		name       string
		event      streamplayer.Event
		wantStatus streamplayer.Status
		wantErr    string
		wantPan    float64
	}{
		{"playing", streamplayer.Event{Status: streamplayer.Playing}, streamplayer.Playing, "", 0},
		{"eom keeps status", streamplayer.Event{Status: streamplayer.EndOfMedia}, streamplayer.Opened, "", 0},
		{"stopped with error", streamplayer.Event{Status: streamplayer.Stopped, Description: errors.New("bad frame")}, streamplayer.Stopped, "bad frame", 0},
		{"pan", streamplayer.Event{Status: streamplayer.PanChanged, Description: 0.5}, streamplayer.Opened, "", 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := NewModel(Config{})
			model.status = streamplayer.Opened
			model.applyEvent(tt.event)

			if model.status != tt.wantStatus {
				t.Errorf("expected status %s, got %s", tt.wantStatus, model.status)
			}
			if model.lastErr != tt.wantErr {
				t.Errorf("expected error %q, got %q", tt.wantErr, model.lastErr)
			}
			if model.pan != tt.wantPan {
				t.Errorf("expected pan %v, got %v", tt.wantPan, model.pan)
			}
		})
	}
}

func TestUnsetClearsSource(t *testing.T) {
	model := NewModel(Config{})
	model.applyOpened(OpenedMsg{Origin: "a.wav", Properties: map[string]any{}})
	model.positionUS = 5

	model.applyEvent(streamplayer.Event{Status: streamplayer.Unset})

	if model.origin != "" || model.positionUS != 0 {
		t.Errorf("expected cleared source, got %q at %d", model.origin, model.positionUS)
	}
}

func TestPlayPauseKey(t *testing.T) {
	ctrl := &fakeController{status: streamplayer.Opened}
	model := NewModel(Config{Controller: ctrl})
	space := tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}

	model = press(t, model, space)
	model = press(t, model, space)
	model = press(t, model, space)

	want := []string{"play", "pause", "resume"}
	if strings.Join(ctrl.calls, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, ctrl.calls)
	}
}

func TestControlKeys(t *testing.T) {
	ctrl := &fakeController{status: streamplayer.Playing}
	model := NewModel(Config{Controller: ctrl})

	model = press(t, model, tea.KeyMsg{Type: tea.KeyUp})
	if ctrl.gain != gainStep || model.gainDB != gainStep {
		t.Errorf("expected gain %v, got controller %v model %v", gainStep, ctrl.gain, model.gainDB)
	}

	model = press(t, model, tea.KeyMsg{Type: tea.KeyRight})
	model = press(t, model, tea.KeyMsg{Type: tea.KeyLeft})
	model = press(t, model, tea.KeyMsg{Type: tea.KeyLeft})
	if ctrl.seeked != -seekStep {
		t.Errorf("expected net seek %d, got %d", -seekStep, ctrl.seeked)
	}

	model = press(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{']'}})
	if model.pan < 0.09 || model.pan > 0.11 {
		t.Errorf("expected pan 0.1, got %v", model.pan)
	}

	model = press(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'m'}})
	if model.lastErr == "" {
		t.Error("expected unsupported mute to be reported")
	}

	model = press(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	if ctrl.calls[len(ctrl.calls)-1] != "stop" {
		t.Errorf("expected stop, got %v", ctrl.calls)
	}
}

func TestQuitKey(t *testing.T) {
	model := NewModel(Config{})
	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestMeterView(t *testing.T) {
	levels := fixedLevels{PeakDB: -6, RMSDB: -9, Bands: []float64{1, 0.5, 0}}
	model := NewModel(Config{Levels: levels, ShowMeter: true})
	model.width = 80

	next, _ := model.Update(tickMsg{})
	model = next.(Model)

	view := model.View()
	if !strings.Contains(view, "Peak:   -6.0 dB") {
		t.Errorf("expected peak in view:\n%s", view)
	}

	model = press(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'v'}})
	if strings.Contains(model.View(), "Peak:") {
		t.Error("expected meter hidden after toggle")
	}
}

func TestBridge(t *testing.T) {
	b := NewBridge()
	model := NewModel(Config{Bridge: b})

	b.Opened("x.wav", map[string]any{audio.PropChannels: 1})
	b.StatusUpdated(streamplayer.Event{Status: streamplayer.Playing})
	b.Progress(10, 2_000_000, nil, nil)

	for i := 0; i < 3; i++ {
		msg := model.listen()()
		next, cmd := model.Update(msg)
		model = next.(Model)
		if cmd == nil {
			t.Fatalf("expected listen to be re-armed after %T", msg)
		}
	}

	if model.origin != "x.wav" || model.status != streamplayer.Playing || model.positionUS != 2_000_000 {
		t.Errorf("unexpected model state %q %s %d", model.origin, model.status, model.positionUS)
	}

	b.Close()
	b.StatusUpdated(streamplayer.Event{Status: streamplayer.Stopped})
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("expected short, got %s", got)
	}
	if got := truncate("a much longer string", 10); got != "a much ..." {
		t.Errorf("expected truncation, got %s", got)
	}
}
