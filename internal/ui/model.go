// ABOUTME: Bubbletea model for the player TUI
// ABOUTME: Defines display state, key bindings and update logic
package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Resonate-Protocol/streamplayer-go/internal/meter"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/streamplayer"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	seekStep   = 5
	gainStep   = 3.0
	panStep    = 0.1
	meterRate  = 100 * time.Millisecond
	innerWidth = 54
)

// Controller is the player surface the key bindings drive
type Controller interface {
	Play() error
	Pause() bool
	Resume() bool
	Stop()
	SeekSeconds(seconds int) (int64, error)
	Status() streamplayer.Status
	Gain() float64
	SetLogScaleGain(db float64) error
	Mute() bool
	SetMute(mute bool) error
	Pan() float64
	SetPan(pan float64) error
}

// LevelSource supplies meter snapshots
type LevelSource interface {
	Levels() meter.Levels
}

// Model represents the TUI state
type Model struct {
	ctrl   Controller
	levels LevelSource
	events <-chan tea.Msg

	// Source
	origin     string
	codec      string
	sampleRate int
	channels   int
	bitDepth   int
	outRate    int
	durationUS int64

	// Playback
	status     streamplayer.Status
	positionUS int64
	encoded    int64
	gainDB     float64
	muted      bool
	pan        float64
	lastErr    string

	// Meter
	meter     meter.Levels
	showMeter bool

	// Dimensions
	width  int
	height int
}

// OpenedMsg carries the properties of a newly opened source
type OpenedMsg struct {
	Origin     string
	Properties map[string]any
}

// EventMsg carries a player status event
type EventMsg struct {
	Event streamplayer.Event
}

// ProgressMsg carries the latest playback position
type ProgressMsg struct {
	EncodedBytes int64
	Microseconds int64
}

type tickMsg time.Time

type actionMsg struct {
	err error
}

// Init starts event delivery and the meter refresh
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.listen(), tick())
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case OpenedMsg:
		m.applyOpened(msg)
		return m, m.listen()
	case EventMsg:
		m.applyEvent(msg.Event)
		return m, m.listen()
	case ProgressMsg:
		m.positionUS = msg.Microseconds
		m.encoded = msg.EncodedBytes
		return m, m.listen()
	case tickMsg:
		if m.levels != nil {
			m.meter = m.levels.Levels()
		}
		m.refreshControls()
		return m, tick()
	case actionMsg:
		if msg.err != nil {
			m.lastErr = msg.err.Error()
		}
		m.refreshControls()
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderSource())
	b.WriteString(m.renderPosition())
	b.WriteString(m.renderControls())
	if m.showMeter {
		b.WriteString(m.renderMeter())
	}
	b.WriteString(m.renderHelp())
	return b.String()
}

func line(format string, args ...any) string {
	return fmt.Sprintf("│ %-*s │\n", innerWidth-2, truncate(fmt.Sprintf(format, args...), innerWidth-2))
}

func (m Model) renderHeader() string {
	return "┌─ Stream Player ──────────────────────────────────────┐\n" +
		line("Status: %s", m.status) +
		"├──────────────────────────────────────────────────────┤\n"
}

func (m Model) renderSource() string {
	if m.origin == "" {
		return line("No source")
	}
	s := line("Source: %s", m.origin)
	format := fmt.Sprintf("Format: %s %dHz %s %d-bit", m.codec, m.sampleRate, channelName(m.channels), m.bitDepth)
	if m.outRate != 0 && m.outRate != m.sampleRate {
		format += fmt.Sprintf(" -> %dHz", m.outRate)
	}
	return s + line("%s", format)
}

func (m Model) renderPosition() string {
	pos := formatTime(m.positionUS)
	total := "--:--"
	bar := renderBar(0, 1, 30)
	if m.durationUS > 0 {
		total = formatTime(m.durationUS)
		bar = renderBar(int(min(m.positionUS, m.durationUS)), int(m.durationUS), 30)
	}
	return line("") + line("%s / %s [%s]", pos, total, bar)
}

func (m Model) renderControls() string {
	mute := ""
	if m.muted {
		mute = " (muted)"
	}
	s := line("Gain: %+.1f dB%s  Pan: %+.1f", m.gainDB, mute, m.pan)
	if m.lastErr != "" {
		s += line("Error: %s", m.lastErr)
	}
	return s
}

func (m Model) renderMeter() string {
	s := "├──────────────────────────────────────────────────────┤\n"
	s += line("Peak: %6.1f dB  RMS: %6.1f dB", m.meter.PeakDB, m.meter.RMSDB)
	const rows = 4
	for r := rows; r > 0; r-- {
		var row strings.Builder
		for _, v := range m.meter.Bands {
			if v*rows >= float64(r)-0.5 {
				row.WriteString("█ ")
			} else {
				row.WriteString("  ")
			}
		}
		s += line("%s", row.String())
	}
	return s
}

func (m Model) renderHelp() string {
	return "├──────────────────────────────────────────────────────┤\n" +
		line("space:Play/Pause s:Stop ←/→:Seek ↑/↓:Gain m:Mute") +
		line("[/]:Pan v:Meter q:Quit") +
		"└──────────────────────────────────────────────────────┘\n"
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "v":
		m.showMeter = !m.showMeter
		return m, nil
	}

	if m.ctrl == nil {
		return m, nil
	}
	ctrl := m.ctrl
	m.lastErr = ""

	switch msg.String() {
	case " ":
		return m, do(func() error {
			switch ctrl.Status() {
			case streamplayer.Playing:
				ctrl.Pause()
			case streamplayer.Paused:
				ctrl.Resume()
			default:
				return ctrl.Play()
			}
			return nil
		})
	case "s":
		return m, do(func() error {
			ctrl.Stop()
			return nil
		})
	case "left", "right":
		step := seekStep
		if msg.String() == "left" {
			step = -seekStep
		}
		return m, do(func() error {
			_, err := ctrl.SeekSeconds(step)
			return err
		})
	case "up", "down":
		db := m.gainDB + gainStep
		if msg.String() == "down" {
			db = m.gainDB - gainStep
		}
		return m, do(func() error { return ctrl.SetLogScaleGain(db) })
	case "m":
		muted := !m.muted
		return m, do(func() error { return ctrl.SetMute(muted) })
	case "[", "]":
		pan := m.pan + panStep
		if msg.String() == "[" {
			pan = m.pan - panStep
		}
		pan = max(-1, min(1, pan))
		return m, do(func() error { return ctrl.SetPan(pan) })
	}

	return m, nil
}

func (m *Model) applyOpened(msg OpenedMsg) {
	m.origin = msg.Origin
	p := msg.Properties
	m.codec, _ = p[audio.PropType].(string)
	m.sampleRate, _ = p[audio.PropSampleRate].(int)
	m.channels, _ = p[audio.PropChannels].(int)
	m.bitDepth, _ = p[audio.PropSampleSize].(int)
	m.outRate, _ = p[streamplayer.PropOutputSampleRate].(int)
	m.durationUS, _ = p[audio.PropDuration].(int64)
	m.positionUS = 0
	m.encoded = 0
	m.lastErr = ""
}

func (m *Model) applyEvent(e streamplayer.Event) {
	switch e.Status {
	case streamplayer.Seeked, streamplayer.EndOfMedia:
	case streamplayer.PanChanged:
		if pan, ok := e.Description.(float64); ok {
			m.pan = pan
		}
	default:
		m.status = e.Status
	}
	if err, ok := e.Description.(error); ok {
		m.lastErr = err.Error()
	}
	if e.Status == streamplayer.Unset {
		m.origin = ""
		m.positionUS = 0
		m.durationUS = 0
	}
}

func (m *Model) refreshControls() {
	if m.ctrl == nil {
		return
	}
	m.gainDB = m.ctrl.Gain()
	m.muted = m.ctrl.Mute()
	m.pan = m.ctrl.Pan()
}

// listen waits for the next bridged player message
func (m Model) listen() tea.Cmd {
	if m.events == nil {
		return nil
	}
	events := m.events
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

func tick() tea.Cmd {
	return tea.Tick(meterRate, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func do(action func() error) tea.Cmd {
	return func() tea.Msg {
		err := action()
		if errors.Is(err, streamplayer.ErrControlUnsupported) {
			err = errors.New("not supported by this output")
		}
		return actionMsg{err: err}
	}
}

// Utility functions
func renderBar(value, max, width int) string {
	filled := 0
	if max > 0 {
		filled = (value * width) / max
	}
	var b strings.Builder
	for i := 0; i < width; i++ {
		if i < filled {
			b.WriteString("█")
		} else {
			b.WriteString("░")
		}
	}
	return b.String()
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length-3]) + "..."
}

func channelName(channels int) string {
	switch channels {
	case 1:
		return "Mono"
	case 2:
		return "Stereo"
	default:
		return fmt.Sprintf("%dch", channels)
	}
}

func formatTime(us int64) string {
	if us < 0 {
		us = 0
	}
	secs := us / 1_000_000
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
