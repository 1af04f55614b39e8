// ABOUTME: TUI initialization and player event bridge
// ABOUTME: Wraps the bubbletea program and feeds it player events through a buffered channel
package ui

import (
	"context"
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/streamplayer"
	tea "github.com/charmbracelet/bubbletea"
)

const bridgeBuffer = 256

// Bridge is a streamplayer.Listener that forwards events to the TUI.
// Progress is dropped when the UI falls behind; status events wait until
// the UI catches up or the bridge is closed.
type Bridge struct {
	msgs      chan tea.Msg
	done      chan struct{}
	closeOnce sync.Once
}

// NewBridge creates a bridge
func NewBridge() *Bridge {
	return &Bridge{msgs: make(chan tea.Msg, bridgeBuffer), done: make(chan struct{})}
}

// Close stops forwarding. Later events are discarded.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

func (b *Bridge) send(msg tea.Msg) {
	select {
	case b.msgs <- msg:
	case <-b.done:
	}
}

// Messages returns the channel the model listens on
func (b *Bridge) Messages() <-chan tea.Msg {
	return b.msgs
}

func (b *Bridge) Opened(origin any, properties map[string]any) {
	b.send(OpenedMsg{Origin: fmt.Sprint(origin), Properties: properties})
}

func (b *Bridge) Progress(encodedBytes, microseconds int64, pcm []byte, properties map[string]any) {
	select {
	case b.msgs <- ProgressMsg{EncodedBytes: encodedBytes, Microseconds: microseconds}:
	default:
	}
}

func (b *Bridge) StatusUpdated(e streamplayer.Event) {
	b.send(EventMsg{Event: e})
}

// Config holds TUI dependencies. All fields are optional.
type Config struct {
	Controller Controller
	Levels     LevelSource
	Bridge     *Bridge
	ShowMeter  bool
}

// NewModel creates a new TUI model
func NewModel(cfg Config) Model {
	m := Model{
		ctrl:      cfg.Controller,
		levels:    cfg.Levels,
		showMeter: cfg.ShowMeter,
		status:    streamplayer.Unset,
	}
	if cfg.Bridge != nil {
		m.events = cfg.Bridge.Messages()
	}
	if cfg.Controller != nil {
		m.status = cfg.Controller.Status()
	}
	return m
}

// Run shows the TUI until the user quits or ctx is done
func Run(ctx context.Context, cfg Config) error {
	p := tea.NewProgram(NewModel(cfg), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if cfg.Bridge != nil {
		cfg.Bridge.Close()
	}
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
