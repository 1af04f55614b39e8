// ABOUTME: Interactive readline shell controlling a player
// ABOUTME: Parses one command per line with history and tab completion
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/streamplayer"
	"github.com/chzyer/readline"
	"go.uber.org/zap"
)

// ErrQuit is returned by Execute for quit and exit
var ErrQuit = errors.New("quit")

// ErrUsage reports a malformed command line
var ErrUsage = errors.New("usage")

// Controller is the player surface the shell drives
type Controller interface {
	Open(origin any) error
	Play() error
	Pause() bool
	Resume() bool
	Stop()
	Reset()
	SeekSeconds(seconds int) (int64, error)
	SeekTo(seconds int) (int64, error)
	SeekBytes(n int64) (int64, error)
	SetLogScaleGain(db float64) error
	SetGain(linear float64) error
	SetMute(mute bool) error
	SetPan(pan float64) error
	SetBalance(balance float64) error
	SetSpeedFactor(speed float64) error
	SetEqualizer(bands []float32)
	SetEqualizerKey(value float32, key int) error
	SetOutputDeviceName(name string) error
	AvailableOutputDevices() ([]string, error)
	Status() streamplayer.Status
	EncodedStreamPosition() int64
	TotalBytes() int64
	DurationSeconds() int
	Gain() float64
	Mute() bool
	Pan() float64
	Balance() float64
	Properties() map[string]any
}

type command struct {
	usage string
	help  string
	run   func(c Controller, args []string) (string, error)
}

var commands = map[string]command{
	"open": {"open <path|url>", "open a source", func(c Controller, args []string) (string, error) {
		if len(args) != 1 {
			return "", ErrUsage
		}
		return "", c.Open(args[0])
	}},
	"play": {"play", "start or restart playback", func(c Controller, args []string) (string, error) {
		return "", c.Play()
	}},
	"pause": {"pause", "pause playback", func(c Controller, args []string) (string, error) {
		if !c.Pause() {
			return "not playing", nil
		}
		return "", nil
	}},
	"resume": {"resume", "resume paused playback", func(c Controller, args []string) (string, error) {
		if !c.Resume() {
			return "not paused", nil
		}
		return "", nil
	}},
	"stop": {"stop", "stop playback", func(c Controller, args []string) (string, error) {
		c.Stop()
		return "", nil
	}},
	"reset": {"reset", "close the current source", func(c Controller, args []string) (string, error) {
		c.Reset()
		return "", nil
	}},
	"seek": {"seek <±seconds>", "seek relative to the current position", func(c Controller, args []string) (string, error) {
		n, err := intArg(args)
		if err != nil {
			return "", err
		}
		return skipped(c.SeekSeconds(n))
	}},
	"seekto": {"seekto <seconds>", "seek to an absolute time", func(c Controller, args []string) (string, error) {
		n, err := intArg(args)
		if err != nil {
			return "", err
		}
		return skipped(c.SeekTo(n))
	}},
	"seekbytes": {"seekbytes <bytes>", "seek to an encoded byte offset", func(c Controller, args []string) (string, error) {
		n, err := intArg(args)
		if err != nil {
			return "", err
		}
		return skipped(c.SeekBytes(int64(n)))
	}},
	"gain": {"gain <dB>", "set output gain in dB", func(c Controller, args []string) (string, error) {
		v, err := floatArg(args)
		if err != nil {
			return "", err
		}
		return "", c.SetLogScaleGain(v)
	}},
	"volume": {"volume <linear>", "set output gain as a linear factor", func(c Controller, args []string) (string, error) {
		v, err := floatArg(args)
		if err != nil {
			return "", err
		}
		return "", c.SetGain(v)
	}},
	"mute": {"mute on|off", "mute or unmute", func(c Controller, args []string) (string, error) {
		if len(args) != 1 {
			return "", ErrUsage
		}
		switch args[0] {
		case "on", "true", "1":
			return "", c.SetMute(true)
		case "off", "false", "0":
			return "", c.SetMute(false)
		}
		return "", ErrUsage
	}},
	"pan": {"pan <-1..1>", "set pan position", func(c Controller, args []string) (string, error) {
		v, err := floatArg(args)
		if err != nil {
			return "", err
		}
		return "", c.SetPan(v)
	}},
	"balance": {"balance <-1..1>", "set left/right balance", func(c Controller, args []string) (string, error) {
		v, err := floatArg(args)
		if err != nil {
			return "", err
		}
		return "", c.SetBalance(v)
	}},
	"speed": {"speed <factor>", "set playback speed for the next open", func(c Controller, args []string) (string, error) {
		v, err := floatArg(args)
		if err != nil {
			return "", err
		}
		return "", c.SetSpeedFactor(v)
	}},
	"eq": {"eq <bands...> | eq <band>=<gain>", "set equalizer bands", func(c Controller, args []string) (string, error) {
		if len(args) == 0 {
			return "", ErrUsage
		}
		if key, value, ok := strings.Cut(args[0], "="); ok && len(args) == 1 {
			k, err := strconv.Atoi(key)
			if err != nil {
				return "", ErrUsage
			}
			v, err := strconv.ParseFloat(value, 32)
			if err != nil {
				return "", ErrUsage
			}
			return "", c.SetEqualizerKey(float32(v), k)
		}
		bands := make([]float32, len(args))
		for i, a := range args {
			v, err := strconv.ParseFloat(a, 32)
			if err != nil {
				return "", ErrUsage
			}
			bands[i] = float32(v)
		}
		c.SetEqualizer(bands)
		return "", nil
	}},
	"devices": {"devices", "list output devices", func(c Controller, args []string) (string, error) {
		names, err := c.AvailableOutputDevices()
		if err != nil {
			return "", err
		}
		return strings.Join(names, "\n"), nil
	}},
	"device": {"device <name>", "select the output device for the next open", func(c Controller, args []string) (string, error) {
		if len(args) == 0 {
			return "", ErrUsage
		}
		return "", c.SetOutputDeviceName(strings.Join(args, " "))
	}},
	"status": {"status", "show transport status and controls", func(c Controller, args []string) (string, error) {
		return Status(c), nil
	}},
	"props": {"props", "show properties of the open source", func(c Controller, args []string) (string, error) {
		props := c.Properties()
		var b strings.Builder
		for _, k := range slices.Sorted(maps.Keys(props)) {
			fmt.Fprintf(&b, "%s = %v\n", k, props[k])
		}
		return strings.TrimSuffix(b.String(), "\n"), nil
	}},
}

// Status summarises the player in one line
func Status(c Controller) string {
	s := fmt.Sprintf("%s %d/%d bytes", c.Status(), c.EncodedStreamPosition(), c.TotalBytes())
	if d := c.DurationSeconds(); d >= 0 {
		s += fmt.Sprintf(" (%ds)", d)
	}
	s += fmt.Sprintf(" gain %+.1fdB pan %+.2f balance %+.2f", c.Gain(), c.Pan(), c.Balance())
	if c.Mute() {
		s += " muted"
	}
	return s
}

// Help lists the commands
func Help() string {
	var b strings.Builder
	for _, name := range slices.Sorted(maps.Keys(commands)) {
		fmt.Fprintf(&b, "  %-36s %s\n", commands[name].usage, commands[name].help)
	}
	fmt.Fprintf(&b, "  %-36s %s", "quit", "leave the shell")
	return b.String()
}

// Execute runs one command line and returns its output
func Execute(c Controller, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]
	switch name {
	case "quit", "exit":
		return "", ErrQuit
	case "help", "?":
		return Help(), nil
	}
	cmd, ok := commands[name]
	if !ok {
		return "", fmt.Errorf("unknown command %q, try help", name)
	}
	out, err := cmd.run(c, args)
	if errors.Is(err, ErrUsage) {
		return "", fmt.Errorf("%w: %s", ErrUsage, cmd.usage)
	}
	return out, err
}

func intArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, ErrUsage
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, ErrUsage
	}
	return n, nil
}

func floatArg(args []string) (float64, error) {
	if len(args) != 1 {
		return 0, ErrUsage
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, ErrUsage
	}
	return v, nil
}

func skipped(n int64, err error) (string, error) {
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("skipped %d bytes", n), nil
}

// Config holds shell configuration
type Config struct {
	Prompt      string
	HistoryFile string
	Stdin       io.ReadCloser
	Stdout      io.Writer
	Logger      *zap.Logger
}

// Run reads commands until quit, EOF or ctx is done
func Run(ctx context.Context, c Controller, cfg Config) error {
	if cfg.Prompt == "" {
		cfg.Prompt = "streamplayer> "
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.L()
	}
	log := cfg.Logger.Named("shell")

	items := []readline.PrefixCompleterInterface{readline.PcItem("help"), readline.PcItem("quit")}
	for _, name := range slices.Sorted(maps.Keys(commands)) {
		items = append(items, readline.PcItem(name))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cfg.Prompt,
		HistoryFile:     cfg.HistoryFile,
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		Stdin:           cfg.Stdin,
		Stdout:          cfg.Stdout,
	})
	if err != nil {
		return fmt.Errorf("failed to start shell: %w", err)
	}
	defer rl.Close()

	stop := context.AfterFunc(ctx, func() { rl.Close() })
	defer stop()

	out := rl.Stdout()
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		result, err := Execute(c, line)
		if errors.Is(err, ErrQuit) {
			return nil
		}
		if err != nil {
			log.Debug("Command failed", zap.String("line", line), zap.Error(err))
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if result != "" {
			fmt.Fprintln(out, result)
		}
	}
}
