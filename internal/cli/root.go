// ABOUTME: Cobra command tree for the streamplayer binary
// ABOUTME: Root command plays a source; subcommands inspect devices, media, config and remote players
package cli

import (
	"fmt"
	"os"

	"github.com/Resonate-Protocol/streamplayer-go/internal/config"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flagKeys maps command-line flags to configuration keys
var flagKeys = map[string]string{
	"backend":     "output.backend",
	"device":      "output.device",
	"buffer-size": "output.buffer_size",
	"chunk-size":  "playback.chunk_size",
	"speed":       "playback.speed",
	"gain":        "playback.gain_db",
	"log-level":   "log.level",
	"log-file":    "log.file",
	"events":      "events.addr",
	"advertise":   "events.advertise",
	"name":        "events.name",
	"tui":         "ui.tui",
	"record":      "record.path",
}

type app struct {
	cfgFile    string
	verbose    bool
	v          *viper.Viper
	isTerminal func(fd uintptr) bool
}

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{isTerminal: isatty.IsTerminal})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "streamplayer [file|url|-]",
		Short: "Stream audio files and URLs to an output device",
		Long: `streamplayer decodes MP3, FLAC, WAV, Ogg Opus and Ogg Vorbis from files,
HTTP URLs or standard input and plays them through oto, miniaudio or PortAudio.

Playback is controlled from a terminal UI, an interactive shell, or remotely
over a websocket event feed that can be advertised with mDNS.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		RunE: a.runPlay,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is ./.streamplayer.yaml, then $HOME/.streamplayer.yaml)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	pf.StringP("backend", "b", "", "output backend (oto, malgo, portaudio, null)")
	pf.StringP("device", "d", "", "output device name")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-file", "", "log file path")

	f := root.Flags()
	f.Int("buffer-size", 0, "output buffer in bytes (-1 for the device default)")
	f.Int("chunk-size", 0, "PCM bytes per write")
	f.Float64("speed", 0, "playback speed factor")
	f.Float64("gain", 0, "initial gain in dB")
	f.String("events", "", "serve the websocket event feed on this address, e.g. :8927")
	f.Bool("advertise", false, "advertise the event feed with mDNS")
	f.String("name", "", "name announced by the event feed")
	f.Bool("tui", true, "use the terminal UI when attached to a terminal")
	f.String("record", "", "write the played PCM to this WAV file")

	root.AddCommand(
		a.devicesCommand(),
		a.probeCommand(),
		a.discoverCommand(),
		a.remoteCommand(),
		a.configCommand(),
		versionCommand(),
	)
	return root
}

// Execute runs the command tree and exits non-zero on error
func Execute() {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		os.Exit(1)
	}
}

// init builds the viper instance and binds the flags of the running command
func (a *app) init(cmd *cobra.Command) error {
	a.v = config.New(a.cfgFile)
	if err := config.BindFlags(a.v, cmd.Flags(), flagKeys); err != nil {
		return err
	}
	if a.verbose {
		a.v.Set("log.level", "debug")
	}
	return nil
}

// load reads and validates the configuration
func (a *app) load() (*config.Config, error) {
	cfg, err := config.Load(a.v)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}
