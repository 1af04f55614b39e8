// ABOUTME: Application configuration loaded through viper
// ABOUTME: Defaults in code, optional YAML file, STREAMPLAYER_ environment overrides and bound flags
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Resonate-Protocol/streamplayer-go/internal/logger"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio/output"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. STREAMPLAYER_OUTPUT_BACKEND
const EnvPrefix = "STREAMPLAYER"

// Config is the full application configuration
type Config struct {
	Output   OutputConfig   `mapstructure:"output" yaml:"output"`
	Playback PlaybackConfig `mapstructure:"playback" yaml:"playback"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Events   EventsConfig   `mapstructure:"events" yaml:"events"`
	UI       UIConfig       `mapstructure:"ui" yaml:"ui"`
	Record   RecordConfig   `mapstructure:"record" yaml:"record"`
}

type OutputConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend"`
	Device     string `mapstructure:"device" yaml:"device"`
	BufferSize int    `mapstructure:"buffer_size" yaml:"buffer_size"`
}

type PlaybackConfig struct {
	ChunkSize int           `mapstructure:"chunk_size" yaml:"chunk_size"`
	Speed     float64       `mapstructure:"speed" yaml:"speed"`
	GainDB    float64       `mapstructure:"gain_db" yaml:"gain_db"`
	PausePoll time.Duration `mapstructure:"pause_poll" yaml:"pause_poll"`
	StopGrace time.Duration `mapstructure:"stop_grace" yaml:"stop_grace"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// EventsConfig controls the websocket event feed. An empty Addr disables it.
type EventsConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Advertise bool   `mapstructure:"advertise" yaml:"advertise"`
	Name      string `mapstructure:"name" yaml:"name"`
}

type UIConfig struct {
	TUI bool `mapstructure:"tui" yaml:"tui"`
}

type RecordConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// Error reports an invalid configuration field
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Field + ": " + e.Message
}

// Defaults registers default values on v
func Defaults(v *viper.Viper) {
	v.SetDefault("output.backend", output.BackendOto)
	v.SetDefault("output.device", "")
	v.SetDefault("output.buffer_size", -1)
	v.SetDefault("playback.chunk_size", 4096)
	v.SetDefault("playback.speed", 1.0)
	v.SetDefault("playback.gain_db", 0.0)
	v.SetDefault("playback.pause_poll", "50ms")
	v.SetDefault("playback.stop_grace", "1s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "streamplayer.log")
	v.SetDefault("log.max_size_mb", 16)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("events.addr", "")
	v.SetDefault("events.advertise", false)
	v.SetDefault("events.name", "")
	v.SetDefault("ui.tui", true)
	v.SetDefault("record.path", "")
}

// New returns a viper instance with defaults and environment overrides.
// file is an explicit config file; empty searches for .streamplayer.yaml
// in the working directory, then $HOME.
func New(file string) *viper.Viper {
	v := viper.New()
	Defaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(".streamplayer")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds command-line flags to their keys. Flags that are absent
// from fs are skipped.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	for flag, key := range keys {
		f := fs.Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

// Load reads the config file if one exists and unmarshals the result.
// A missing file is only an error when it was named explicitly.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate reports the first invalid field
func (c *Config) Validate() error {
	if !slices.Contains(output.Backends(), c.Output.Backend) {
		return &Error{Field: "output.backend", Message: fmt.Sprintf("must be one of %s", strings.Join(output.Backends(), ", "))}
	}
	if c.Playback.ChunkSize <= 0 {
		return &Error{Field: "playback.chunk_size", Message: "must be positive"}
	}
	if c.Playback.ChunkSize%4 != 0 {
		return &Error{Field: "playback.chunk_size", Message: "must be a multiple of 4 bytes"}
	}
	if c.Playback.Speed <= 0 {
		return &Error{Field: "playback.speed", Message: "must be positive"}
	}
	if c.Playback.GainDB < output.MinGainDB || c.Playback.GainDB > output.MaxGainDB {
		return &Error{Field: "playback.gain_db", Message: fmt.Sprintf("must be within [%g, %g]", output.MinGainDB, output.MaxGainDB)}
	}
	if c.Playback.PausePoll <= 0 {
		return &Error{Field: "playback.pause_poll", Message: "must be positive"}
	}
	if c.Playback.StopGrace <= 0 {
		return &Error{Field: "playback.stop_grace", Message: "must be positive"}
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return &Error{Field: "log.level", Message: "must be debug, info, warn or error"}
	}
	if c.Events.Advertise && c.Events.Addr == "" {
		return &Error{Field: "events.advertise", Message: "requires events.addr"}
	}
	return nil
}
