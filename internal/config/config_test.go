// ABOUTME: Tests for configuration loading and validation
// ABOUTME: Covers defaults, YAML files, environment overrides and field checks
package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func loadFrom(t *testing.T, file string) *Config {
	t.Helper()
	cfg, err := Load(New(file))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return cfg
}

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg := loadFrom(t, "")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Output.Backend != "oto" || cfg.Output.BufferSize != -1 {
		t.Errorf("unexpected output defaults %+v", cfg.Output)
	}
	if cfg.Playback.ChunkSize != 4096 || cfg.Playback.Speed != 1 {
		t.Errorf("unexpected playback defaults %+v", cfg.Playback)
	}
	if cfg.Playback.PausePoll != 50*time.Millisecond || cfg.Playback.StopGrace != time.Second {
		t.Errorf("unexpected timing defaults %+v", cfg.Playback)
	}
	if !cfg.UI.TUI || cfg.Events.Addr != "" {
		t.Errorf("unexpected ui/events defaults %+v %+v", cfg.UI, cfg.Events)
	}
}

func TestYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "player.yaml")
	yaml := `output:
  backend: "null"
  device: "USB DAC"
playback:
  speed: 1.5
  stop_grace: 2s
events:
  addr: ":8928"
  advertise: true
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg := loadFrom(t, path)
	if cfg.Output.Backend != "null" || cfg.Output.Device != "USB DAC" {
		t.Errorf("unexpected output %+v", cfg.Output)
	}
	if cfg.Playback.Speed != 1.5 || cfg.Playback.StopGrace != 2*time.Second {
		t.Errorf("unexpected playback %+v", cfg.Playback)
	}
	if cfg.Playback.ChunkSize != 4096 {
		t.Errorf("expected default chunk size to survive, got %d", cfg.Playback.ChunkSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestMissingExplicitFile(t *testing.T) {
	if _, err := Load(New(filepath.Join(t.TempDir(), "absent.yaml"))); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
}

func TestEnvironmentOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("STREAMPLAYER_OUTPUT_BACKEND", "malgo")
	t.Setenv("STREAMPLAYER_PLAYBACK_CHUNK_SIZE", "8192")

	cfg := loadFrom(t, "")
	if cfg.Output.Backend != "malgo" || cfg.Playback.ChunkSize != 8192 {
		t.Errorf("expected environment overrides, got %+v %+v", cfg.Output, cfg.Playback)
	}
}

func TestBindFlags(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("backend", "oto", "")
	fs.Float64("speed", 1, "")
	if err := fs.Parse([]string{"--backend", "null", "--speed", "0.5"}); err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	v := New("")
	err := BindFlags(v, fs, map[string]string{
		"backend": "output.backend",
		"speed":   "playback.speed",
		"absent":  "output.device",
	})
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Output.Backend != "null" || cfg.Playback.Speed != 0.5 {
		t.Errorf("expected flag values, got %+v %+v", cfg.Output, cfg.Playback)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"backend", func(c *Config) { c.Output.Backend = "alsa" }, "output.backend"},
		{"chunk zero", func(c *Config) { c.Playback.ChunkSize = 0 }, "playback.chunk_size"},
		{"chunk unaligned", func(c *Config) { c.Playback.ChunkSize = 1001 }, "playback.chunk_size"},
		{"speed", func(c *Config) { c.Playback.Speed = 0 }, "playback.speed"},
		{"gain", func(c *Config) { c.Playback.GainDB = 12 }, "playback.gain_db"},
		{"pause poll", func(c *Config) { c.Playback.PausePoll = 0 }, "playback.pause_poll"},
		{"stop grace", func(c *Config) { c.Playback.StopGrace = -time.Second }, "playback.stop_grace"},
		{"log level", func(c *Config) { c.Log.Level = "chatty" }, "log.level"},
		{"advertise", func(c *Config) { c.Events.Advertise = true }, "events.advertise"},
	}

	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadFrom(t, "")
			tt.mutate(cfg)
			err := cfg.Validate()
			var cerr *Error
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if cerr.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, cerr.Field)
			}
		})
	}
}
