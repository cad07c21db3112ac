package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Panel.Width != 296 || cfg.Panel.Height != 128 || cfg.Panel.LUT != "internal" {
		t.Errorf("default panel = %+v", cfg.Panel)
	}
	if cfg.Render.Interval != 50*time.Millisecond || cfg.Render.BandHeight != 8 || cfg.Render.Labels != 16 {
		t.Errorf("default render = %+v", cfg.Render)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config perms = %o, want 600", perm)
	}
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".inkband-config-*.tmp"))
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Listen = ":9090"
	cfg.Bus.Enable = "GPIO27"
	cfg.Panel.LUT = "register"
	cfg.Panel.Waveforms = &WaveformConfig{VCOM: []byte{1, 2, 3}, BB: []byte{0xff}}
	cfg.Render.Interval = 2 * time.Second
	cfg.Render.FullRefreshCron = "@hourly"
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "secret"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Listen != ":9090" || got.Bus.Enable != "GPIO27" || got.Panel.LUT != "register" {
		t.Errorf("loaded = %+v", got)
	}
	if got.Render.Interval != 2*time.Second || got.Render.FullRefreshCron != "@hourly" {
		t.Errorf("loaded render = %+v", got.Render)
	}
	if got.Panel.Waveforms == nil || !bytes.Equal(got.Panel.Waveforms.VCOM, []byte{1, 2, 3}) {
		t.Errorf("loaded waveforms = %+v", got.Panel.Waveforms)
	}
	if got.BasicAuth == nil || got.BasicAuth.Username != "admin" {
		t.Errorf("loaded basic auth = %+v", got.BasicAuth)
	}
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
listen: ""
panel:
  width: 252
  height: 96
render:
  interval: 250ms
  full_refresh_every: 100
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Listen != "" {
		t.Errorf("Listen = %q, want empty (server disabled)", cfg.Listen)
	}
	if cfg.Panel.Width != 252 || cfg.Panel.Height != 96 {
		t.Errorf("panel = %dx%d", cfg.Panel.Width, cfg.Panel.Height)
	}
	if cfg.Render.Interval != 250*time.Millisecond || cfg.Render.FullRefreshEvery != 100 {
		t.Errorf("render = %+v", cfg.Render)
	}
	if cfg.Bus.DC != "GPIO25" || cfg.Render.BandHeight != 8 {
		t.Errorf("defaults not filled: bus=%+v render=%+v", cfg.Bus, cfg.Render)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad yaml", "panel: [1, 2"},
		{"bad duration", "render:\n  interval: soon\n"},
		{"band height", "render:\n  band_height: 12\n"},
		{"busy polls", "panel:\n  max_busy_polls: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected error but didn't get one")
			}
		})
	}
}

func TestEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Error("Load(\"\") succeeded")
	}
	if err := Save("", DefaultConfig()); err == nil {
		t.Error("Save(\"\") succeeded")
	}
	if err := Save(filepath.Join(t.TempDir(), "c.yaml"), nil); err == nil {
		t.Error("Save(nil) succeeded")
	}
}
