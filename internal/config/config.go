package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the daemon looks for its config when -config is not
// given.
const DefaultPath = "/etc/inkband/config.yaml"

// BusConfig names the SPI port and GPIO lines the panel is wired to. Pin
// names are periph gpioreg names such as "GPIO25".
type BusConfig struct {
	SPIPort string `yaml:"spi_port" json:"spi_port"`
	SPIHz   int64  `yaml:"spi_hz" json:"spi_hz"`
	DC      string `yaml:"dc" json:"dc"`
	CS      string `yaml:"cs" json:"cs"`
	Reset   string `yaml:"reset" json:"reset"`
	Busy    string `yaml:"busy" json:"busy"`
	// Enable powers the panel on boards that gate it; empty means none.
	Enable string `yaml:"enable,omitempty" json:"enable,omitempty"`
}

// WaveformConfig holds register LUT tables, used when Panel.LUT is
// "register".
type WaveformConfig struct {
	VCOM []byte `yaml:"vcom" json:"vcom"`
	WW   []byte `yaml:"ww" json:"ww"`
	BW   []byte `yaml:"bw" json:"bw"`
	WB   []byte `yaml:"wb" json:"wb"`
	BB   []byte `yaml:"bb" json:"bb"`
}

// PanelConfig describes the panel itself.
type PanelConfig struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
	// LUT is "internal" (OTP waveforms) or "register".
	LUT       string          `yaml:"lut" json:"lut"`
	Waveforms *WaveformConfig `yaml:"waveforms,omitempty" json:"waveforms,omitempty"`
	// MaxBusyPolls bounds busy waits; 0 waits forever.
	MaxBusyPolls int `yaml:"max_busy_polls" json:"max_busy_polls"`
}

// RenderConfig controls the band loop.
type RenderConfig struct {
	BandHeight int           `yaml:"band_height" json:"band_height"`
	Labels     int           `yaml:"labels" json:"labels"`
	Interval   time.Duration `yaml:"interval" json:"interval"`

	// FullRefreshEvery turns every n-th tick into a full update. 0 disables.
	FullRefreshEvery uint64 `yaml:"full_refresh_every" json:"full_refresh_every"`
	// FullRefreshCron is a cron schedule (e.g. "@hourly"); it wins over
	// FullRefreshEvery when set.
	FullRefreshCron string `yaml:"full_refresh_cron" json:"full_refresh_cron"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the status server.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address of the status server. Empty disables
	// the server.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Bus    BusConfig    `yaml:"bus" json:"bus"`
	Panel  PanelConfig  `yaml:"panel" json:"panel"`
	Render RenderConfig `yaml:"render" json:"render"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration for a Badger
// style 2.9" panel on a Raspberry Pi HAT.
func DefaultConfig() *Config {
	c := &Config{
		Listen:   "127.0.0.1:8080",
		LogLevel: "info",
	}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Bus.SPIHz <= 0 {
		c.Bus.SPIHz = 4_000_000
	}
	if c.Bus.DC == "" {
		c.Bus.DC = "GPIO25"
	}
	if c.Bus.CS == "" {
		c.Bus.CS = "GPIO8"
	}
	if c.Bus.Reset == "" {
		c.Bus.Reset = "GPIO17"
	}
	if c.Bus.Busy == "" {
		c.Bus.Busy = "GPIO24"
	}

	if c.Panel.Width == 0 && c.Panel.Height == 0 {
		c.Panel.Width, c.Panel.Height = 296, 128
	}
	if c.Panel.LUT == "" {
		c.Panel.LUT = "internal"
	}

	if c.Render.BandHeight == 0 {
		c.Render.BandHeight = 8
	}
	if c.Render.Labels == 0 {
		c.Render.Labels = 16
	}
	if c.Render.Interval == 0 {
		c.Render.Interval = 50 * time.Millisecond
	}
}

// Validate reports settings Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if c.Panel.MaxBusyPolls < 0 {
		errs = append(errs, fmt.Errorf("panel.max_busy_polls must not be negative"))
	}
	if c.Render.BandHeight < 0 || c.Render.BandHeight%8 != 0 {
		errs = append(errs, fmt.Errorf("render.band_height %d is not a positive multiple of 8", c.Render.BandHeight))
	}
	if c.Render.Labels < 0 {
		errs = append(errs, fmt.Errorf("render.labels must not be negative"))
	}
	if c.Render.Interval < 0 {
		errs = append(errs, fmt.Errorf("render.interval must not be negative"))
	}
	return errors.Join(errs...)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".inkband-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
