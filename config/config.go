/*
Package config resolves clipscribe settings. Values are layered: built-in
defaults, then an optional TOML file, then CLIPSCRIBE_* environment variables.
Command line flags are applied on top by the caller.
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultTimeout    = 5 * time.Minute
	DefaultResetDelay = 2000 * time.Millisecond
)

// Config holds the resolved settings
type Config struct {
	APIURL      string        `toml:"api_url"`
	Timeout     time.Duration `toml:"timeout"`
	ResetDelay  time.Duration `toml:"reset_delay"`
	FFmpegPath  string        `toml:"ffmpeg"`
	FFprobePath string        `toml:"ffprobe"`
	WorkDir     string        `toml:"work_dir"`
	Debug       bool          `toml:"debug"`
	LogFile     string        `toml:"log_file"`
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		Timeout:     DefaultTimeout,
		ResetDelay:  DefaultResetDelay,
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		LogFile:     "clipscribe-debug.log",
	}
}

// DefaultPath is the config file consulted when no path is given
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "clipscribe", "config.toml")
}

// Load builds a Config from defaults, the TOML file at path and the
// environment. An explicit path must exist; when path is empty DefaultPath
// is used if present.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: file %s not found: %w", path, err)
		}
		return fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config: unknown key %q in %s", undecoded[0].String(), path)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CLIPSCRIBE_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("CLIPSCRIBE_FFMPEG"); v != "" {
		c.FFmpegPath = v
	}
	if v := os.Getenv("CLIPSCRIBE_FFPROBE"); v != "" {
		c.FFprobePath = v
	}
	if v := os.Getenv("CLIPSCRIBE_WORK_DIR"); v != "" {
		c.WorkDir = v
	}
	if v := os.Getenv("CLIPSCRIBE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid CLIPSCRIBE_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v := os.Getenv("CLIPSCRIBE_RESET_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid CLIPSCRIBE_RESET_DELAY: %w", err)
		}
		c.ResetDelay = d
	}
	if v := os.Getenv("CLIPSCRIBE_DEBUG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: invalid CLIPSCRIBE_DEBUG: %w", err)
		}
		c.Debug = b
	}
	return nil
}

// Validate checks the settings needed to talk to the backend
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("config: API URL is required (set CLIPSCRIBE_API_URL, api_url in the config file, or --api-url)")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("config: timeout must be positive, got %s", c.Timeout)
	}
	if c.ResetDelay < 0 {
		return fmt.Errorf("config: reset delay must not be negative, got %s", c.ResetDelay)
	}
	return nil
}
