// Package config loads the relay's YAML configuration with environment
// variable expansion, the way the teacher application's internal/config
// package does.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the relay's configuration.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ScreenshotDir is the relay-private directory GET /screenshots/<file>
	// serves from. The orchestrator writes files here; the relay never
	// writes to it itself.
	ScreenshotDir string `yaml:"screenshotDir"`

	// ForwardTimeout bounds a relay->extension forwardCDPCommand call.
	ForwardTimeout time.Duration `yaml:"forwardTimeout"`
	// OpenAndAttachTimeout bounds the full openAndAttach flow.
	OpenAndAttachTimeout time.Duration `yaml:"openAndAttachTimeout"`
	// TabLoadTimeout and PreflightTimeout carry the defaults of the
	// extension-side agent's tab-load wait and advisory HEAD probe. The
	// relay itself does not read them; the agent process takes its own
	// values from extagent.Config.
	TabLoadTimeout   time.Duration `yaml:"tabLoadTimeout"`
	PreflightTimeout time.Duration `yaml:"preflightTimeout"`

	// RequireDiscoveryToken gates the /json* discovery endpoints behind a
	// token header, checked for every caller. Off by default: spec.md's
	// Non-goals exclude per-client CDP authentication beyond loopback and
	// Origin gating, so this is an opt-in extra, not a default posture.
	RequireDiscoveryToken bool `yaml:"requireDiscoveryToken"`

	// Trace enables verbose per-frame CDP logging.
	Trace bool `yaml:"trace"`
}

const (
	DefaultPort                 = 18792
	DefaultForwardTimeout        = 30 * time.Second
	DefaultOpenAndAttachTimeout  = 60 * time.Second
	DefaultTabLoadTimeout        = 30 * time.Second
	DefaultPreflightTimeout      = 2 * time.Second
)

// Default returns the relay's default configuration.
func Default() Config {
	return Config{
		Host:                 "127.0.0.1",
		Port:                 DefaultPort,
		ForwardTimeout:       DefaultForwardTimeout,
		OpenAndAttachTimeout: DefaultOpenAndAttachTimeout,
		TabLoadTimeout:       DefaultTabLoadTimeout,
		PreflightTimeout:     DefaultPreflightTimeout,
	}
}

// LoadFromBytes loads configuration from YAML bytes with environment
// variable expansion, then applies defaults for anything left unset.
func LoadFromBytes(data []byte) (Config, error) {
	c := Default()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		return c, err
	}
	applyDefaults(&c)
	applyEnv(&c)
	return c, nil
}

// LoadFromFile loads configuration from a YAML file. A missing file is not
// an error; defaults (possibly overridden by environment variables) apply.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			c := Default()
			applyEnv(&c)
			return c, nil
		}
		return Config{}, err
	}
	return LoadFromBytes(data)
}

func applyDefaults(c *Config) {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ForwardTimeout == 0 {
		c.ForwardTimeout = DefaultForwardTimeout
	}
	if c.OpenAndAttachTimeout == 0 {
		c.OpenAndAttachTimeout = DefaultOpenAndAttachTimeout
	}
	if c.TabLoadTimeout == 0 {
		c.TabLoadTimeout = DefaultTabLoadTimeout
	}
	if c.PreflightTimeout == 0 {
		c.PreflightTimeout = DefaultPreflightTimeout
	}
}

// applyEnv lets container deployments override host/port/screenshot-dir
// without a config file, mirroring the teacher's NEBO_CONFIG_DIR convention.
func applyEnv(c *Config) {
	if v := os.Getenv("CDPRELAY_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("CDPRELAY_PORT"); v != "" {
		var p int
		if _, err := fmt.Sscanf(v, "%d", &p); err == nil && p > 0 {
			c.Port = p
		}
	}
	if v := os.Getenv("CDPRELAY_SCREENSHOT_DIR"); v != "" {
		c.ScreenshotDir = v
	}
}
