// Package config loads sauticore configuration from ~/.sautisahihi and
// applies environment overrides. The file is JSON; a starter config is
// written on first run so users have something to edit.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sautisahihi/sauticore/internal/provider"
)

// Config is the merged sauticore configuration.
type Config struct {
	Gateway   GatewayConfig              `json:"gateway"`
	Data      DataConfig                 `json:"data"`
	Log       LogConfig                  `json:"log"`
	Providers map[string]provider.ClientConfig `json:"providers"`
	Chains    map[string][]string        `json:"chains"`
	Retry     RetryConfig                `json:"retry"`
	Chat      ChatConfig                 `json:"chat"`
	News      NewsConfig                 `json:"news"`
}

type GatewayConfig struct {
	Port int `json:"port"`
}

type DataConfig struct {
	Dir string `json:"dir"` // holds sauticore.db
}

type LogConfig struct {
	Level string `json:"level"` // debug, info, warn, error
}

type RetryConfig struct {
	MaxAttempts int `json:"maxAttempts"`
	BackoffMS   int `json:"backoffMs"`
}

type ChatConfig struct {
	TokenBudget int `json:"tokenBudget"`
}

type NewsConfig struct {
	RefreshCron string   `json:"refreshCron"` // empty disables the refresher
	Languages   []string `json:"languages"`
}

// ConfigDir returns the sauticore config directory, honoring
// SAUTICORE_HOME for tests and containers.
func ConfigDir() string {
	if dir := os.Getenv("SAUTICORE_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".sautisahihi")
}

// Path returns the config file location.
func Path() string {
	return filepath.Join(ConfigDir(), "sautisahihi.json")
}

// Default returns the starter configuration. The gemini provider leads every
// chain; huggingface covers images and the HF-only capabilities.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{Port: 3380},
		Data:    DataConfig{Dir: ConfigDir()},
		Log:     LogConfig{Level: "info"},
		Providers: map[string]provider.ClientConfig{
			"gemini":      {Driver: "gemini"},
			"huggingface": {Driver: "huggingface"},
		},
		Chains: map[string][]string{
			"factcheck": {"gemini"},
			"news":      {"gemini"},
			"image":     {"gemini", "huggingface"},
			"audio":     {"gemini"},
		},
		Retry: RetryConfig{MaxAttempts: 2, BackoffMS: 500},
		Chat:  ChatConfig{TokenBudget: 6000},
		News: NewsConfig{
			RefreshCron: "*/30 * * * *",
			Languages:   []string{"ENG", "KIS"},
		},
	}
}

// Load reads the config file, writing the starter config first if none
// exists. Environment overrides apply after the file.
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom reads a specific config file path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if werr := AtomicWriteJSON(path, cfg, 0600); werr != nil {
			return nil, fmt.Errorf("write starter config: %w", werr)
		}
	} else if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if port := os.Getenv("SAUTICORE_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			c.Gateway.Port = n
		}
	}
	if level := os.Getenv("SAUTICORE_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	// Provider keys stay in the environment; the drivers read
	// GEMINI_API_KEY, HF_API_TOKEN and OPENAI_API_KEY themselves when the
	// file leaves apiKey empty.
}

func (c *Config) validate() error {
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("config: invalid gateway port %d", c.Gateway.Port)
	}
	for capability, chain := range c.Chains {
		for _, name := range chain {
			if _, ok := c.Providers[name]; !ok {
				return fmt.Errorf("config: chain %q references unknown provider %q", capability, name)
			}
		}
	}
	for _, code := range c.News.Languages {
		if !provider.Language(code).Valid() {
			return fmt.Errorf("config: unknown news language %q", code)
		}
	}
	return nil
}

// DatabasePath returns the shared SQLite file location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Data.Dir, "sauticore.db")
}
