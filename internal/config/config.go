// Package config provides configuration management for voxnote.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultListenAddr      = ":7411"
	DefaultTranscribeModel = openai.Whisper1
	DefaultAnalyzeModel    = openai.GPT3Dot5Turbo
)

// OpenAIConfig holds enrichment service settings.
type OpenAIConfig struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	TranscribeModel string `yaml:"transcribe_model"`
	AnalyzeModel    string `yaml:"analyze_model"`
}

// Config is the daemon configuration.
type Config struct {
	DataDir       string       `yaml:"data_dir"`
	RecordingsDir string       `yaml:"recordings_dir"`
	ListenAddr    string       `yaml:"listen_addr"`
	WatchInbox    bool         `yaml:"watch_inbox"`
	MaxConns      int          `yaml:"max_conns"`
	OpenAI        OpenAIConfig `yaml:"openai"`
}

// DataDir returns the default data directory (~/.voxnote).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".voxnote")
}

// DBPath returns the default catalog database path.
func DBPath() string {
	return filepath.Join(DataDir(), "voxnote.db")
}

// RecordingsDir returns the default recordings directory.
func RecordingsDir() string {
	return filepath.Join(DataDir(), "recordings")
}

// ConfigPath returns the config file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.yaml")
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DataDir:       DataDir(),
		RecordingsDir: RecordingsDir(),
		ListenAddr:    DefaultListenAddr,
		WatchInbox:    true,
		MaxConns:      4,
		OpenAI: OpenAIConfig{
			TranscribeModel: DefaultTranscribeModel,
			AnalyzeModel:    DefaultAnalyzeModel,
		},
	}
}

// Load reads the config file over the defaults. A missing file is not an
// error. OPENAI_API_KEY and OPENAI_BASE_URL env vars override the file.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(ConfigPath())
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", ConfigPath(), err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", ConfigPath(), err)
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.OpenAI.APIKey = key
	}
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		cfg.OpenAI.BaseURL = base
	}

	if cfg.OpenAI.TranscribeModel == "" {
		cfg.OpenAI.TranscribeModel = DefaultTranscribeModel
	}
	if cfg.OpenAI.AnalyzeModel == "" {
		cfg.OpenAI.AnalyzeModel = DefaultAnalyzeModel
	}
	return cfg, nil
}

// DBPath returns the catalog database path under the configured data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "voxnote.db")
}

// EnsureAll creates the data and recordings directories.
func (c *Config) EnsureAll() error {
	for _, dir := range []string{c.DataDir, c.RecordingsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
