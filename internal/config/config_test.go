// Package config provides configuration management for voxnote.
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ConfigSuite is a test suite for config operations.
type ConfigSuite struct {
	suite.Suite
	tempDir     string
	origHomeDir string
}

func (s *ConfigSuite) SetupTest() {
	var err error
	s.tempDir, err = os.MkdirTemp("", "config-test-*")
	s.Require().NoError(err)

	// Save and override HOME
	s.origHomeDir = os.Getenv("HOME")
	os.Setenv("HOME", s.tempDir)
	os.Unsetenv("OPENAI_API_KEY")
	os.Unsetenv("OPENAI_BASE_URL")
}

func (s *ConfigSuite) TearDownTest() {
	os.Setenv("HOME", s.origHomeDir)
	os.RemoveAll(s.tempDir)
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

// TestDefault tests default configuration values.
func (s *ConfigSuite) TestDefault() {
	cfg := Default()

	s.Equal(DefaultListenAddr, cfg.ListenAddr)
	s.Equal("whisper-1", cfg.OpenAI.TranscribeModel)
	s.Equal("gpt-3.5-turbo", cfg.OpenAI.AnalyzeModel)
	s.True(cfg.WatchInbox)
	s.Equal(4, cfg.MaxConns)
	s.Contains(cfg.DataDir, ".voxnote")
	s.Contains(cfg.RecordingsDir, "recordings")
}

// TestPaths tests derived paths.
func (s *ConfigSuite) TestPaths() {
	s.Contains(DataDir(), ".voxnote")
	s.Contains(DBPath(), "voxnote.db")
	s.Contains(ConfigPath(), "config.yaml")

	cfg := Default()
	s.Equal(filepath.Join(cfg.DataDir, "voxnote.db"), cfg.DBPath())
}

// TestLoadMissingFile tests that a missing config file yields defaults.
func (s *ConfigSuite) TestLoadMissingFile() {
	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal(Default().ListenAddr, cfg.ListenAddr)
}

// TestLoadFile tests reading the yaml file over defaults.
func (s *ConfigSuite) TestLoadFile() {
	s.Require().NoError(os.MkdirAll(DataDir(), 0o755))
	content := []byte("listen_addr: \":9999\"\nwatch_inbox: false\nopenai:\n  api_key: file-key\n")
	s.Require().NoError(os.WriteFile(ConfigPath(), content, 0o644))

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal(":9999", cfg.ListenAddr)
	s.False(cfg.WatchInbox)
	s.Equal("file-key", cfg.OpenAI.APIKey)
	// Unset file fields keep defaults.
	s.Equal("whisper-1", cfg.OpenAI.TranscribeModel)
}

// TestLoadEnvOverride tests that env vars win over the file.
func (s *ConfigSuite) TestLoadEnvOverride() {
	s.Require().NoError(os.MkdirAll(DataDir(), 0o755))
	content := []byte("openai:\n  api_key: file-key\n")
	s.Require().NoError(os.WriteFile(ConfigPath(), content, 0o644))

	os.Setenv("OPENAI_API_KEY", "env-key")
	os.Setenv("OPENAI_BASE_URL", "http://localhost:1234/v1")
	defer os.Unsetenv("OPENAI_API_KEY")
	defer os.Unsetenv("OPENAI_BASE_URL")

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal("env-key", cfg.OpenAI.APIKey)
	s.Equal("http://localhost:1234/v1", cfg.OpenAI.BaseURL)
}

// TestLoadMalformedFile tests the parse error path.
func (s *ConfigSuite) TestLoadMalformedFile() {
	s.Require().NoError(os.MkdirAll(DataDir(), 0o755))
	s.Require().NoError(os.WriteFile(ConfigPath(), []byte("listen_addr: [unclosed"), 0o644))

	_, err := Load()
	s.Error(err)
}

// TestEnsureAll tests directory creation.
func (s *ConfigSuite) TestEnsureAll() {
	cfg := Default()
	s.Require().NoError(cfg.EnsureAll())

	for _, dir := range []string{cfg.DataDir, cfg.RecordingsDir} {
		info, err := os.Stat(dir)
		s.Require().NoError(err)
		s.True(info.IsDir())
	}
}
