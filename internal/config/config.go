// Package config loads the optional magehand server configuration
// file. Everything in it is a default: environment variables always
// win, and a missing file is not an error.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/misty-step/magehand/internal/judge"
)

// Server is the on-disk configuration shape.
type Server struct {
	// LogFile overrides the tool-call log location.
	LogFile string `yaml:"log_file"`
	// Multiplex enables ssh connection multiplexing for all remote
	// operations.
	Multiplex bool `yaml:"multiplex"`
	// Judge provides defaults for the judge; MAGEHAND_JUDGE_* variables
	// override every field.
	Judge Judge `yaml:"judge"`
}

// Judge mirrors the judge settings that may be given in the file.
type Judge struct {
	Service        string `yaml:"service"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds uint64 `yaml:"timeout_seconds"`
	FailMode       string `yaml:"fail_mode"`
	Tools          string `yaml:"tools"`
}

// Load parses one server config file. An empty path or a missing file
// yields the zero configuration.
func Load(path string) (Server, error) {
	if path == "" {
		return Server{}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Server{}, nil
		}
		return Server{}, fmt.Errorf("reading config %q: %w", path, err)
	}

	var server Server
	if err := yaml.Unmarshal(raw, &server); err != nil {
		return Server{}, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return server, nil
}

// JudgeBase converts the file's judge section into the base the
// environment is layered over.
func (s Server) JudgeBase() (judge.Config, error) {
	mode := judge.FailMode("")
	if s.Judge.FailMode != "" {
		parsed, err := judge.ParseFailMode(s.Judge.FailMode)
		if err != nil {
			return judge.Config{}, err
		}
		mode = parsed
	}

	cfg := judge.Config{
		Service:  s.Judge.Service,
		Model:    s.Judge.Model,
		APIKey:   s.Judge.APIKey,
		BaseURL:  s.Judge.BaseURL,
		FailMode: mode,
	}
	if s.Judge.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(s.Judge.TimeoutSeconds) * time.Second
	}
	if s.Judge.Tools != "" {
		cfg.Tools = judge.SplitTools(s.Judge.Tools)
	}
	return cfg, nil
}

// DefaultLogFile returns the tool-call log path under the user state
// directory, honoring XDG_STATE_HOME.
func DefaultLogFile() (string, error) {
	if stateHome := os.Getenv("XDG_STATE_HOME"); stateHome != "" {
		return filepath.Join(stateHome, "magehand", "tool_calls.jsonl"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "state", "magehand", "tool_calls.jsonl"), nil
}
