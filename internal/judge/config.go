package judge

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables read once at startup.
const (
	envService        = "MAGEHAND_JUDGE_SERVICE"
	envModel          = "MAGEHAND_JUDGE_MODEL"
	envAPIKey         = "MAGEHAND_JUDGE_API_KEY"
	envBaseURL        = "MAGEHAND_JUDGE_BASE_URL"
	envTimeoutSeconds = "MAGEHAND_JUDGE_TIMEOUT_SECONDS"
	envFailMode       = "MAGEHAND_JUDGE_FAIL_MODE"
	envTools          = "MAGEHAND_JUDGE_TOOLS"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout bounds one judge round trip.
	DefaultTimeout = 10 * time.Second

	// DefaultTools is the comma-separated default judged set: the four
	// remote-affecting tools.
	DefaultTools = "run_ssh_command,run_ssh_sudo_command,copy_file,patch_file"
)

// FailMode selects the behavior when the judge is unavailable.
type FailMode string

const (
	// FailOpen allows the call and logs a warning.
	FailOpen FailMode = "open"
	// FailClosed denies the call.
	FailClosed FailMode = "closed"
)

// ParseFailMode validates a fail-mode string.
func ParseFailMode(s string) (FailMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "open":
		return FailOpen, nil
	case "closed":
		return FailClosed, nil
	default:
		return "", fmt.Errorf("judge: invalid fail mode %q (want open or closed)", s)
	}
}

// Config holds the judge settings. Loaded once at startup, immutable
// and shared read-only thereafter.
type Config struct {
	Service  string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	FailMode FailMode
	Tools    []string
}

// ConfigFromEnv reads the judge configuration from the process
// environment, applying defaults over the provided base (typically
// zero, or values from an optional config file). An empty Service
// disables the judge entirely.
func ConfigFromEnv(base Config) (Config, error) {
	cfg := base

	if v := os.Getenv(envService); v != "" {
		cfg.Service = v
	}
	if v := os.Getenv(envModel); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv(envAPIKey); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv(envBaseURL); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv(envTimeoutSeconds); v != "" {
		secs, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("judge: invalid %s: %w", envTimeoutSeconds, err)
		}
		cfg.Timeout = time.Duration(secs) * time.Second
	}
	if v := os.Getenv(envFailMode); v != "" {
		mode, err := ParseFailMode(v)
		if err != nil {
			return Config{}, err
		}
		cfg.FailMode = mode
	}
	if v := os.Getenv(envTools); v != "" {
		cfg.Tools = SplitTools(v)
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.FailMode == "" {
		cfg.FailMode = FailOpen
	}
	if len(cfg.Tools) == 0 {
		cfg.Tools = SplitTools(DefaultTools)
	}
	return cfg, nil
}

// Enabled reports whether a judge backend was configured at all.
func (c Config) Enabled() bool {
	return c.Service != ""
}

// SplitTools parses a comma-separated judged tool list, trimming
// whitespace and dropping empties.
func SplitTools(raw string) []string {
	var tools []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			tools = append(tools, trimmed)
		}
	}
	return tools
}
