// Package config loads chorusd's project configuration: a
// chorus.json file at the project root, with defaults for every field.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is chorusd's full runtime configuration for one project.
type Config struct {
	ProjectName string `json:"-"`
	ProjectRoot string `json:"-"`

	RuntimeDir string `json:"runtime_dir"`

	IdleThresholdSeconds  int   `json:"idle_threshold_seconds"`
	SilenceTimeoutSeconds int   `json:"silence_timeout_seconds"`
	BackoffInitialSeconds int   `json:"backoff_initial_seconds"`
	BackoffCapSeconds     int   `json:"backoff_cap_seconds"`
	StdoutLogMaxBytes     int64 `json:"stdout_log_max_bytes"`

	// AgentProxy is passed only to the agent process invocation as
	// HTTP_PROXY/HTTPS_PROXY; empty means no proxy. Falls back to the
	// ambient HTTP_PROXY environment variable when unset in the file.
	AgentProxy string `json:"agent_proxy,omitempty"`

	AgentCommand     string `json:"agent_command"`
	AgentProcessName string `json:"agent_process_name"`
}

const fileName = "chorus.json"

type fileFormat struct {
	RuntimeDir            string `json:"runtime_dir"`
	IdleThresholdSeconds  int    `json:"idle_threshold_seconds"`
	SilenceTimeoutSeconds int    `json:"silence_timeout_seconds"`
	BackoffInitialSeconds int    `json:"backoff_initial_seconds"`
	BackoffCapSeconds     int    `json:"backoff_cap_seconds"`
	StdoutLogMaxBytes     int64  `json:"stdout_log_max_bytes"`
	AgentProxy            string `json:"agent_proxy"`
	AgentCommand          string `json:"agent_command"`
	AgentProcessName      string `json:"agent_process_name"`
}

// Load reads <projectRoot>/chorus.json if present and fills in defaults
// for any field it omits. A missing file is not an error; it yields an
// all-defaults Config.
func Load(projectRoot string) (*Config, error) {
	path := filepath.Join(projectRoot, fileName)
	var ff fileFormat
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(data, &ff); jsonErr != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, jsonErr)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	name := filepath.Base(projectRoot)

	cfg := &Config{
		ProjectName:           name,
		ProjectRoot:           projectRoot,
		RuntimeDir:            firstNonEmpty(ff.RuntimeDir, filepath.Join(os.TempDir(), "chorus")),
		IdleThresholdSeconds:  firstNonZero(ff.IdleThresholdSeconds, 30),
		SilenceTimeoutSeconds: firstNonZero(ff.SilenceTimeoutSeconds, 3),
		BackoffInitialSeconds: firstNonZero(ff.BackoffInitialSeconds, 1),
		BackoffCapSeconds:     firstNonZero(ff.BackoffCapSeconds, 60),
		StdoutLogMaxBytes:     firstNonZero64(ff.StdoutLogMaxBytes, 1<<20),
		AgentProxy:            firstNonEmpty(ff.AgentProxy, os.Getenv("HTTP_PROXY")),
		AgentCommand:          firstNonEmpty(ff.AgentCommand, "claude --dangerously-skip-permissions --continue"),
		AgentProcessName:      firstNonEmpty(ff.AgentProcessName, "claude"),
	}
	return cfg, nil
}

func firstNonEmpty(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func firstNonZero(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func firstNonZero64(v, def int64) int64 {
	if v != 0 {
		return v
	}
	return def
}

// TmuxSession returns the tmux session name for this project.
func (c *Config) TmuxSession() string {
	return "chorusd-" + c.ProjectName
}

// SessionRuntimeDir returns the per-session runtime directory
// (RuntimeDir/<project name>).
func (c *Config) SessionRuntimeDir() string {
	return filepath.Join(c.RuntimeDir, c.ProjectName)
}

// IdleThreshold returns IdleThresholdSeconds as a Duration.
func (c *Config) IdleThreshold() time.Duration {
	return time.Duration(c.IdleThresholdSeconds) * time.Second
}

// SilenceTimeout returns SilenceTimeoutSeconds as a Duration.
func (c *Config) SilenceTimeout() time.Duration {
	return time.Duration(c.SilenceTimeoutSeconds) * time.Second
}

// BackoffInitial returns BackoffInitialSeconds as a Duration.
func (c *Config) BackoffInitial() time.Duration {
	return time.Duration(c.BackoffInitialSeconds) * time.Second
}

// BackoffCap returns BackoffCapSeconds as a Duration.
func (c *Config) BackoffCap() time.Duration {
	return time.Duration(c.BackoffCapSeconds) * time.Second
}
