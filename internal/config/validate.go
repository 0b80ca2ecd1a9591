package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" && !filepath.IsAbs(endpoint) {
		return nil, fmt.Errorf("endpoint must be an absolute socket path")
	}
	if cfg.ProbeTimeoutMS <= 0 {
		return nil, fmt.Errorf("probe_timeout_ms must be > 0")
	}
	if len(cfg.Worker.Command.Argv) == 0 {
		return nil, fmt.Errorf("worker.cmd must not be empty")
	}
	if cfg.Worker.ConnectDelayMS < 0 {
		return nil, fmt.Errorf("worker.connect_delay_ms must be >= 0")
	}
	if cfg.Worker.RestartDelayMS < 0 {
		return nil, fmt.Errorf("worker.restart_delay_ms must be >= 0")
	}

	if strings.TrimSpace(cfg.Worker.MatchesWindowTitle) == "" {
		warnings = append(warnings, Warning{Message: "worker.matches_window_title is empty; the worker will not match any window"})
	}

	return warnings, nil
}
