package config

import (
	"fmt"
	"strings"
)

// filePayload is the on-disk shape shared by the JSONC and YAML formats.
// Pointer fields distinguish "absent" from zero values.
type filePayload struct {
	Endpoint       *string        `json:"endpoint" yaml:"endpoint"`
	ProbeTimeoutMS *int           `json:"probe_timeout_ms" yaml:"probe_timeout_ms"`
	Worker         *workerPayload `json:"worker" yaml:"worker"`
}

type workerPayload struct {
	Cmd                *string `json:"cmd" yaml:"cmd"`
	MatchesWindowTitle *string `json:"matches_window_title" yaml:"matches_window_title"`
	ConnectDelayMS     *int    `json:"connect_delay_ms" yaml:"connect_delay_ms"`
	RestartDelayMS     *int    `json:"restart_delay_ms" yaml:"restart_delay_ms"`
}

// materialize overlays the payload on base and validates the result.
func (payload filePayload) materialize(base Config) (Config, []Warning, error) {
	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func (payload filePayload) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if payload.Endpoint != nil {
		cfg.Endpoint = strings.TrimSpace(*payload.Endpoint)
	}
	if payload.ProbeTimeoutMS != nil {
		cfg.ProbeTimeoutMS = *payload.ProbeTimeoutMS
	}

	if payload.Worker != nil {
		if payload.Worker.Cmd != nil {
			raw := *payload.Worker.Cmd
			argv, err := parseWorkerCommand(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid worker command: %w", err)
			}
			cfg.Worker.Command = CommandConfig{Raw: raw, Argv: argv}
		}
		if payload.Worker.MatchesWindowTitle != nil {
			cfg.Worker.MatchesWindowTitle = *payload.Worker.MatchesWindowTitle
		}
		if payload.Worker.ConnectDelayMS != nil {
			cfg.Worker.ConnectDelayMS = *payload.Worker.ConnectDelayMS
		}
		if payload.Worker.RestartDelayMS != nil {
			cfg.Worker.RestartDelayMS = *payload.Worker.RestartDelayMS
		}
	}

	return warnings, nil
}
