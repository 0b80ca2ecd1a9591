// Package config resolves, parses, validates, and defaults ctrloem3 configuration.
package config

import "time"

// Config is the fully materialized runtime configuration used by ctrloem3.
type Config struct {
	Endpoint       string
	ProbeTimeoutMS int
	Worker         WorkerConfig
}

// WorkerConfig controls how the native worker is launched and reached.
type WorkerConfig struct {
	Command            CommandConfig
	MatchesWindowTitle string
	ConnectDelayMS     int
	RestartDelayMS     int
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMS) * time.Millisecond
}

// ConnectDelay is the wait between spawning the worker and the first connect.
func (w WorkerConfig) ConnectDelay() time.Duration {
	return time.Duration(w.ConnectDelayMS) * time.Millisecond
}

// RestartDelay is the wait between a stop request and the next spawn.
func (w WorkerConfig) RestartDelay() time.Duration {
	return time.Duration(w.RestartDelayMS) * time.Millisecond
}
