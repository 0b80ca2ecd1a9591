package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseValidJSONCConfig(t *testing.T) {
	cfg, warnings, err := Parse(`
{
  // control endpoint
  "endpoint": "/tmp/ctrloem3.sock",
  "probe_timeout_ms": 300,
  "worker": {
    "cmd": "/opt/ctrloem3/ctrl-oem3-native --log-level 'debug'",
    "matches_window_title": ".* - Visual Studio Code$",
    "connect_delay_ms": 250,
    "restart_delay_ms": 750,
  },
}
`, Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, "/tmp/ctrloem3.sock", cfg.Endpoint)
	require.Equal(t, 300, cfg.ProbeTimeoutMS)
	require.Equal(t, []string{"/opt/ctrloem3/ctrl-oem3-native", "--log-level", "debug"}, cfg.Worker.Command.Argv)
	require.Equal(t, ".* - Visual Studio Code$", cfg.Worker.MatchesWindowTitle)
	require.Equal(t, 250, cfg.Worker.ConnectDelayMS)
	require.Equal(t, 750, cfg.Worker.RestartDelayMS)
}

func TestParseValidYAMLConfig(t *testing.T) {
	cfg, warnings, err := Parse(`
# control endpoint
endpoint: /tmp/ctrloem3.sock
worker:
  cmd: ctrl-oem3-native --verbose
  matches_window_title: "Code - Insiders"
  connect_delay_ms: 100
`, Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, "/tmp/ctrloem3.sock", cfg.Endpoint)
	require.Equal(t, []string{"ctrl-oem3-native", "--verbose"}, cfg.Worker.Command.Argv)
	require.Equal(t, "Code - Insiders", cfg.Worker.MatchesWindowTitle)
	require.Equal(t, 100, cfg.Worker.ConnectDelayMS)
	require.Equal(t, 500, cfg.Worker.RestartDelayMS)
	require.Equal(t, 250, cfg.ProbeTimeoutMS)
}

func TestParseEmptyContentUsesBase(t *testing.T) {
	cfg, warnings, err := Parse("  \n", Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, Default(), cfg)
}

func TestParseYAMLCommentOnlyUsesBase(t *testing.T) {
	cfg, _, err := Parse("# nothing configured\n", Default())
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestParseUnknownKeyFails(t *testing.T) {
	_, _, err := Parse(`{"worker":{"unknown":true}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown field")

	_, _, err = Parse("worker:\n  unknown: true\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestParseYAMLErrorIncludesLine(t *testing.T) {
	_, _, err := Parse("worker:\n  connect_delay_ms: soon\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 2")
}

func TestParseYAMLRejectsMultipleDocuments(t *testing.T) {
	_, _, err := Parse("probe_timeout_ms: 100\n---\nprobe_timeout_ms: 200\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple YAML documents")
}

func TestParseCommandArgvQuoted(t *testing.T) {
	cfg, _, err := Parse(`{"worker":{"cmd":"\"/opt/Ctrl OEM3/native\" --flag"}}`, Default())
	require.NoError(t, err)
	require.Equal(t, []string{"/opt/Ctrl OEM3/native", "--flag"}, cfg.Worker.Command.Argv)
}
