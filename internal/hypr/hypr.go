// Package hypr reads window state from the Hyprland compositor via hyprctl.
package hypr

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrUnavailable reports that hyprctl is not on PATH.
var ErrUnavailable = errors.New("hyprctl not found in PATH")

// Available reports whether hyprctl can be executed.
func Available() bool {
	_, err := exec.LookPath("hyprctl")
	return err == nil
}

func runHyprctlOutput(ctx context.Context, args ...string) ([]byte, error) {
	if !Available() {
		return nil, ErrUnavailable
	}
	cmd := exec.CommandContext(ctx, "hyprctl", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return nil, fmt.Errorf("hyprctl %v failed: %w", args, err)
		}
		return nil, fmt.Errorf("hyprctl %v failed: %w (%s)", args, err, trimmed)
	}
	return out, nil
}
