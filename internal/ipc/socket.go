package ipc

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// Network is the socket family used for the control endpoint.
const Network = "unix"

// Dialer opens transport connections to the control endpoint.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DefaultDialer returns the dialer used when none is injected.
func DefaultDialer() Dialer {
	return &net.Dialer{}
}

// RuntimeSocketPath returns the default endpoint under XDG_RUNTIME_DIR.
func RuntimeSocketPath() (string, error) {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, "ctrloem3.sock"), nil
}

// IsSocketMissing reports absent-endpoint failures.
func IsSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

// IsConnectionRefused reports no-listener failures.
func IsConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

// ResolveEndpoint returns configured when set, otherwise the runtime default.
func ResolveEndpoint(configured string) (string, error) {
	if endpoint := strings.TrimSpace(configured); endpoint != "" {
		return endpoint, nil
	}
	return RuntimeSocketPath()
}
