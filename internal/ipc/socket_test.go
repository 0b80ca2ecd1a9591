package ipc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRuntimeSocketPathRequiresXDG(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	_, err := RuntimeSocketPath()
	require.Error(t, err)
}

func TestRuntimeSocketPathUsesXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)
	path, err := RuntimeSocketPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "ctrloem3.sock"), path)
}

func TestDialMissingSocketClassified(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.sock")
	_, err := DefaultDialer().DialContext(context.Background(), Network, path)
	require.Error(t, err)
	require.True(t, IsSocketMissing(err))
	require.False(t, IsConnectionRefused(err))
}

func TestErrorClassification(t *testing.T) {
	require.False(t, IsSocketMissing(nil))
	require.False(t, IsConnectionRefused(nil))
	require.True(t, IsSocketMissing(fmt.Errorf("dial: %w", os.ErrNotExist)))
	require.True(t, IsConnectionRefused(fmt.Errorf("dial: %w", syscall.ECONNREFUSED)))
	require.False(t, IsConnectionRefused(errors.New("boom")))
}

func TestResolveEndpointPrefersConfigured(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	path, err := ResolveEndpoint(" /tmp/custom.sock ")
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom.sock", path)

	_, err = ResolveEndpoint("")
	require.Error(t, err)

	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)
	path, err = ResolveEndpoint("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "ctrloem3.sock"), path)
}
