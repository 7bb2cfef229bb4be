// SPDX-License-Identifier: MIT

package flags

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	p := Static{"a": true, "b": false}
	assert.True(t, p.IsEnabled("a"))
	assert.False(t, p.IsEnabled("b"))
	assert.False(t, p.IsEnabled("unknown"))
	assert.False(t, Disabled.IsEnabled("anything"))
}

func writeFlags(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFile_LoadAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.yaml")
	writeFlags(t, path, "flags:\n  progress_trace: true\n")

	f, err := NewFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.True(t, f.IsEnabled("progress_trace"))
	assert.False(t, f.IsEnabled("mutation_trace"))

	writeFlags(t, path, "flags:\n  progress_trace: false\n  mutation_trace: true\n")
	require.Eventually(t, func() bool {
		return f.IsEnabled("mutation_trace") && !f.IsEnabled("progress_trace")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFile_BadReloadKeepsPreviousFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.yaml")
	writeFlags(t, path, "flags:\n  progress_trace: true\n")

	f, err := NewFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	writeFlags(t, path, "flags: [not a map\n")
	// The broken write must never flip the flag off.
	time.Sleep(200 * time.Millisecond)
	assert.True(t, f.IsEnabled("progress_trace"))
}

func TestFile_MissingFile(t *testing.T) {
	_, err := NewFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestFile_CloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.yaml")
	writeFlags(t, path, "flags: {}\n")

	f, err := NewFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
}
