package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantError bool
	}{
		{name: "empty path", input: "", wantError: true},
		{name: "relative path", input: "./test", wantError: false},
		{name: "absolute path", input: "/tmp/test", wantError: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ResolvePath(tt.input)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, filepath.IsAbs(result))
		})
	}

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	result, err := ResolvePath("~/docbox")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "docbox"), result)
}

func TestNumberedName(t *testing.T) {
	assert.Equal(t, "report.pdf", NumberedName("report.pdf", 0))
	assert.Equal(t, "report (1).pdf", NumberedName("report.pdf", 1))
	assert.Equal(t, "archive.tar (2).gz", NumberedName("archive.tar.gz", 2))
	assert.Equal(t, "README (3)", NumberedName("README", 3))
	assert.Equal(t, ".env (1)", NumberedName(".env", 1))
}

func TestAvailablePath(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, filepath.Join(dir, "a.txt"), AvailablePath(dir, "a.txt"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a (1).txt"), nil, 0o644))
	assert.Equal(t, filepath.Join(dir, "a (2).txt"), AvailablePath(dir, "a.txt"))
}

func TestEnsureParent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x", "y", "file.json")
	require.NoError(t, EnsureParent(path))
	assert.True(t, DirExists(filepath.Dir(path)))
	assert.False(t, FileExists(path))
}
