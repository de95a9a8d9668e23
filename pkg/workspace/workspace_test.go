package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareCreatesStructure(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ws")

	prepared, err := Prepare(root)
	require.NoError(t, err)
	assert.Equal(t, root, prepared)

	for _, sub := range Subdirectories() {
		info, err := os.Stat(filepath.Join(root, sub))
		require.NoError(t, err, sub)
		assert.True(t, info.IsDir(), sub)
	}
}

func TestPrepareHonoursEnvOverride(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "custom")
	t.Setenv(EnvVar, dir)

	prepared, err := Prepare("")
	require.NoError(t, err)
	assert.Equal(t, dir, prepared)
	assert.DirExists(t, filepath.Join(dir, ReportsDir))
}

func TestPrepareUsesXDGDataHome(t *testing.T) {
	defer overrideGOOS(func() string { return "linux" })()
	tmp := t.TempDir()
	t.Setenv(EnvVar, "")
	t.Setenv("XDG_DATA_HOME", tmp)

	prepared, err := Prepare("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmp, "fwrecon"), prepared)
}

func TestPrepareHomeDirError(t *testing.T) {
	defer overrideGOOS(func() string { return "linux" })()
	defer overrideUserHomeDir(func() (string, error) { return "", errors.New("no home") })()
	t.Setenv(EnvVar, "")
	t.Setenv("XDG_DATA_HOME", "")

	_, err := Prepare("")
	require.Error(t, err)
}

func TestPrepareSubdirBlockedByFile(t *testing.T) {
	tmp := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmp, ReportsDir), []byte("x"), 0o600))

	_, err := Prepare(tmp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ReportsDir)
}

func TestDefaultRootPerPlatform(t *testing.T) {
	defer overrideUserHomeDir(func() (string, error) { return "/home/op", nil })()
	t.Setenv(EnvVar, "")
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("AppData", "")

	tests := []struct {
		goos string
		want string
	}{
		{"linux", filepath.Join("/home/op", ".local", "share", "fwrecon")},
		{"darwin", filepath.Join("/home/op", "Library", "Application Support", "fwrecon")},
		{"windows", filepath.Join("/home/op", "AppData", "Roaming", "fwrecon")},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			defer overrideGOOS(func() string { return tt.goos })()
			dir, err := defaultRoot()
			require.NoError(t, err)
			assert.Equal(t, tt.want, dir)
		})
	}
}

func TestDefaultRootEmptyHome(t *testing.T) {
	defer overrideGOOS(func() string { return "darwin" })()
	defer overrideUserHomeDir(func() (string, error) { return "", nil })()
	t.Setenv(EnvVar, "")

	_, err := defaultRoot()
	require.Error(t, err)
}

func TestContextHelpers(t *testing.T) {
	ctx := WithContext(context.Background(), "/tmp/ws")
	root, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "/tmp/ws", root)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)

	//nolint:staticcheck
	root, ok = FromContext(WithContext(nil, "/srv/ws"))
	assert.True(t, ok)
	assert.Equal(t, "/srv/ws", root)

	//nolint:staticcheck
	_, ok = FromContext(nil)
	assert.False(t, ok)
}

func TestPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/ws", ReportsDir, "a.json"), Path("/ws", ReportsDir, "a.json"))
}
