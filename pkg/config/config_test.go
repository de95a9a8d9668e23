package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerStartsWithDefaults(t *testing.T) {
	m := NewManager()
	assert.Equal(t, DefaultConfig(), m.Get())
	assert.NotNil(t, m.Koanf())
}

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, validate.Struct(DefaultConfig()))
}

func TestDefaultConfigAsMapCoversScanKeys(t *testing.T) {
	m := DefaultConfigAsMap()
	for _, key := range []string{"scan.concurrency", "scan.timeout", "scan.default_ports", "engine.name", "output.format"} {
		assert.Contains(t, m, key)
	}
}

func TestManagerLoadLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fwrecon.yaml")
	content := `
scan:
  concurrency: 4
  default_ports: "1-500"
engine:
  name: connect
profiles:
  ack:
    timeout: 90s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("FWRECON_SCAN_CONCURRENCY", "6")

	fs := newScanFlags()
	require.NoError(t, fs.Parse([]string{"--timeout", "10"}))

	m := NewManager()
	require.NoError(t, m.Load(DefaultSources(path, fs, false)...))

	cfg := m.Get()
	assert.Equal(t, 6, cfg.Scan.Concurrency, "env overrides file")
	assert.Equal(t, "1-500", cfg.Scan.DefaultPorts)
	assert.Equal(t, 10*time.Second, cfg.Scan.Timeout, "flag overrides default")
	assert.Equal(t, "connect", cfg.Engine.Name)
	assert.Equal(t, "90s", cfg.Profiles["ack"]["timeout"])
	assert.Equal(t, []string{"defaults", "file:" + path, "env", "flags"}, m.Sources())
}

func TestManagerLoadSortsByPriority(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Load(&FlagSource{Debug: true}, &DefaultSource{}))
	assert.Equal(t, "debug", m.Get().Log.Level)
}

func TestManagerLoadRejectsInvalid(t *testing.T) {
	t.Setenv("FWRECON_SCAN_CONCURRENCY", "0")

	m := NewManager()
	err := m.Load(&DefaultSource{}, &EnvSource{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Concurrency")
	assert.Equal(t, 3, m.Get().Scan.Concurrency, "previous config kept")
}

func TestManagerLoadRejectsUnknownEngine(t *testing.T) {
	t.Setenv("FWRECON_ENGINE_NAME", "masscan")

	m := NewManager()
	require.Error(t, m.Load(&DefaultSource{}, &EnvSource{}))
}

func TestManagerLoadEvasionSettings(t *testing.T) {
	t.Setenv("FWRECON_ENGINE_DECOYS", "RND:5, ME")
	t.Setenv("FWRECON_ENGINE_SPOOF_SOURCE", "192.0.2.10")
	t.Setenv("FWRECON_ENGINE_INTERFACE", "eth0")

	m := NewManager()
	require.NoError(t, m.Load(&DefaultSource{}, &EnvSource{}))

	cfg := m.Get()
	assert.Equal(t, []string{"RND:5", "ME"}, cfg.Engine.Decoys)
	assert.Equal(t, "192.0.2.10", cfg.Engine.SpoofSource)
	assert.Equal(t, "eth0", cfg.Engine.Interface)
}

func TestManagerLoadRejectsSpoofWithoutInterface(t *testing.T) {
	t.Setenv("FWRECON_ENGINE_SPOOF_SOURCE", "192.0.2.10")

	m := NewManager()
	require.Error(t, m.Load(&DefaultSource{}, &EnvSource{}))

	t.Setenv("FWRECON_ENGINE_INTERFACE", "eth0")
	t.Setenv("FWRECON_ENGINE_SPOOF_SOURCE", "not-an-ip")
	require.Error(t, m.Load(&DefaultSource{}, &EnvSource{}))
}
