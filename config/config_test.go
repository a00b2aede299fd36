package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cronobak/cronobak/config"
)

const sampleYAML = `
profiles:
  default:
    destination: /backup/dest
    log_level: debug
    disable_sleep_timeouts: true
    sources:
      - path: /home/alice
        excludes:
          - .cache
          - .tmp
  work:
    destination: /backup/work
    sources:
      - path: /srv/data
`

func writeConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "cronobak.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	return path
}

func TestLoadDefaultsProfileNameToDefault(t *testing.T) {
	path := writeConfig(t)

	p, err := config.Load(path, "")
	require.NoError(t, err)
	require.Equal(t, "default", p.Name)
	require.Equal(t, "/backup/dest", p.Destination)
	require.True(t, p.DisableSleepTimeouts)
	require.Equal(t, "debug", p.LogLevel)
	require.Len(t, p.Sources, 1)
	require.Equal(t, "/home/alice", p.Sources[0].Path)
	require.Equal(t, []string{".cache", ".tmp"}, p.Sources[0].Excludes)
}

func TestLoadNamedProfileFallsBackToInfoLogLevel(t *testing.T) {
	path := writeConfig(t)

	p, err := config.Load(path, "work")
	require.NoError(t, err)
	require.Equal(t, "work", p.Name)
	require.Equal(t, "info", p.LogLevel)
	require.False(t, p.DisableSleepTimeouts)
}

func TestLoadUnknownProfileFails(t *testing.T) {
	path := writeConfig(t)

	_, err := config.Load(path, "nope")
	require.Error(t, err)
}

func TestLoadMissingDestinationFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cronobak.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
profiles:
  default:
    sources:
      - path: /home/alice
`), 0o644))

	_, err := config.Load(path, "default")
	require.Error(t, err)
}
