package volume_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cronobak/cronobak/volume"
)

func TestParseURIExtractsNameAndSubPath(t *testing.T) {
	h, ok, err := volume.ParseURI("volume://backup-disk/cronobak/home")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "backup-disk", h.VolumeName)
	require.Equal(t, "cronobak/home", h.SubPath)
}

func TestParseURIWithoutSubPath(t *testing.T) {
	h, ok, err := volume.ParseURI("volume://backup-disk")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "backup-disk", h.VolumeName)
	require.Equal(t, "", h.SubPath)
}

func TestParseURINonVolumeIsNotAnError(t *testing.T) {
	h, ok, err := volume.ParseURI("/mnt/backup")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, volume.Handle{}, h)
}

func TestParseURIEmptyNameFails(t *testing.T) {
	_, _, err := volume.ParseURI("volume:///sub")
	require.Error(t, err)
}

func TestLocalMounterJoinsSubPath(t *testing.T) {
	m := volume.LocalMounter{Root: func(name string) (string, error) { return "/mnt/" + name, nil }}

	path, err := m.Mount(context.Background(), volume.Handle{VolumeName: "backup-disk", SubPath: "cronobak"})
	require.NoError(t, err)
	require.Equal(t, "/mnt/backup-disk/cronobak", path)

	require.NoError(t, m.Unmount(context.Background(), volume.Handle{VolumeName: "backup-disk"}))
}

func TestLocalMounterWithoutRootFails(t *testing.T) {
	var m volume.LocalMounter

	_, err := m.Mount(context.Background(), volume.Handle{VolumeName: "backup-disk"})
	require.Error(t, err)
}

func TestDefaultMounterFailsForUnmountedVolume(t *testing.T) {
	m := volume.NewDefaultMounter()

	_, err := m.Mount(context.Background(), volume.Handle{VolumeName: "no-such-cronobak-test-volume"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no-such-cronobak-test-volume")
}
