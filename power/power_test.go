package power_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cronobak/cronobak/power"
)

func TestSaveAndDisableThenRestoreRoundTrips(t *testing.T) {
	settings := power.NewNoopSettings()
	mgr := power.New(settings)
	ctx := context.Background()

	before, err := settings.GetInt(ctx, power.ScreenSleepKey)
	require.NoError(t, err)
	require.NotZero(t, before)

	require.NoError(t, mgr.SaveAndDisable(ctx))

	screen, err := settings.GetInt(ctx, power.ScreenSleepKey)
	require.NoError(t, err)
	require.Equal(t, power.Disabled, screen)

	disk, err := settings.GetInt(ctx, power.DiskSleepKey)
	require.NoError(t, err)
	require.Equal(t, power.Disabled, disk)

	require.NoError(t, mgr.Restore(ctx))

	screen, err = settings.GetInt(ctx, power.ScreenSleepKey)
	require.NoError(t, err)
	require.Equal(t, before, screen)
}

func TestRestoreWithoutSaveIsNoop(t *testing.T) {
	mgr := power.New(power.NewNoopSettings())
	require.NoError(t, mgr.Restore(context.Background()))
}
