package clock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cronobak/cronobak/internal/clock"
)

func TestFreezeUnfreeze(t *testing.T) {
	frozen := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

	clock.Freeze(frozen)
	defer clock.Unfreeze()

	require.Equal(t, frozen, clock.Now())
	require.Equal(t, frozen, clock.Now())
}

func TestSleepInterruptibly_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.False(t, clock.SleepInterruptibly(ctx, 2*time.Second))
}

func TestSleepInterruptibly_ContextNotCanceled(t *testing.T) {
	require.True(t, clock.SleepInterruptibly(context.Background(), 10*time.Millisecond))
}
