package humanstatus_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cronobak/cronobak/internal/humanstatus"
)

func TestPercent(t *testing.T) {
	require.Equal(t, "100%", humanstatus.Percent(0, 0))
	require.Equal(t, "50.0%", humanstatus.Percent(5, 10))
	require.Equal(t, "0.0%", humanstatus.Percent(0, 10))
}

func TestBytes(t *testing.T) {
	require.Equal(t, "1.0 kB", humanstatus.Bytes(1000))
}
