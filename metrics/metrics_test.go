package metrics_test

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/cronobak/cronobak/metrics"
	"github.com/cronobak/cronobak/pipeline"
)

func TestStatusFnAddsOnlyTheDeltaToBytesCopied(t *testing.T) {
	m := metrics.New()
	fn := m.StatusFn(nil)

	fn(pipeline.Status{GlobalBytesDone: 100})
	fn(pipeline.Status{GlobalBytesDone: 150})
	fn(pipeline.Status{GlobalBytesDone: 150}) // no progress, no double count

	require.InDelta(t, 150, testutil.ToFloat64(m.BytesCopied), 0.001)
}

func TestStatusFnChainsToNextCallback(t *testing.T) {
	m := metrics.New()

	var got []int64

	fn := m.StatusFn(func(s pipeline.Status) { got = append(got, s.GlobalBytesDone) })
	fn(pipeline.Status{GlobalBytesDone: 10})
	fn(pipeline.Status{GlobalBytesDone: 20})

	require.Equal(t, []int64{10, 20}, got)
}

func TestTimeCatalogOpRecordsLatencyAndPropagatesError(t *testing.T) {
	m := metrics.New()

	require.NoError(t, m.TimeCatalogOp("commit", func() error { return nil }))
	require.EqualValues(t, 1, testutil.CollectAndCount(m.CatalogQueryDuration))

	boom := errors.New("boom")
	require.ErrorIs(t, m.TimeCatalogOp("commit", func() error { return boom }), boom)
}

func TestCollectorsReturnsEveryCollector(t *testing.T) {
	m := metrics.New()
	require.Len(t, m.Collectors(), 7)
}
