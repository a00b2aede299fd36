package inodeorder_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cronobak/cronobak/internal/inodeorder"
)

type rec struct {
	name string
	ino  uint64
}

func TestLessSortsAscending(t *testing.T) {
	recs := []rec{{"c", 30}, {"a", 10}, {"b", 20}}

	sort.Slice(recs, func(i, j int) bool { return inodeorder.Less(recs[i].ino, recs[j].ino) })

	require.Equal(t, []rec{{"a", 10}, {"b", 20}, {"c", 30}}, recs)
}
