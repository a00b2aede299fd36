package sparsefile_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cronobak/cronobak/internal/sparsefile"
)

func TestIsZero(t *testing.T) {
	require.True(t, sparsefile.IsZero(make([]byte, 64*1024)))
	require.True(t, sparsefile.IsZero(nil))

	b := make([]byte, 64*1024)
	b[12345] = 1
	require.False(t, sparsefile.IsZero(b))
}

func TestShouldDetect(t *testing.T) {
	const chunk = 5 * 1024 * 1024

	require.False(t, sparsefile.ShouldDetect(chunk-1, 0, chunk), "too small to bother")
	require.False(t, sparsefile.ShouldDetect(chunk, chunk/512, chunk), "fully allocated")
	require.True(t, sparsefile.ShouldDetect(chunk, 0, chunk), "big and sparse")
}

func TestWriterSparseAndData(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out")

	f, err := os.Create(dst)
	require.NoError(t, err)

	w := sparsefile.NewWriter(f)
	require.NoError(t, w.WriteData([]byte("hello")))
	require.NoError(t, w.WriteSparse(10))
	require.NoError(t, w.WriteData([]byte("world")))
	require.NoError(t, w.Close())

	got, err := os.ReadFile(dst)
	require.NoError(t, err)

	want := append([]byte("hello"), make([]byte, 10)...)
	want = append(want, []byte("world")...)
	require.True(t, bytes.Equal(want, got))
	require.Equal(t, int64(len(want)), mustSize(t, dst))
}

func TestWriterTrailingSparseTruncates(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out")

	f, err := os.Create(dst)
	require.NoError(t, err)

	w := sparsefile.NewWriter(f)
	require.NoError(t, w.WriteData([]byte("abc")))
	require.NoError(t, w.WriteSparse(64*1024))
	require.NoError(t, w.Close())

	require.Equal(t, int64(3+64*1024), mustSize(t, dst))
}

func mustSize(t *testing.T, path string) int64 {
	t.Helper()

	fi, err := os.Stat(path)
	require.NoError(t, err)

	return fi.Size()
}
