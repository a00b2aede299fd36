package snapshot_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/cronobak/cronobak/metrics"
	"github.com/cronobak/cronobak/snapshot"
)

func TestFormatTimestampIsFixedWidthDecimal(t *testing.T) {
	ts := snapshot.FormatTimestamp(time.Unix(1700000000, 123000000))
	require.Equal(t, "1700000000.123000000", ts)
}

func TestListSnapshotsSortsNumerically(t *testing.T) {
	root := t.TempDir()

	for _, name := range []string{"2.0", "10.0", "1.5"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, name), 0o755))
	}
	require.NoError(t, os.Mkdir(filepath.Join(root, "not-a-snapshot"), 0o755))

	names, err := snapshot.ListSnapshots(root)
	require.NoError(t, err)
	require.Equal(t, []string{"1.5", "2.0", "10.0"}, names)
}

func TestSweepOrphanedReportsOldInProgressDirsOnly(t *testing.T) {
	root := t.TempDir()

	old := filepath.Join(root, "100.0-in-progress")
	require.NoError(t, os.Mkdir(old, 0o755))
	require.NoError(t, os.Chtimes(old, time.Now().Add(-2*time.Hour), time.Now().Add(-2*time.Hour)))

	fresh := filepath.Join(root, "200.0-in-progress")
	require.NoError(t, os.Mkdir(fresh, 0o755))

	require.NoError(t, os.Mkdir(filepath.Join(root, "300.0"), 0o755))

	orphans, err := snapshot.SweepOrphaned(root, time.Hour, time.Now())
	require.NoError(t, err)
	require.Equal(t, []string{old}, orphans)
}

func TestRunFirstBackupCreatesSnapshotWithSymlinkAndFile(t *testing.T) {
	srcDir := t.TempDir()
	destRoot := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a"), []byte("hello"), 0o644))
	require.NoError(t, os.Symlink("a", filepath.Join(srcDir, "b")))

	ctrl, err := snapshot.New(destRoot, filepath.Join(destRoot, "catalog.sqlite3"), nil)
	require.NoError(t, err)
	defer ctrl.Close()

	m := metrics.New()
	ctrl.Metrics = m

	res, err := ctrl.Run(context.Background(), []snapshot.SourceTree{{Root: srcDir}})
	require.NoError(t, err)
	require.Equal(t, snapshot.StateDone, res.State)
	require.NotEmpty(t, res.SnapshotDir)
	require.Equal(t, int64(2), res.FilesScanned) // file "a" and symlink "b"
	require.Greater(t, res.BytesScanned, int64(0))
	require.Equal(t, int64(1), res.FilesCopied)
	require.Equal(t, int64(1), res.SymlinksCopied)

	gotA, err := os.ReadFile(snapshot.DestPath(res.SnapshotDir, filepath.Join(srcDir, "a")))
	require.NoError(t, err)
	require.Equal(t, "hello", string(gotA))

	target, err := os.Readlink(snapshot.DestPath(res.SnapshotDir, filepath.Join(srcDir, "b")))
	require.NoError(t, err)
	require.Equal(t, "a", target)

	_, err = os.Stat(filepath.Join(res.SnapshotDir, snapshot.CatalogArchiveName))
	require.NoError(t, err)

	require.Greater(t, testutil.CollectAndCount(m.CatalogQueryDuration), 0)
}

func TestRunSecondBackupWithNoChangesIsNoOp(t *testing.T) {
	srcDir := t.TempDir()
	destRoot := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a"), []byte("hello"), 0o644))

	ctrl, err := snapshot.New(destRoot, filepath.Join(destRoot, "catalog.sqlite3"), nil)
	require.NoError(t, err)
	defer ctrl.Close()

	_, err = ctrl.Run(context.Background(), []snapshot.SourceTree{{Root: srcDir}})
	require.NoError(t, err)

	res, err := ctrl.Run(context.Background(), []snapshot.SourceTree{{Root: srcDir}})
	require.NoError(t, err)
	require.Equal(t, snapshot.StateNoOp, res.State)
	require.Empty(t, res.SnapshotDir)
}

func TestRunSecondBackupAfterMutationCopiesOnlyChangedFile(t *testing.T) {
	srcDir := t.TempDir()
	destRoot := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a"), []byte("hello"), 0o644))

	ctrl, err := snapshot.New(destRoot, filepath.Join(destRoot, "catalog.sqlite3"), nil)
	require.NoError(t, err)
	defer ctrl.Close()

	_, err = ctrl.Run(context.Background(), []snapshot.SourceTree{{Root: srcDir}})
	require.NoError(t, err)

	// advance mtime so the catalog sees a's mtime as changed.
	future := time.Now().Add(time.Second)
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a"), []byte("hi"), 0o644))
	require.NoError(t, os.Chtimes(filepath.Join(srcDir, "a"), future, future))

	res, err := ctrl.Run(context.Background(), []snapshot.SourceTree{{Root: srcDir}})
	require.NoError(t, err)
	require.Equal(t, snapshot.StateDone, res.State)

	got, err := os.ReadFile(snapshot.DestPath(res.SnapshotDir, filepath.Join(srcDir, "a")))
	require.NoError(t, err)
	require.Equal(t, "hi", string(got))
}
