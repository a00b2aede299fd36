package catalog_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/require"

	"github.com/cronobak/cronobak/catalog"
	"github.com/cronobak/cronobak/fs/scanner"
)

func openTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	path := filepath.Join(t.TempDir(), "index.sqlite3")

	c, err := catalog.Open(context.Background(), path, nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = c.Close() })

	return c
}

func ingestOne(t *testing.T, c *catalog.Catalog, dirPath string, dirMtime float64, dirInode uint64, files []scanner.FileRecord) {
	t.Helper()

	ing := c.NewIngester(context.Background())
	require.NoError(t, ing.Push(scanner.Node{
		Dir:   scanner.DirRecord{Path: dirPath, Mtime: dirMtime, Inode: dirInode},
		Files: files,
	}))
	require.NoError(t, ing.Close())
}

func TestFirstRunEverythingIsAdded(t *testing.T) {
	ctx := context.Background()
	c := openTestCatalog(t)

	ingestOne(t, c, "/src", 100, 1, []scanner.FileRecord{
		{Path: "/src", Name: "a", Mtime: 1, Size: 5, IsFile: true, Inode: 2},
	})

	n, err := c.NumChanged(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n) // 1 dir + 1 file

	added, err := c.AddedBytes(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 5, added)

	require.NoError(t, c.Commit(ctx))

	dirs, files, err := c.CurStats(ctx)
	require.NoError(t, err)
	require.Zero(t, dirs)
	require.Zero(t, files)
}

func TestSecondRunNoChangesIsNoOp(t *testing.T) {
	ctx := context.Background()
	c := openTestCatalog(t)

	rec := []scanner.FileRecord{{Path: "/src", Name: "a", Mtime: 1, Size: 5, IsFile: true, Inode: 2}}

	ingestOne(t, c, "/src", 100, 1, rec)
	require.NoError(t, c.Commit(ctx))

	// second run, re-open current tables with identical mtimes
	ingestOne(t, c, "/src", 100, 1, rec)

	n, err := c.NumChanged(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	unmodified, err := c.UnmodifiedFiles(ctx)
	require.NoError(t, err)
	require.Len(t, unmodified, 1)
}

func TestMtimeChangeMarksFileModified(t *testing.T) {
	ctx := context.Background()
	c := openTestCatalog(t)

	ingestOne(t, c, "/src", 100, 1, []scanner.FileRecord{
		{Path: "/src", Name: "a", Mtime: 1, Size: 5, IsFile: true, Inode: 2},
	})
	require.NoError(t, c.Commit(ctx))

	ingestOne(t, c, "/src", 100, 1, []scanner.FileRecord{
		{Path: "/src", Name: "a", Mtime: 2, Size: 2, IsFile: true, Inode: 2},
	})

	modified, err := c.ModifiedFiles(ctx)
	require.NoError(t, err)
	require.Len(t, modified, 1)
	require.EqualValues(t, 2, modified[0].Size)

	added, err := c.AddedFiles(ctx)
	require.NoError(t, err)
	require.Empty(t, added)
}

func TestSelectByPrefixStagesCurrentFromBaseline(t *testing.T) {
	ctx := context.Background()
	c := openTestCatalog(t)

	ingestOne(t, c, "/src/a", 1, 1, []scanner.FileRecord{
		{Path: "/src/a", Name: "x", Mtime: 1, Size: 1, IsFile: true, Inode: 10},
	})
	require.NoError(t, c.Commit(ctx))

	// Commit replaces the whole baseline, so the second run scans /src/a
	// again alongside the new /src/b.
	ing := c.NewIngester(ctx)
	require.NoError(t, ing.Push(scanner.Node{
		Dir: scanner.DirRecord{Path: "/src/a", Mtime: 1, Inode: 1},
		Files: []scanner.FileRecord{
			{Path: "/src/a", Name: "x", Mtime: 1, Size: 1, IsFile: true, Inode: 10},
		},
	}))
	require.NoError(t, ing.Push(scanner.Node{
		Dir: scanner.DirRecord{Path: "/src/b", Mtime: 1, Inode: 2},
		Files: []scanner.FileRecord{
			{Path: "/src/b", Name: "y", Mtime: 1, Size: 1, IsFile: true, Inode: 11},
		},
	}))
	require.NoError(t, ing.Close())
	require.NoError(t, c.Commit(ctx))

	require.NoError(t, c.Select(ctx, "/src/a"))

	dirs, files, err := c.CurStats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, dirs)
	require.EqualValues(t, 1, files)

	selBytes, err := c.SelectedBytes(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, selBytes)
}

func TestAddedFilesRowMatchesIngestedRecordExactly(t *testing.T) {
	ctx := context.Background()
	c := openTestCatalog(t)

	want := scanner.FileRecord{Path: "/src", Name: "a", Mtime: 1, Size: 5, IsFile: true, Inode: 2}
	ingestOne(t, c, "/src", 100, 1, []scanner.FileRecord{want})

	added, err := c.AddedFiles(ctx)
	require.NoError(t, err)
	require.Len(t, added, 1)

	if diff := pretty.Compare(want, added[0]); diff != "" {
		t.Fatalf("added file row differs from ingested record:\n%s", diff)
	}
}

func TestIngesterPropagatesFeederFailure(t *testing.T) {
	ctx := context.Background()
	c := openTestCatalog(t)
	require.NoError(t, c.Close()) // force subsequent inserts to fail

	ing := c.NewIngester(ctx)
	_ = ing.Push(scanner.Node{Dir: scanner.DirRecord{Path: "/x", Mtime: 1, Inode: 1}})
	require.Error(t, ing.Close())
}
