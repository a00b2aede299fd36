package scanner_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cronobak/cronobak/fs/scanner"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestScanClassifiesFilesAndDirs(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "a"), []byte("hello"))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	writeFile(t, filepath.Join(root, "sub", "b"), []byte("hi"))
	require.NoError(t, os.Symlink("a", filepath.Join(root, "link")))

	s, err := scanner.New(nil, nil)
	require.NoError(t, err)

	var nodes []scanner.Node

	err = s.Scan(context.Background(), root, func(n scanner.Node) error {
		nodes = append(nodes, n)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, nodes, 2, "root + sub")

	rootNode := nodes[0]
	require.Len(t, rootNode.Dirs, 1)
	require.Equal(t, "sub", filepath.Base(rootNode.Dirs[0].Path))

	var names []string
	for _, f := range rootNode.Files {
		names = append(names, f.Name)
	}
	require.ElementsMatch(t, []string{"a", "link"}, names)

	for _, f := range rootNode.Files {
		if f.Name == "link" {
			require.True(t, f.IsSymlink)
			require.False(t, f.IsFile)
		}
		if f.Name == "a" {
			require.False(t, f.IsSymlink)
			require.True(t, f.IsFile)
			require.EqualValues(t, 5, f.Size)
		}
	}
}

func TestScanAppliesExcludes(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, os.Mkdir(filepath.Join(root, ".cache"), 0o755))
	writeFile(t, filepath.Join(root, ".cache", "x"), []byte("x"))
	writeFile(t, filepath.Join(root, "keep"), []byte("keep"))

	s, err := scanner.New([]string{`/\.cache`}, nil)
	require.NoError(t, err)

	var all []scanner.Node
	err = s.Scan(context.Background(), root, func(n scanner.Node) error {
		all = append(all, n)
		return nil
	})
	require.NoError(t, err)

	// Only the root node should be visited; .cache is excluded before descent.
	require.Len(t, all, 1)
	require.Len(t, all[0].Files, 1)
	require.Equal(t, "keep", all[0].Files[0].Name)
}

func TestScanMissingRootFailsFast(t *testing.T) {
	s, err := scanner.New(nil, nil)
	require.NoError(t, err)

	err = s.Scan(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"), func(scanner.Node) error {
		return nil
	})
	require.Error(t, err)
}

func TestScanOrdersChildrenByInodeAscending(t *testing.T) {
	root := t.TempDir()

	// Creation order does not guarantee inode order on all filesystems, but
	// on a fresh tmpfs/ext4 directory sequential creates yield ascending
	// inodes; this test documents the expectation rather than the kernel
	// guarantee.
	writeFile(t, filepath.Join(root, "a"), []byte("1"))
	writeFile(t, filepath.Join(root, "b"), []byte("2"))
	writeFile(t, filepath.Join(root, "c"), []byte("3"))

	s, err := scanner.New(nil, nil)
	require.NoError(t, err)

	var files []scanner.FileRecord
	err = s.Scan(context.Background(), root, func(n scanner.Node) error {
		files = n.Files
		return nil
	})
	require.NoError(t, err)
	require.Len(t, files, 3)

	for i := 1; i < len(files); i++ {
		require.LessOrEqual(t, files[i-1].Inode, files[i].Inode)
	}
}
