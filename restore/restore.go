// Package restore is the §4.5 restore resolver: given a chosen snapshot
// timestamp, it selects catalog rows under the requested subtrees and
// streams them through the copy pipeline via a path-resolver that walks
// older snapshots backwards when a file is missing from the chosen one.
package restore

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cronobak/cronobak/catalog"
	"github.com/cronobak/cronobak/fs/scanner"
	"github.com/cronobak/cronobak/metrics"
	"github.com/cronobak/cronobak/pipeline"
	"github.com/cronobak/cronobak/snapshot"
)

// NotFoundErr is returned by the resolver when a file is absent from every
// snapshot older than the chosen one too, per spec §7's "Restore not-found"
// taxonomy entry.
type NotFoundErr struct {
	RelPath string
}

func (e *NotFoundErr) Error() string {
	return "not found in chosen snapshot or any older snapshot: " + e.RelPath
}

// Controller drives one restore: initialisation enumerates the snapshot
// root, Select fixes the chosen timestamp, CopyFiles/CopyDirStats stream
// the selected subtrees to a target tree.
type Controller struct {
	Root string // snapshot root (same root a backup Controller writes under)
	Log  *zap.SugaredLogger

	// Metrics, if set, times every catalog round-trip CopyFiles makes.
	// Optional: a nil Metrics just skips the timing wrapper.
	Metrics *metrics.Metrics

	snapshots []string // ascending, per snapshot.ListSnapshots
	chosen    string
	chosenIdx int

	cat         *catalog.Catalog
	catalogPath string // scratch path the chosen snapshot's catalog is decompressed into
}

func (c *Controller) timeCatalogOp(operation string, fn func() error) error {
	if c.Metrics == nil {
		return fn()
	}

	return c.Metrics.TimeCatalogOp(operation, fn)
}

// New enumerates Root for selectable snapshot timestamps (spec §4.5's
// initialisation), matching `^[0-9]+\.[0-9]+$` and sorted ascending.
func New(root, scratchCatalogPath string, log *zap.SugaredLogger) (*Controller, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	snapshots, err := snapshot.ListSnapshots(root)
	if err != nil {
		return nil, err
	}

	return &Controller{Root: root, Log: log, snapshots: snapshots, catalogPath: scratchCatalogPath}, nil
}

// Snapshots returns the selectable timestamps, ascending.
func (c *Controller) Snapshots() []string {
	return append([]string(nil), c.snapshots...)
}

// Select fixes the chosen snapshot and loads its catalog (decompressed from
// the snapshot's index.sqlite3.gz into the controller's scratch path).
func (c *Controller) Select(ctx context.Context, ts string) error {
	idx := -1

	for i, s := range c.snapshots {
		if s == ts {
			idx = i
			break
		}
	}

	if idx < 0 {
		return errors.Errorf("no such snapshot %q under %s", ts, c.Root)
	}

	if c.cat != nil {
		_ = c.cat.Close()
	}

	archive := filepath.Join(snapshot.FinalDir(c.Root, ts), snapshot.CatalogArchiveName)
	if err := snapshot.DecompressCatalog(archive, c.catalogPath); err != nil {
		return err
	}

	cat, err := catalog.Open(ctx, c.catalogPath, c.Log)
	if err != nil {
		return err
	}

	c.chosen = ts
	c.chosenIdx = idx
	c.cat = cat

	return nil
}

// Close releases the scratch catalog handle, if one is open.
func (c *Controller) Close() error {
	if c.cat == nil {
		return nil
	}

	return c.cat.Close()
}

// CopyFiles selects every baseline row under any of prefixes from the
// chosen snapshot's catalog and submits a copy request per file, each
// carrying the backward-search resolver of spec §4.5. It returns every
// selected directory's source path, for a subsequent CopyDirStats call
// once the pipeline has finished writing.
func (c *Controller) CopyFiles(ctx context.Context, prefixes []string, targetRoot string, pipe *pipeline.Pipeline) ([]string, error) {
	if c.cat == nil {
		return nil, errors.New("no snapshot selected")
	}

	chosenDir := snapshot.FinalDir(c.Root, c.chosen)

	var dirs []string

	for _, prefix := range prefixes {
		if err := c.timeCatalogOp("select", func() error { return c.cat.Select(ctx, prefix) }); err != nil {
			return nil, err
		}

		var selectedDirs []catalog.DirRecord

		if err := c.timeCatalogOp("current_dirs", func() (err error) {
			selectedDirs, err = c.cat.CurrentDirs(ctx)
			return err
		}); err != nil {
			return nil, err
		}

		for _, d := range selectedDirs {
			dirs = append(dirs, d.Path)
		}

		var files []catalog.FileRecord

		if err := c.timeCatalogOp("current_files", func() (err error) {
			files, err = c.cat.CurrentFiles(ctx)
			return err
		}); err != nil {
			return nil, err
		}

		for _, f := range files {
			rel := scanner.TrimLeadingSlash(filepath.Join(f.Path, f.Name))
			src := filepath.Join(chosenDir, rel)
			dst := filepath.Join(targetRoot, rel)

			req := pipeline.Request{
				SrcDir:    f.Path,
				SrcFile:   src,
				DstFile:   dst,
				Size:      f.Size,
				IsSymlink: f.IsSymlink,
				IsFile:    f.IsFile,
				Resolver:  c.resolve(rel),
			}

			if err := pipe.Submit(ctx, req); err != nil {
				return nil, errors.Wrapf(err, "submitting %s", rel)
			}
		}
	}

	return dirs, nil
}

// resolve returns the per-file resolver closure of spec §4.5: if the
// chosen snapshot's copy of rel exists (checked with a non-following stat),
// use it; otherwise search snapshots strictly older than the chosen one, in
// descending order, for the first one containing rel.
func (c *Controller) resolve(rel string) func(string) (string, error) {
	return func(src string) (string, error) {
		if _, err := os.Lstat(src); err == nil {
			return src, nil
		}

		for i := c.chosenIdx - 1; i >= 0; i-- {
			candidate := filepath.Join(snapshot.FinalDir(c.Root, c.snapshots[i]), rel)

			if _, err := os.Lstat(candidate); err == nil {
				return candidate, nil
			}
		}

		return "", &NotFoundErr{RelPath: rel}
	}
}

// CopyDirStats replays mode/ownership/mtime onto every directory under
// targetRoot named by dirs (source-tree paths: those CopyFiles returned and
// those the pipeline's writer recorded), using the same
// backward-search idea per ancestor component (spec §4.5).
func (c *Controller) CopyDirStats(targetRoot string, dirs []string) error {
	seen := make(map[string]bool)

	for _, d := range dirs {
		for p := d; p != "" && p != string(filepath.Separator); p = filepath.Dir(p) {
			if seen[p] {
				break
			}

			seen[p] = true

			rel := scanner.TrimLeadingSlash(p)
			dst := filepath.Join(targetRoot, rel)

			src, err := c.resolveDir(rel)
			if err != nil {
				c.Log.Warnw("no snapshot has metadata for directory", "path", p, "err", err)
				continue
			}

			if err := pipeline.CopyMetadata(src, dst); err != nil {
				c.Log.Warnw("copying directory metadata", "path", p, "err", err)
			}
		}
	}

	return nil
}

func (c *Controller) resolveDir(rel string) (string, error) {
	chosen := filepath.Join(snapshot.FinalDir(c.Root, c.chosen), rel)
	if _, err := os.Lstat(chosen); err == nil {
		return chosen, nil
	}

	for i := c.chosenIdx - 1; i >= 0; i-- {
		candidate := filepath.Join(snapshot.FinalDir(c.Root, c.snapshots[i]), rel)

		if _, err := os.Lstat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", &NotFoundErr{RelPath: rel}
}
