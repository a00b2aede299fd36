package snapshot

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cronobak/cronobak/catalog"
	"github.com/cronobak/cronobak/fs/scanner"
	"github.com/cronobak/cronobak/internal/atomicio"
	"github.com/cronobak/cronobak/internal/clock"
	"github.com/cronobak/cronobak/metrics"
	"github.com/cronobak/cronobak/pipeline"
)

// State is one node of the run state machine of spec §4.6:
// IDLE → SCANNING → DIFFING → (NoOp | RUNNING) → COMMITTING → DONE.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateDiffing
	StateNoOp
	StateRunning
	StateCommitting
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateDiffing:
		return "diffing"
	case StateNoOp:
		return "no-op"
	case StateRunning:
		return "running"
	case StateCommitting:
		return "committing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// lockPollInterval is the delay between Run's attempts to acquire the
// destination lock (the DOMAIN STACK's flock-based single-run guarantee);
// Run keeps retrying until the lock is taken or ctx ends.
const lockPollInterval = 2 * time.Second

// SourceTree is one scanned root plus its own exclude patterns; Run accepts
// a list of these so one snapshot can mirror several source trees into one
// catalog generation (the multiple-source-trees-per-run feature SPEC_FULL.md
// adds from original_source/lib/backup.py).
type SourceTree struct {
	Root     string
	Excludes []string
}

// Result reports what one Run did.
type Result struct {
	State              State
	Timestamp          string
	SnapshotDir        string // empty when State == StateNoOp
	NumChanged         int64
	FilesCopied        int64
	FilesScanned       int64
	BytesScanned       int64
	SymlinksCopied     int64
	SparsePartsSkipped int64
}

// Controller drives one backup run: scan, diff, copy, commit. One Controller
// serves one destination root.
type Controller struct {
	Root        string // destination root, holds "<ts>[-in-progress]" dirs
	CatalogPath string // path to the persistent sqlite catalog file
	Log         *zap.SugaredLogger
	StatusFn    func(pipeline.Status)

	// Metrics, if set, times every catalog round-trip Run makes. Optional:
	// a nil Metrics just skips the timing wrapper.
	Metrics *metrics.Metrics

	cat   *catalog.Catalog
	state State
}

// timeCatalogOp runs fn under c.Metrics.TimeCatalogOp when a Metrics is
// configured, otherwise it just runs fn.
func (c *Controller) timeCatalogOp(operation string, fn func() error) error {
	if c.Metrics == nil {
		return fn()
	}

	return c.Metrics.TimeCatalogOp(operation, fn)
}

// New opens the controller's catalog at CatalogPath (created if absent) and
// truncates its current tables per spec §4.2's Open semantics.
func New(root, catalogPath string, log *zap.SugaredLogger) (*Controller, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating destination root %s", root)
	}

	cat, err := catalog.Open(context.Background(), catalogPath, log)
	if err != nil {
		return nil, err
	}

	return &Controller{Root: root, CatalogPath: catalogPath, Log: log, cat: cat, state: StateIdle}, nil
}

// Close releases the controller's catalog handle.
func (c *Controller) Close() error {
	return c.cat.Close()
}

// State returns the controller's current state-machine node.
func (c *Controller) State() State {
	return c.state
}

// Run drives the full state machine for one backup of the given source
// trees: scan each, diff against baseline, and — unless nothing changed —
// create a new snapshot, copy added/modified content into it, replay
// metadata, persist the catalog, and atomically commit.
//
// A flock over "<root>/.cronobak.lock" (spec's DOMAIN STACK) prevents two
// runs against the same destination from racing the in-progress directory.
func (c *Controller) Run(ctx context.Context, sources []SourceTree) (Result, error) {
	lock := flock.New(filepath.Join(c.Root, ".cronobak.lock"))

	locked, err := lock.TryLockContext(ctx, lockPollInterval)
	if err != nil || !locked {
		return Result{}, errors.Wrap(err, "acquiring destination lock")
	}
	defer lock.Unlock() //nolint:errcheck

	if err := c.scanAll(ctx, sources); err != nil {
		return Result{}, err
	}

	c.state = StateDiffing

	var numChanged int64

	if err := c.timeCatalogOp("num_changed", func() (err error) {
		numChanged, err = c.cat.NumChanged(ctx)
		return err
	}); err != nil {
		return Result{}, err
	}

	_, filesScanned, err := c.cat.CurStats(ctx)
	if err != nil {
		return Result{}, err
	}

	bytesScanned, err := c.cat.SelectedBytes(ctx)
	if err != nil {
		return Result{}, err
	}

	if numChanged == 0 {
		c.state = StateNoOp
		return Result{State: StateNoOp, NumChanged: 0, FilesScanned: filesScanned, BytesScanned: bytesScanned}, nil
	}

	c.state = StateRunning

	ts := FormatTimestamp(clock.Now())
	inProgress := InProgressDir(c.Root, ts)

	if err := os.MkdirAll(inProgress, 0o755); err != nil {
		return Result{}, errors.Wrapf(err, "creating in-progress snapshot %s", inProgress)
	}

	var addedBytes, modifiedBytes int64

	if err := c.timeCatalogOp("added_bytes", func() (err error) {
		addedBytes, err = c.cat.AddedBytes(ctx)
		return err
	}); err != nil {
		return Result{}, err
	}

	if err := c.timeCatalogOp("modified_bytes", func() (err error) {
		modifiedBytes, err = c.cat.ModifiedBytes(ctx)
		return err
	}); err != nil {
		return Result{}, err
	}

	pipe := pipeline.New(addedBytes+modifiedBytes, c.StatusFn, c.Log)
	pipe.Start(ctx)

	dirsNeedStats, err := c.createTree(ctx, inProgress, pipe)
	if err != nil {
		return Result{}, err
	}

	if err := c.copyFiles(ctx, inProgress, pipe); err != nil {
		return Result{}, err
	}

	// Hard-link optimisation (get_sum_missing_bytes/copy_missing_files) is
	// implemented in this package but deliberately not invoked here; see
	// DESIGN.md's Open Question decision and spec §4.4/§9.

	pipe.CloseInput()

	if err := pipe.Wait(); err != nil {
		return Result{}, errors.Wrap(err, "copy pipeline")
	}

	dirsNeedStats = append(dirsNeedStats, pipe.DirsNeedStats()...)

	if err := c.copyDirStats(inProgress, dirsNeedStats); err != nil {
		return Result{}, err
	}

	c.state = StateCommitting

	if err := c.persistAndRename(ctx, inProgress, ts); err != nil {
		return Result{}, err
	}

	c.state = StateDone

	filesWritten, symlinksWritten := pipe.Counts()

	return Result{
		State:              StateDone,
		Timestamp:          ts,
		SnapshotDir:        FinalDir(c.Root, ts),
		NumChanged:         numChanged,
		FilesCopied:        filesWritten,
		FilesScanned:       filesScanned,
		BytesScanned:       bytesScanned,
		SymlinksCopied:     symlinksWritten,
		SparsePartsSkipped: pipe.SparsePartsWritten(),
	}, nil
}

func (c *Controller) scanAll(ctx context.Context, sources []SourceTree) error {
	c.state = StateScanning

	ing := c.cat.NewIngester(ctx)

	for _, src := range sources {
		scn, err := scanner.New(src.Excludes, c.Log)
		if err != nil {
			_ = ing.Close()
			return err
		}

		if err := scn.Scan(ctx, src.Root, func(n scanner.Node) error {
			return ing.Push(n)
		}); err != nil {
			_ = ing.Close()
			return errors.Wrapf(err, "scanning %s", src.Root)
		}
	}

	return ing.Close()
}

// createTree materialises every added/modified directory under the
// snapshot, stripping the leading path separator and joining to the
// snapshot root, and notes each as needing its metadata replayed later
// (spec §4.4's create_tree).
func (c *Controller) createTree(ctx context.Context, snapshotDir string, pipe *pipeline.Pipeline) ([]string, error) {
	dirs, err := c.cat.AddedOrModifiedDirs(ctx)
	if err != nil {
		return nil, err
	}

	needStats := make([]string, 0, len(dirs))

	for _, d := range dirs {
		dst := DestPath(snapshotDir, d.Path)

		if err := os.MkdirAll(dst, 0o755); err != nil {
			return nil, errors.Wrapf(err, "creating snapshot directory %s", dst)
		}

		needStats = append(needStats, d.Path)
	}

	_ = pipe // directories don't go through the pipeline; kept for symmetry with copyFiles's signature

	return needStats, nil
}

// copyFiles enqueues a copy request for every added/modified file, per
// spec §4.4's copy_files.
func (c *Controller) copyFiles(ctx context.Context, snapshotDir string, pipe *pipeline.Pipeline) error {
	files, err := c.cat.AddedOrModifiedFiles(ctx)
	if err != nil {
		return err
	}

	for _, f := range files {
		src := filepath.Join(f.Path, f.Name)
		dst := DestPath(snapshotDir, src)

		req := pipeline.Request{
			SrcDir:    f.Path,
			SrcFile:   src,
			DstFile:   dst,
			Size:      f.Size,
			IsSymlink: f.IsSymlink,
			IsFile:    f.IsFile,
		}

		if err := pipe.Submit(ctx, req); err != nil {
			return errors.Wrapf(err, "submitting %s", src)
		}
	}

	return nil
}

// GetSumMissingBytes and CopyMissingFiles implement the hard-link
// optimisation's fallback path of spec §4.4/§9: LinkOldFiles first tries to
// hard-link each unmodified file from the previous snapshot into the new
// one (avoiding a re-read from source); files it could not link (cross-
// device, permission, or a missing prior snapshot) are reported by
// GetSumMissingBytes/CopyMissingFiles so the same pipeline re-copies them
// from source. Present per spec §9 but not invoked by Run's default flow —
// see DESIGN.md.
func LinkOldFiles(prevSnapshotDir, newSnapshotDir string, unmodified []catalog.FileRecord) (missing []catalog.FileRecord) {
	for _, f := range unmodified {
		rel := scanner.TrimLeadingSlash(filepath.Join(f.Path, f.Name))
		oldPath := filepath.Join(prevSnapshotDir, rel)
		newPath := filepath.Join(newSnapshotDir, rel)

		if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
			missing = append(missing, f)
			continue
		}

		if err := os.Link(oldPath, newPath); err != nil {
			missing = append(missing, f)
		}
	}

	return missing
}

// GetSumMissingBytes sums the size of files LinkOldFiles could not link.
func GetSumMissingBytes(missing []catalog.FileRecord) int64 {
	var sum int64
	for _, f := range missing {
		sum += f.Size
	}

	return sum
}

// CopyMissingFiles re-queues files LinkOldFiles could not hard-link through
// the same pipeline used for added/modified files.
func CopyMissingFiles(ctx context.Context, pipe *pipeline.Pipeline, snapshotDir string, missing []catalog.FileRecord) error {
	for _, f := range missing {
		src := filepath.Join(f.Path, f.Name)
		dst := DestPath(snapshotDir, src)

		req := pipeline.Request{
			SrcDir: f.Path, SrcFile: src, DstFile: dst,
			Size: f.Size, IsSymlink: f.IsSymlink, IsFile: f.IsFile,
		}

		if err := pipe.Submit(ctx, req); err != nil {
			return errors.Wrapf(err, "submitting missing file %s", src)
		}
	}

	return nil
}

// copyDirStats walks up each remembered directory's path components from
// its full source path and applies non-following metadata copy to each
// corresponding destination component, bottom-up, so every ancestor
// inherits correct mode/ownership/mtime even when the writer created it on
// demand before the scanner's own record for it arrived (spec §4.4's
// directory-stats walk rationale).
func (c *Controller) copyDirStats(snapshotDir string, dirs []string) error {
	seen := make(map[string]bool)

	for _, d := range dirs {
		for p := d; p != "" && p != string(filepath.Separator); p = filepath.Dir(p) {
			if seen[p] {
				break // ancestors above an already-handled path were handled too
			}

			seen[p] = true

			dst := DestPath(snapshotDir, p)
			if err := pipeline.CopyMetadata(p, dst); err != nil {
				c.Log.Warnw("copying directory metadata", "path", p, "err", err)
			}
		}
	}

	return nil
}

// persistAndRename commits the catalog (current → baseline), checkpoints
// the WAL, compresses a copy of the catalog file into the snapshot, and
// atomically renames the in-progress directory to its final name — the
// RENAME step of spec §4.6, the commit boundary after which the run is
// considered successful.
func (c *Controller) persistAndRename(ctx context.Context, inProgress, ts string) error {
	if err := c.timeCatalogOp("commit", func() error { return c.cat.Commit(ctx) }); err != nil {
		return err
	}

	if err := c.timeCatalogOp("checkpoint", func() error { return c.cat.Checkpoint(ctx) }); err != nil {
		c.Log.Warnw("wal checkpoint failed, snapshot catalog may be stale", "err", err)
	}

	if err := writeCompressedCatalog(c.cat.Path(), filepath.Join(inProgress, CatalogArchiveName)); err != nil {
		return err
	}

	final := FinalDir(c.Root, ts)

	return atomicio.PromoteDir(inProgress, final)
}

func writeCompressedCatalog(dbPath, archivePath string) error {
	raw, err := os.ReadFile(dbPath)
	if err != nil {
		return errors.Wrapf(err, "reading catalog %s", dbPath)
	}

	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return errors.Wrap(err, "compressing catalog")
	}

	if err := gz.Close(); err != nil {
		return errors.Wrap(err, "closing gzip writer")
	}

	if err := atomicio.WriteFile(archivePath, buf.Bytes()); err != nil {
		return errors.Wrapf(err, "writing %s", archivePath)
	}

	return nil
}

// DecompressCatalog reverses writeCompressedCatalog — used by restore to
// materialise a usable sqlite file from a snapshot's index.sqlite3.gz.
func DecompressCatalog(archivePath, dbPath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return errors.Wrapf(err, "opening %s", archivePath)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "opening gzip reader")
	}
	defer gz.Close()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return errors.Wrap(err, "decompressing catalog")
	}

	return atomicio.WriteFile(dbPath, raw)
}
