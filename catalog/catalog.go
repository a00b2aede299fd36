// Package catalog is the persistent relational store of spec §4.2: two
// pairs of tables — baseline (dirs, files) holding the previous run, and
// current (cur_dirs, cur_files) holding this run — with bulk ingest,
// set-difference queries, aggregate queries, a select-into-current
// operation used by restore, and a commit that promotes current to
// baseline.
//
// Change detection is mtime-only: for any (path, name), identical mtime
// means unchanged, anything else (including a missing baseline row) means
// changed. This is an intentional simplification named in spec §4.2 — it
// will miss an mtime-preserving in-place rewrite.
package catalog

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure-Go sqlite driver, registers "sqlite"

	"github.com/cronobak/cronobak/fs/scanner"
)

// DirRecord and FileRecord are the catalog's row shapes; identical to the
// scanner's, since a catalog row is exactly what the scanner produced.
type (
	DirRecord  = scanner.DirRecord
	FileRecord = scanner.FileRecord
)

// Catalog wraps one sqlite-backed database file.
type Catalog struct {
	db   *sql.DB
	log  *zap.SugaredLogger
	path string
}

// Open opens (creating if absent) the catalog at path. On open, the schema
// is created if missing, the current tables are truncated (an aborted
// previous run's current rows are not valid for a new run), and the store
// is vacuumed, per spec §4.2.
func Open(ctx context.Context, path string, log *zap.SugaredLogger) (*Catalog, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening catalog %s", path)
	}

	db.SetMaxOpenConns(1) // sqlite: one writer; avoids SQLITE_BUSY against ourselves

	if _, err := db.ExecContext(ctx, writePragmas); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "applying pragmas")
	}

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating schema")
	}

	c := &Catalog{db: db, log: log, path: path}

	if err := c.truncateCurrent(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
		log.Warnw("vacuum failed, continuing", "err", err)
	}

	return c, nil
}

// Close closes the underlying database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Path returns the filesystem path the catalog was opened on, so the
// snapshot controller can read the raw database file to compress a copy
// into the committed snapshot (spec §3/§6's index.sqlite3.gz).
func (c *Catalog) Path() string {
	return c.path
}

// Checkpoint forces the WAL back into the main database file so a
// file-level copy of Path() reflects every committed write. The controller
// calls this right after Commit, before compressing the catalog into the
// snapshot.
func (c *Catalog) Checkpoint(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return errors.Wrap(err, "checkpointing wal")
}

func (c *Catalog) truncateCurrent(ctx context.Context) error {
	for _, stmt := range []string{"DELETE FROM cur_dirs", "DELETE FROM cur_files"} {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "truncating current tables (%s)", stmt)
		}
	}

	return nil
}

// CurStats returns (num_current_dirs, num_current_files), spec §4.2.
func (c *Catalog) CurStats(ctx context.Context) (dirs, files int64, err error) {
	if err = c.db.QueryRowContext(ctx, "SELECT count(*) FROM cur_dirs").Scan(&dirs); err != nil {
		return 0, 0, errors.Wrap(err, "counting cur_dirs")
	}

	if err = c.db.QueryRowContext(ctx, "SELECT count(*) FROM cur_files").Scan(&files); err != nil {
		return 0, 0, errors.Wrap(err, "counting cur_files")
	}

	return dirs, files, nil
}

// NumChanged is the gate for creating a new snapshot: count of
// added-or-modified files plus count of added-or-modified dirs, spec §4.2.
func (c *Catalog) NumChanged(ctx context.Context) (int64, error) {
	var files, dirs int64

	if err := c.db.QueryRowContext(ctx, addedOrModifiedFilesCountSQL).Scan(&files); err != nil {
		return 0, errors.Wrap(err, "counting added/modified files")
	}

	if err := c.db.QueryRowContext(ctx, addedOrModifiedDirsCountSQL).Scan(&dirs); err != nil {
		return 0, errors.Wrap(err, "counting added/modified dirs")
	}

	return files + dirs, nil
}

// Commit truncates baseline, copies all of cur_* into baseline, then
// truncates current — transactionally, so a failure leaves the previous
// baseline intact (spec §4.2/§3 invariant: after commit, baseline equals
// the current catalog from that run and current is empty).
func (c *Catalog) Commit(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning commit transaction")
	}

	defer tx.Rollback() //nolint:errcheck

	stmts := []string{
		"DELETE FROM dirs",
		"DELETE FROM files",
		"INSERT INTO dirs (path, mtime, inode) SELECT path, mtime, inode FROM cur_dirs",
		"INSERT INTO files (path, name, mtime, size, is_symlink, is_file, inode) " +
			"SELECT path, name, mtime, size, is_symlink, is_file, inode FROM cur_files",
		"DELETE FROM cur_dirs",
		"DELETE FROM cur_files",
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "commit step %q", stmt)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing catalog transaction")
	}

	return nil
}

// Select copies into the current tables all baseline rows whose path
// begins with prefix. Used by restore to repurpose the differential
// machinery to enumerate a selected set (spec §4.2's select(subtree_prefix)).
func (c *Catalog) Select(ctx context.Context, prefix string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning select transaction")
	}

	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{"DELETE FROM cur_dirs", "DELETE FROM cur_files"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "select step %q", stmt)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO cur_dirs (path, mtime, inode) "+
			"SELECT path, mtime, inode FROM dirs WHERE substr(path, 1, length(?1)) = ?1", prefix); err != nil {
		return errors.Wrap(err, "selecting dirs by prefix")
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO cur_files (path, name, mtime, size, is_symlink, is_file, inode) "+
			"SELECT path, name, mtime, size, is_symlink, is_file, inode FROM files "+
			"WHERE substr(path, 1, length(?1)) = ?1", prefix); err != nil {
		return errors.Wrap(err, "selecting files by prefix")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing select transaction")
	}

	return nil
}
