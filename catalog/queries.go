package catalog

import (
	"context"

	"github.com/pkg/errors"
)

// The SQL below implements spec §4.2's differential selects:
//
//	added_files             = cur ⟕ base on (path,name) where base.mtime is null
//	modified_files          = cur ⟕ base where base.mtime is not null and base.mtime != cur.mtime
//	added_or_modified_files = union of the above, ordered by inode
//	unmodified_files        = equi-mtime join
//
// and the analogous dir queries (joined on path only, since DirRecord has no
// name column).

const (
	addedFilesSQL = `
SELECT c.path, c.name, c.mtime, c.size, c.is_symlink, c.is_file, c.inode
FROM cur_files c LEFT JOIN files b ON c.path = b.path AND c.name = b.name
WHERE b.mtime IS NULL
ORDER BY c.inode ASC`

	modifiedFilesSQL = `
SELECT c.path, c.name, c.mtime, c.size, c.is_symlink, c.is_file, c.inode
FROM cur_files c LEFT JOIN files b ON c.path = b.path AND c.name = b.name
WHERE b.mtime IS NOT NULL AND b.mtime != c.mtime
ORDER BY c.inode ASC`

	addedOrModifiedFilesSQL = `
SELECT path, name, mtime, size, is_symlink, is_file, inode FROM (
	SELECT c.path AS path, c.name AS name, c.mtime AS mtime, c.size AS size,
	       c.is_symlink AS is_symlink, c.is_file AS is_file, c.inode AS inode
	FROM cur_files c LEFT JOIN files b ON c.path = b.path AND c.name = b.name
	WHERE b.mtime IS NULL OR b.mtime != c.mtime
)
ORDER BY inode ASC`

	addedOrModifiedFilesCountSQL = `
SELECT count(*) FROM cur_files c LEFT JOIN files b ON c.path = b.path AND c.name = b.name
WHERE b.mtime IS NULL OR b.mtime != c.mtime`

	unmodifiedFilesSQL = `
SELECT c.path, c.name, c.mtime, c.size, c.is_symlink, c.is_file, c.inode
FROM cur_files c JOIN files b ON c.path = b.path AND c.name = b.name
WHERE b.mtime = c.mtime
ORDER BY c.inode ASC`

	addedDirsSQL = `
SELECT c.path, c.mtime, c.inode
FROM cur_dirs c LEFT JOIN dirs b ON c.path = b.path
WHERE b.mtime IS NULL
ORDER BY c.inode ASC`

	modifiedDirsSQL = `
SELECT c.path, c.mtime, c.inode
FROM cur_dirs c LEFT JOIN dirs b ON c.path = b.path
WHERE b.mtime IS NOT NULL AND b.mtime != c.mtime
ORDER BY c.inode ASC`

	addedOrModifiedDirsSQL = `
SELECT path, mtime, inode FROM (
	SELECT c.path AS path, c.mtime AS mtime, c.inode AS inode
	FROM cur_dirs c LEFT JOIN dirs b ON c.path = b.path
	WHERE b.mtime IS NULL OR b.mtime != c.mtime
)
ORDER BY inode ASC`

	addedOrModifiedDirsCountSQL = `
SELECT count(*) FROM cur_dirs c LEFT JOIN dirs b ON c.path = b.path
WHERE b.mtime IS NULL OR b.mtime != c.mtime`

	addedBytesSQL = `
SELECT COALESCE(SUM(c.size), 0)
FROM cur_files c LEFT JOIN files b ON c.path = b.path AND c.name = b.name
WHERE b.mtime IS NULL`

	modifiedBytesSQL = `
SELECT COALESCE(SUM(c.size), 0)
FROM cur_files c LEFT JOIN files b ON c.path = b.path AND c.name = b.name
WHERE b.mtime IS NOT NULL AND b.mtime != c.mtime`

	addedOrModifiedBytesSQL = `
SELECT COALESCE(SUM(c.size), 0)
FROM cur_files c LEFT JOIN files b ON c.path = b.path AND c.name = b.name
WHERE b.mtime IS NULL OR b.mtime != c.mtime`
)

func (c *Catalog) queryFiles(ctx context.Context, q string, args ...any) ([]FileRecord, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying files")
	}
	defer rows.Close()

	var out []FileRecord

	for rows.Next() {
		var r FileRecord

		var isSymlink, isFile int

		if err := rows.Scan(&r.Path, &r.Name, &r.Mtime, &r.Size, &isSymlink, &isFile, &r.Inode); err != nil {
			return nil, errors.Wrap(err, "scanning file row")
		}

		r.IsSymlink = isSymlink != 0
		r.IsFile = isFile != 0
		out = append(out, r)
	}

	return out, errors.Wrap(rows.Err(), "iterating file rows")
}

func (c *Catalog) queryDirs(ctx context.Context, q string, args ...any) ([]DirRecord, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying dirs")
	}
	defer rows.Close()

	var out []DirRecord

	for rows.Next() {
		var r DirRecord

		if err := rows.Scan(&r.Path, &r.Mtime, &r.Inode); err != nil {
			return nil, errors.Wrap(err, "scanning dir row")
		}

		out = append(out, r)
	}

	return out, errors.Wrap(rows.Err(), "iterating dir rows")
}

// AddedFiles, ModifiedFiles, AddedOrModifiedFiles, UnmodifiedFiles implement
// spec §4.2's file-side differential selects.
func (c *Catalog) AddedFiles(ctx context.Context) ([]FileRecord, error) {
	return c.queryFiles(ctx, addedFilesSQL)
}

func (c *Catalog) ModifiedFiles(ctx context.Context) ([]FileRecord, error) {
	return c.queryFiles(ctx, modifiedFilesSQL)
}

func (c *Catalog) AddedOrModifiedFiles(ctx context.Context) ([]FileRecord, error) {
	return c.queryFiles(ctx, addedOrModifiedFilesSQL)
}

func (c *Catalog) UnmodifiedFiles(ctx context.Context) ([]FileRecord, error) {
	return c.queryFiles(ctx, unmodifiedFilesSQL)
}

// AddedDirs, ModifiedDirs, AddedOrModifiedDirs are the dir-side analogues,
// joined on path only (spec §4.2).
func (c *Catalog) AddedDirs(ctx context.Context) ([]DirRecord, error) {
	return c.queryDirs(ctx, addedDirsSQL)
}

func (c *Catalog) ModifiedDirs(ctx context.Context) ([]DirRecord, error) {
	return c.queryDirs(ctx, modifiedDirsSQL)
}

func (c *Catalog) AddedOrModifiedDirs(ctx context.Context) ([]DirRecord, error) {
	return c.queryDirs(ctx, addedOrModifiedDirsSQL)
}

func (c *Catalog) scalarBytes(ctx context.Context, q string) (int64, error) {
	var n int64
	if err := c.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "aggregate bytes query")
	}

	return n, nil
}

// AddedBytes, ModifiedBytes, AddedOrModifiedBytes are the aggregate size
// queries of spec §4.2; each returns 0 when the sum is null.
func (c *Catalog) AddedBytes(ctx context.Context) (int64, error) {
	return c.scalarBytes(ctx, addedBytesSQL)
}

func (c *Catalog) ModifiedBytes(ctx context.Context) (int64, error) {
	return c.scalarBytes(ctx, modifiedBytesSQL)
}

func (c *Catalog) AddedOrModifiedBytes(ctx context.Context) (int64, error) {
	return c.scalarBytes(ctx, addedOrModifiedBytesSQL)
}

// CurrentFiles returns every row currently staged in cur_files, ordered by
// inode ascending. Used by restore after Select(prefix) stages a baseline
// subtree into current: unlike the differential queries, this returns the
// whole staged set rather than a diff against baseline (a staged row's
// mtime trivially equals its own baseline mtime, so it would never show up
// as added/modified).
func (c *Catalog) CurrentFiles(ctx context.Context) ([]FileRecord, error) {
	return c.queryFiles(ctx, "SELECT path, name, mtime, size, is_symlink, is_file, inode FROM cur_files ORDER BY inode ASC")
}

// CurrentDirs is CurrentFiles' directory analogue.
func (c *Catalog) CurrentDirs(ctx context.Context) ([]DirRecord, error) {
	return c.queryDirs(ctx, "SELECT path, mtime, inode FROM cur_dirs ORDER BY inode ASC")
}

// SelectedBytes sums the size of every row currently staged in cur_files —
// used after Select() stages a restore subtree, to size the copy pipeline's
// progress denominator (spec §4.2's selected_bytes).
func (c *Catalog) SelectedBytes(ctx context.Context) (int64, error) {
	return c.scalarBytes(ctx, "SELECT COALESCE(SUM(size), 0) FROM cur_files")
}
