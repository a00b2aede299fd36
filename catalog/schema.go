package catalog

// Schema per spec §3: two pairs of tables, baseline (dirs, files) and
// current (cur_dirs, cur_files), sharing identical columns. Secondary
// indexes on inode, size, mtime accelerate the ordered reads and aggregate
// queries named in §4.2.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS dirs (
	path  TEXT PRIMARY KEY,
	mtime REAL NOT NULL,
	inode INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cur_dirs (
	path  TEXT PRIMARY KEY,
	mtime REAL NOT NULL,
	inode INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	path       TEXT NOT NULL,
	name       TEXT NOT NULL,
	mtime      REAL NOT NULL,
	size       INTEGER NOT NULL,
	is_symlink INTEGER NOT NULL,
	is_file    INTEGER NOT NULL,
	inode      INTEGER NOT NULL,
	PRIMARY KEY (path, name)
);

CREATE TABLE IF NOT EXISTS cur_files (
	path       TEXT NOT NULL,
	name       TEXT NOT NULL,
	mtime      REAL NOT NULL,
	size       INTEGER NOT NULL,
	is_symlink INTEGER NOT NULL,
	is_file    INTEGER NOT NULL,
	inode      INTEGER NOT NULL,
	PRIMARY KEY (path, name)
);

CREATE INDEX IF NOT EXISTS idx_files_inode ON files(inode);
CREATE INDEX IF NOT EXISTS idx_files_size ON files(size);
CREATE INDEX IF NOT EXISTS idx_files_mtime ON files(mtime);
CREATE INDEX IF NOT EXISTS idx_cur_files_inode ON cur_files(inode);
CREATE INDEX IF NOT EXISTS idx_cur_files_size ON cur_files(size);
CREATE INDEX IF NOT EXISTS idx_cur_files_mtime ON cur_files(mtime);
CREATE INDEX IF NOT EXISTS idx_dirs_inode ON dirs(inode);
CREATE INDEX IF NOT EXISTS idx_cur_dirs_inode ON cur_dirs(inode);
`

// writePragmas tune SQLite for the single-writer, bulk-insert-then-query
// access pattern of one backup run, grounded on dug's db.ApplyWritePragmas.
const writePragmas = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = OFF;
PRAGMA temp_store = MEMORY;
`
