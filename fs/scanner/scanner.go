// Package scanner walks a source tree and yields, per directory, its
// metadata plus the files and subdirectories it contains — the directory
// scanner of spec §4.1. Entries are read with a stat-on-read primitive
// (os.ReadDir already carries a DirEntry whose Info() avoids a second
// stat/lstat syscall) and classified into files and descend-worthy
// subdirectories, honouring exclude patterns and unreadable-directory
// skips along the way.
package scanner

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/cronobak/cronobak/internal/inodeorder"
)

// DirRecord mirrors spec §3's DirRecord: path, mtime, inode of one directory.
type DirRecord struct {
	Path  string
	Mtime float64
	Inode uint64
}

// FileRecord mirrors spec §3's FileRecord.
type FileRecord struct {
	Path      string // containing directory
	Name      string // basename
	Mtime     float64
	Size      int64
	IsSymlink bool
	IsFile    bool // true iff regular file; false+!IsSymlink => special node
	Inode     uint64
}

// Node is one pre-order traversal step: a directory plus its direct
// children, already classified and exclude-filtered.
type Node struct {
	Dir   DirRecord
	Dirs  []DirRecord  // subdirectories to recurse into (not yet recursed)
	Files []FileRecord // non-directory entries, sorted ascending by inode
}

// Scanner walks one source tree.
type Scanner struct {
	excludes []*regexp.Regexp
	log      *zap.SugaredLogger
}

// New compiles excludes once and returns a Scanner. Exclude patterns are
// tested by substring search against the absolute path per spec §4.1.
func New(excludes []string, log *zap.SugaredLogger) (*Scanner, error) {
	compiled := make([]*regexp.Regexp, 0, len(excludes))

	for _, pat := range excludes {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, errors.Wrapf(err, "compiling exclude pattern %q", pat)
		}

		compiled = append(compiled, re)
	}

	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Scanner{excludes: compiled, log: log}, nil
}

func (s *Scanner) excluded(path string) bool {
	for _, re := range s.excludes {
		if re.MatchString(path) {
			return true
		}
	}

	return false
}

// Scan walks root in pre-order, calling visit once per directory with that
// directory's already-classified children. Any error visit returns aborts
// the walk and is returned from Scan. visit cannot prune descent: every
// subdirectory listed in a Node is walked after visit returns.
//
// root must be an existing, readable directory — failure here is fatal per
// spec §4.1 ("invalid root path fails fast"); all other errors are per-entry
// and are logged, not returned.
func (s *Scanner) Scan(ctx context.Context, root string, visit func(Node) error) error {
	root = filepath.Clean(root)

	rootInfo, err := os.Lstat(root)
	if err != nil {
		return errors.Wrapf(err, "stat root %s", root)
	}

	if !rootInfo.IsDir() {
		return errors.Errorf("root %s is not a directory", root)
	}

	rootRec := toDirRecord(root, rootInfo)

	return s.walk(ctx, rootRec, visit)
}

func (s *Scanner) walk(ctx context.Context, dir DirRecord, visit func(Node) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir.Path)
	if err != nil {
		s.log.Warnw("cannot enumerate directory, skipping", "path", dir.Path, "err", err)
		return visit(Node{Dir: dir})
	}

	node := Node{Dir: dir}

	for _, ent := range entries {
		full := filepath.Join(dir.Path, ent.Name())

		if s.excluded(full) {
			s.log.Infow("excluding path", "path", full)
			continue
		}

		info, err := ent.Info()
		if err != nil {
			s.log.Warnw("cannot stat entry, skipping", "path", full, "err", err)
			continue
		}

		if ent.IsDir() {
			sub := toDirRecord(full, info)

			if !s.canDescend(full, info) {
				s.log.Warnw("skipping unreadable subdirectory", "path", full)
				continue
			}

			node.Dirs = append(node.Dirs, sub)

			continue
		}

		node.Files = append(node.Files, toFileRecord(dir.Path, ent.Name(), info))
	}

	sort.SliceStable(node.Dirs, func(i, j int) bool { return inodeorder.Less(node.Dirs[i].Inode, node.Dirs[j].Inode) })
	sort.SliceStable(node.Files, func(i, j int) bool { return inodeorder.Less(node.Files[i].Inode, node.Files[j].Inode) })

	if err := visit(node); err != nil {
		return err
	}

	for _, sub := range node.Dirs {
		if err := s.walk(ctx, sub, visit); err != nil {
			return err
		}
	}

	return nil
}

// canDescend reports whether sub is a plain (non-symlink) directory the
// process may read and execute into, per spec §4.1 rule (a)+(b).
func (s *Scanner) canDescend(path string, info os.FileInfo) bool {
	if info.Mode()&os.ModeSymlink != 0 {
		return false
	}

	return unix.Access(path, unix.R_OK|unix.X_OK) == nil
}

func toDirRecord(path string, info os.FileInfo) DirRecord {
	return DirRecord{
		Path:  path,
		Mtime: mtimeSeconds(info),
		Inode: inodeOf(info),
	}
}

func toFileRecord(dir, name string, info os.FileInfo) FileRecord {
	mode := info.Mode()

	return FileRecord{
		Path:      dir,
		Name:      name,
		Mtime:     mtimeSeconds(info),
		Size:      info.Size(),
		IsSymlink: mode&os.ModeSymlink != 0,
		IsFile:    mode.IsRegular(),
		Inode:     inodeOf(info),
	}
}

func mtimeSeconds(info os.FileInfo) float64 {
	return float64(info.ModTime().UnixNano()) / 1e9
}

func inodeOf(info os.FileInfo) uint64 {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return st.Ino
	}

	return 0
}

// IsExcludedPath applies the same substring-search semantics as a Scanner's
// own exclude check to an already-compiled pattern list; kept trivial on
// purpose.
func IsExcludedPath(path string, excludes []*regexp.Regexp) bool {
	for _, re := range excludes {
		if re.MatchString(path) {
			return true
		}
	}

	return false
}

// TrimLeadingSlash strips the leading "/" so an absolute path can be joined
// under a snapshot root, per spec §3 ("the leading slash is stripped").
func TrimLeadingSlash(path string) string {
	return strings.TrimPrefix(path, string(filepath.Separator))
}
