package pipeline

import (
	"os"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// CopyMetadata replays mode, ownership, and timestamps from src onto dst
// without dereferencing either path, per spec §4.3.2 ("copy metadata ...
// without dereferencing symlinks"). src and dst may both be directories —
// the Lstat-based, non-following approach is file-type agnostic, so
// snapshot and restore reuse this exact implementation for the ancestor
// directory stats walk required by spec §4.4.
func CopyMetadata(src, dst string) error {
	fi, err := os.Lstat(src)
	if err != nil {
		return errors.Wrapf(err, "stat %s", src)
	}

	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return errors.Errorf("unsupported stat type for %s", src)
	}

	if err := os.Lchown(dst, int(st.Uid), int(st.Gid)); err != nil {
		return errors.Wrapf(err, "lchown %s", dst)
	}

	// There is no lchmod on Linux: chmod always follows symlinks, so
	// applying it to a symlink destination would chmod whatever it
	// points at instead. Skip mode replay for symlinks; ownership and
	// timestamps above/below still apply via the *at syscalls.
	if fi.Mode()&os.ModeSymlink == 0 {
		if err := os.Chmod(dst, fi.Mode().Perm()); err != nil {
			return errors.Wrapf(err, "chmod %s", dst)
		}
	}

	atime := unix.Timespec{Sec: int64(st.Atim.Sec), Nsec: int64(st.Atim.Nsec)}
	mtime := unix.Timespec{Sec: int64(st.Mtim.Sec), Nsec: int64(st.Mtim.Nsec)}

	if err := unix.UtimesNanoAt(unix.AT_FDCWD, dst, []unix.Timespec{atime, mtime}, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return errors.Wrapf(err, "utimes %s", dst)
	}

	return nil
}

func mknodFIFO(dst string, mode os.FileMode) error {
	return unix.Mknod(dst, unix.S_IFIFO|uint32(mode.Perm()), 0)
}

func mknodSocket(dst string, mode os.FileMode) error {
	return unix.Mknod(dst, unix.S_IFSOCK|uint32(mode.Perm()), 0)
}
