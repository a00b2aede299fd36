// Package atomicio provides the two atomic-write primitives the snapshot
// lifecycle needs: promoting a finished in-progress directory to its final
// name (§4.4, the commit boundary), and writing whole files (the compressed
// catalog archive and the restore scratch catalog) so a reader never
// observes a half-written one.
package atomicio

import (
	"bytes"
	"os"

	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
)

// PromoteDir renames an in-progress snapshot directory to its final name.
// On the same filesystem (always true here: both live under the backup
// root) os.Rename is already atomic, so no temp-and-swap dance is needed;
// this is the commit boundary named in spec §4.4/§4.6.
func PromoteDir(inProgress, final string) error {
	if _, err := os.Stat(final); err == nil {
		return errors.Errorf("snapshot already exists: %s", final)
	}

	if err := os.Rename(inProgress, final); err != nil {
		return errors.Wrapf(err, "promoting %s to %s", inProgress, final)
	}

	return nil
}

// WriteFile atomically replaces path's contents with data: a reader opening
// path either sees the old complete contents or the new complete contents,
// never a partial write. The snapshot package uses it to write a snapshot's
// index.sqlite3.gz and to decompress that archive into a restore scratch
// catalog.
func WriteFile(path string, data []byte) error {
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return errors.Wrapf(err, "atomically writing %s", path)
	}

	return nil
}
