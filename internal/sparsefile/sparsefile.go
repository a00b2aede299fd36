// Package sparsefile detects all-zero regions of a file and lets the copy
// pipeline re-create them as holes on the destination instead of writing
// zero bytes, per spec §3 (SPARSE sentinel) and §4.3.
package sparsefile

import (
	"os"

	"github.com/pkg/errors"
)

// IsZero reports whether buf consists entirely of zero bytes. It is used by
// the pipeline reader to decide whether a 64 KiB part should be represented
// by the SPARSE sentinel instead of its raw bytes.
func IsZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}

	return true
}

// ShouldDetect reports whether sparse detection is worth attempting for a
// regular file of the given logical size and allocated block count, per
// spec §4.3.1: size >= chunkSize AND allocated bytes < size.
func ShouldDetect(size int64, allocatedBlocks int64, chunkSize int64) bool {
	return size >= chunkSize && allocatedBlocks*512 < size
}

// Writer sequentially materialises a file's content onto dst, turning
// WriteSparse calls into holes (via Seek, so the underlying filesystem
// allocates no blocks for that range) and WriteData calls into ordinary
// writes. It tracks the current offset so writer code never needs to.
type Writer struct {
	dst    *os.File
	offset int64
}

// NewWriter wraps dst for sparse-aware sequential writing. dst must be
// freshly opened/truncated; offset starts at 0.
func NewWriter(dst *os.File) *Writer {
	return &Writer{dst: dst}
}

// WriteSparse advances the logical offset by n bytes without writing data,
// leaving a hole in the destination file.
func (w *Writer) WriteSparse(n int) error {
	off, err := w.dst.Seek(int64(n), os.SEEK_CUR)
	if err != nil {
		return errors.Wrap(err, "seeking over sparse region")
	}

	w.offset = off

	return nil
}

// WriteData writes b at the current offset and advances it.
func (w *Writer) WriteData(b []byte) error {
	n, err := w.dst.Write(b)
	w.offset += int64(n)

	if err != nil {
		return errors.Wrap(err, "writing data part")
	}

	return nil
}

// Close truncates the file to the current logical offset (a seek past EOF
// does not by itself grow the file, so this is what gives a file ending in
// a sparse part its full length) and closes it.
func (w *Writer) Close() error {
	if err := w.dst.Truncate(w.offset); err != nil {
		_ = w.dst.Close()
		return errors.Wrap(err, "truncating to final length")
	}

	return w.dst.Close()
}

// Offset returns the writer's current logical offset.
func (w *Writer) Offset() int64 {
	return w.offset
}
