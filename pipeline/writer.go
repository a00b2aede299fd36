package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/cronobak/cronobak/internal/sparsefile"
)

// runWriter drains the chunk queue until the reader closes it, holding at
// most one open output handle at a time (spec §4.3.2).
func (p *Pipeline) runWriter(ctx context.Context) {
	w := &writerState{p: p}
	defer w.abandon()

	for {
		select {
		case c, ok := <-p.chunks:
			if !ok {
				return
			}

			if err := w.handle(c); err != nil {
				p.log.Warnw("pipeline writer: abandoning chunk", "dst", c.Dst, "kind", c.Kind, "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// writerState holds the single open output handle and the destination it
// belongs to, per spec §4.3.2 ("holds at most one open output handle").
type writerState struct {
	p          *Pipeline
	openDst    string
	openWriter *sparsefile.Writer
}

func (w *writerState) abandon() {
	if w.openWriter != nil {
		_ = w.openWriter.Close()
		w.openWriter = nil
	}
}

func (w *writerState) handle(c Chunk) error {
	if c.Dst != "" {
		if err := w.ensureDir(c); err != nil {
			return err
		}
	}

	switch c.Kind {
	case KindSymlink:
		return w.handleSymlink(c)
	case KindSpecial:
		return w.handleSpecial(c)
	case KindFile:
		return w.handleFile(c)
	case KindMeta:
		return w.handleMeta(c)
	default:
		return errors.Errorf("unknown chunk kind %d", c.Kind)
	}
}

// ensureDir creates dirname(dst) if missing, and if it had to be created,
// notes SrcDir so the controller replays metadata onto it later (spec
// §4.3.2).
func (w *writerState) ensureDir(c Chunk) error {
	dir := filepath.Dir(c.Dst)

	if _, err := os.Stat(dir); err == nil {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating directory %s", dir)
	}

	w.p.NoteDirNeedsStats(c.SrcDir)

	return nil
}

func (w *writerState) handleSymlink(c Chunk) error {
	if err := os.Symlink(c.Symlink, c.Dst); err != nil {
		return errors.Wrapf(err, "creating symlink %s -> %s", c.Dst, c.Symlink)
	}

	w.p.symlinksWritten.Add(1)

	return nil
}

func (w *writerState) handleSpecial(c Chunk) error {
	switch c.Special {
	case SpecialChar, SpecialBlock:
		w.p.log.Warnw("not re-creating char/block device", "dst", c.Dst, "kind", c.Special.String())
		return nil
	case SpecialFIFO:
		if err := mknodFIFO(c.Dst, c.Mode); err != nil {
			return errors.Wrapf(err, "creating fifo %s", c.Dst)
		}
	case SpecialSocket:
		if err := mknodSocket(c.Dst, c.Mode); err != nil {
			return errors.Wrapf(err, "creating socket node %s", c.Dst)
		}
	default:
		return errors.Errorf("unknown special kind %v", c.Special)
	}

	w.p.filesWritten.Add(1)

	return nil
}

func (w *writerState) closeOpen() error {
	if w.openWriter == nil {
		return nil
	}

	err := w.openWriter.Close()
	w.openWriter = nil
	w.openDst = ""

	return errors.Wrap(err, "closing output handle")
}

func (w *writerState) handleFile(c Chunk) error {
	if w.openWriter == nil || w.openDst != c.Dst {
		if err := w.closeOpen(); err != nil {
			return err
		}

		f, err := os.Create(c.Dst)
		if err != nil {
			return errors.Wrapf(err, "creating %s", c.Dst)
		}

		w.openWriter = sparsefile.NewWriter(f)
		w.openDst = c.Dst
		w.p.filesWritten.Add(1)
	}

	if c.Empty {
		return nil
	}

	for _, part := range c.Parts {
		if part.Sparse {
			if err := w.openWriter.WriteSparse(part.N); err != nil {
				return err
			}

			w.p.sparsePartsSeen.Add(1)

			continue
		}

		if err := w.openWriter.WriteData(part.Data); err != nil {
			return err
		}
	}

	return nil
}

func (w *writerState) handleMeta(c Chunk) error {
	if w.openWriter != nil && w.openDst == c.Dst {
		if err := w.closeOpen(); err != nil {
			return err
		}
	}

	if err := CopyMetadata(c.MetaSrc, c.Dst); err != nil {
		return errors.Wrapf(err, "copying metadata %s -> %s", c.MetaSrc, c.Dst)
	}

	return nil
}
