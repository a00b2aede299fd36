package pipeline

import (
	"context"
	"io"
	"os"
	"syscall"

	"github.com/pkg/errors"

	"github.com/cronobak/cronobak/internal/sparsefile"
)

// runReader drains the input queue until it is closed, emitting chunks for
// each request. Per-request errors are logged and do not stop the loop
// (spec §4.3.1/§7).
func (p *Pipeline) runReader(ctx context.Context) {
	defer close(p.chunks)

	for {
		select {
		case req, ok := <-p.input:
			if !ok {
				return
			}

			if err := p.readOne(ctx, req); err != nil {
				p.log.Warnw("pipeline reader: abandoning request", "src", req.SrcFile, "dst", req.DstFile, "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) readOne(ctx context.Context, req Request) error {
	src := req.SrcFile

	if req.Resolver != nil {
		resolved, err := req.Resolver(src)
		if err != nil {
			return errors.Wrapf(err, "resolving source for %s", req.DstFile)
		}

		src = resolved
	}

	switch {
	case req.IsSymlink:
		return p.readSymlink(ctx, src, req)
	case !req.IsFile:
		return p.readSpecial(ctx, src, req)
	case req.Size == 0:
		return p.readEmpty(ctx, src, req)
	default:
		return p.readRegular(ctx, src, req)
	}
}

func (p *Pipeline) emit(ctx context.Context, c Chunk) error {
	select {
	case p.chunks <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) emitMeta(ctx context.Context, req Request, srcDir, metaSrc string) error {
	return p.emit(ctx, Chunk{Kind: KindMeta, SrcDir: srcDir, Dst: req.DstFile, MetaSrc: metaSrc})
}

func (p *Pipeline) readSymlink(ctx context.Context, src string, req Request) error {
	target, err := os.Readlink(src)
	if err != nil {
		return errors.Wrapf(err, "reading symlink %s", src)
	}

	if err := p.emit(ctx, Chunk{Kind: KindSymlink, SrcDir: req.SrcDir, Dst: req.DstFile, Symlink: target}); err != nil {
		return err
	}

	return p.emitMeta(ctx, req, req.SrcDir, src)
}

func (p *Pipeline) readSpecial(ctx context.Context, src string, req Request) error {
	fi, err := os.Lstat(src)
	if err != nil {
		return errors.Wrapf(err, "stat special node %s", src)
	}

	kind, ok := classifySpecial(fi)
	if !ok {
		return errors.Errorf("%s is neither file, symlink nor known special node", src)
	}

	if err := p.emit(ctx, Chunk{
		Kind: KindSpecial, SrcDir: req.SrcDir, Dst: req.DstFile,
		Special: kind, Mode: fi.Mode(),
	}); err != nil {
		return err
	}

	return p.emitMeta(ctx, req, req.SrcDir, src)
}

func classifySpecial(fi os.FileInfo) (SpecialKind, bool) {
	mode := fi.Mode()

	switch {
	case mode&os.ModeNamedPipe != 0:
		return SpecialFIFO, true
	case mode&os.ModeSocket != 0:
		return SpecialSocket, true
	case mode&os.ModeDevice != 0 && mode&os.ModeCharDevice != 0:
		return SpecialChar, true
	case mode&os.ModeDevice != 0:
		return SpecialBlock, true
	default:
		return 0, false
	}
}

func (p *Pipeline) readEmpty(ctx context.Context, src string, req Request) error {
	if err := p.emit(ctx, Chunk{Kind: KindFile, SrcDir: req.SrcDir, Dst: req.DstFile, Empty: true}); err != nil {
		return err
	}

	return p.emitMeta(ctx, req, req.SrcDir, src)
}

const partsPerChunk = ChunkSize / PartSize

func (p *Pipeline) readRegular(ctx context.Context, src string, req Request) error {
	f, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "opening %s", src)
	}
	defer f.Close()

	detectSparse := sparsefile.ShouldDetect(req.Size, allocatedBlocks(f), ChunkSize)

	var (
		parts     []Part
		buf       = make([]byte, PartSize)
		fileDone  int64
		errReturn error
	)

	flush := func() error {
		if len(parts) == 0 {
			return nil
		}

		c := Chunk{Kind: KindFile, SrcDir: req.SrcDir, Dst: req.DstFile, Parts: parts}
		parts = nil

		return p.emit(ctx, c)
	}

	for {
		n, readErr := io.ReadFull(f, buf)
		if n > 0 {
			part := Part{N: n}

			if detectSparse && sparsefile.IsZero(buf[:n]) {
				part.Sparse = true
			} else {
				part.Data = append([]byte(nil), buf[:n]...)
			}

			parts = append(parts, part)
			fileDone += int64(n)
			p.doneBytes.Add(int64(n))
			p.reportStatus(req.DstFile, fileDone, req.Size)

			if len(parts) >= partsPerChunk {
				if err := flush(); err != nil {
					errReturn = err
					break
				}
			}
		}

		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}

		if readErr != nil {
			errReturn = errors.Wrapf(readErr, "reading %s", src)
			break
		}
	}

	if errReturn == nil {
		errReturn = flush()
	}

	if errReturn != nil {
		return errReturn
	}

	return p.emitMeta(ctx, req, req.SrcDir, src)
}

func (p *Pipeline) reportStatus(path string, fileDone, fileTotal int64) {
	if p.statusFn == nil {
		return
	}

	p.statusFn(Status{
		Path:            path,
		FileBytesDone:   fileDone,
		FileBytesTotal:  fileTotal,
		GlobalBytesDone: p.doneBytes.Load(),
		GlobalBytesSum:  p.sumBytes.Load(),
	})
}

func allocatedBlocks(f *os.File) int64 {
	fi, err := f.Stat()
	if err != nil {
		return 0
	}

	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return st.Blocks
	}

	return 0
}
