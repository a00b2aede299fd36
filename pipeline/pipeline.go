package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pipeline owns the two bounded queues and the reader/writer goroutines
// that drain them (spec §4.3, §5). One Pipeline serves one backup or
// restore run.
type Pipeline struct {
	input  chan Request
	chunks chan Chunk

	sumBytes  atomic.Int64
	doneBytes atomic.Int64

	filesWritten    atomic.Int64
	symlinksWritten atomic.Int64
	sparsePartsSeen atomic.Int64

	statusFn func(Status)
	log      *zap.SugaredLogger

	dirsMu        sync.Mutex
	dirsNeedStats []string

	group *errgroup.Group
}

// New creates a Pipeline. sumBytes seeds the global progress denominator
// (spec §4.3.1's sum_bytes, typically added_bytes+modified_bytes from the
// catalog); statusFn may be nil.
func New(sumBytes int64, statusFn func(Status), log *zap.SugaredLogger) *Pipeline {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	p := &Pipeline{
		input:    make(chan Request, InputQueueCapacity),
		chunks:   make(chan Chunk, ChunkQueueCapacity),
		statusFn: statusFn,
		log:      log,
	}
	p.sumBytes.Store(sumBytes)

	return p
}

// AddMoreBytes increases the global progress denominator mid-run, per spec
// §4.3.1.
func (p *Pipeline) AddMoreBytes(n int64) {
	p.sumBytes.Add(n)
}

// Start launches the reader and writer goroutines under an errgroup bound
// to ctx; cancelling ctx makes both stages stop between items (spec §5's
// cooperative cancellation).
func (p *Pipeline) Start(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	p.group = g

	g.Go(func() error {
		p.runReader(ctx)
		return nil
	})

	g.Go(func() error {
		p.runWriter(ctx)
		return nil
	})
}

// Submit enqueues one copy request, blocking if the input queue is full,
// or returning ctx.Err() if ctx ends first.
func (p *Pipeline) Submit(ctx context.Context, req Request) error {
	select {
	case p.input <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseInput signals that no more requests will be submitted; the reader
// exits once it has drained the input queue.
func (p *Pipeline) CloseInput() {
	close(p.input)
}

// Wait blocks until both the reader and writer have exited (input drained,
// chunk queue drained and closed). Both stages log per-item errors and drop
// that item (spec §7) instead of returning them, so the error Wait returns
// is always nil.
func (p *Pipeline) Wait() error {
	return p.group.Wait()
}

// DirsNeedStats returns the source directories recorded via
// NoteDirNeedsStats — in practice those whose destination the writer
// created on demand (via an implicit MkdirAll) — which therefore need their
// metadata replayed by the controller's dir-stats pass (spec §4.3.2,
// §4.4). Safe to call only after Wait returns — both goroutines have
// exited by then — though the slice is mutex-guarded regardless.
func (p *Pipeline) DirsNeedStats() []string {
	p.dirsMu.Lock()
	defer p.dirsMu.Unlock()

	out := make([]string, len(p.dirsNeedStats))
	copy(out, p.dirsNeedStats)

	return out
}

// NoteDirNeedsStats records srcDir for the dir-stats pass. The writer calls
// it for every destination directory it has to create on demand; the
// snapshot controller keeps its create_tree directories (spec §4.4) in its
// own list and merges them with DirsNeedStats after Wait.
func (p *Pipeline) NoteDirNeedsStats(srcDir string) {
	p.dirsMu.Lock()
	p.dirsNeedStats = append(p.dirsNeedStats, srcDir)
	p.dirsMu.Unlock()
}

// Counts returns the number of files and symlinks the writer has
// materialised so far.
func (p *Pipeline) Counts() (files, symlinks int64) {
	return p.filesWritten.Load(), p.symlinksWritten.Load()
}

// SparsePartsWritten returns the number of 64 KiB parts the writer turned
// into holes instead of writing, across the whole run.
func (p *Pipeline) SparsePartsWritten() int64 {
	return p.sparsePartsSeen.Load()
}
