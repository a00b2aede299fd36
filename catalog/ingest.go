package catalog

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/cronobak/cronobak/fs/scanner"
)

// ingestQueueCapacity bounds the in-memory staging queue between the
// scanner goroutine and the feeder goroutine that actually writes to
// sqlite, so a fast scan cannot outrun the database indefinitely (spec §5:
// "a bounded queue served by a single background inserter to overlap
// disk-scan with database writes").
const ingestQueueCapacity = 256

// Ingester batches scanner.Node values onto a bounded channel drained by a
// single feeder goroutine holding the one open write transaction for this
// ingest, so a directory walk never blocks on a synchronous insert.
type Ingester struct {
	queue  chan scanner.Node
	done   chan struct{}
	feedCh chan error // feeder's terminal error, sent once
	cat    *Catalog
}

// NewIngester starts the feeder goroutine and returns an Ingester ready to
// accept nodes via Push. The feeder owns the single write transaction for
// the whole ingest and commits it only when Close is called with no error
// pending.
func (c *Catalog) NewIngester(ctx context.Context) *Ingester {
	ing := &Ingester{
		queue:  make(chan scanner.Node, ingestQueueCapacity),
		done:   make(chan struct{}),
		feedCh: make(chan error, 1),
		cat:    c,
	}

	go ing.feed(ctx)

	return ing
}

func (ing *Ingester) feed(ctx context.Context) {
	defer close(ing.done)

	tx, err := ing.cat.db.BeginTx(ctx, nil)
	if err != nil {
		ing.feedCh <- errors.Wrap(err, "beginning ingest transaction")
		return
	}

	dirStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO cur_dirs (path, mtime, inode) VALUES (?, ?, ?)")
	if err != nil {
		tx.Rollback() //nolint:errcheck
		ing.feedCh <- errors.Wrap(err, "preparing dir insert")

		return
	}
	defer dirStmt.Close()

	fileStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO cur_files (path, name, mtime, size, is_symlink, is_file, inode) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback() //nolint:errcheck
		ing.feedCh <- errors.Wrap(err, "preparing file insert")

		return
	}
	defer fileStmt.Close()

	for node := range ing.queue {
		if err := insertNode(ctx, dirStmt, fileStmt, node); err != nil {
			tx.Rollback() //nolint:errcheck
			ing.feedCh <- err

			// Drain the remainder of the queue so Push's senders never
			// block forever on a full channel after we've stopped reading.
			for range ing.queue {
			}

			return
		}
	}

	if err := tx.Commit(); err != nil {
		ing.feedCh <- errors.Wrap(err, "committing ingest transaction")
		return
	}

	ing.feedCh <- nil
}

func insertNode(ctx context.Context, dirStmt, fileStmt *sql.Stmt, node scanner.Node) error {
	d := node.Dir

	if _, err := dirStmt.ExecContext(ctx, d.Path, d.Mtime, d.Inode); err != nil {
		return errors.Wrapf(err, "inserting dir %s", d.Path)
	}

	// Files within a directory are inserted sorted by inode (spec §4.2);
	// the scanner already sorted node.Files ascending by inode.
	for _, f := range node.Files {
		if _, err := fileStmt.ExecContext(ctx, f.Path, f.Name, f.Mtime, f.Size, boolInt(f.IsSymlink), boolInt(f.IsFile), f.Inode); err != nil {
			return errors.Wrapf(err, "inserting file %s/%s", f.Path, f.Name)
		}
	}

	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}

	return 0
}

// Push enqueues one scanner node (a directory plus its files) for the
// feeder to insert. It returns the feeder's terminal error immediately if
// the feeder has already stopped (e.g. a prior insert failed), instead of
// blocking forever trying to send on a channel nobody drains.
func (ing *Ingester) Push(node scanner.Node) error {
	select {
	case ing.queue <- node:
		return nil
	case <-ing.done:
		return ing.feederError()
	}
}

func (ing *Ingester) feederError() error {
	select {
	case err := <-ing.feedCh:
		ing.feedCh <- err // let a later Close() see the same error
		return err
	default:
		return errors.New("catalog ingest feeder stopped")
	}
}

// Close signals end-of-input, waits for the feeder to drain and commit (or
// report the error that made it stop), and returns that result. Push must
// not be called again after Close.
func (ing *Ingester) Close() error {
	close(ing.queue)
	<-ing.done

	return <-ing.feedCh
}
