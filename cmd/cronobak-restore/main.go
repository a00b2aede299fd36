// Command cronobak-restore restores one or more path prefixes from a chosen
// snapshot into a target directory, resolving any file missing from that
// snapshot by walking strictly older snapshots backward (spec.md §4.5, §6).
package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"github.com/pkg/errors"

	"github.com/cronobak/cronobak/cli"
	"github.com/cronobak/cronobak/metrics"
	"github.com/cronobak/cronobak/pipeline"
	"github.com/cronobak/cronobak/restore"
	"github.com/cronobak/cronobak/volume"
)

//nolint:gochecknoglobals // kingpin's own idiom
var (
	app = kingpin.New("cronobak-restore", "Restore paths from a cronobak snapshot.")

	configFile = app.Flag("config", "Path to the cronobak YAML config.").Default("/etc/cronobak/cronobak.yaml").ExistingFile()
	profile    = app.Flag("profile", "Named backup profile the snapshot belongs to.").Default("default").String()
	timestamp  = app.Flag("timestamp", "Snapshot timestamp to restore from (see --list).").String()
	target     = app.Flag("target", "Directory to restore into.").Required().String()
	list       = app.Flag("list", "List selectable snapshot timestamps and exit.").Bool()
	prefixes   = app.Arg("prefix", "Path prefixes to restore (nothing is restored if none is given).").Strings()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	if err := run(); err != nil {
		cli.PrintError("cronobak-restore: %v", err)
		os.Exit(1)
	}
}

func run() error {
	rt, err := cli.Setup(*configFile, *profile)
	if err != nil {
		return err
	}

	defer rt.Log.Sync() //nolint:errcheck

	ctx := context.Background()

	mounter := volume.NewDefaultMounter()

	source, releaseSource, err := cli.ResolvePath(ctx, rt.Profile.Destination, mounter)
	if err != nil {
		return errors.Wrap(err, "resolving snapshot root")
	}
	defer releaseSource()

	targetDir, releaseTarget, err := cli.ResolvePath(ctx, *target, mounter)
	if err != nil {
		return errors.Wrap(err, "resolving restore target")
	}
	defer releaseTarget()

	scratchCatalog := filepath.Join(os.TempDir(), "cronobak-restore-"+rt.Profile.Name+".sqlite3")

	ctrl, err := restore.New(source, scratchCatalog, rt.Log)
	if err != nil {
		return errors.Wrap(err, "opening restore controller")
	}
	defer ctrl.Close() //nolint:errcheck
	defer os.Remove(scratchCatalog)

	m := metrics.New()
	ctrl.Metrics = m

	if *list {
		for _, ts := range ctrl.Snapshots() {
			cli.PrintNote("%s", ts)
		}

		return nil
	}

	ts := *timestamp
	if ts == "" {
		snapshots := ctrl.Snapshots()
		if len(snapshots) == 0 {
			return errors.New("no snapshots found")
		}

		ts = snapshots[len(snapshots)-1]
	}

	if err := ctrl.Select(ctx, ts); err != nil {
		return errors.Wrap(err, "selecting snapshot")
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return errors.Wrapf(err, "creating target %s", targetDir)
	}

	progress := cli.NewProgress(os.Stdout.Fd())
	defer progress.Done()

	pipe := pipeline.New(0, m.StatusFn(progress.StatusFn()), rt.Log)
	pipe.Start(ctx)

	dirs, err := ctrl.CopyFiles(ctx, *prefixes, targetDir, pipe)
	if err != nil {
		return errors.Wrap(err, "copying files")
	}

	pipe.CloseInput()
	if err := pipe.Wait(); err != nil {
		return errors.Wrap(err, "restore pipeline")
	}

	dirs = append(dirs, pipe.DirsNeedStats()...)

	if err := ctrl.CopyDirStats(targetDir, dirs); err != nil {
		return errors.Wrap(err, "replaying directory metadata")
	}

	files, symlinks := pipe.Counts()
	m.FilesCopied.Add(float64(files))
	m.SymlinksCopied.Add(float64(symlinks))
	m.SparsePartsSkipped.Add(float64(pipe.SparsePartsWritten()))

	cli.PrintNote("restored %s from snapshot %s (%d files, %d symlinks)", targetDir, ts, files, symlinks)

	return nil
}
