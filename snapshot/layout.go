// Package snapshot is the §4.4 snapshot controller and §4.6 state machine:
// it owns the on-disk layout (§3/§6), drives tree creation, file copying,
// metadata replay, catalog persistence, and the atomic rename that commits
// a run.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/cronobak/cronobak/fs/scanner"
)

// inProgressSuffix marks a snapshot directory that has not yet been
// committed, per spec §3/§6.
const inProgressSuffix = "-in-progress"

// FormatTimestamp renders t as the canonical fixed-width decimal string spec
// §9 mandates ("a canonical fixed-width decimal string" to avoid the
// lexical-vs-numeric mis-ordering a bare float would risk). Nanosecond
// precision is zero-padded so two timestamps compare identically whether
// sorted lexically or numerically.
func FormatTimestamp(t time.Time) string {
	return fmt.Sprintf("%d.%09d", t.Unix(), t.Nanosecond())
}

// timestampPattern matches the selectable-snapshot names spec §4.5 names:
// "^[0-9]+\.[0-9]+$".
var timestampPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+$`)

// InProgressDir returns the transient directory name for ts under root.
func InProgressDir(root, ts string) string {
	return filepath.Join(root, ts+inProgressSuffix)
}

// FinalDir returns the committed snapshot directory name for ts under root.
func FinalDir(root, ts string) string {
	return filepath.Join(root, ts)
}

// CatalogArchiveName is the compressed catalog file spec §3/§6 names,
// relative to a snapshot directory.
const CatalogArchiveName = "index.sqlite3.gz"

// DestPath maps an absolute source path onto its location inside a
// snapshot directory, stripping the leading slash per spec §3 ("the leading
// slash is stripped to form relative paths inside the snapshot").
func DestPath(snapshotDir, srcPath string) string {
	return filepath.Join(snapshotDir, scanner.TrimLeadingSlash(srcPath))
}

// timestampValue parses a selectable snapshot name into a sortable float64.
func timestampValue(name string) (float64, error) {
	v, err := strconv.ParseFloat(name, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing snapshot timestamp %q", name)
	}

	return v, nil
}

// ListSnapshots enumerates root and returns every committed snapshot
// timestamp name (entries matching timestampPattern), sorted ascending by
// numeric value, per spec §4.5's initialisation rule.
func ListSnapshots(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrapf(err, "reading snapshot root %s", root)
	}

	var names []string

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		if timestampPattern.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}

	sort.Slice(names, func(i, j int) bool {
		vi, _ := timestampValue(names[i])
		vj, _ := timestampValue(names[j])

		return vi < vj
	})

	return names, nil
}

// SweepOrphaned reports every "-in-progress" directory under root older
// than minAge. It never deletes: spec §9 leaves "delete or resume?" open,
// and DESIGN.md records the decision that neither is attempted
// automatically — the orphan is surfaced for operator action only.
func SweepOrphaned(root string, minAge time.Duration, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrapf(err, "reading snapshot root %s", root)
	}

	var orphans []string

	for _, e := range entries {
		if !e.IsDir() || !strings.HasSuffix(e.Name(), inProgressSuffix) {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}

		if now.Sub(info.ModTime()) >= minAge {
			orphans = append(orphans, filepath.Join(root, e.Name()))
		}
	}

	return orphans, nil
}
