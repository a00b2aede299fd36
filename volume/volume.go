// Package volume models the removable-destination mount boundary that
// original_source/lib/volume.py implements against GIO's volume monitor:
// a destination path may be expressed as a volume://name/path URI, which
// must be resolved against a mounted volume's root before it can be used as
// a backup destination. A real GIO/udisks binding is outside this module's
// scope (spec.md's NON-GOALS exclude any particular desktop/OS mount
// stack), so ParseURI only parses and validates the URI into a Handle, and
// the Mounter this package ships (NewDefaultMounter) resolves it by
// searching the filesystem locations udisks' automounter actually uses
// rather than querying a live GVolumeMonitor.
package volume

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Handle identifies one mount request: the named volume and the path
// within it that the backup destination resolves to once mounted.
type Handle struct {
	VolumeName string
	SubPath    string
}

// ParseURI parses a "volume://name/sub/path" URI into a Handle. A URI with
// no volume:// scheme is not an error — it simply is not a volume
// reference, and callers should treat it as a local path directly.
func ParseURI(uri string) (Handle, bool, error) {
	const scheme = "volume://"

	if !strings.HasPrefix(uri, scheme) {
		return Handle{}, false, nil
	}

	rest := strings.TrimPrefix(uri, scheme)

	name, sub, found := strings.Cut(rest, "/")
	if name == "" {
		return Handle{}, false, errors.Errorf("volume URI %q: missing volume name", uri)
	}

	if !found {
		sub = ""
	}

	return Handle{VolumeName: name, SubPath: sub}, true, nil
}

// Mounter resolves a Handle to a mounted path and reverses that mount when
// done. Real implementations adapt a host volume manager; LocalMounter
// below is the no-op stand-in this module ships.
type Mounter interface {
	Mount(ctx context.Context, h Handle) (resolvedPath string, err error)
	Unmount(ctx context.Context, h Handle) error
}

// LocalMounter treats every volume as already mounted under Root, joining
// SubPath onto it. It never shells out and never blocks — useful for
// tests and for destinations that are local paths disguised as a single
// named "volume" (e.g. a bind mount the OS already manages).
type LocalMounter struct {
	Root func(volumeName string) (string, error)
}

// Mount resolves h against m.Root, joining SubPath.
func (m LocalMounter) Mount(_ context.Context, h Handle) (string, error) {
	if m.Root == nil {
		return "", errors.New("volume.LocalMounter: Root is nil")
	}

	root, err := m.Root(h.VolumeName)
	if err != nil {
		return "", errors.Wrapf(err, "resolving volume %q", h.VolumeName)
	}

	if h.SubPath == "" {
		return root, nil
	}

	return root + "/" + h.SubPath, nil
}

// Unmount is a no-op: LocalMounter never actually mounts anything.
func (m LocalMounter) Unmount(_ context.Context, _ Handle) error {
	return nil
}

// NewDefaultMounter returns a LocalMounter whose Root searches the mount
// points udisks/GIO's automounter places removable media under on Linux —
// /run/media/<user>/<name> then /media/<user>/<name> then /media/<name> —
// in place of the GVolumeMonitor.get_volumes() lookup
// original_source/lib/volume.py does. It reports "volume not found" exactly
// like the original when none of those candidates exist, which is what
// turns a bad volume:// destination into the non-zero mount-failure exit
// spec.md §6 documents.
func NewDefaultMounter() Mounter {
	return LocalMounter{Root: locateMountedVolume}
}

func locateMountedVolume(name string) (string, error) {
	user := os.Getenv("USER")

	var candidates []string
	if user != "" {
		candidates = append(candidates,
			filepath.Join("/run/media", user, name),
			filepath.Join("/media", user, name),
		)
	}

	candidates = append(candidates, filepath.Join("/media", name))

	for _, c := range candidates {
		if fi, err := os.Stat(c); err == nil && fi.IsDir() {
			return c, nil
		}
	}

	return "", errors.Errorf("volume not found: %s", name)
}
