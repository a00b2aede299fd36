// Package cli holds the scaffolding shared by the cronobak-backup and
// cronobak-restore binaries: config loading, logging setup, colourised
// output and a progress line — the kingpin flag clauses themselves stay in
// cmd/*/main.go since spec.md §6 gives each binary its own signature.
package cli

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cronobak/cronobak/config"
	"github.com/cronobak/cronobak/volume"
)

// Runtime bundles what every command needs after flag parsing: the loaded
// profile and a logger built from its log_level/log_format.
type Runtime struct {
	Profile *config.Profile
	Log     *zap.SugaredLogger
}

// Setup loads profile from configFile and builds its logger. Both CLI
// mains call this right after kingpin.MustParse.
func Setup(configFile, profile string) (*Runtime, error) {
	p, err := config.Load(configFile, profile)
	if err != nil {
		return nil, errors.Wrap(err, "loading config")
	}

	log, err := NewLogger(p.LogLevel, p.LogFormat)
	if err != nil {
		return nil, errors.Wrap(err, "building logger")
	}

	return &Runtime{Profile: p, Log: log}, nil
}

// ResolvePath turns a profile path into a usable directory: if it is a
// volume://name/sub/path URI it is mounted via m, otherwise it is returned
// unchanged. The returned release func unmounts what Mount mounted and must
// be called once the caller is done with the path; it is a no-op for plain
// local paths. A mount failure here is what produces spec.md §6's
// documented non-zero "volume mount failure" exit.
func ResolvePath(ctx context.Context, path string, m volume.Mounter) (resolved string, release func(), err error) {
	h, isVolume, err := volume.ParseURI(path)
	if err != nil {
		return "", nil, errors.Wrapf(err, "parsing %q", path)
	}

	if !isVolume {
		return path, func() {}, nil
	}

	resolved, err = m.Mount(ctx, h)
	if err != nil {
		return "", nil, errors.Wrapf(err, "mounting volume %q", h.VolumeName)
	}

	release = func() {
		_ = m.Unmount(ctx, h)
	}

	return resolved, release, nil
}
