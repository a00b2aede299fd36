// Package config loads a named backup profile from a YAML file (with
// environment-variable overrides) via github.com/spf13/viper. A profile
// bundles the source trees, the destination path, logging knobs, and
// the power-management toggle named in spec.md §6 — mirroring the
// original_source/config.py + lib/config.py profile concept, where a
// profile's name (default "default") selects one backup definition.
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// SourceTree is one scanned root plus its exclude patterns, matching
// source.paths/source.excludes (spec.md §6).
type SourceTree struct {
	Path     string   `mapstructure:"path"`
	Excludes []string `mapstructure:"excludes"`
}

// Profile is one named backup definition: where to read from, where to
// write the snapshot tree and catalog, and ambient settings that apply to
// a run of that profile.
type Profile struct {
	Name        string       `mapstructure:"-"`
	Sources     []SourceTree `mapstructure:"sources"`
	Destination string       `mapstructure:"destination"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	DisableSleepTimeouts bool `mapstructure:"disable_sleep_timeouts"`
}

// Load reads configFile (YAML) and returns the named profile, with
// CRONOBAK_<PROFILE>_* environment variables able to override any key (e.g.
// CRONOBAK_DEFAULT_DESTINATION). An empty profile name defaults to
// "default", matching the CLI signature in spec.md §6.
func Load(configFile, profile string) (*Profile, error) {
	if profile == "" {
		profile = "default"
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetEnvPrefix("cronobak_" + profile)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", configFile)
	}

	sub := v.Sub("profiles." + profile)
	if sub == nil {
		return nil, errors.Errorf("no profile named %q in %s", profile, configFile)
	}

	sub.SetEnvPrefix("cronobak_" + profile)
	sub.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	sub.AutomaticEnv()

	var p Profile
	if err := sub.Unmarshal(&p); err != nil {
		return nil, errors.Wrapf(err, "parsing profile %q", profile)
	}

	p.Name = profile

	if p.Destination == "" {
		return nil, errors.Errorf("profile %q: destination is required", profile)
	}

	if len(p.Sources) == 0 {
		return nil, errors.Errorf("profile %q: at least one source is required", profile)
	}

	if p.LogLevel == "" {
		p.LogLevel = "info"
	}

	return &p, nil
}
