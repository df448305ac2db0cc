// Package config is C14: it loads the optional ipasign.yaml file that
// supplies defaults for flags the CLI would otherwise require on every
// invocation (certificate paths, default bundle id, cache settings).
package config

import (
	"os"

	"github.com/ipasign/ipasign/internal/ipasignerr"
	"gopkg.in/yaml.v3"
)

// Config mirrors the CLI's long-lived settings (§4.7-4.13 of the
// expanded design). Every field has a corresponding CLI flag; how the
// two are combined is described on MergeDefaults.
type Config struct {
	CertificatePath string   `yaml:"certificate_path"`
	KeyPath         string   `yaml:"key_path"`
	P12Path         string   `yaml:"p12_path"`
	P12Password     string   `yaml:"p12_password"`
	ProfilePath     string   `yaml:"profile_path"`
	NewBundleID     string   `yaml:"new_bundle_id"`
	NewVersion      string   `yaml:"new_version"`
	NewDisplayName  string   `yaml:"new_display_name"`
	InjectDylibs    []string `yaml:"inject_dylibs"`
	WeakInject      bool     `yaml:"weak_inject"`
	EnableCache     bool     `yaml:"enable_cache"`
	CacheDir        string   `yaml:"cache_dir"`
}

// DefaultPath is where the CLI looks for a config file when --config is
// not given.
const DefaultPath = "ipasign.yaml"

// Load reads and parses the YAML config at path. A missing file returns a
// zero-value Config and no error — the CLI falls back entirely to flags
// in that case.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, ipasignerr.New("config.Load", ipasignerr.KindIOFailure, path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, ipasignerr.New("config.Load", ipasignerr.KindIOFailure, path, err)
	}
	return cfg, nil
}

// MergeDefaults fills any zero-valued field of override from cfg, so a
// non-empty string or list flag takes priority over the config file. Bool
// fields are combined with OR: a false in override counts as unset, so an
// explicit false flag does not override a true in the config file.
func MergeDefaults(override, cfg Config) Config {
	if override.CertificatePath == "" {
		override.CertificatePath = cfg.CertificatePath
	}
	if override.KeyPath == "" {
		override.KeyPath = cfg.KeyPath
	}
	if override.P12Path == "" {
		override.P12Path = cfg.P12Path
	}
	if override.P12Password == "" {
		override.P12Password = cfg.P12Password
	}
	if override.ProfilePath == "" {
		override.ProfilePath = cfg.ProfilePath
	}
	if override.NewBundleID == "" {
		override.NewBundleID = cfg.NewBundleID
	}
	if override.NewVersion == "" {
		override.NewVersion = cfg.NewVersion
	}
	if override.NewDisplayName == "" {
		override.NewDisplayName = cfg.NewDisplayName
	}
	if len(override.InjectDylibs) == 0 {
		override.InjectDylibs = cfg.InjectDylibs
	}
	if !override.WeakInject {
		override.WeakInject = cfg.WeakInject
	}
	if override.CacheDir == "" {
		override.CacheDir = cfg.CacheDir
	}
	if !override.EnableCache {
		override.EnableCache = cfg.EnableCache
	}
	return override
}
