package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, Config{}, cfg)
}

func TestLoadParsesYAML(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "ipasign.yaml")
	content := "certificate_path: /certs/dist.pem\nenable_cache: true\ninject_dylibs:\n  - /tmp/a.dylib\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/certs/dist.pem", cfg.CertificatePath)
	require.True(t, cfg.EnableCache)
	require.Equal(t, []string{"/tmp/a.dylib"}, cfg.InjectDylibs)
}

func TestMergeDefaultsPrefersOverride(t *testing.T) {
	cfg := Config{NewBundleID: "com.file.default"}
	override := Config{NewBundleID: "com.flag.override"}
	merged := MergeDefaults(override, cfg)
	require.Equal(t, "com.flag.override", merged.NewBundleID)
}

func TestMergeDefaultsFillsFromConfig(t *testing.T) {
	cfg := Config{NewBundleID: "com.file.default"}
	merged := MergeDefaults(Config{}, cfg)
	require.Equal(t, "com.file.default", merged.NewBundleID)
}

func TestMergeDefaultsFillsWeakInjectFromConfig(t *testing.T) {
	cfg := Config{WeakInject: true}
	merged := MergeDefaults(Config{}, cfg)
	require.True(t, merged.WeakInject)
}
