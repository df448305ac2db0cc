package coderesources

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ipasign/ipasign/internal/hashutil"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestBuildEmitsExpectedHashEntry(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"Main":         "executable",
		"data.bin":     "hi",
		"Info.plist":   "<plist/>",
	})

	manifest, err := Build(root, "Main")
	require.NoError(t, err)

	filesVal, ok := manifest.Path("files")
	require.True(t, ok)
	files, ok := filesVal.AsDict()
	require.True(t, ok)

	entry, ok := files.Get("data.bin")
	require.True(t, ok)
	s, ok := entry.AsString()
	require.True(t, ok)
	expected := hashutil.DataPrefix(hashutil.Bytes([]byte("hi")).SHA1)
	require.Equal(t, expected, s)

	_, hasMain := files.Get("Main")
	require.False(t, hasMain, "executable must be excluded")
}

func TestBuildOmitsInfoPlistAndDSStoreFromFiles2Only(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"Main":       "executable",
		"Info.plist": "<plist/>",
		".DS_Store":  "junk",
	})

	manifest, err := Build(root, "Main")
	require.NoError(t, err)

	filesVal, _ := manifest.Path("files")
	files, _ := filesVal.AsDict()
	files2Val, _ := manifest.Path("files2")
	files2, _ := files2Val.AsDict()

	_, inFiles := files.Get("Info.plist")
	require.True(t, inFiles)
	_, inFiles2 := files2.Get("Info.plist")
	require.False(t, inFiles2)

	_, dsInFiles := files.Get(".DS_Store")
	require.True(t, dsInFiles)
	_, dsInFiles2 := files2.Get(".DS_Store")
	require.False(t, dsInFiles2)
}

func TestBuildOmitsLocversionAndMarksOtherLprojFilesOptional(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"Main":                        "executable",
		"zh.lproj/locversion.plist":   "x",
		"zh.lproj/Localizable.strings": "y",
	})

	manifest, err := Build(root, "Main")
	require.NoError(t, err)

	filesVal, _ := manifest.Path("files")
	files, _ := filesVal.AsDict()
	files2Val, _ := manifest.Path("files2")
	files2, _ := files2Val.AsDict()

	_, locInFiles := files.Get("zh.lproj/locversion.plist")
	require.False(t, locInFiles)
	_, locInFiles2 := files2.Get("zh.lproj/locversion.plist")
	require.False(t, locInFiles2)

	entry, ok := files2.Get("zh.lproj/Localizable.strings")
	require.True(t, ok)
	d, ok := entry.AsDict()
	require.True(t, ok)
	opt, ok := d.Get("optional")
	require.True(t, ok)
	b, _ := opt.AsBool()
	require.True(t, b)
}

func TestUpdateEntryRecomputesHashInPlace(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"Main":     "executable",
		"data.bin": "hi",
	})
	manifest, err := Build(root, "Main")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "data.bin"), []byte("changed"), 0o644))
	require.NoError(t, UpdateEntry(manifest, root, "data.bin"))

	filesVal, _ := manifest.Path("files")
	files, _ := filesVal.AsDict()
	entry, _ := files.Get("data.bin")
	s, _ := entry.AsString()
	require.Equal(t, hashutil.DataPrefix(hashutil.Bytes([]byte("changed")).SHA1), s)
}
