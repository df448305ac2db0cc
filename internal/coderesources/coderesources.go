// Package coderesources is the C7 CodeResources builder: it emits the
// files/files2/rules/rules2 manifest plist for a bundle directory, and can
// patch individual entries in an existing manifest for incremental runs.
package coderesources

import (
	"path/filepath"
	"strings"

	"github.com/ipasign/ipasign/internal/hashutil"
	"github.com/ipasign/ipasign/internal/ipasignerr"
	"github.com/ipasign/ipasign/internal/pathfs"
	"github.com/ipasign/ipasign/internal/plistval"
)

const codeSignatureRelDir = "_CodeSignature"
const codeResourcesName = "CodeResources"

// Build enumerates every regular file under bundleDir, excluding
// _CodeSignature/CodeResources and the bundle's main executable (read from
// bundleExecutable, as found directly under bundleDir), and returns the
// full CodeResources manifest.
func Build(bundleDir, bundleExecutable string) (*plistval.Value, error) {
	files := plistval.NewDict()
	files2 := plistval.NewDict()

	err := walkRegularFiles(bundleDir, func(rel string) error {
		if isExcluded(rel, bundleExecutable) {
			return nil
		}
		digests, err := hashutil.File(filepath.Join(bundleDir, filepath.FromSlash(rel)))
		if err != nil {
			return err
		}
		applyEntry(files, files2, rel, digests)
		return nil
	})
	if err != nil {
		return nil, err
	}

	root := plistval.NewDict()
	root.Set("files", plistval.DictValue(files))
	root.Set("files2", plistval.DictValue(files2))
	root.Set("rules", plistval.DictValue(buildRules()))
	root.Set("rules2", plistval.DictValue(buildRules2()))
	return plistval.DictValue(root), nil
}

// UpdateEntry recomputes the hash of bundleDir/relPath and overwrites its
// files/files2 entries in manifest in place, applying the same keying rules
// Build would have. relPath is relative to bundleDir (the caller is
// responsible for stripping the enclosing root's prefix down to this
// bundle's own path, per §4.6 step 4).
func UpdateEntry(manifest *plistval.Value, bundleDir, relPath string) error {
	filesVal, _ := manifest.Path("files")
	files2Val, _ := manifest.Path("files2")
	files, _ := filesVal.AsDict()
	files2, _ := files2Val.AsDict()
	if files == nil || files2 == nil {
		return ipasignerr.New("coderesources.UpdateEntry", ipasignerr.KindCacheDecodeFailure, relPath, errMalformedManifest)
	}

	digests, err := hashutil.File(filepath.Join(bundleDir, filepath.FromSlash(relPath)))
	if err != nil {
		return err
	}
	applyEntry(files, files2, relPath, digests)
	return nil
}

type manifestErr string

func (e manifestErr) Error() string { return string(e) }

const errMalformedManifest = manifestErr("manifest missing files/files2 dictionaries")

func isExcluded(rel, bundleExecutable string) bool {
	if rel == bundleExecutable {
		return true
	}
	if rel == path(codeSignatureRelDir, codeResourcesName) {
		return true
	}
	return false
}

func path(a, b string) string { return a + "/" + b }

// isUnderLproj reports whether any directory component of rel (every
// segment but the last) ends in ".lproj".
func isUnderLproj(rel string) bool {
	segments := strings.Split(rel, "/")
	for _, seg := range segments[:len(segments)-1] {
		if strings.HasSuffix(seg, ".lproj") {
			return true
		}
	}
	return false
}

func applyEntry(files, files2 *plistval.Dict, rel string, digests hashutil.Digests) {
	base := filepath.Base(rel)

	if strings.HasSuffix(rel, ".lproj/locversion.plist") {
		files.Delete(rel)
		files2.Delete(rel)
		return
	}

	switch {
	case isUnderLproj(rel):
		files.Set(rel, fileEntry(digests.SHA1, true))
		files2.Set(rel, file2Entry(digests, true))
	default:
		files.Set(rel, plistval.String(hashutil.DataPrefix(digests.SHA1)))
		files2.Set(rel, file2Entry(digests, false))
	}

	if base == "Info.plist" || base == "PkgInfo" || base == ".DS_Store" {
		files2.Delete(rel)
	}
}

func fileEntry(sha1B64 string, optional bool) *plistval.Value {
	d := plistval.NewDict()
	d.Set("hash", plistval.String(hashutil.DataPrefix(sha1B64)))
	if optional {
		d.Set("optional", plistval.Bool(true))
	}
	return plistval.DictValue(d)
}

func file2Entry(digests hashutil.Digests, optional bool) *plistval.Value {
	d := plistval.NewDict()
	d.Set("hash", plistval.String(hashutil.DataPrefix(digests.SHA1)))
	d.Set("hash2", plistval.String(hashutil.DataPrefix(digests.SHA256)))
	if optional {
		d.Set("optional", plistval.Bool(true))
	}
	return plistval.DictValue(d)
}

// walkRegularFiles visits every regular file under root, invoking fn with
// the file's slash-separated path relative to root.
func walkRegularFiles(root string, fn func(rel string) error) error {
	return pathfs.Walk(root, func(p string, isDir bool) (bool, error) {
		if isDir {
			return false, nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return false, ipasignerr.New("coderesources.walkRegularFiles", ipasignerr.KindIOFailure, p, err)
		}
		return false, fn(filepath.ToSlash(rel))
	})
}
