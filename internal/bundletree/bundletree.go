// Package bundletree is the C5 bundle enumerator: it finds the root
// .app/.appex, discovers every nested signable bundle, and orders them
// deepest-first. It also owns the SignNode data model (§3 of the spec).
package bundletree

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ipasign/ipasign/internal/hashutil"
	"github.com/ipasign/ipasign/internal/ipasignerr"
	"github.com/ipasign/ipasign/internal/pathfs"
	"github.com/ipasign/ipasign/internal/plistval"
)

// SignNode is the logical plan entry for one bundle. folders is populated
// only on the root: the enumerator produces one flat, depth-sorted list of
// every nested signable bundle rather than a deeply nested tree, mirroring
// how the reference implementation this was modeled on builds it — each
// folder entry is itself a leaf with no folders/files of its own.
type SignNode struct {
	Path             string      `json:"path"`
	BundleID         string      `json:"bundle_id"`
	BundleVersion    string      `json:"bundle_version"`
	BundleExecutable string      `json:"bundle_executable"`
	SHA1             string      `json:"sha1"` // base64 digest of this node's Info.plist
	SHA256           string      `json:"sha256"`
	Folders          []*SignNode `json:"folders,omitempty"` // root only: every nested bundle, deepest-first
	Files            []string    `json:"files,omitempty"`   // root only: loose .dylib paths relative to root
	Changed          []string    `json:"changed,omitempty"` // filled by ComputeChanged
	Name             string      `json:"name,omitempty"`    // root only
}

const maxFindRootDepth = 32

// FindRoot accepts a directory that either is the bundle or contains one.
// It walks down one level at a time, at each level following the first
// subdirectory in name order other than __MACOSX, and returns the first
// directory on that path whose name ends in .app or .appex. Sibling
// directories are not searched: a bundle next to an earlier-sorting
// subdirectory is not found.
func FindRoot(startDir string) (string, error) {
	cur := startDir
	for depth := 0; depth < maxFindRootDepth; depth++ {
		if pathfs.IsRootBundleDir(filepath.Base(cur)) {
			return cur, nil
		}
		entries, err := readDirSorted(cur)
		if err != nil {
			return "", ipasignerr.New("bundletree.FindRoot", ipasignerr.KindIOFailure, cur, err)
		}
		var next string
		for _, name := range entries {
			if name == "__MACOSX" {
				continue
			}
			if !pathfs.DirExists(filepath.Join(cur, name)) {
				continue
			}
			next = filepath.Join(cur, name)
			break
		}
		if next == "" {
			break
		}
		cur = next
	}
	return "", ipasignerr.New("bundletree.FindRoot", ipasignerr.KindNotABundle, startDir, errNoBundleFound)
}

type findRootErr string

func (e findRootErr) Error() string { return string(e) }

const errNoBundleFound = findRootErr("no .app or .appex directory found under start path")

func readDirSorted(dir string) ([]string, error) {
	names, err := dirEntries(dir)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func dirEntries(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

// Enumerate recursively descends root and collects every directory whose
// name ends in .app, .appex, .framework, or .xctest. Recursion enters
// signable bundles too. The result is the root SignNode with Folders sorted
// by descending path depth (number of "/" separators) — the authoritative
// signing order — and Files holding every loose .dylib found anywhere under
// root, as paths relative to root.
//
// Open question preserved from the original design: this scan inspects
// every file under the entire root regardless of which signable bundle
// encloses it, so a dylib inside a nested framework's own Frameworks/ is
// recorded here and signed standalone from the root node's loose-file
// pass. Nested SignNodes carry no Files, so the framework's own signing
// pass signs only its executable. The scan is not restricted to dylibs
// outside other signable bundles; see DESIGN.md and SPEC_FULL.md §9.
func Enumerate(root string) (*SignNode, error) {
	rootNode, err := GetSignFolderInfo(root, root, true)
	if err != nil {
		return nil, err
	}

	var folders []*SignNode
	var dylibs []string

	walkErr := walkDir(root, func(p string, isDir bool) error {
		if p == root {
			return nil
		}
		if isDir {
			if pathfs.IsBundleDir(filepath.Base(p)) {
				node, err := GetSignFolderInfo(root, p, false)
				if err != nil {
					return err
				}
				folders = append(folders, node)
			}
			return nil
		}
		if strings.HasSuffix(p, ".dylib") {
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return ipasignerr.New("bundletree.Enumerate", ipasignerr.KindIOFailure, p, err)
			}
			dylibs = append(dylibs, filepath.ToSlash(rel))
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	sort.SliceStable(folders, func(i, j int) bool {
		return pathDepth(folders[i].Path) > pathDepth(folders[j].Path)
	})

	rootNode.Folders = folders
	rootNode.Files = dylibs
	return rootNode, nil
}

func pathDepth(p string) int { return strings.Count(p, "/") }

// GetSignFolderInfo reads bundleDir's Info.plist and builds the identity
// fields of a SignNode for it. Path is recorded relative to root ("/" when
// bundleDir == root). If withName, CFBundleDisplayName (falling back to
// CFBundleName) populates Name.
func GetSignFolderInfo(root, bundleDir string, withName bool) (*SignNode, error) {
	infoPath := filepath.Join(bundleDir, "Info.plist")
	raw, err := pathfs.ReadFile(infoPath)
	if err != nil {
		return nil, err
	}
	plist, err := plistval.Unmarshal(raw)
	if err != nil {
		return nil, ipasignerr.New("bundletree.GetSignFolderInfo", ipasignerr.KindMissingPlistField, infoPath, err)
	}

	bundleID, ok := plist.StringAt("CFBundleIdentifier")
	if !ok {
		return nil, ipasignerr.New("bundletree.GetSignFolderInfo", ipasignerr.KindMissingPlistField, infoPath, errMissingField("CFBundleIdentifier"))
	}
	exe, ok := plist.StringAt("CFBundleExecutable")
	if !ok {
		return nil, ipasignerr.New("bundletree.GetSignFolderInfo", ipasignerr.KindMissingPlistField, infoPath, errMissingField("CFBundleExecutable"))
	}
	version, _ := plist.StringAt("CFBundleVersion")

	digests := hashutil.Bytes(raw)

	relPath := "/"
	if bundleDir != root {
		rel, err := filepath.Rel(root, bundleDir)
		if err != nil {
			return nil, ipasignerr.New("bundletree.GetSignFolderInfo", ipasignerr.KindIOFailure, bundleDir, err)
		}
		relPath = filepath.ToSlash(rel)
	}

	node := &SignNode{
		Path:             relPath,
		BundleID:         bundleID,
		BundleVersion:    version,
		BundleExecutable: exe,
		SHA1:             digests.SHA1,
		SHA256:           digests.SHA256,
	}

	if withName {
		if name, ok := plist.StringAt("CFBundleDisplayName"); ok {
			node.Name = name
		} else if name, ok := plist.StringAt("CFBundleName"); ok {
			node.Name = name
		}
	}

	return node, nil
}

type errMissingField string

func (e errMissingField) Error() string { return "missing Info.plist field: " + string(e) }

// ComputeChanged fills node.Changed (and every descendant's, bottom-up) per
// §4.6 step 8: the union of this node's own loose files, plus for every
// child folder the child's own Changed set together with that child's
// CodeResources and executable paths (both relative to root). isRoot
// additionally appends embedded.mobileprovision.
func ComputeChanged(node *SignNode, isRoot bool) {
	var changed []string
	changed = append(changed, node.Files...)
	for _, child := range node.Folders {
		ComputeChanged(child, false)
		changed = append(changed, child.Changed...)
		changed = append(changed, path.Join(child.Path, "_CodeSignature", "CodeResources"))
		changed = append(changed, path.Join(child.Path, child.BundleExecutable))
	}
	if isRoot {
		changed = append(changed, "embedded.mobileprovision")
	}
	node.Changed = changed
}

// walkDir is a thin recursive descent used by Enumerate; unlike pathfs.Walk
// it always recurses (the enumerator never prunes — it must see every
// loose dylib under the whole root, which is precisely the open question
// above).
func walkDir(dir string, fn func(path string, isDir bool) error) error {
	entries, err := dirEntries(dir)
	if err != nil {
		return ipasignerr.New("bundletree.walkDir", ipasignerr.KindIOFailure, dir, err)
	}
	for _, name := range entries {
		p := filepath.Join(dir, name)
		isDir := pathfs.DirExists(p)
		if err := fn(p, isDir); err != nil {
			return err
		}
		if isDir {
			if err := walkDir(p, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
