// Package assetdetect is the C4 asset-change detector: it decides whether
// the icon set or the compiled asset catalog changed since the cached
// manifest was written, and performs the unconditional Assets.car deletion
// that precedes every sign.
package assetdetect

import (
	"strings"

	"github.com/ipasign/ipasign/internal/hashutil"
	"github.com/ipasign/ipasign/internal/pathfs"
	"github.com/ipasign/ipasign/internal/plistval"
)

// conventionalIconNames are the fixed filenames a target's Info.plist might
// not explicitly reference but Xcode still writes at build time.
var conventionalIconNames = []string{
	"Icon.png", "Icon@2x.png",
	"Icon-60.png", "Icon-60@2x.png", "Icon-60@3x.png",
	"Icon-72.png", "Icon-72@2x.png",
	"Icon-76.png", "Icon-76@2x.png",
	"Icon-Small.png", "Icon-Small@2x.png", "Icon-Small@3x.png",
	"Icon-Small-50.png", "Icon-Small-50@2x.png",
	"Icon-40.png", "Icon-40@2x.png", "Icon-40@3x.png",
	"Icon-83.5@2x.png",
	"AppIcon20x20@2x.png", "AppIcon20x20@3x.png",
	"AppIcon29x29@2x.png", "AppIcon29x29@3x.png",
	"AppIcon40x40@2x.png", "AppIcon40x40@3x.png",
	"AppIcon60x60@2x.png", "AppIcon60x60@3x.png",
	"AppIcon76x76@2x.png", "AppIcon76x76@3x.png",
	"AppIcon83.5x83.5@2x.png",
}

// assetWatchFiles are checked alongside icons under the same hash-compare
// rule; unlike icons they are not optional-by-convention, just conventional paths.
var assetWatchFiles = []string{
	"Assets.car",
	"Base.lproj/LaunchScreen.storyboard",
	"Base.lproj/Main.storyboard",
}

// IconFilesFromPlist computes the union of icon filenames referenced by
// info (the root Info.plist), per §4.3.
func IconFilesFromPlist(info *plistval.Value) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}

	if single, ok := info.StringAt("CFBundleIconFile"); ok {
		if !strings.HasSuffix(single, ".png") {
			single += ".png"
		}
		add(single)
	}
	addArrayAt(info, "CFBundleIconFiles", add)
	addArrayAt(info, "CFBundleIcons.CFBundlePrimaryIcon.CFBundleIconFiles", add)
	addArrayAt(info, "CFBundleIcons~ipad.CFBundlePrimaryIcon.CFBundleIconFiles", add)

	return out
}

func addArrayAt(info *plistval.Value, dotted string, add func(string)) {
	v, ok := info.Path(dotted)
	if !ok {
		return
	}
	items, ok := v.AsArray()
	if !ok {
		return
	}
	for _, item := range items {
		if s, ok := item.AsString(); ok {
			add(s)
		}
	}
}

// existingIconCandidates is IconFilesFromPlist's result plus every
// conventional filename that actually exists at rootDir, deduplicated.
func existingIconCandidates(rootDir string, info *plistval.Value) []string {
	fromPlist := IconFilesFromPlist(info)
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, name := range fromPlist {
		add(name)
	}
	for _, name := range conventionalIconNames {
		if pathfs.FileExists(joinRoot(rootDir, name)) {
			add(name)
		}
	}
	return out
}

func joinRoot(root, name string) string {
	joined, err := pathfs.SecureJoin(root, name)
	if err != nil {
		return ""
	}
	return joined
}

// HasChanged compares every existing icon candidate and every asset-watch
// file's current SHA-1 against the cached manifest's files[] entry for that
// path. It reports true if any existing candidate is missing from the cache
// or its hash differs.
func HasChanged(rootDir string, rootInfo *plistval.Value, cachedManifest *plistval.Value) (bool, error) {
	var cachedFiles *plistval.Dict
	if cachedManifest != nil {
		if filesVal, ok := cachedManifest.Path("files"); ok {
			cachedFiles, _ = filesVal.AsDict()
		}
	}

	candidates := existingIconCandidates(rootDir, rootInfo)
	for _, name := range assetWatchFiles {
		if pathfs.FileExists(joinRoot(rootDir, name)) {
			candidates = append(candidates, name)
		}
	}

	for _, name := range candidates {
		full := joinRoot(rootDir, name)
		if full == "" || !pathfs.FileExists(full) {
			continue
		}
		digests, err := hashutil.File(full)
		if err != nil {
			return false, err
		}
		cachedHash, ok := cachedHashFor(cachedFiles, name)
		if !ok || cachedHash != digests.SHA1 {
			return true, nil
		}
	}
	return false, nil
}

func cachedHashFor(files *plistval.Dict, name string) (string, bool) {
	if files == nil {
		return "", false
	}
	entry, ok := files.Get(name)
	if !ok {
		return "", false
	}
	if s, ok := entry.AsString(); ok {
		return hashutil.StripDataPrefix(s), true
	}
	if d, ok := entry.AsDict(); ok {
		if h, ok := d.Get("hash"); ok {
			if s, ok := h.AsString(); ok {
				return hashutil.StripDataPrefix(s), true
			}
		}
	}
	return "", false
}

// ForceAssetsCarRegeneration deletes rootDir/Assets.car if present. It is
// idempotent (absence is success) and never fails the run: a removal error
// is returned so the caller can log it as a warning, never as a fatal abort.
func ForceAssetsCarRegeneration(rootDir string) error {
	full := joinRoot(rootDir, "Assets.car")
	if full == "" || !pathfs.FileExists(full) {
		return nil
	}
	return pathfs.RemoveIfExists(full)
}
