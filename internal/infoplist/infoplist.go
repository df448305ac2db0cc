// Package infoplist is the C6 Info-plist mutator: it applies a new bundle
// identifier, version, and display name to the root bundle, and propagates
// identifier rewrites into nested plugins and watch companions.
package infoplist

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ipasign/ipasign/internal/ipasignerr"
	"github.com/ipasign/ipasign/internal/pathfs"
	"github.com/ipasign/ipasign/internal/plistval"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

// Mutation carries the optional new values for one ModifyBundleInfo call.
// Zero values mean "leave unchanged".
type Mutation struct {
	NewBundleID     string
	NewVersion      string
	NewDisplayName  string
}

// literalChineseLocaleDirs are always checked regardless of what
// golang.org/x/text/language makes of them, to match the two hardcoded
// paths the original tool wrote to.
var literalChineseLocaleDirs = []string{"zh_CN.lproj", "zh-Hans.lproj"}

// ModifyBundleInfo mutates rootDir's Info.plist per m and reports whether
// anything changed (§4.2: any mutation forces force_sign = true).
func ModifyBundleInfo(rootDir string, m Mutation) (forceSign bool, err error) {
	infoPath := filepath.Join(rootDir, "Info.plist")
	raw, err := pathfs.ReadFile(infoPath)
	if err != nil {
		return false, err
	}
	root, err := plistval.Unmarshal(raw)
	if err != nil {
		return false, ipasignerr.New("infoplist.ModifyBundleInfo", ipasignerr.KindMissingPlistField, infoPath, err)
	}
	dict, ok := root.AsDict()
	if !ok {
		return false, ipasignerr.New("infoplist.ModifyBundleInfo", ipasignerr.KindMissingPlistField, infoPath, errNotADict)
	}

	changed := false

	if m.NewBundleID != "" {
		oldID, _ := dict.Get("CFBundleIdentifier")
		oldIDStr, _ := oldID.AsString()
		dict.Set("CFBundleIdentifier", plistval.String(m.NewBundleID))
		changed = true
		if oldIDStr != "" && oldIDStr != m.NewBundleID {
			if err := RewritePluginIDs(rootDir, oldIDStr, m.NewBundleID); err != nil {
				return false, err
			}
		}
	}

	if m.NewDisplayName != "" {
		dict.Set("CFBundleName", plistval.String(m.NewDisplayName))
		dict.Set("CFBundleDisplayName", plistval.String(m.NewDisplayName))
		changed = true
		for _, localeDir := range chineseLocaleDirs(rootDir) {
			if err := setDisplayNameInLocaleStrings(rootDir, localeDir, m.NewDisplayName); err != nil {
				return false, err
			}
		}
	}

	if m.NewVersion != "" {
		dict.Set("CFBundleVersion", plistval.String(m.NewVersion))
		dict.Set("CFBundleShortVersionString", plistval.String(m.NewVersion))
		changed = true
	}

	if !changed {
		return false, nil
	}

	out, err := plistval.Marshal(root)
	if err != nil {
		return false, ipasignerr.New("infoplist.ModifyBundleInfo", ipasignerr.KindIOFailure, infoPath, err)
	}
	if err := pathfs.SafeWriteFile(infoPath, out, 0o644); err != nil {
		return false, err
	}
	return true, nil
}

type infoplistErr string

func (e infoplistErr) Error() string { return string(e) }

const errNotADict = infoplistErr("Info.plist root is not a dictionary")

// RewritePluginIDs substring-replaces old with new in CFBundleIdentifier,
// WKCompanionAppBundleIdentifier, and
// NSExtension.NSExtensionAttributes.WKAppBundleIdentifier for every nested
// .app/.appex directory under rootDir. A plugin Info.plist that cannot be
// parsed is warned-and-skipped, never fatal (§7).
func RewritePluginIDs(rootDir, oldID, newID string) error {
	return filepath.Walk(rootDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if p == rootDir || !info.IsDir() {
			return nil
		}
		if !pathfs.IsRootBundleDir(filepath.Base(p)) {
			return nil
		}
		if rewriteErr := rewritePluginPlist(p, oldID, newID); rewriteErr != nil {
			// Non-fatal: an unreadable nested plugin plist does not abort the run.
			logrus.WithError(rewriteErr).WithField("op", "infoplist.RewritePluginIDs").WithField("path", p).Warn("skipping plugin Info.plist")
			return nil
		}
		return nil
	})
}

func rewritePluginPlist(bundleDir, oldID, newID string) error {
	infoPath := filepath.Join(bundleDir, "Info.plist")
	raw, err := pathfs.ReadFile(infoPath)
	if err != nil {
		return err
	}
	root, err := plistval.Unmarshal(raw)
	if err != nil {
		return err
	}
	dict, ok := root.AsDict()
	if !ok {
		return errNotADict
	}

	changed := false
	if v, ok := dict.Get("CFBundleIdentifier"); ok {
		if s, ok := v.AsString(); ok && strings.Contains(s, oldID) {
			dict.Set("CFBundleIdentifier", plistval.String(strings.ReplaceAll(s, oldID, newID)))
			changed = true
		}
	}
	if v, ok := dict.Get("WKCompanionAppBundleIdentifier"); ok {
		if s, ok := v.AsString(); ok && strings.Contains(s, oldID) {
			dict.Set("WKCompanionAppBundleIdentifier", plistval.String(strings.ReplaceAll(s, oldID, newID)))
			changed = true
		}
	}
	if changed = rewriteNestedWKAppBundleID(dict, oldID, newID) || changed; changed {
		out, err := plistval.Marshal(root)
		if err != nil {
			return err
		}
		return pathfs.SafeWriteFile(infoPath, out, 0o644)
	}
	return nil
}

func rewriteNestedWKAppBundleID(dict *plistval.Dict, oldID, newID string) bool {
	ext, ok := dict.Get("NSExtension")
	if !ok {
		return false
	}
	extDict, ok := ext.AsDict()
	if !ok {
		return false
	}
	attrs, ok := extDict.Get("NSExtensionAttributes")
	if !ok {
		return false
	}
	attrsDict, ok := attrs.AsDict()
	if !ok {
		return false
	}
	v, ok := attrsDict.Get("WKAppBundleIdentifier")
	if !ok {
		return false
	}
	s, ok := v.AsString()
	if !ok || !strings.Contains(s, oldID) {
		return false
	}
	attrsDict.Set("WKAppBundleIdentifier", plistval.String(strings.ReplaceAll(s, oldID, newID)))
	return true
}

// chineseLocaleDirs returns every top-level *.lproj directory under rootDir
// whose locale tag's base language is Chinese, including the two literal
// directories the original tool wrote to (when they exist) even if
// language.Parse can't make sense of the folder name.
func chineseLocaleDirs(rootDir string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}

	for _, name := range literalChineseLocaleDirs {
		if pathfs.DirExists(filepath.Join(rootDir, name)) {
			add(name)
		}
	}

	entries, err := os.ReadDir(rootDir)
	if err != nil {
		return out
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasSuffix(e.Name(), ".lproj") {
			continue
		}
		tagName := strings.TrimSuffix(e.Name(), ".lproj")
		tag, err := language.Parse(strings.ReplaceAll(tagName, "_", "-"))
		if err != nil {
			continue
		}
		base, _ := tag.Base()
		if base.String() == "zh" {
			add(e.Name())
		}
	}
	return out
}

// setDisplayNameInLocaleStrings writes/updates CFBundleDisplayName and
// CFBundleName inside rootDir/localeDir/InfoPlist.strings, treated as an
// XML plist like every other property list this engine touches. Absence of
// the file is not an error (§7: missing localisation strings are not errors).
func setDisplayNameInLocaleStrings(rootDir, localeDir, displayName string) error {
	stringsPath := filepath.Join(rootDir, localeDir, "InfoPlist.strings")
	if !pathfs.FileExists(stringsPath) {
		return nil
	}
	raw, err := pathfs.ReadFile(stringsPath)
	if err != nil {
		return nil
	}
	root, err := plistval.Unmarshal(raw)
	if err != nil {
		return nil
	}
	dict, ok := root.AsDict()
	if !ok {
		dict = plistval.NewDict()
		root = plistval.DictValue(dict)
	}
	dict.Set("CFBundleDisplayName", plistval.String(displayName))
	dict.Set("CFBundleName", plistval.String(displayName))
	out, err := plistval.Marshal(root)
	if err != nil {
		return nil
	}
	return pathfs.SafeWriteFile(stringsPath, out, 0o644)
}
