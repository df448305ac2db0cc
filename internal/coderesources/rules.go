package coderesources

import "github.com/ipasign/ipasign/internal/plistval"

// literalRuleEntry builds {omit?, optional?, weight?} as a plistval dict.
func literalRuleEntry(omit, optional bool, weight float64) *plistval.Value {
	d := plistval.NewDict()
	if omit {
		d.Set("omit", plistval.Bool(true))
	}
	if optional {
		d.Set("optional", plistval.Bool(true))
	}
	d.Set("weight", plistval.Real(weight))
	return plistval.DictValue(d)
}

// buildRules returns the literal "rules" table (§6 of the spec, bit for
// bit). These are metadata describing how a real code-signing tool would
// re-derive this manifest from scratch; this engine never matches files
// against them itself — it applies the equivalent keying logic directly in
// Build and UpdateEntry.
func buildRules() *plistval.Dict {
	d := plistval.NewDict()
	d.Set(`^.*`, plistval.Bool(true))
	d.Set(`^.*\.lproj/`, literalRuleEntry(false, true, 1000.0))
	d.Set(`^.*\.lproj/locversion.plist$`, literalRuleEntry(true, false, 1100.0))
	d.Set(`^Base\.lproj/`, literalRuleEntry(false, false, 1010.0))
	d.Set(`^version.plist$`, plistval.Bool(true))
	return d
}

// buildRules2 returns the literal "rules2" table.
func buildRules2() *plistval.Dict {
	d := plistval.NewDict()
	d.Set(`^.*`, plistval.Bool(true))
	d.Set(`.*\.dSYM($|/)`, literalRuleEntry(false, false, 11.0))
	d.Set(`^(.*/)?\.DS_Store$`, literalRuleEntry(true, false, 2000.0))
	d.Set(`^.*\.lproj/`, literalRuleEntry(false, true, 1000.0))
	d.Set(`^.*\.lproj/locversion.plist$`, literalRuleEntry(true, false, 1100.0))
	d.Set(`^Base\.lproj/`, literalRuleEntry(false, false, 1010.0))
	d.Set(`^Info\.plist$`, literalRuleEntry(true, false, 20.0))
	d.Set(`^PkgInfo$`, literalRuleEntry(true, false, 20.0))
	d.Set(`^embedded\.provisionprofile$`, literalRuleEntry(false, false, 20.0))
	d.Set(`^version\.plist$`, literalRuleEntry(false, false, 20.0))
	return d
}
