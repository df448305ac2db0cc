// Package signer is the C8 signing driver: it orchestrates the asset
// detector, bundle enumerator, and CodeResources builder, applies
// incremental cache updates, and invokes the external Mach-O signer.
package signer

// SignAsset is the opaque identity holder the driver threads through to
// the MachOSigner: certificate chain, private key, team id, subject CN,
// and raw provisioning-profile bytes. C11 (package signasset) is its
// concrete loader; tests supply a fake.
type SignAsset interface {
	TeamID() string
	SubjectCN() string
	ProvisioningProfileBytes() []byte
}

// MachOSigner is the external collaborator that owns everything this
// engine deliberately stays out of: Mach-O parsing, code-directory
// hashing, signature blob layout (CSMAGIC_CODEDIRECTORY,
// CSMAGIC_EMBEDDED_SIGNATURE, ...), and dylib injection. A real
// implementation parses the executable at path once per call; this
// package never holds a parser handle across calls.
type MachOSigner interface {
	// InjectDylib adds a LC_LOAD_WEAK_DYLIB (if weak) or LC_LOAD_DYLIB load
	// command referencing dylibRef (e.g. "@executable_path/ext.dylib") to
	// the executable at path. It reports whether an injection was actually
	// performed (false, nil means "already present, nothing to do").
	InjectDylib(path string, weak bool, dylibRef string) (bool, error)

	// Sign signs the executable at path. bundleID, rawInfoSHA1, and
	// rawInfoSHA256 are empty/nil for a loose dylib (§4.6 step 1: loose
	// dylibs sign standalone). codeResources is the just-written manifest
	// plist content the signer embeds the hash of in the code directory
	// (CS_HASHTYPE_SHA1 / CS_HASHTYPE_SHA256 slots).
	Sign(path string, asset SignAsset, force bool, bundleID string, rawInfoSHA1, rawInfoSHA256, codeResources []byte) error
}
