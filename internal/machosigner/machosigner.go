// Package machosigner is a concrete signer.MachOSigner backed by the
// system /usr/bin/codesign tool, grounded on the same exec.Command
// invocation a reference IPA resigner used to sign each component.
// It is deliberately thin: actual Mach-O parsing, code-directory
// construction, and signature blob layout are codesign's job, not
// this engine's — see the signer.MachOSigner interface doc.
package machosigner

import (
	"fmt"
	"os/exec"

	"github.com/ipasign/ipasign/internal/ipasignerr"
	"github.com/ipasign/ipasign/internal/signer"
)

const codesignPath = "/usr/bin/codesign"

// Codesign shells out to codesign(1) for signing. Dylib injection is NOT
// supported by codesign itself — InjectDylib requires
// rewriting load commands, which is genuinely out of reach for a
// shell-out collaborator and is reported as an error here rather than
// silently skipped.
type Codesign struct{}

var _ signer.MachOSigner = Codesign{}

// InjectDylib is not implementable via codesign(1) alone; it requires
// direct Mach-O load-command manipulation. Callers that need dylib
// injection must supply a different MachOSigner.
func (Codesign) InjectDylib(path string, weak bool, dylibRef string) (bool, error) {
	return false, ipasignerr.New("machosigner.InjectDylib", ipasignerr.KindMachOFailure, path, errInjectUnsupported)
}

// Sign invokes codesign(1) with the identity's subject common name.
// bundleID and the raw Info.plist digests are accepted for interface
// compatibility but codesign recomputes its own code directory from the
// files actually on disk; codeResources must already be written to
// <path's bundle>/_CodeSignature/CodeResources before this is called,
// which signer.Driver guarantees.
func (Codesign) Sign(path string, asset signer.SignAsset, force bool, bundleID string, rawInfoSHA1, rawInfoSHA256, codeResources []byte) error {
	identity := "-" // ad-hoc by default
	if asset != nil && asset.SubjectCN() != "" {
		identity = asset.SubjectCN()
	}

	args := []string{"--generate-entitlement-der", "-s", identity}
	if force {
		args = append(args, "-f")
	}
	args = append(args, path)

	cmd := exec.Command(codesignPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return ipasignerr.New("machosigner.Sign", ipasignerr.KindMachOFailure, path, fmt.Errorf("%s: %w", string(output), err))
	}
	return nil
}

type machosignerErr string

func (e machosignerErr) Error() string { return string(e) }

const errInjectUnsupported = machosignerErr("dylib injection is not supported by the codesign(1) collaborator")
