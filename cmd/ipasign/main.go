// Command ipasign re-signs an iOS/macOS application bundle or .ipa
// archive: it walks the bundle tree, rebuilds the CodeResources
// manifest, and re-invokes a Mach-O signing collaborator, caching
// unchanged work between runs.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
