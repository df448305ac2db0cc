package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "ipasign",
		Short: "Re-sign an iOS/macOS application bundle or .ipa archive",
		Long: `ipasign walks an application bundle (or an extracted .ipa), rebuilds
each nested component's CodeResources manifest, optionally rewrites the
bundle identifier, version, and display name, and re-invokes a Mach-O
signing collaborator — caching unchanged work between runs.`,
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newSignCmd(&verbose))
	root.AddCommand(newWatchCmd(&verbose))
	return root
}
