package main

import (
	"github.com/spf13/cobra"
)

// newRootCommand builds the samcorehub command tree. The core protocol
// defines no flags of its own (§6); everything below is operational
// tooling layered on top.
func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "samcorehub",
		Short: "SamCore message-routing hub",
	}
	root.AddCommand(newServeCommand())
	return root
}
