// Command calendar-mcp runs the calendar tool gateway.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "calendar-mcp",
		Short:        "Calendar tool gateway",
		Long:         "calendar-mcp publishes calendar tools over Server-Sent Events and invokes them over HTTP.",
		SilenceUsage: true,
	}
	root.Version = version
	root.SetVersionTemplate(fmt.Sprintf("calendar-mcp version %s\n", version))

	root.AddCommand(newServeCmd())
	root.AddCommand(newToolsCmd())
	return root
}
