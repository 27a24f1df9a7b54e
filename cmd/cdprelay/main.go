// Command cdprelay runs the loopback CDP relay and its extension-side
// agent, mirroring the teacher CLI's split between a server process and an
// agent process that talks to it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cdprelay: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cdprelay",
		Short: "Loopback CDP relay bridging one browser extension and many debugger clients",
	}
	root.AddCommand(serveCmd())
	root.AddCommand(agentCmd())
	return root
}
