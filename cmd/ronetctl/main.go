// Command ronetctl is the operator CLI for a macronode deployment: check
// a config file, mint keys and capability tokens, publish a content
// bundle, query a running node's status, and (debug subcommand) run a
// small local inspection server over a node's on-disk state.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{Use: "ronetctl", Short: "operator CLI for a ronet node"}
	root.AddCommand(configCmd())
	root.AddCommand(keygenCmd())
	root.AddCommand(publishCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(debugCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
