package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/overlaymesh/ronet/internal/config"
)

// configCmd validates a TOML config file the same way macronode's startup
// path does, without binding any listener or wiring any component.
func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "inspect node configuration"}

	check := &cobra.Command{
		Use:   "check <path>",
		Short: "load and validate a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.LoadOptions{FilePath: args[0]})
			if err != nil {
				return err
			}
			fmt.Printf("config OK: version=%d bind=%s overlay=%s registry=%s pq=%s\n",
				cfg.Version, cfg.BindAddr, cfg.OverlayBindAddr, cfg.RegistryBindAddr, cfg.PQPosture)
			return nil
		},
	}
	cmd.AddCommand(check)
	return cmd
}
