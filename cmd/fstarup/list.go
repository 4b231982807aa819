package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/verifiedlabs/fstarup/internal/manifest"
)

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installable stack versions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := manifest.Load()
			if err != nil {
				return err
			}
			for _, id := range registry.List() {
				line := registry.Describe(id)
				if id == registry.Latest() {
					line = color.New(color.Bold).Sprint(line)
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}
