package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/verifiedlabs/fstarup/internal/layout"
	"github.com/verifiedlabs/fstarup/internal/manifest"
)

func newEnvCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Print shell exports for an installed stack",
		Long: `Print the environment exports a shell needs to use an installation,
in eval-able form:

  eval "$(fstarup env --dir ~/.fstarup/stacks/VERSION)"

The command fails if the installation is incomplete.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				registry, err := manifest.Load()
				if err != nil {
					return err
				}
				base, err := baseDir()
				if err != nil {
					return err
				}
				dir = filepath.Join(base, "stacks", registry.Latest())
			}
			vars, err := layout.Export(layout.New(dir))
			if err != nil {
				return err
			}
			writeExports(cmd.OutOrStdout(), vars)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Installation root (default ~/.fstarup/stacks/LATEST)")
	return cmd
}

// writeExports renders env vars as POSIX shell exports. Path-like
// variables prepend to any existing value instead of replacing it.
func writeExports(w io.Writer, vars []layout.EnvVar) {
	for _, v := range vars {
		switch v.Key {
		case "PATH":
			fmt.Fprintf(w, "export PATH=\"%s:$PATH\"\n", v.Value)
		case "C_INCLUDE_PATH":
			fmt.Fprintf(w, "export C_INCLUDE_PATH=\"%s${C_INCLUDE_PATH:+:$C_INCLUDE_PATH}\"\n", v.Value)
		default:
			fmt.Fprintf(w, "export %s=\"%s\"\n", v.Key, v.Value)
		}
	}
}
