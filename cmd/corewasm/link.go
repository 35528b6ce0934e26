package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newLinkCmd() *cobra.Command {
	var deps []string
	cmd := &cobra.Command{
		Use:   "link <root.wasm>",
		Short: "Instantiate root.wasm together with its --dep=name=path dependencies",
		Long: "Decodes and defines each --dep module under its given name, then links and " +
			"instantiates root.wasm, resolving its imports (and its dependencies' imports, " +
			"transitively) from the defined set before instantiating root.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}

			for _, dep := range deps {
				name, path, ok := strings.Cut(dep, "=")
				if !ok {
					return fmt.Errorf("--dep must be name=path, got %q", dep)
				}
				b, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				m, err := rt.DecodeModule(b)
				if err != nil {
					return fmt.Errorf("decode %s: %w", path, err)
				}
				rt.DefineModule(name, m)
			}

			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			root, err := rt.DecodeModule(b)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			if _, err := rt.Link(root); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "linked")
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&deps, "dep", nil, "name=path dependency, may be repeated")
	return cmd
}
