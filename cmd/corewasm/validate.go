package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corewasm/corewasm/internal/validator"
	"github.com/corewasm/corewasm/internal/wasm/binary"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <module.wasm>",
		Short: "Decode and validate a binary module without instantiating it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			m, err := binary.DecodeModule(b)
			if err != nil {
				return fmt.Errorf("decode: %w", err)
			}
			if err := validator.Validate(m); err != nil {
				return fmt.Errorf("validate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}
