package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/corewasm/corewasm"
	"github.com/corewasm/corewasm/internal/observ"
)

var verbose bool

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "corewasm",
		Short: "Decode, validate, link, and run WebAssembly 1.0 binary modules",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "trace instantiation and calls to stderr")
	root.AddCommand(newValidateCmd(), newRunCmd(), newLinkCmd())
	return root
}

// newRuntime builds a Runtime whose logging is gated by -v: silent by
// default, a development zap logger tracing every scope when verbose.
func newRuntime() (*corewasm.Runtime, error) {
	cfg := corewasm.NewRuntimeConfig()
	if verbose {
		zl, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		cfg = cfg.WithLogger(zl).WithLogScopes(observ.ScopeAll)
	}
	return corewasm.NewRuntime(cfg), nil
}
