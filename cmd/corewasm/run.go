package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corewasm/corewasm/internal/spectest"
)

func newRunCmd() *cobra.Command {
	var withSpectest bool
	cmd := &cobra.Command{
		Use:   "run <module.wasm> <function> [args...]",
		Short: "Instantiate a module and invoke one of its exported functions",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			funcName, rawArgs := args[1], args[2:]

			rt, err := newRuntime()
			if err != nil {
				return err
			}
			if withSpectest {
				rt.InstantiateHostModule(spectest.New(rt.Store(), nil))
			}

			m, err := rt.DecodeModule(b)
			if err != nil {
				return fmt.Errorf("decode: %w", err)
			}
			mod, err := rt.InstantiateModule("", m)
			if err != nil {
				return err
			}

			ft, err := mod.FuncType(funcName)
			if err != nil {
				return err
			}
			if len(rawArgs) != len(ft.Params) {
				return fmt.Errorf("%s expects %d argument(s), got %d", funcName, len(ft.Params), len(rawArgs))
			}
			encoded := make([]uint64, len(rawArgs))
			for i, raw := range rawArgs {
				v, err := parseArg(raw, ft.Params[i])
				if err != nil {
					return err
				}
				encoded[i] = v
			}

			results, err := mod.Invoke(funcName, encoded...)
			if err != nil {
				return err
			}

			formatted := make([]string, len(results))
			for i, v := range results {
				formatted[i] = formatResult(v, ft.Results[i])
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(formatted, " "))
			return nil
		},
	}
	cmd.Flags().BoolVar(&withSpectest, "with-spectest", true, "register the spectest host module before instantiating")
	return cmd
}
