package main

import (
	"fmt"

	"github.com/go-elfdyn/elfdyn"
	"github.com/go-elfdyn/elfdyn/internal/obslog"
	"github.com/spf13/cobra"
)

var (
	callSymbol string
	lazy       bool
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:          "elfdyn <shared object>",
	Short:        "Load a shared object and resolve an exported symbol without a native dynamic linker",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		obslog.Init(debug)

		library, err := elfdyn.LoadLibraryFile(args[0], elfdyn.Options{Lazy: lazy})
		if err != nil {
			return err
		}
		defer library.Close()

		addr, err := library.Get(callSymbol)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s resolved at 0x%x\n", callSymbol, addr)
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&callSymbol, "symbol", "main", "symbol to resolve after loading")
	rootCmd.Flags().BoolVar(&lazy, "lazy", false, "defer PLT binding until first call")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
}
