// Command ember is the engine's CLI: run a script file, drop into an
// interactive REPL, or compile a file without running it. It
// migrates the teacher's flag-based cmd/main.go and
// cmd/langlang/main.go (the second with its own -interactive flag)
// onto a single cobra command tree, the way CWBudde-go-dws,
// Consensys-go-corset and opal-lang-opal front their own
// compiler/VM tools.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/clarete/ember/internal/trace"
)

var (
	flagOptimize bool
	flagTimeout  int
	flagTrace    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ember",
		Short:         "ember runs and explores programs written in the ember scripting language",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&flagOptimize, "optimize", true, "fold constant expressions at compile time")
	root.PersistentFlags().IntVar(&flagTimeout, "timeout", 0, "execution time cap in milliseconds (0 = unlimited)")
	root.PersistentFlags().BoolVar(&flagTrace, "trace", false, "log every dispatched instruction and compiled function")

	root.AddCommand(newRunCmd())
	root.AddCommand(newBuildCmd())
	root.AddCommand(newReplCmd())
	return root
}

func maybeEnableTrace() {
	if flagTrace {
		trace.Enable()
	}
}
