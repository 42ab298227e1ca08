package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clarete/ember/ascii"
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <file>",
		Short: "compile a script file without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := newEngine()
			if _, err := e.CompileFile(args[0]); err != nil {
				printErrors(e)
				return err
			}
			fmt.Println(ascii.DefaultTheme.Success("ok"))
			return nil
		},
	}
	return cmd
}
