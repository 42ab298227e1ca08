package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clarete/ember"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "compile and execute a script file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			maybeEnableTrace()
			e := newEngine()
			result, err := e.ExecuteFile(args[0])
			if err != nil {
				printErrors(e)
				return err
			}
			if !result.IsNull() {
				fmt.Println(ember.Inspect(e.GcMem(), result))
			}
			return nil
		},
	}
	return cmd
}
