package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/clarete/ember"
	"github.com/clarete/ember/ascii"
)

const replHistoryFile = ".ember_history"

func newReplCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "start an interactive read-eval-print loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			maybeEnableTrace()
			runRepl()
			return nil
		},
	}
	return cmd
}

func runRepl() {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(replHistoryFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(replHistoryFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	e := newEngine()
	e.SetReplMode(true)

	fmt.Println(ascii.DefaultTheme.Info("ember repl - Ctrl-D to exit"))

	for {
		input, err := line.Prompt("ember> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			return
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, ascii.DefaultTheme.Error(err.Error()))
			return
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)

		result, err := e.Execute(input)
		if err != nil {
			printErrors(e)
			continue
		}
		if !result.IsNull() {
			fmt.Println(ascii.DefaultTheme.Accent(ember.Inspect(e.GcMem(), result)))
		}
	}
}
