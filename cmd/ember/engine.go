package main

import (
	"fmt"
	"os"

	"github.com/clarete/ember"
	"github.com/clarete/ember/ascii"
)

// newEngine builds an Engine configured from the root command's
// persistent flags, with a file-reader wired to plain os.ReadFile so
// `import` and `ember run` work against the real filesystem, and a
// stdout writer wired to the process's real stdout so a `print`
// builtin (registered separately, outside this core spec's scope)
// would have somewhere to write.
func newEngine() *ember.Engine {
	e := ember.NewEngine()
	e.SetOptimize(flagOptimize)
	e.SetMaxExecutionMs(flagTimeout)
	e.SetStdoutWriter(func(s string) { fmt.Fprint(os.Stdout, s) })
	e.SetFileReader(func(path string) (string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
	return e
}

// printErrors reports every EngineError the engine accumulated,
// color-coded by severity the way the teacher's ascii theme groups
// diagnostics.
func printErrors(e *ember.Engine) {
	for _, ee := range e.Errors() {
		fmt.Fprintln(os.Stderr, ascii.DefaultTheme.Error(ee.Error()))
		if ee.Traceback != nil {
			for _, item := range ee.Traceback.Items {
				fmt.Fprintln(os.Stderr, "  "+ascii.DefaultTheme.Muted(fmt.Sprintf("at %s (%s)", item.FunctionName, item.Pos)))
			}
		}
	}
}
