// Package trace provides the engine's optional diagnostic logging: a
// bytecode dump when the compiler finishes a scope, and an
// instruction-level trace of the VM's dispatch loop. Both are opt-in
// and off by default; driving them from logrus (rather than the
// teacher's own log.Println/log.Fatal, reserved for the cmd/ember
// CLI's own fatal paths) gives structured, leveled fields the way
// other bytecode-VM projects in the corpus do for compiler/VM
// tracing.
package trace

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the package-level logrus instance every trace call writes
// through. Tests and embedders can replace it wholesale (e.g. to
// capture output into a buffer) by assigning a new *logrus.Logger.
var Logger = newDefaultLogger()

func newDefaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.WarnLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return l
}

// Enable raises the trace logger to debug level, turning on both
// compiler bytecode dumps and VM instruction traces.
func Enable() { Logger.SetLevel(logrus.DebugLevel) }

// Disable silences tracing back to its default (warnings and above).
func Disable() { Logger.SetLevel(logrus.WarnLevel) }

// Instruction logs one dispatched opcode, the active frame's function
// name and instruction pointer, and the current stack depth. The VM
// calls this unconditionally; logrus' own level check makes the call
// a cheap no-op whenever debug tracing isn't enabled.
func Instruction(fnName string, ip int, opName string, sp int) {
	Logger.WithFields(logrus.Fields{
		"fn": fnName,
		"ip": ip,
		"sp": sp,
	}).Debug(opName)
}

// Bytecode logs a freshly compiled function's instruction count and
// constant-pool size, the compiler's equivalent of a disassembly
// dump, without pulling in a full disassembler.
func Bytecode(fnName string, numInstructions, numConstants int) {
	Logger.WithFields(logrus.Fields{
		"fn":           fnName,
		"instructions": numInstructions,
		"constants":    numConstants,
	}).Debug("compiled")
}
