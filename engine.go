package ember

import (
	"fmt"

	"github.com/pkg/errors"
)

// NativeFn is the Go shape of a host-registered builtin: it receives
// the VM it was called from (for allocating new Values, raising a
// runtime error, or invoking another callable) and its argument
// list. There is no separate user_data out-parameter the way the
// embeddable-C surface has one: idiomatic Go closures capture
// whatever context a builtin needs, the same way ozanh-ugo's
// CallableFunc and gad-lang-gad's native functions do instead of
// threading an opaque pointer through every call.
type NativeFn func(vm *VM, args []Value) (Value, error)

// Program is the result of Engine.Compile: a self-contained compiled
// chunk that ExecuteProgram can run (possibly more than once, or
// after being held onto across other Execute calls), mirroring the
// host API's `compile(source) -> Program` / `execute_program(Program)`
// split from a one-shot `execute(source)`.
type Program struct {
	bytecode *Bytecode
}

// Engine is the host-facing façade over the whole pipeline: one
// GcMem arena, one module-global symbol table and slot array, and one
// set of host-registered builtins, all scoped to a single
// single-threaded VM lifetime (§5 — independent Engines share no
// state, and one Engine must never be driven from more than one
// goroutine at a time).
type Engine struct {
	config      *Config
	gc          *GcMem
	symbolTable *SymbolTable

	globals []Value

	apeGlobals     []Value
	apeGlobalNames map[string]int

	errs *ErrorList

	stdoutWriter func(string)
	fileReader   func(path string) (string, error)
	fileWriter   func(path, content string) error

	lastResult Value
}

// NewEngine creates an Engine with default configuration: REPL mode
// off, no execution-time cap, constant folding on.
func NewEngine() *Engine {
	e := &Engine{
		config:         NewConfig(),
		gc:             NewGcMem(),
		symbolTable:    NewSymbolTable(),
		apeGlobalNames: make(map[string]int),
		errs:           &ErrorList{},
		lastResult:     NullValue(),
	}
	return e
}

// --- Configuration (call before the first compile) ---

// SetReplMode toggles whether a trailing top-level expression
// statement's value is left on the stack (so Execute can return it)
// and whether re-defining an existing module global is permitted.
func (e *Engine) SetReplMode(on bool) { e.config.SetBool("vm.repl_mode", on) }

// SetMaxExecutionMs installs the VM's cooperative execution-time cap;
// 0 (the default) disables it.
func (e *Engine) SetMaxExecutionMs(ms int) { e.config.SetInt("vm.max_execution_ms", ms) }

// SetOptimize toggles the constant-folding pass the compiler runs
// over every expression before emitting bytecode for it.
func (e *Engine) SetOptimize(on bool) {
	v := 0
	if on {
		v = 1
	}
	e.config.SetInt("compiler.optimize", v)
}

// SetStdoutWriter installs the callback native functions like `print`
// use instead of writing to a process-global stdout, so an embedder
// can redirect script output anywhere (a buffer, a log, a socket).
func (e *Engine) SetStdoutWriter(w func(string)) { e.stdoutWriter = w }

// Stdout is the seam native functions call through; it is a no-op
// until SetStdoutWriter is called.
func (e *Engine) Stdout(s string) {
	if e.stdoutWriter != nil {
		e.stdoutWriter(s)
	}
}

// SetFileReader installs the callback `import` and ExecuteFile use to
// load source text for a path; signature matches §6:
// (path) -> (contents, error).
func (e *Engine) SetFileReader(r func(path string) (string, error)) { e.fileReader = r }

// SetFileWriter installs the callback a `writeFile`-style builtin
// could use; the core itself never calls it directly.
func (e *Engine) SetFileWriter(w func(path, content string) error) { e.fileWriter = w }

// --- Global registration ---

// SetNativeFunction registers a Go-implemented builtin under name,
// callable from scripts exactly like any user-defined function. Each
// call grows the ApeGlobal slot table; redefining an existing name
// rebinds its slot rather than adding a new one, matching the "REPL
// may re-register a builtin" expectation.
func (e *Engine) SetNativeFunction(name string, fn NativeFn) {
	v := e.gc.AllocNative(&NativeFunction{Name: name, Fn: fn})
	e.gc.Pin(v) // builtins must survive every sweep for the engine's whole lifetime
	e.setApeGlobal(name, v)
}

// SetGlobalConstant registers a plain value (not a function) as a
// host global, resolved and compiled exactly like a native function
// reference.
func (e *Engine) SetGlobalConstant(name string, v Value) {
	e.gc.Pin(v)
	e.setApeGlobal(name, v)
}

func (e *Engine) setApeGlobal(name string, v Value) {
	if idx, ok := e.apeGlobalNames[name]; ok {
		e.apeGlobals[idx] = v
		return
	}
	idx := len(e.apeGlobals)
	e.apeGlobals = append(e.apeGlobals, v)
	e.apeGlobalNames[name] = idx
	e.symbolTable.DefineApeGlobal(idx, name)
}

// GetObject looks up a name the way script code would resolve it: a
// host global first, then a module-level `var`/`const`/`fn` binding.
func (e *Engine) GetObject(name string) (Value, bool) {
	sym, ok := e.symbolTable.Resolve(name)
	if !ok {
		return Value(0), false
	}
	switch sym.Scope {
	case ApeGlobalScope:
		return e.apeGlobals[sym.Index], true
	case ModuleGlobalScope:
		if sym.Index >= len(e.globals) {
			return NullValue(), true
		}
		return e.globals[sym.Index], true
	default:
		return Value(0), false
	}
}

// --- Compiling and executing ---

// Compile lexes, parses and compiles source into a reusable Program,
// without running it. A compile failure rolls the engine's symbol
// table back to exactly the state it had before the call (§4.5,
// testable property #1) and accumulates every EngineError reported
// along the way into Errors().
func (e *Engine) Compile(source string) (*Program, error) {
	return e.compileNamed("<input>", source)
}

func (e *Engine) compileNamed(file, source string) (*Program, error) {
	e.errs.Reset()

	lex := NewLexer(file, source)
	parser := NewParser(lex)
	stmts, err := parser.ParseProgram()
	for _, pe := range lex.Errors.Errors() {
		e.errs.Add(pe)
	}
	for _, pe := range parser.Errors().Errors() {
		e.errs.Add(pe)
	}
	if err != nil || lex.Failed || parser.Errors().Count() > 0 {
		if ee, ok := err.(*EngineError); ok {
			return nil, ee
		}
		if first := e.errs.First(); first != nil {
			return nil, first
		}
		return nil, newParseError(Position{File: file}, "parse failed")
	}

	snapshot := e.symbolTable.snapshot()

	comp := NewCompiler(e.gc, e.symbolTable, e.config)
	comp.SetModuleLoader(e.readModuleSource)
	bc, err := comp.CompileProgram(stmts)
	if err != nil {
		e.symbolTable.restore(snapshot)
		if ee, ok := err.(*EngineError); ok {
			e.errs.Add(ee)
			return nil, ee
		}
		ce := newCompileError(Position{File: file}, err, "%s", err.Error())
		e.errs.Add(ce)
		return nil, ce
	}

	return &Program{bytecode: bc}, nil
}

func (e *Engine) readModuleSource(canonicalPath string) (string, error) {
	if e.fileReader == nil {
		return "", errors.Errorf("no file-reader callback configured for import %q", canonicalPath)
	}
	return e.fileReader(canonicalPath)
}

// ExecuteProgram runs an already-compiled Program against this
// Engine's persistent GcMem, module-global slots and host builtins,
// and returns the program's result as VM.LastValue reports it: with
// REPL mode on, the value a trailing expression statement leaves on
// the stack; otherwise the value the last OpPop discarded.
func (e *Engine) ExecuteProgram(p *Program) (Value, error) {
	vm := NewVM(p.bytecode, e.gc, e.config, e.apeGlobals)
	vm.globals = append([]Value(nil), e.globals...)

	err := vm.Run()
	e.globals = vm.globals
	for _, ee := range vm.Errors().Errors() {
		e.errs.Add(ee)
	}
	if err != nil {
		e.lastResult = NullValue()
		return NullValue(), err
	}
	e.lastResult = vm.LastValue()
	return e.lastResult, nil
}

// Execute compiles and runs source in one step, the common case for
// a REPL line or a one-off script.
func (e *Engine) Execute(source string) (Value, error) {
	p, err := e.Compile(source)
	if err != nil {
		return NullValue(), err
	}
	return e.ExecuteProgram(p)
}

// CompileFile reads path through the configured file-reader callback
// and compiles it without executing it, attributing positions and
// import resolution to that path the same way ExecuteFile does.
func (e *Engine) CompileFile(path string) (*Program, error) {
	if e.fileReader == nil {
		return nil, errors.Errorf("no file-reader callback configured")
	}
	source, err := e.fileReader(path)
	if err != nil {
		return nil, newAllocationErrorFromIO(path, err)
	}
	return e.compileNamed(path, source)
}

// ExecuteFile reads path through the configured file-reader callback
// and executes its contents, attributing positions and import
// resolution to that path.
func (e *Engine) ExecuteFile(path string) (Value, error) {
	if e.fileReader == nil {
		return NullValue(), errors.Errorf("no file-reader callback configured")
	}
	source, err := e.fileReader(path)
	if err != nil {
		return NullValue(), newAllocationErrorFromIO(path, err)
	}
	p, err := e.compileNamed(path, source)
	if err != nil {
		return NullValue(), err
	}
	return e.ExecuteProgram(p)
}

func newAllocationErrorFromIO(path string, cause error) *EngineError {
	ee := newEngineError(ErrorAllocation, Position{File: path}, "failed to read %q: %s", path, cause.Error())
	ee.Cause = cause
	return ee
}

// Call invokes a previously defined script function (a module global,
// a host global, or anything else GetObject can resolve) by name,
// re-entering the VM the same way a nested host→script→host call
// would via vm_call in the embedding API.
func (e *Engine) Call(name string, args ...Value) (Value, error) {
	callee, ok := e.GetObject(name)
	if !ok {
		return NullValue(), newRuntimeError(Position{}, "no such function: %s", name)
	}

	bc := &Bytecode{Instructions: Instructions{byte(OpNull), byte(OpReturnValue)}}
	vm := NewVM(bc, e.gc, e.config, e.apeGlobals)
	vm.globals = append([]Value(nil), e.globals...)

	result, err := vm.invoke(callee, args)
	e.globals = vm.globals
	for _, ee := range vm.Errors().Errors() {
		e.errs.Add(ee)
	}
	if err != nil {
		return NullValue(), err
	}
	return result, nil
}

// GcMem exposes the engine's object arena so a host can call Inspect
// (or any other GcMem-reading helper) on Values it gets back from
// Execute/Call without reaching into engine internals.
func (e *Engine) GcMem() *GcMem { return e.gc }

// Errors exposes every EngineError the engine has accumulated across
// the pipeline (lexer, parser, compiler and VM). Every compile clears
// the list first, so it holds what the most recent compile reported
// plus whatever runs and calls since then added.
func (e *Engine) Errors() []*EngineError { return e.errs.Errors() }

// Pin exempts v from garbage collection until Unpin is called; for
// Values the host keeps a reference to outside of any compiled
// program (a cached result handed back to C code, say).
func (e *Engine) Pin(v Value) { e.gc.Pin(v) }

// Unpin releases a Value pinned with Pin.
func (e *Engine) Unpin(v Value) { e.gc.Unpin(v) }

// --- Value constructors the host can call without touching GcMem/VM internals ---

func (e *Engine) NewString(s string) Value      { return e.gc.AllocString(s) }
func (e *Engine) NewArray(elems []Value) Value  { return e.gc.AllocArray(elems) }
func (e *Engine) NewMap(pairs []MapPair) Value  { return e.gc.AllocMap(pairs) }
func (e *Engine) NewError(format string, args ...any) Value {
	return e.gc.AllocError(newUserError(Position{}, format, args...))
}
func (e *Engine) NewExternal(v interface{}) Value { return e.gc.AllocExternal(v) }

// GetString, GetArray, GetMap are the paired accessors: they panic if
// v isn't the expected kind, the same contract GcMem.Get already
// carries, since a type mismatch here is an embedder programming
// error, not a recoverable script-level condition.
func (e *Engine) GetString(v Value) string {
	b := e.gc.Get(v)
	if b.Kind != ObjString {
		panic(fmt.Sprintf("ember: GetString called on a %s Value", b.Kind))
	}
	return b.Str
}

func (e *Engine) GetArray(v Value) []Value {
	b := e.gc.Get(v)
	if b.Kind != ObjArray {
		panic(fmt.Sprintf("ember: GetArray called on a %s Value", b.Kind))
	}
	return b.Arr
}
