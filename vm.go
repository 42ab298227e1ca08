package ember

import (
	"time"

	"github.com/clarete/ember/internal/trace"
)

// stackSize is the operand stack's fixed capacity; exceeding it is a
// script-level stack overflow, reported the same way a runaway
// recursive call would be.
const stackSize = 2048

// maxFrames bounds call depth the same way.
const maxFrames = 1024

// noRecoverTarget marks a frame with no armed recover() block.
const noRecoverTarget = -1

// overloadOperators pins the string keys the VM looks up on a map
// operand before falling back to "unsupported operand" for a binary
// opcode that doesn't have a built-in number/string meaning. A map
// value that defines one of these keys as a callable acts as an
// operator-overloaded object for that operator.
var overloadOperators = map[Opcode]string{
	OpAdd:            "__operator_add__",
	OpSub:            "__operator_sub__",
	OpMul:            "__operator_mul__",
	OpDiv:            "__operator_div__",
	OpMod:            "__operator_mod__",
	OpBitAnd:         "__operator_band__",
	OpBitOr:          "__operator_bor__",
	OpBitXor:         "__operator_bxor__",
	OpShiftLeft:      "__operator_shl__",
	OpShiftRight:     "__operator_shr__",
	OpEqual:          "__operator_eq__",
	OpNotEqual:       "__operator_neq__",
	OpGreaterThan:    "__operator_gt__",
	OpGreaterOrEqual: "__operator_gte__",
}

// VM is the stack machine that executes a Bytecode program: an
// operand stack, a call-frame stack, a `this` stack holding the maps
// currently under construction (so a method literal captures its own
// map via OpThisGet at closure-creation time), and a module-global
// slot array indexed by OpModuleGlobalGet/Set.
type VM struct {
	gc     *GcMem
	config *Config
	errs   *ErrorList

	constants  []Value
	globals    []Value
	apeGlobals []Value

	stack []Value
	sp    int

	thisStack []Value

	frames     []*frame
	frameIndex int

	// lastPopped is the value the most recent OpPop discarded: the
	// result a host reads back from a program whose final statement is
	// an expression. It is a GC root so the host can still inspect it
	// after the sweep that follows the program's last instruction.
	lastPopped Value

	steps          int
	startedAt      time.Time
	maxExecutionMs int
}

// NewVM wires a freshly compiled Bytecode to a GcMem arena and a set
// of host-registered builtins (indexed the same way the compiler's
// symbol table assigned them ApeGlobalScope slots).
func NewVM(bytecode *Bytecode, gc *GcMem, config *Config, apeGlobals []Value) *VM {
	main := &CompiledFunction{
		Name:         "<module>",
		Instructions: bytecode.Instructions,
		Positions:    bytecode.Positions,
	}
	mainFrame := newFrame(&Closure{Fn: main}, 0, 0)

	vm := &VM{
		gc:             gc,
		config:         config,
		errs:           &ErrorList{},
		constants:      bytecode.Constants,
		apeGlobals:     apeGlobals,
		stack:          make([]Value, stackSize),
		thisStack:      make([]Value, 0, maxFrames),
		frames:         make([]*frame, 1, maxFrames),
		lastPopped:     NullValue(),
		startedAt:      time.Now(),
		maxExecutionMs: config.GetInt("vm.max_execution_ms"),
	}
	vm.frames[0] = mainFrame
	return vm
}

// Errors exposes every EngineError accumulated over the VM's lifetime
// (an error that a recover block caught stays here too, for
// host-side diagnostics).
func (vm *VM) Errors() *ErrorList { return vm.errs }

// RuntimeError builds a script-level runtime error positioned at the
// VM's current instruction. Native functions return it to raise; a
// lexically enclosing recover block in the calling script can catch
// it like any other runtime failure.
func (vm *VM) RuntimeError(format string, args ...interface{}) error {
	return newRuntimeError(vm.currentFrame().currentPos(), format, args...)
}

// UserError is RuntimeError's host-signalling sibling: the same
// propagation and recover semantics, classified ErrorUser so the host
// can tell a bad-argument complaint from an engine-level failure.
func (vm *VM) UserError(format string, args ...interface{}) error {
	return newUserError(vm.currentFrame().currentPos(), format, args...)
}

func (vm *VM) currentFrame() *frame { return vm.frames[vm.frameIndex] }

func (vm *VM) pushFrame(f *frame) error {
	if vm.frameIndex+1 >= maxFrames {
		return newRuntimeError(vm.currentFrame().currentPos(), "stack overflow: call depth exceeds %d", maxFrames)
	}
	if vm.frameIndex+1 < len(vm.frames) {
		vm.frames[vm.frameIndex+1] = f
	} else {
		vm.frames = append(vm.frames, f)
	}
	vm.frameIndex++
	return nil
}

func (vm *VM) push(v Value) error {
	if vm.sp >= stackSize {
		return newRuntimeError(vm.currentFrame().currentPos(), "stack overflow")
	}
	vm.stack[vm.sp] = v
	vm.sp++
	return nil
}

func (vm *VM) pop() Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(distanceFromTop int) Value {
	return vm.stack[vm.sp-1-distanceFromTop]
}

// LastValue is the value a REPL or Engine.Execute reads as the
// program's result: with vm.repl_mode set, CompileProgram leaves a
// trailing top-level expression statement's value on the stack
// instead of popping it; otherwise the last OpPop'd value stands in,
// so `execute("1 + 2 * 3")` still hands 7 back to the host.
func (vm *VM) LastValue() Value {
	if vm.sp <= 0 {
		return vm.lastPopped
	}
	return vm.stack[vm.sp-1]
}

// Run executes the bytecode to completion, interleaving GC passes and
// an execution-time check every thousand dispatched instructions. A
// script-level failure that isn't caught by any armed recover() block
// is returned as an *EngineError wrapped in a plain error.
func (vm *VM) Run() error {
	vm.startedAt = time.Now()
	return vm.runUntil(-1, false)
}

// runUntil dispatches instructions until the frame stack unwinds back
// to targetDepth. Run drives it from the top-level module frame down
// to -1 with entryReturnsValue false, since there's no caller waiting
// for a return value and the stack must be left exactly as the last
// instruction left it (vm.repl_mode relies on that to read back a
// trailing expression's value). invoke drives it from a frame it just
// pushed itself back down to the depth it started at, with
// entryReturnsValue true so that frame's fall-off-the-end uses the
// normal call-return convention like an implicit `return null`.
func (vm *VM) runUntil(targetDepth int, entryReturnsValue bool) error {
	entryIndex := targetDepth + 1
	for vm.frameIndex > targetDepth {
		f := vm.currentFrame()
		ins := f.instructions()
		if f.ip+1 >= len(ins) {
			if vm.frameIndex == entryIndex && !entryReturnsValue {
				vm.frameIndex = targetDepth
				return nil
			}
			vm.returnFromFrame(NullValue())
			continue
		}

		vm.steps++
		if vm.steps%1000 == 0 {
			if err := vm.checkTimeout(); err != nil {
				if !vm.recoverFrom(err) {
					return err
				}
				continue
			}
		}
		if vm.gc.ShouldCollect() {
			vm.gc.Collect(vm.gcRoots())
		}

		f.ip++
		op := Opcode(ins[f.ip])
		trace.Instruction(f.fn.Name, f.ip, op.Name(), vm.sp)

		if err := vm.dispatch(op, f); err != nil {
			if !vm.recoverFrom(err) {
				return err
			}
		}
	}
	return nil
}

func (vm *VM) checkTimeout() error {
	if vm.maxExecutionMs <= 0 {
		return nil
	}
	if time.Since(vm.startedAt) > time.Duration(vm.maxExecutionMs)*time.Millisecond {
		return newTimeoutError(vm.currentFrame().currentPos())
	}
	return nil
}

// gcRoots gathers everything the mark phase must treat as live: the
// live operand stack, every active frame's captured free variables
// (reachable only through the frame's Go-level *Closure, never through
// the arena once nothing else references that closure's own slot),
// the `this` stack, the constant pool (which must survive for the
// program's whole lifetime, not just while something on the stack
// references it) and both global tables.
func (vm *VM) gcRoots() []Value {
	roots := make([]Value, 0, vm.sp+len(vm.constants)+len(vm.globals)+len(vm.apeGlobals)+len(vm.thisStack)+1)
	roots = append(roots, vm.lastPopped)
	roots = append(roots, vm.stack[:vm.sp]...)
	roots = append(roots, vm.thisStack...)
	roots = append(roots, vm.constants...)
	roots = append(roots, vm.globals...)
	roots = append(roots, vm.apeGlobals...)
	roots = append(roots, vm.gc.PinnedRoots()...)
	for i := 0; i <= vm.frameIndex; i++ {
		roots = append(roots, vm.frames[i].closure.Free...)
	}
	return roots
}

// recoverFrom unwinds the frame stack looking for the nearest frame
// with an armed recover() target. Only Runtime and User errors are
// catchable; Timeout and Allocation errors are treated as unrecoverable
// host-level aborts. Returns true if the error was absorbed and
// execution should continue.
func (vm *VM) recoverFrom(err error) bool {
	ee, ok := err.(*EngineError)
	if !ok {
		return false
	}
	if ee.Traceback == nil {
		ee.Traceback = captureTraceback(vm.frames[:vm.frameIndex+1])
	}
	vm.errs.Add(ee)
	if ee.Type != ErrorRuntime && ee.Type != ErrorUser {
		return false
	}
	for i := vm.frameIndex; i >= 0; i-- {
		f := vm.frames[i]
		if f.recoverTarget == noRecoverTarget {
			continue
		}
		target := f.recoverTarget
		f.recoverTarget = noRecoverTarget

		// Pop every frame above the one that armed the recover block,
		// discard any map constructions left half-finished on the this
		// stack, and reset the stack pointer to just past that frame's
		// locals: the handler still reads the frame's parameters, so
		// the locals region must survive the unwind.
		vm.frameIndex = i
		vm.thisStack = vm.thisStack[:f.thisBase]
		vm.sp = f.basePointer + f.fn.NumLocals
		f.ip = target - 1

		errVal := vm.gc.AllocError(ee)
		vm.push(errVal)
		return true
	}
	return false
}

func (vm *VM) returnFromFrame(result Value) {
	f := vm.currentFrame()
	vm.frameIndex--
	vm.thisStack = vm.thisStack[:f.thisBase]
	vm.sp = f.basePointer
	vm.push(result)
}

func (vm *VM) dispatch(op Opcode, f *frame) error {
	switch op {
	case OpConstant:
		idx := f.readOperand(2)
		return vm.push(vm.constants[idx])

	case OpNull:
		return vm.push(NullValue())
	case OpTrue:
		return vm.push(BoolValue(true))
	case OpFalse:
		return vm.push(BoolValue(false))
	case OpPop:
		vm.lastPopped = vm.pop()
		return nil
	case OpDup:
		return vm.push(vm.peek(0))

	case OpAdd, OpSub, OpMul, OpDiv, OpMod,
		OpBitAnd, OpBitOr, OpBitXor, OpShiftLeft, OpShiftRight,
		OpEqual, OpNotEqual, OpGreaterThan, OpGreaterOrEqual:
		return vm.execBinary(op)

	case OpMinus, OpBang, OpBitNot:
		return vm.execUnary(op)

	case OpJump:
		target := f.readOperand(2)
		f.ip = target - 1
		return nil
	case OpJumpFalsy:
		target := f.readOperand(2)
		if !truthy(vm.pop()) {
			f.ip = target - 1
		}
		return nil
	case OpJumpTruthy:
		target := f.readOperand(2)
		if truthy(vm.pop()) {
			f.ip = target - 1
		}
		return nil

	case OpModuleGlobalGet:
		idx := f.readOperand(2)
		return vm.push(vm.globalAt(idx))
	case OpModuleGlobalSet:
		idx := f.readOperand(2)
		v := vm.pop()
		if err := vm.checkAssign(vm.globalAt(idx), v); err != nil {
			return err
		}
		vm.setGlobal(idx, v)
		return nil
	case OpModuleGlobalDefine:
		idx := f.readOperand(2)
		vm.setGlobal(idx, vm.pop())
		return nil

	case OpLocalGet:
		slot := f.readOperand(1)
		return vm.push(vm.stack[f.basePointer+slot])
	case OpLocalSet:
		slot := f.readOperand(1)
		v := vm.pop()
		if err := vm.checkAssign(vm.stack[f.basePointer+slot], v); err != nil {
			return err
		}
		vm.stack[f.basePointer+slot] = v
		return nil
	case OpLocalDefine:
		slot := f.readOperand(1)
		vm.stack[f.basePointer+slot] = vm.pop()
		return nil

	case OpFreeGet:
		slot := f.readOperand(1)
		return vm.push(f.closure.Free[slot])
	case OpFreeSet:
		slot := f.readOperand(1)
		v := vm.pop()
		if err := vm.checkAssign(f.closure.Free[slot], v); err != nil {
			return err
		}
		f.closure.Free[slot] = v
		return nil

	case OpApeGlobalGet:
		idx := f.readOperand(2)
		if idx < 0 || idx >= len(vm.apeGlobals) {
			return newRuntimeError(f.currentPos(), "builtin not registered")
		}
		return vm.push(vm.apeGlobals[idx])

	case OpFunctionGet:
		return vm.push(vm.gc.AllocClosure(f.closure))

	case OpThisGet:
		if len(vm.thisStack) == 0 {
			return vm.push(NullValue())
		}
		return vm.push(vm.thisStack[len(vm.thisStack)-1])

	case OpArray:
		n := f.readOperand(2)
		elems := append([]Value(nil), vm.stack[vm.sp-n:vm.sp]...)
		vm.sp -= n
		return vm.push(vm.gc.AllocArray(elems))

	case OpMapStart:
		// The map exists (empty) for the whole time its values are
		// being evaluated, sitting on the this stack so any closure
		// built among them can capture it via OpThisGet.
		f.readOperand(2)
		vm.thisStack = append(vm.thisStack, vm.gc.AllocMap(nil))
		return nil

	case OpMapEnd:
		n := f.readOperand(2)
		m := vm.thisStack[len(vm.thisStack)-1]
		vm.thisStack = vm.thisStack[:len(vm.thisStack)-1]
		body := vm.gc.Get(m)
		base := vm.sp - n*2
		for i := 0; i < n; i++ {
			key := vm.stack[base+i*2]
			if !vm.gc.Hashable(key) {
				return newRuntimeError(f.currentPos(), "map key must be a number, bool or string")
			}
			vm.gc.MapSet(body, key, vm.stack[base+i*2+1])
		}
		vm.sp = base
		return vm.push(m)

	case OpIndexGet:
		index := vm.pop()
		left := vm.pop()
		v, err := vm.indexGet(f, left, index)
		if err != nil {
			return err
		}
		return vm.push(v)

	case OpIndexSet:
		value := vm.pop()
		index := vm.pop()
		left := vm.pop()
		if err := vm.indexSet(f, left, index, value); err != nil {
			return err
		}
		return vm.push(value)

	case OpCall:
		numArgs := f.readOperand(1)
		return vm.call(f, numArgs)

	case OpReturnValue:
		vm.returnFromFrame(vm.pop())
		return nil
	case OpReturn:
		vm.returnFromFrame(NullValue())
		return nil

	case OpClosure:
		constIdx := f.readOperand(2)
		freeCount := f.readOperand(1)
		template := vm.gc.Get(vm.constants[constIdx]).Fn
		free := make([]Value, freeCount)
		for i := freeCount - 1; i >= 0; i-- {
			free[i] = vm.pop()
		}
		return vm.push(vm.gc.AllocClosure(&Closure{Fn: template.Fn, Free: free}))

	case OpForeachNext:
		target := f.readOperand(2)
		return vm.foreachNext(f, target)

	case OpSetRecoverTarget:
		target := f.readOperand(2)
		f.recoverTarget = target
		return nil

	case OpNoOp:
		return nil

	default:
		return newRuntimeError(f.currentPos(), "unknown opcode: %d", op)
	}
}

func (f *frame) readOperand(width int) int {
	v := ReadOperand(width, f.instructions(), f.ip+1)
	f.ip += width
	return v
}

func truthy(v Value) bool {
	switch {
	case v.IsBool():
		return v.AsBool()
	case v.IsNull():
		return false
	case v.IsNumber():
		return v.AsNumber() != 0
	default:
		return true
	}
}

func (vm *VM) globalAt(idx int) Value {
	if idx >= len(vm.globals) {
		return NullValue()
	}
	return vm.globals[idx]
}

func (vm *VM) setGlobal(idx int, v Value) {
	for idx >= len(vm.globals) {
		vm.globals = append(vm.globals, NullValue())
	}
	vm.globals[idx] = v
}
