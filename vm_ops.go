package ember

import "math"

// execBinary handles every two-operand opcode: numeric arithmetic and
// comparison directly, "+" string concatenation as a special case,
// and everything else by looking for a `__operator_*__` overload on a
// map operand before giving up with a runtime error.
func (vm *VM) execBinary(op Opcode) error {
	right := vm.pop()
	left := vm.pop()
	f := vm.currentFrame()

	if left.IsNumber() && right.IsNumber() {
		return vm.push(numericBinary(op, left.AsNumber(), right.AsNumber()))
	}

	// "+" with a string on either side stringifies the other operand,
	// so `"got " + n` works without an explicit conversion builtin.
	if op == OpAdd && (isStringValue(vm.gc, left) || isStringValue(vm.gc, right)) {
		concat := vm.stringify(left) + vm.stringify(right)
		return vm.push(vm.gc.AllocString(concat))
	}

	if op == OpEqual || op == OpNotEqual {
		eq := vm.valuesEqual(left, right)
		if op == OpNotEqual {
			eq = !eq
		}
		return vm.push(BoolValue(eq))
	}

	if op == OpGreaterThan || op == OpGreaterOrEqual {
		if cmp, ok := vm.gc.Compare(left, right); ok {
			if op == OpGreaterThan {
				return vm.push(BoolValue(cmp > 0))
			}
			return vm.push(BoolValue(cmp >= 0))
		}
	}

	if name, ok := overloadOperators[op]; ok {
		if result, handled, err := vm.tryOperatorOverload(f, name, left, right); handled {
			if err != nil {
				return err
			}
			return vm.push(result)
		}
	}

	return newRuntimeError(f.currentPos(), "unsupported operand types for %s", op.Name())
}

func numericBinary(op Opcode, l, r float64) Value {
	switch op {
	case OpAdd:
		return NumberValue(l + r)
	case OpSub:
		return NumberValue(l - r)
	case OpMul:
		return NumberValue(l * r)
	case OpDiv:
		return NumberValue(l / r)
	case OpMod:
		return NumberValue(math.Mod(l, r))
	case OpBitAnd:
		return NumberValue(float64(int64(l) & int64(r)))
	case OpBitOr:
		return NumberValue(float64(int64(l) | int64(r)))
	case OpBitXor:
		return NumberValue(float64(int64(l) ^ int64(r)))
	case OpShiftLeft:
		return NumberValue(float64(int64(l) << uint(int64(r))))
	case OpShiftRight:
		return NumberValue(float64(int64(l) >> uint(int64(r))))
	case OpEqual:
		return BoolValue(numbersEqual(l, r))
	case OpNotEqual:
		return BoolValue(!numbersEqual(l, r))
	case OpGreaterThan:
		return BoolValue(l > r)
	case OpGreaterOrEqual:
		return BoolValue(l >= r)
	}
	return NullValue()
}

func (vm *VM) execUnary(op Opcode) error {
	v := vm.pop()
	f := vm.currentFrame()
	switch op {
	case OpMinus:
		if !v.IsNumber() {
			return newRuntimeError(f.currentPos(), "unary - expects a number")
		}
		return vm.push(NumberValue(-v.AsNumber()))
	case OpBang:
		return vm.push(BoolValue(!truthy(v)))
	case OpBitNot:
		if !v.IsNumber() {
			return newRuntimeError(f.currentPos(), "unary ~ expects a number")
		}
		return vm.push(NumberValue(float64(^int64(v.AsNumber()))))
	}
	return newRuntimeError(f.currentPos(), "unknown unary opcode: %s", op.Name())
}

func isStringValue(gc *GcMem, v Value) bool {
	return v.IsAllocated() && gc.Get(v).Kind == ObjString
}

// valuesEqual relies on GcMem interning every string through the same
// map, which makes content-equal strings identity-equal too; arrays
// and maps therefore compare by identity like everything else
// allocated, never deep-compared.
func (vm *VM) valuesEqual(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		return numbersEqual(a.AsNumber(), b.AsNumber())
	}
	if a.IsBool() && b.IsBool() {
		return a.AsBool() == b.AsBool()
	}
	if a.IsNull() && b.IsNull() {
		return true
	}
	return a == b
}

// stringify renders a value for "+"-concatenation with a string:
// strings contribute their raw bytes (no quoting), everything else
// formats the way Inspect renders it.
func (vm *VM) stringify(v Value) string {
	if isStringValue(vm.gc, v) {
		return vm.gc.Get(v).Str
	}
	return Inspect(vm.gc, v)
}

// tryOperatorOverload looks for name on whichever operand is a map,
// preferring the left operand, and calls it as a plain two-argument
// function. handled is false when neither operand carries the key, in
// which case the caller should fall through to its own error.
func (vm *VM) tryOperatorOverload(f *frame, name string, left, right Value) (Value, bool, error) {
	for _, candidate := range [2]Value{left, right} {
		if !candidate.IsAllocated() {
			continue
		}
		body := vm.gc.Get(candidate)
		if body.Kind != ObjMap {
			continue
		}
		key := vm.gc.AllocString(name)
		fnVal, ok := vm.gc.MapGet(body, key)
		if !ok {
			continue
		}
		result, err := vm.invoke(fnVal, []Value{left, right})
		return result, true, err
	}
	return Value(0), false, nil
}

func (vm *VM) indexGet(f *frame, left, index Value) (Value, error) {
	if !left.IsAllocated() {
		return Value(0), newRuntimeError(f.currentPos(), "%s is not indexable", typeName(left))
	}
	body := vm.gc.Get(left)
	switch body.Kind {
	case ObjArray:
		if !index.IsNumber() {
			return Value(0), newRuntimeError(f.currentPos(), "array index must be a number")
		}
		i := int(index.AsNumber())
		if i < 0 || i >= len(body.Arr) {
			return Value(0), newRuntimeError(f.currentPos(), "array index out of range: %d", i)
		}
		return body.Arr[i], nil
	case ObjMap:
		if v, ok := vm.gc.MapGet(body, index); ok {
			return v, nil
		}
		return NullValue(), nil
	case ObjString:
		if !index.IsNumber() {
			return Value(0), newRuntimeError(f.currentPos(), "string index must be a number")
		}
		runes := []rune(body.Str)
		i := int(index.AsNumber())
		if i < 0 || i >= len(runes) {
			return Value(0), newRuntimeError(f.currentPos(), "string index out of range: %d", i)
		}
		return vm.gc.AllocString(string(runes[i])), nil
	case ObjError:
		if !isStringValue(vm.gc, index) {
			return Value(0), newRuntimeError(f.currentPos(), "error field must be a string")
		}
		switch vm.gc.Get(index).Str {
		case "message":
			return vm.gc.AllocString(body.ErrVal.Message), nil
		case "type":
			return vm.gc.AllocString(body.ErrVal.Type.String()), nil
		default:
			return NullValue(), nil
		}
	default:
		return Value(0), newRuntimeError(f.currentPos(), "%s is not indexable", body.Kind)
	}
}

func (vm *VM) indexSet(f *frame, left, index, value Value) error {
	if !left.IsAllocated() {
		return newRuntimeError(f.currentPos(), "%s is not indexable", typeName(left))
	}
	body := vm.gc.Get(left)
	switch body.Kind {
	case ObjArray:
		if !index.IsNumber() {
			return newRuntimeError(f.currentPos(), "array index must be a number")
		}
		i := int(index.AsNumber())
		if i < 0 || i >= len(body.Arr) {
			return newRuntimeError(f.currentPos(), "array index out of range: %d", i)
		}
		body.Arr[i] = value
		return nil
	case ObjMap:
		if !vm.gc.Hashable(index) {
			return newRuntimeError(f.currentPos(), "map key must be a number, bool or string")
		}
		vm.gc.MapSet(body, index, value)
		return nil
	default:
		return newRuntimeError(f.currentPos(), "%s does not support index assignment", body.Kind)
	}
}

func typeName(v Value) string {
	switch {
	case v.IsNumber():
		return "NUMBER"
	case v.IsBool():
		return "BOOL"
	case v.IsNull():
		return "NULL"
	default:
		return "NONE"
	}
}

// foreachNext implements the [iterable, index] loop convention VisitForeach
// compiles: pop index, peek (don't pop) iterable, and either push back
// [index+1, element] to keep looping or pop iterable too and jump to
// target once exhausted.
func (vm *VM) foreachNext(f *frame, target int) error {
	index := vm.pop()
	iterable := vm.peek(0)
	i := int(index.AsNumber())

	if !iterable.IsAllocated() {
		return newRuntimeError(f.currentPos(), "%s is not iterable", typeName(iterable))
	}
	body := vm.gc.Get(iterable)

	var length int
	var element Value
	switch body.Kind {
	case ObjArray:
		length = len(body.Arr)
		if i < length {
			element = body.Arr[i]
		}
	case ObjMap:
		length = len(body.MapPairs)
		if i < length {
			element = body.MapPairs[i].Key
		}
	default:
		return newRuntimeError(f.currentPos(), "%s is not iterable", body.Kind)
	}

	if i >= length {
		vm.pop() // drop the iterable; loop exhausted
		f.ip = target - 1
		return nil
	}
	if err := vm.push(NumberValue(float64(i + 1))); err != nil {
		return err
	}
	return vm.push(element)
}

// call implements OpCall. `this` plays no part in the calling
// convention: a method literal that needs its map captured it as a
// free variable when the closure was built during map construction.
func (vm *VM) call(f *frame, numArgs int) error {
	args := append([]Value(nil), vm.stack[vm.sp-numArgs:vm.sp]...)
	vm.sp -= numArgs

	callee := vm.pop()

	if !callee.IsAllocated() {
		return newRuntimeError(f.currentPos(), "%s is not callable", typeName(callee))
	}
	body := vm.gc.Get(callee)

	switch body.Kind {
	case ObjNativeFunction:
		result, err := body.Native.Fn(vm, args)
		if err != nil {
			if ee, ok := err.(*EngineError); ok {
				return ee
			}
			return newRuntimeError(f.currentPos(), "%s", err.Error())
		}
		return vm.push(result)

	case ObjFunction:
		cl := body.Fn
		if len(args) != cl.Fn.NumParameters {
			return newRuntimeError(f.currentPos(), "expected %d arguments, got %d", cl.Fn.NumParameters, len(args))
		}
		basePointer := vm.sp
		for _, a := range args {
			if err := vm.push(a); err != nil {
				return err
			}
		}
		for i := len(args); i < cl.Fn.NumLocals; i++ {
			if err := vm.push(NullValue()); err != nil {
				return err
			}
		}
		return vm.pushFrame(newFrame(cl, basePointer, len(vm.thisStack)))

	default:
		return newRuntimeError(f.currentPos(), "%s is not callable", body.Kind)
	}
}

// invoke runs a callable Value to completion and returns its result,
// used by operator-overload dispatch and by the host-facing Engine.Call
// API rather than the bytecode dispatch loop. It reenters runUntil on a
// nested frame and unwinds back out once that frame returns.
func (vm *VM) invoke(callee Value, args []Value) (Value, error) {
	if !callee.IsAllocated() {
		return Value(0), newRuntimeError(vm.currentFrame().currentPos(), "%s is not callable", typeName(callee))
	}
	body := vm.gc.Get(callee)
	if body.Kind == ObjNativeFunction {
		return body.Native.Fn(vm, args)
	}
	if body.Kind != ObjFunction {
		return Value(0), newRuntimeError(vm.currentFrame().currentPos(), "%s is not callable", body.Kind)
	}

	cl := body.Fn
	if len(args) != cl.Fn.NumParameters {
		return Value(0), newRuntimeError(vm.currentFrame().currentPos(), "expected %d arguments, got %d", cl.Fn.NumParameters, len(args))
	}
	basePointer := vm.sp
	for _, a := range args {
		if err := vm.push(a); err != nil {
			return Value(0), err
		}
	}
	for i := len(args); i < cl.Fn.NumLocals; i++ {
		if err := vm.push(NullValue()); err != nil {
			return Value(0), err
		}
	}
	targetDepth := vm.frameIndex
	if err := vm.pushFrame(newFrame(cl, basePointer, len(vm.thisStack))); err != nil {
		return Value(0), err
	}

	if err := vm.runUntil(targetDepth, true); err != nil {
		return Value(0), err
	}
	return vm.pop(), nil
}

// checkAssign enforces type-stable reassignment: once a variable
// holds a value, it can only be reassigned a value of the same type,
// with null acting as a wildcard on either side. Fresh bindings
// (DEFINE opcodes) are exempt.
func (vm *VM) checkAssign(oldValue, newValue Value) error {
	if oldValue.IsNull() || newValue.IsNull() {
		return nil
	}
	oldType, newType := vm.typeLabel(oldValue), vm.typeLabel(newValue)
	if oldType != newType {
		return newRuntimeError(vm.currentFrame().currentPos(), "trying to assign variable of type %s to %s", newType, oldType)
	}
	return nil
}

func (vm *VM) typeLabel(v Value) string {
	if v.IsAllocated() {
		return vm.gc.Get(v).Kind.String()
	}
	return typeName(v)
}
