package ember

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runProgram(t *testing.T, src string) (Value, *VM) {
	t.Helper()
	p := NewParser(NewLexer("test.em", src))
	program, err := p.ParseProgram()
	require.NoError(t, err)
	program = Optimise(program)

	gc := NewGcMem()
	cfg := NewConfig()
	cfg.SetBool("vm.repl_mode", true)
	comp := NewCompiler(gc, NewSymbolTable(), cfg)
	bc, err := comp.CompileProgram(program)
	require.NoError(t, err)

	vm := NewVM(bc, gc, cfg, nil)
	require.NoError(t, vm.Run())
	return vm.LastValue(), vm
}

func TestVMArithmetic(t *testing.T) {
	v, _ := runProgram(t, "1 + 2 * 3;")
	require.True(t, v.IsNumber())
	assert.Equal(t, float64(7), v.AsNumber())
}

func TestVMStringConcat(t *testing.T) {
	v, vm := runProgram(t, `"hello " + "world";`)
	require.True(t, v.IsAllocated())
	assert.Equal(t, "hello world", vm.gc.Get(v).Str)
}

func TestVMVariablesAndAssignment(t *testing.T) {
	v, _ := runProgram(t, `
		var x = 10;
		x = x + 5;
		x;
	`)
	assert.Equal(t, float64(15), v.AsNumber())
}

func TestVMWhileLoopAndBreak(t *testing.T) {
	v, _ := runProgram(t, `
		var i = 0;
		var sum = 0;
		while (true) {
			if (i >= 5) { break; }
			sum = sum + i;
			i = i + 1;
		}
		sum;
	`)
	assert.Equal(t, float64(0+1+2+3+4), v.AsNumber())
}

func TestVMForLoop(t *testing.T) {
	v, _ := runProgram(t, `
		var sum = 0;
		for (var i = 0; i < 10; i++) {
			if (i == 3) { continue; }
			sum += i;
		}
		sum;
	`)
	expected := 0
	for i := 0; i < 10; i++ {
		if i == 3 {
			continue
		}
		expected += i
	}
	assert.Equal(t, float64(expected), v.AsNumber())
}

func TestVMForeachArray(t *testing.T) {
	v, _ := runProgram(t, `
		var sum = 0;
		for (x in [1, 2, 3, 4]) {
			sum = sum + x;
		}
		sum;
	`)
	assert.Equal(t, float64(10), v.AsNumber())
}

func TestVMForeachBreak(t *testing.T) {
	v, _ := runProgram(t, `
		var seen = 0;
		for (x in [1, 2, 3, 4, 5]) {
			if (x == 3) { break; }
			seen = seen + 1;
		}
		seen;
	`)
	assert.Equal(t, float64(2), v.AsNumber())
}

func TestVMRecursiveFunction(t *testing.T) {
	v, _ := runProgram(t, `
		const fib = fn fib(n) {
			if (n < 2) { return n; }
			return fib(n - 1) + fib(n - 2);
		};
		fib(10);
	`)
	assert.Equal(t, float64(55), v.AsNumber())
}

func TestVMClosureCapturesFreeVariable(t *testing.T) {
	v, _ := runProgram(t, `
		const makeAdder = fn(base) {
			return fn(n) { return base + n; };
		};
		const addFive = makeAdder(5);
		addFive(10);
	`)
	assert.Equal(t, float64(15), v.AsNumber())
}

func TestVMArrayIndexGetAndSet(t *testing.T) {
	v, _ := runProgram(t, `
		var arr = [1, 2, 3];
		arr[1] = 99;
		arr[1];
	`)
	assert.Equal(t, float64(99), v.AsNumber())
}

func TestVMMapAccess(t *testing.T) {
	v, vm := runProgram(t, `
		var m = {name: "ember", version: 1};
		m["name"];
	`)
	require.True(t, v.IsAllocated())
	assert.Equal(t, "ember", vm.gc.Get(v).Str)
}

func TestVMMapMethodCallBindsThis(t *testing.T) {
	v, _ := runProgram(t, `
		var counter = {count: 0, bump: fn() { return this["count"] + 1; }};
		counter.bump();
	`)
	assert.Equal(t, float64(1), v.AsNumber())
}

func TestVMThisIsCapturedAtConstructionNotAtCall(t *testing.T) {
	// `this` binds once, when the closure is created during its map
	// literal's construction. Moving the function value into another
	// map and calling it from there must not rebind it.
	v, vm := runProgram(t, `
		const a = {f: fn() { return this.tag; }, tag: "a"};
		const b = {f: a["f"], tag: "b"};
		b["f"]();
	`)
	require.True(t, v.IsAllocated())
	assert.Equal(t, "a", vm.gc.Get(v).Str)
}

func TestVMThisOutsideAMapLiteralIsNull(t *testing.T) {
	v, _ := runProgram(t, `
		const f = fn() { return this; };
		f();
	`)
	assert.True(t, v.IsNull())
}

func TestVMThisSurvivesNestedMapConstruction(t *testing.T) {
	v, vm := runProgram(t, `
		const outer = {
			tag: "outer",
			inner: {tag: "inner", f: fn() { return this.tag; }},
			g: fn() { return this.tag; }
		};
		outer.inner.f() + ":" + outer.g();
	`)
	require.True(t, v.IsAllocated())
	assert.Equal(t, "inner:outer", vm.gc.Get(v).Str)
}

func TestVMConstReassignmentIsCompileError(t *testing.T) {
	p := NewParser(NewLexer("test.em", "const x = 1; x = 2;"))
	program, err := p.ParseProgram()
	require.NoError(t, err)

	comp := NewCompiler(NewGcMem(), NewSymbolTable(), NewConfig())
	_, err = comp.CompileProgram(program)
	require.Error(t, err)
	assert.Contains(t, err.(*EngineError).Message, "not assignable")
}

func TestVMTypeChangingReassignmentIsRuntimeError(t *testing.T) {
	p := NewParser(NewLexer("test.em", `var x = 1; x = "s";`))
	program, err := p.ParseProgram()
	require.NoError(t, err)

	gc := NewGcMem()
	cfg := NewConfig()
	comp := NewCompiler(gc, NewSymbolTable(), cfg)
	bc, err := comp.CompileProgram(program)
	require.NoError(t, err)

	vm := NewVM(bc, gc, cfg, nil)
	err = vm.Run()
	require.Error(t, err)
	ee := err.(*EngineError)
	assert.Equal(t, ErrorRuntime, ee.Type)
	assert.Contains(t, ee.Message, "assign")
}

func TestVMNullIsAWildcardForReassignment(t *testing.T) {
	v, _ := runProgram(t, `
		var x = null;
		x = 1;
		x = null;
		x = "now a string";
		x = null;
		x;
	`)
	assert.True(t, v.IsNull())
}

func TestVMRedefinitionIsExemptFromTypeCheck(t *testing.T) {
	// Each foreach iteration re-runs the iterator's DEFINE, so a
	// heterogeneous source must not trip the reassignment type check.
	v, _ := runProgram(t, `
		var last = null;
		for (x in [1, "two", true]) {
			last = null;
			last = x;
		}
		last;
	`)
	require.True(t, v.IsBool())
	assert.True(t, v.AsBool())
}

func TestVMTernary(t *testing.T) {
	v, _ := runProgram(t, `
		var x = 5;
		x > 3 ? "big" : "small";
	`)
	require.True(t, v.IsAllocated())
}

func TestVMRecoverCatchesRuntimeError(t *testing.T) {
	v, _ := runProgram(t, `
		const run = fn() {
			recover (err) {
				return -1;
			}
			var arr = [1, 2, 3];
			arr[10];
			return 1;
		};
		run();
	`)
	assert.Equal(t, float64(-1), v.AsNumber())
}

func TestVMRecoverLetsProtectedCodeRunToCompletionWhenNoErrorOccurs(t *testing.T) {
	v, _ := runProgram(t, `
		const run = fn() {
			recover (err) {
				return -1;
			}
			return 1;
		};
		run();
	`)
	assert.Equal(t, float64(1), v.AsNumber())
}

func TestVMDivisionByZeroYieldsInfinity(t *testing.T) {
	v, _ := runProgram(t, "1 / 0;")
	require.True(t, v.IsNumber())
	assert.True(t, math.IsInf(v.AsNumber(), 1))
}

func TestVMLastPoppedSurvivesWithoutReplMode(t *testing.T) {
	p := NewParser(NewLexer("test.em", "1 + 2 * 3;"))
	program, err := p.ParseProgram()
	require.NoError(t, err)

	gc := NewGcMem()
	cfg := NewConfig() // repl mode off: the trailing expression is popped
	comp := NewCompiler(gc, NewSymbolTable(), cfg)
	bc, err := comp.CompileProgram(program)
	require.NoError(t, err)

	vm := NewVM(bc, gc, cfg, nil)
	require.NoError(t, vm.Run())
	assert.Equal(t, float64(7), vm.LastValue().AsNumber())
}

func TestVMTemplateStringInterpolation(t *testing.T) {
	v, vm := runProgram(t, "var name = \"world\"; `hello ${name}!`;")
	require.True(t, v.IsAllocated())
	assert.Equal(t, "hello world!", vm.gc.Get(v).Str)
}

func TestVMTemplateStringMultipleInterpolations(t *testing.T) {
	v, vm := runProgram(t, "`${1 + 1} and ${2 * 2}`;")
	require.True(t, v.IsAllocated())
	assert.Equal(t, "2 and 4", vm.gc.Get(v).Str)
}

func TestVMStringComparesLexicographically(t *testing.T) {
	v, _ := runProgram(t, `"abc" < "abd";`)
	require.True(t, v.IsBool())
	assert.True(t, v.AsBool())
}

func TestVMStringNumberConcatenation(t *testing.T) {
	v, vm := runProgram(t, `"answer: " + 42;`)
	require.True(t, v.IsAllocated())
	assert.Equal(t, "answer: 42", vm.gc.Get(v).Str)
}

func TestVMForLoopWithAllClausesOmitted(t *testing.T) {
	v, _ := runProgram(t, `
		var i = 0;
		for (;;) {
			i = i + 1;
			if (i == 4) { break; }
		}
		i;
	`)
	assert.Equal(t, float64(4), v.AsNumber())
}

func TestVMIfBranchEndingInLoopKeepsStackBalanced(t *testing.T) {
	v, _ := runProgram(t, `
		var n = 0;
		if (true) {
			while (n < 3) { n = n + 1; }
		}
		n;
	`)
	assert.Equal(t, float64(3), v.AsNumber())
}

func TestVMPostfixIncrementEvaluatesToOldValue(t *testing.T) {
	v, _ := runProgram(t, `
		var x = 5;
		var old = x++;
		old * 10 + x;
	`)
	assert.Equal(t, float64(56), v.AsNumber())
}

func TestVMOperatorOverloadOnMap(t *testing.T) {
	v, _ := runProgram(t, `
		const vec = fn(x) {
			return {x: x, __operator_add__: fn(a, b) { return a["x"] + b["x"]; }};
		};
		vec(2) + vec(3);
	`)
	assert.Equal(t, float64(5), v.AsNumber())
}

func TestVMUnhashableMapKeyIsRuntimeError(t *testing.T) {
	p := NewParser(NewLexer("test.em", "var m = {}; m[[1]] = 2;"))
	program, err := p.ParseProgram()
	require.NoError(t, err)

	gc := NewGcMem()
	cfg := NewConfig()
	comp := NewCompiler(gc, NewSymbolTable(), cfg)
	bc, err := comp.CompileProgram(program)
	require.NoError(t, err)

	vm := NewVM(bc, gc, cfg, nil)
	err = vm.Run()
	require.Error(t, err)
	assert.Equal(t, ErrorRuntime, err.(*EngineError).Type)
}

func TestVMStackOverflowOnRunawayRecursion(t *testing.T) {
	p := NewParser(NewLexer("test.em", "const f = fn f() { return f(); }; f();"))
	program, err := p.ParseProgram()
	require.NoError(t, err)

	gc := NewGcMem()
	cfg := NewConfig()
	comp := NewCompiler(gc, NewSymbolTable(), cfg)
	bc, err := comp.CompileProgram(program)
	require.NoError(t, err)

	vm := NewVM(bc, gc, cfg, nil)
	err = vm.Run()
	require.Error(t, err)
	assert.Equal(t, ErrorRuntime, err.(*EngineError).Type)
}

func TestVMRecoverPreservesFrameParameters(t *testing.T) {
	v, _ := runProgram(t, `
		const run = fn(n) {
			recover (err) {
				return n * 10;
			}
			var arr = [];
			arr[5];
			return 0;
		};
		run(7);
	`)
	assert.Equal(t, float64(70), v.AsNumber())
}

func TestVMUncaughtErrorCarriesTraceback(t *testing.T) {
	p := NewParser(NewLexer("test.em", `
		const inner = fn inner() { var a = []; return a[3]; };
		const outer = fn outer() { return inner(); };
		outer();
	`))
	program, err := p.ParseProgram()
	require.NoError(t, err)

	gc := NewGcMem()
	cfg := NewConfig()
	comp := NewCompiler(gc, NewSymbolTable(), cfg)
	bc, err := comp.CompileProgram(program)
	require.NoError(t, err)

	vm := NewVM(bc, gc, cfg, nil)
	err = vm.Run()
	require.Error(t, err)

	ee := err.(*EngineError)
	require.NotNil(t, ee.Traceback)
	require.GreaterOrEqual(t, len(ee.Traceback.Items), 3)
	assert.Equal(t, "inner", ee.Traceback.Items[0].FunctionName)
	assert.Equal(t, "outer", ee.Traceback.Items[1].FunctionName)
}

func TestVMGCReclaimsUnreachableStrings(t *testing.T) {
	_, vm := runProgram(t, `
		var i = 0;
		while (i < 300) {
			var s = "garbage" + i;
			i = i + 1;
		}
		i;
	`)
	assert.Less(t, vm.gc.Len(), 300)
}
