package ember

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGcMemCollectsUnreachableStrings(t *testing.T) {
	g := NewGcMem()
	kept := g.AllocString("kept")
	_ = g.AllocString("garbage")

	assert.Equal(t, 2, g.Len())
	g.Collect([]Value{kept})
	assert.Equal(t, 1, g.Len())

	body := g.Get(kept)
	assert.Equal(t, "kept", body.Str)
}

func TestGcMemKeepsArrayElementsReachable(t *testing.T) {
	g := NewGcMem()
	inner := g.AllocString("inside")
	arr := g.AllocArray([]Value{inner, NumberValue(1)})

	g.Collect([]Value{arr})
	assert.Equal(t, 2, g.Len(), "array + its string element must both survive")

	body := g.Get(arr)
	require.Len(t, body.Arr, 2)
}

func TestGcMemRecyclesFreedSlots(t *testing.T) {
	g := NewGcMem()
	first := g.AllocString("a")
	g.Collect(nil) // nothing reachable, first is swept
	assert.Equal(t, 0, g.Len())

	second := g.AllocString("b")
	assert.Equal(t, first.arenaIndex(), second.arenaIndex(), "freed slots should be reused before growing the arena")
}

func TestGcMemMapValuesStayReachable(t *testing.T) {
	g := NewGcMem()
	keyStr := g.AllocString("k")
	valStr := g.AllocString("v")
	m := g.AllocMap([]MapPair{{Key: keyStr, Value: valStr}})

	g.Collect([]Value{m})
	assert.Equal(t, 3, g.Len())

	body := g.Get(m)
	got, ok := g.MapGet(body, keyStr)
	require.True(t, ok)
	assert.Equal(t, valStr, got)
}

func TestGcMemClosureFreeVarsStayReachable(t *testing.T) {
	g := NewGcMem()
	captured := g.AllocString("captured")
	cl := &Closure{Fn: &CompiledFunction{Name: "f"}, Free: []Value{captured}}
	closureVal := g.AllocClosure(cl)

	g.Collect([]Value{closureVal})
	assert.Equal(t, 2, g.Len())
}

func TestGcMemShouldCollectEveryInterval(t *testing.T) {
	g := NewGcMem()
	for i := 0; i < gcInterval-1; i++ {
		g.AllocString("x" + strconv.Itoa(i))
		assert.False(t, g.ShouldCollect())
	}
	g.AllocString("last")
	assert.True(t, g.ShouldCollect())

	g.Collect(nil)
	assert.False(t, g.ShouldCollect(), "a collection resets the allocation counter")
}

func TestGcMemCompareOrdersValues(t *testing.T) {
	g := NewGcMem()

	cmp, ok := g.Compare(NumberValue(3), NumberValue(5))
	require.True(t, ok)
	assert.Negative(t, cmp)

	cmp, ok = g.Compare(g.AllocString("abc"), g.AllocString("abd"))
	require.True(t, ok)
	assert.Negative(t, cmp)

	cmp, ok = g.Compare(BoolValue(true), NumberValue(1))
	require.True(t, ok)
	assert.Zero(t, cmp)

	_, ok = g.Compare(NumberValue(1), g.AllocString("1"))
	assert.False(t, ok, "heterogeneous comparison must fail")
}

func TestGcMemDeepCopyIsolatesMutations(t *testing.T) {
	g := NewGcMem()
	inner := g.AllocArray([]Value{NumberValue(1)})
	original := g.AllocMap([]MapPair{{Key: g.AllocString("xs"), Value: inner}})

	clone := g.DeepCopy(original)
	require.NotEqual(t, original, clone)

	cloneInner, ok := g.MapGet(g.Get(clone), g.AllocString("xs"))
	require.True(t, ok)
	g.Get(cloneInner).Arr[0] = NumberValue(99)

	assert.Equal(t, float64(1), g.Get(inner).Arr[0].AsNumber(), "mutating the copy must not touch the original")
}

func TestGcMemStringHashIsCachedDjb2(t *testing.T) {
	g := NewGcMem()
	body := g.Get(g.AllocString("ember"))

	var want uint32 = 5381
	for _, c := range []byte("ember") {
		want = want*33 + uint32(c)
	}
	assert.Equal(t, want, body.Hash())
	assert.Equal(t, want, body.Hash(), "second call returns the cached value")
}

func TestGcMemHashable(t *testing.T) {
	g := NewGcMem()
	assert.True(t, g.Hashable(NumberValue(1)))
	assert.True(t, g.Hashable(BoolValue(false)))
	assert.True(t, g.Hashable(g.AllocString("k")))
	assert.False(t, g.Hashable(NullValue()))
	assert.False(t, g.Hashable(g.AllocArray(nil)))
}
