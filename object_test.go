package ember

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueNumberRoundTrip(t *testing.T) {
	for _, f := range []float64{0, 1, -1, 3.14159, -3.14159, 1e300, -1e-300} {
		v := NumberValue(f)
		require_IsNumber(t, v)
		assert.Equal(t, f, v.AsNumber())
	}
}

func require_IsNumber(t *testing.T, v Value) {
	t.Helper()
	assert.True(t, v.IsNumber())
	assert.False(t, v.IsBool())
	assert.False(t, v.IsNull())
	assert.False(t, v.IsAllocated())
}

func TestValueBoolAndNull(t *testing.T) {
	assert.True(t, BoolValue(true).IsBool())
	assert.True(t, BoolValue(true).AsBool())
	assert.False(t, BoolValue(false).AsBool())
	assert.True(t, NullValue().IsNull())
	assert.True(t, NoneValue().IsNone())
}

func TestValueNaNIsCanonicalized(t *testing.T) {
	v := NumberValue(math.NaN())
	// A canonicalized NaN is still a number: its bit pattern lies
	// outside every tag pattern, so it is never mistaken for NONE.
	assert.True(t, v.IsNumber())
	assert.True(t, math.IsNaN(v.AsNumber()))
}

func TestNumbersEqualUsesEpsilon(t *testing.T) {
	assert.True(t, numbersEqual(1.0, 1.0))
	assert.True(t, numbersEqual(0.1+0.2, 0.3), "accumulation noise below epsilon still compares equal")
	assert.False(t, numbersEqual(1.0, 1.0000001))
}

func TestValueAllocatedRoundTripsThroughGcMem(t *testing.T) {
	g := NewGcMem()
	v := g.AllocString("hello")
	assert.True(t, v.IsAllocated())
	body := g.Get(v)
	assert.Equal(t, ObjString, body.Kind)
	assert.Equal(t, "hello", body.Str)
}
