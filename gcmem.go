package ember

// gcInterval is how many allocations elapse between automatic
// mark-and-sweep passes. A VM that wants a different cadence can
// force a pass directly with Collect.
const gcInterval = 128

// poolCap bounds how many freed bodies of each kind GcMem keeps
// around for reuse instead of letting the Go allocator reclaim them
// outright; this is what keeps steady-state array/map/string churn
// from re-allocating a fresh *ObjectBody on every GC cycle.
const poolCap = 2048

// Bodies bigger than these never go back to a pool: hanging onto a
// huge backing slice for the off chance a later allocation wants one
// costs more than letting the Go allocator reclaim it.
const (
	poolMaxArrayCap  = 1024
	poolMaxMapLen    = 1024
	poolMaxStringLen = 4096
)

// GcMem is a non-moving, slice-backed object arena with mark-and-sweep
// collection. Every ALLOCATED Value's payload is an index into
// objects, never a raw pointer, so the arena slice itself is the only
// thing Go's own GC needs to keep alive for the whole object graph to
// stay reachable.
type GcMem struct {
	objects []*ObjectBody
	free    []int // recycled slot indices, ready for the next Alloc

	allocCount int

	stringPool []*ObjectBody
	arrayPool  []*ObjectBody
	mapPool    []*ObjectBody
	bodyPool   []*ObjectBody // bare bodies with no kind-specific backing storage yet

	// interned guarantees two equal strings always resolve to the same
	// arena slot, so string equality and map-key lookup can both be a
	// plain Value comparison instead of a content compare.
	interned map[string]Value

	// pinned holds Values the host has explicitly exempted from
	// collection (Engine.Pin), keyed by arena index so Unpin is O(1)
	// and pinning the same Value twice doesn't need a refcount.
	pinned map[int]Value
}

func NewGcMem() *GcMem {
	return &GcMem{interned: make(map[string]Value), pinned: make(map[int]Value)}
}

// Pin exempts v from collection until Unpin is called, for values the
// host keeps a reference to outside of any VM root (a stashed result,
// an operator-overload key string). Non-allocated Values are no-ops:
// numbers, bools and null never participate in GC to begin with.
func (g *GcMem) Pin(v Value) {
	if v.IsAllocated() {
		g.pinned[v.arenaIndex()] = v
	}
}

// Unpin releases a value pinned with Pin. Unpinning a Value that was
// never pinned (or already unpinned) is a no-op.
func (g *GcMem) Unpin(v Value) {
	if v.IsAllocated() {
		delete(g.pinned, v.arenaIndex())
	}
}

// PinnedRoots returns every currently pinned Value, for callers (the
// VM) that need to fold them into a mark pass's root set.
func (g *GcMem) PinnedRoots() []Value {
	roots := make([]Value, 0, len(g.pinned))
	for _, v := range g.pinned {
		roots = append(roots, v)
	}
	return roots
}

func (g *GcMem) newBody(kind ObjectKind) *ObjectBody {
	var b *ObjectBody
	switch kind {
	case ObjString:
		b = g.takeFromPool(&g.stringPool)
	case ObjArray:
		b = g.takeFromPool(&g.arrayPool)
	case ObjMap:
		b = g.takeFromPool(&g.mapPool)
	default:
		b = g.takeFromPool(&g.bodyPool)
	}
	if b == nil {
		b = &ObjectBody{}
	}
	b.Kind = kind
	b.marked = false
	return b
}

func (g *GcMem) takeFromPool(pool *[]*ObjectBody) *ObjectBody {
	n := len(*pool)
	if n == 0 {
		return nil
	}
	b := (*pool)[n-1]
	*pool = (*pool)[:n-1]
	return b
}

func (g *GcMem) returnToPool(b *ObjectBody) {
	var pool *[]*ObjectBody
	switch b.Kind {
	case ObjString:
		if len(b.Str) > poolMaxStringLen {
			return
		}
		pool = &g.stringPool
	case ObjArray:
		if cap(b.Arr) > poolMaxArrayCap {
			return
		}
		pool = &g.arrayPool
	case ObjMap:
		if len(b.MapPairs) > poolMaxMapLen {
			return
		}
		pool = &g.mapPool
	default:
		pool = &g.bodyPool
	}
	if len(*pool) >= poolCap {
		return
	}
	// Keep the array/map backing slices (emptied) so reuse skips a
	// fresh allocation, but drop every Value they held: a pooled body
	// must not keep a stale object graph reachable.
	arr := b.Arr
	for i := range arr {
		arr[i] = Value(0)
	}
	pairs := b.MapPairs
	for i := range pairs {
		pairs[i] = MapPair{}
	}
	*b = ObjectBody{Arr: arr[:0], MapPairs: pairs[:0]}
	*pool = append(*pool, b)
}

func (g *GcMem) alloc(b *ObjectBody) Value {
	var index int
	if n := len(g.free); n > 0 {
		index = g.free[n-1]
		g.free = g.free[:n-1]
		g.objects[index] = b
	} else {
		index = len(g.objects)
		g.objects = append(g.objects, b)
	}
	g.allocCount++
	return allocatedValue(index)
}

func (g *GcMem) AllocString(s string) Value {
	if v, ok := g.interned[s]; ok {
		return v
	}
	b := g.newBody(ObjString)
	b.Str = s
	v := g.alloc(b)
	g.interned[s] = v
	return v
}

func (g *GcMem) AllocArray(elems []Value) Value {
	b := g.newBody(ObjArray)
	b.Arr = append(b.Arr[:0], elems...)
	return g.alloc(b)
}

func (g *GcMem) AllocMap(pairs []MapPair) Value {
	b := g.newBody(ObjMap)
	b.MapPairs = append(b.MapPairs[:0], pairs...)
	b.MapIndex = make(map[Value]int, len(pairs))
	for i, p := range pairs {
		b.MapIndex[p.Key] = i
	}
	return g.alloc(b)
}

func (g *GcMem) AllocClosure(cl *Closure) Value {
	b := g.newBody(ObjFunction)
	b.Fn = cl
	return g.alloc(b)
}

func (g *GcMem) AllocNative(nf *NativeFunction) Value {
	b := g.newBody(ObjNativeFunction)
	b.Native = nf
	return g.alloc(b)
}

func (g *GcMem) AllocError(e *EngineError) Value {
	b := g.newBody(ObjError)
	b.ErrVal = e
	return g.alloc(b)
}

func (g *GcMem) AllocExternal(v interface{}) Value {
	b := g.newBody(ObjExternal)
	b.ExtVal = v
	return g.alloc(b)
}

// Get dereferences an ALLOCATED Value into its backing ObjectBody.
// Calling it on a non-allocated Value is a programming error in the
// VM or compiler, so it panics rather than returning a zero value
// that would silently corrupt later reads.
func (g *GcMem) Get(v Value) *ObjectBody {
	if !v.IsAllocated() {
		panic("ember: Get called on a non-allocated Value")
	}
	return g.objects[v.arenaIndex()]
}

// MapGet looks a key up in a map object's body, returning its value
// and whether the key was present.
func (g *GcMem) MapGet(body *ObjectBody, key Value) (Value, bool) {
	if i, ok := body.MapIndex[key]; ok {
		return body.MapPairs[i].Value, true
	}
	return Value(0), false
}

// MapSet inserts or overwrites a key in a map object's body.
func (g *GcMem) MapSet(body *ObjectBody, key, value Value) {
	if i, ok := body.MapIndex[key]; ok {
		body.MapPairs[i].Value = value
		return
	}
	body.MapIndex[key] = len(body.MapPairs)
	body.MapPairs = append(body.MapPairs, MapPair{Key: key, Value: value})
}

// Hashable reports whether v is allowed as a map key: numbers, bools
// and strings are; null, arrays, maps, functions and every other
// allocated kind are not.
func (g *GcMem) Hashable(v Value) bool {
	if v.IsNumber() || v.IsBool() {
		return true
	}
	if v.IsAllocated() {
		return g.Get(v).Kind == ObjString
	}
	return false
}

// Compare orders two Values: the result's sign is the ordering, zero
// means equal. Numbers, bools and null compare numerically (null
// counts as 0); strings compare lexicographically; allocated objects
// of the same kind fall back to arena-slot order, which is stable for
// an object's lifetime. Heterogeneous operands are not comparable.
func (g *GcMem) Compare(a, b Value) (float64, bool) {
	an, aNum := numericWeight(a)
	bn, bNum := numericWeight(b)
	if aNum && bNum {
		return an - bn, true
	}
	if !a.IsAllocated() || !b.IsAllocated() {
		return 0, false
	}
	ab, bb := g.Get(a), g.Get(b)
	if ab.Kind != bb.Kind {
		return 0, false
	}
	if ab.Kind == ObjString {
		switch {
		case ab.Str < bb.Str:
			return -1, true
		case ab.Str > bb.Str:
			return 1, true
		default:
			return 0, true
		}
	}
	return float64(a.arenaIndex() - b.arenaIndex()), true
}

func numericWeight(v Value) (float64, bool) {
	switch {
	case v.IsNumber():
		return v.AsNumber(), true
	case v.IsBool():
		if v.AsBool() {
			return 1, true
		}
		return 0, true
	case v.IsNull():
		return 0, true
	}
	return 0, false
}

// DeepCopy clones v: arrays and maps copy their contents recursively,
// strings are shared (they are immutable and interned), and every
// other kind copies by reference the way the embedding API's
// deep-copy contract does for functions and externals.
func (g *GcMem) DeepCopy(v Value) Value {
	if !v.IsAllocated() {
		return v
	}
	body := g.Get(v)
	switch body.Kind {
	case ObjArray:
		elems := make([]Value, len(body.Arr))
		src := body.Arr
		out := g.AllocArray(elems)
		dst := g.Get(out)
		for i, el := range src {
			dst.Arr[i] = g.DeepCopy(el)
		}
		return out
	case ObjMap:
		src := body.MapPairs
		out := g.AllocMap(nil)
		dst := g.Get(out)
		for _, p := range src {
			g.MapSet(dst, p.Key, g.DeepCopy(p.Value))
		}
		return out
	default:
		return v
	}
}

// ShouldCollect reports whether enough allocations have happened
// since the last collection to run another pass.
func (g *GcMem) ShouldCollect() bool {
	return g.allocCount >= gcInterval
}

// Collect runs one mark-and-sweep pass, keeping alive anything
// transitively reachable from roots (the VM's operand stack, frame
// locals, globals, and the this-stack).
func (g *GcMem) Collect(roots []Value) {
	g.allocCount = 0
	g.mark(roots)
	g.sweep()
}

func (g *GcMem) mark(roots []Value) {
	stack := make([]Value, 0, len(roots))
	stack = append(stack, roots...)

	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !v.IsAllocated() {
			continue
		}
		idx := v.arenaIndex()
		if idx < 0 || idx >= len(g.objects) || g.objects[idx] == nil {
			continue
		}
		body := g.objects[idx]
		if body.marked {
			continue
		}
		body.marked = true

		switch body.Kind {
		case ObjArray:
			stack = append(stack, body.Arr...)
		case ObjMap:
			for _, p := range body.MapPairs {
				stack = append(stack, p.Key, p.Value)
			}
		case ObjFunction:
			if body.Fn != nil {
				stack = append(stack, body.Fn.Free...)
			}
		}
	}
}

func (g *GcMem) sweep() {
	for i, body := range g.objects {
		if body == nil {
			continue
		}
		if body.marked {
			body.marked = false
			continue
		}
		if body.Kind == ObjString {
			delete(g.interned, body.Str)
		}
		g.returnToPool(body)
		g.objects[i] = nil
		g.free = append(g.free, i)
	}
}

// Len reports how many live slots (allocated, not yet swept) the
// arena currently holds. Mostly useful for tests and diagnostics.
func (g *GcMem) Len() int {
	n := 0
	for _, b := range g.objects {
		if b != nil {
			n++
		}
	}
	return n
}
