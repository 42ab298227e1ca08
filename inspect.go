package ember

import (
	"strconv"
	"strings"
)

// Inspect renders v as a script author would recognise it: used by
// the REPL to print a line's result and by native functions like a
// hypothetical `print` builtin. It is not the VM's string-conversion
// operator (`String(v)` would need a GcMem call to allocate a new
// string object); this is purely a host-side formatting helper.
func Inspect(gc *GcMem, v Value) string {
	switch {
	case v.IsNull():
		return "null"
	case v.IsNone():
		return "none"
	case v.IsBool():
		if v.AsBool() {
			return "true"
		}
		return "false"
	case v.IsNumber():
		return strconv.FormatFloat(v.AsNumber(), 'g', -1, 64)
	case v.IsAllocated():
		return inspectBody(gc, gc.Get(v))
	default:
		return "<unknown>"
	}
}

func inspectBody(gc *GcMem, b *ObjectBody) string {
	switch b.Kind {
	case ObjString:
		return strconv.Quote(b.Str)
	case ObjArray:
		parts := make([]string, len(b.Arr))
		for i, el := range b.Arr {
			parts[i] = Inspect(gc, el)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case ObjMap:
		parts := make([]string, len(b.MapPairs))
		for i, p := range b.MapPairs {
			parts[i] = Inspect(gc, p.Key) + ": " + Inspect(gc, p.Value)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case ObjFunction:
		name := b.Fn.Fn.Name
		if name == "" {
			name = "<anonymous>"
		}
		return "fn " + name + "(...)"
	case ObjNativeFunction:
		return "native fn " + b.Native.Name + "(...)"
	case ObjError:
		return "error: " + b.ErrVal.Message
	case ObjExternal:
		return "<external>"
	default:
		return "<object>"
	}
}
