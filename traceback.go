package ember

// TracebackItem is one frame of a captured traceback: the name of the
// function executing and the source position of the instruction that
// was executing when the error was raised.
type TracebackItem struct {
	FunctionName string
	Pos          Position
}

// Traceback is an innermost-to-outermost list of TracebackItem,
// captured once at raise time and never mutated afterward, mirroring
// the source's traceback.c contract.
type Traceback struct {
	Items []TracebackItem
}

func newTraceback() *Traceback {
	return &Traceback{}
}

func (t *Traceback) append(functionName string, pos Position) {
	t.Items = append(t.Items, TracebackItem{FunctionName: functionName, Pos: pos})
}

// captureTraceback walks the VM's frame stack from innermost to
// outermost, recording the current instruction's source position in
// each frame.
func captureTraceback(frames []*frame) *Traceback {
	tb := newTraceback()
	for i := len(frames) - 1; i >= 0; i-- {
		f := frames[i]
		name := f.fn.Name
		if name == "" {
			name = "<anonymous>"
		}
		tb.append(name, f.currentPos())
	}
	return tb
}
