package ember

import (
	"fmt"
	"sort"
)

// Position is the source position attached to every token, AST node
// and bytecode byte: a file reference plus a 1-based line/column
// pair.
type Position struct {
	File   string
	Line   int
	Column int
}

func (p Position) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// LineIndex allows fast conversion from byte cursor offsets to
// line/column pairs. It stores the start byte offset of each line
// (0-based) and finds the owning line with a binary search.
type LineIndex struct {
	file      string
	input     []byte
	lineStart []int
}

// NewLineIndex builds a LineIndex over input, attributing positions
// to file (used only for error messages).
func NewLineIndex(file string, input []byte) *LineIndex {
	lineStart := make([]int, 1, 64)
	lineStart[0] = 0
	for i, b := range input {
		if b == '\n' {
			lineStart = append(lineStart, i+1)
		}
	}
	return &LineIndex{file: file, input: input, lineStart: lineStart}
}

// PositionAt returns the Position of the given byte cursor.
func (li *LineIndex) PositionAt(cursor int) Position {
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(li.input) {
		cursor = len(li.input)
	}
	lineIdx := sort.Search(len(li.lineStart), func(i int) bool {
		return li.lineStart[i] > cursor
	}) - 1
	if lineIdx < 0 {
		lineIdx = 0
	}
	lineStart := li.lineStart[lineIdx]
	col := (cursor - lineStart) + 1
	return Position{File: li.file, Line: lineIdx + 1, Column: col}
}

// PositionTable maps bytecode instruction offsets to the source
// Position that produced them, so a running frame can report where
// it is without carrying a Position alongside every single opcode.
// The compiler only records an entry when the position actually
// changes, and offsets are appended in the monotonically increasing
// order instructions are emitted in, so a lookup is a binary search
// for the last offset not greater than the instruction pointer.
type PositionTable struct {
	offsets   []int
	positions []Position
}

func (t *PositionTable) add(offset int, pos Position) {
	if n := len(t.positions); n > 0 && t.positions[n-1] == pos {
		return
	}
	t.offsets = append(t.offsets, offset)
	t.positions = append(t.positions, pos)
}

// Lookup returns the Position recorded for the instruction at or
// immediately before ip. An empty table returns the zero Position.
func (t *PositionTable) Lookup(ip int) Position {
	if len(t.offsets) == 0 {
		return Position{}
	}
	i := sort.Search(len(t.offsets), func(i int) bool {
		return t.offsets[i] > ip
	}) - 1
	if i < 0 {
		i = 0
	}
	return t.positions[i]
}
