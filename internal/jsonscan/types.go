// Package jsonscan maps a byte offset inside an arbitrary, possibly
// malformed JSON(C) buffer to a structural [Context]: which kind of
// syntactic slot the cursor occupies, and the path leading to it.
//
// It is a tolerant hand-written recursive-descent scanner rather than a
// strict parser, because hover and completion are most needed while the
// buffer is mid-edit and therefore syntactically broken.
package jsonscan

import "strconv"

// PathElement is one step of a Path: either a member name or an array
// index.
type PathElement struct {
	Key     string
	Index   int
	IsIndex bool
}

// Path is a sequence of PathElements from the document root to a location.
type Path []PathElement

// String renders the path in a dotted/bracketed form, e.g. "a.b[3]", purely
// for diagnostics and test failure messages.
func (p Path) String() string {
	if len(p) == 0 {
		return "$"
	}
	var out []byte
	for i, e := range p {
		if e.IsIndex {
			out = append(out, '[')
			out = strconv.AppendInt(out, int64(e.Index), 10)
			out = append(out, ']')
		} else {
			if i > 0 {
				out = append(out, '.')
			}
			out = append(out, e.Key...)
		}
	}
	return string(out)
}

// Kind discriminates the PositionContext union.
type Kind int

const (
	// Unknown: whitespace in no particular slot, or outside the root value.
	Unknown Kind = iota
	// Key: cursor is strictly inside a key string literal.
	Key
	// KeyStart: cursor is where a new member key may begin.
	KeyStart
	// Value: cursor is strictly inside the value of Path (string interior,
	// or inside/touching a primitive/partial token).
	Value
	// ValueStart: cursor is where a value is expected but absent.
	ValueStart
)

func (k Kind) String() string {
	switch k {
	case Key:
		return "Key"
	case KeyStart:
		return "KeyStart"
	case Value:
		return "Value"
	case ValueStart:
		return "ValueStart"
	default:
		return "Unknown"
	}
}

// Context is the classification produced by [Analyze].
//
// For Key, Value, and ValueStart, Path is the path to the element the
// cursor is on; for KeyStart it is the parent object's path. A cursor on a
// key's own string includes that key in Path, so hover documents the field
// itself rather than its parent object.
type Context struct {
	Kind Kind
	Path Path
}

// maxDepth bounds recursion so that pathological input (unbalanced
// brackets nested arbitrarily deep) cannot blow the stack; the scanner
// returns Unknown instead once this is exceeded.
const maxDepth = 256
