// Package rope implements the mutable text buffer backing each open
// document: byte-offset storage with efficient conversion to and from LSP
// (line, UTF-16 column) coordinates, including surrogate-pair-aware column
// math for characters outside the Basic Multilingual Plane.
package rope

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"go.lsp.dev/protocol"
)

// Rope holds a document's full text and a lazily computed line index.
//
// It is not safe for concurrent use; callers serialize access per document
// (see internal/store).
type Rope struct {
	content []byte

	linesValid bool
	lineStart  []int // byte offset of the start of line i (0-based); always starts at 0
}

// New returns a Rope over the given initial text.
func New(text string) *Rope {
	return &Rope{content: []byte(text)}
}

// Bytes returns the current content. Callers must not mutate the result.
func (r *Rope) Bytes() []byte { return r.content }

// String returns the current content as a string.
func (r *Rope) String() string { return string(r.content) }

// Len returns the content length in bytes.
func (r *Rope) Len() int { return len(r.content) }

// SetText replaces the entire content, e.g. for a full-document sync.
func (r *Rope) SetText(text string) {
	r.content = []byte(text)
	r.invalidate()
}

func (r *Rope) invalidate() {
	r.linesValid = false
	r.lineStart = nil
}

func (r *Rope) initLines() {
	if r.linesValid {
		return
	}
	nlines := 0
	for _, b := range r.content {
		if b == '\n' {
			nlines++
		}
	}
	lineStart := make([]int, 1, nlines+1)
	for offset, b := range r.content {
		if b == '\n' {
			lineStart = append(lineStart, offset+1)
		}
	}
	r.lineStart = lineStart
	r.linesValid = true
}

// ApplyEdit applies a single incremental edit: the text in [start, end)
// (given in LSP positions) is replaced by newText. A nil Range denotes a
// full-document replacement.
func (r *Rope) ApplyEdit(rng *protocol.Range, newText string) error {
	if rng == nil {
		r.SetText(newText)
		return nil
	}
	start, err := r.PositionToOffset(rng.Start)
	if err != nil {
		return fmt.Errorf("start position: %w", err)
	}
	end, err := r.PositionToOffset(rng.End)
	if err != nil {
		return fmt.Errorf("end position: %w", err)
	}
	if start > end {
		return fmt.Errorf("invalid edit range: start %d > end %d", start, end)
	}
	next := make([]byte, 0, len(r.content)-(end-start)+len(newText))
	next = append(next, r.content[:start]...)
	next = append(next, newText...)
	next = append(next, r.content[end:]...)
	r.content = next
	r.invalidate()
	return nil
}

// OffsetToPosition converts a byte offset to an LSP (UTF-16) position.
func (r *Rope) OffsetToPosition(offset int) (protocol.Position, error) {
	if offset < 0 || offset > len(r.content) {
		return protocol.Position{}, fmt.Errorf("offset %d out of range [0,%d]", offset, len(r.content))
	}
	r.initLines()
	line := r.lineOf(offset)
	start := r.lineStart[line]
	col16 := UTF16Len(r.content[start:offset])
	return protocol.Position{Line: uint32(line), Character: uint32(col16)}, nil
}

// PositionToOffset converts an LSP (UTF-16) position to a byte offset.
//
// Positions past the end of their line are clamped to the line's end, and a
// line number past the end of the document is clamped to EOF, matching
// typical editor slack around concurrent edits.
func (r *Rope) PositionToOffset(p protocol.Position) (int, error) {
	r.initLines()
	if int(p.Line) >= len(r.lineStart) {
		return len(r.content), nil
	}
	lineOff := r.lineStart[p.Line]
	lineEnd := len(r.content)
	if int(p.Line)+1 < len(r.lineStart) {
		lineEnd = r.lineStart[p.Line+1]
	}
	// Strip the trailing newline (and preceding CR) from the line's span so a
	// position beyond it clamps to just before the terminator.
	end := lineEnd
	if end > lineOff && r.content[end-1] == '\n' {
		end--
		if end > lineOff && r.content[end-1] == '\r' {
			end--
		}
	}
	content := r.content[lineOff:end]

	col8 := 0
	col16 := uint32(0)
	for col16 < p.Character {
		rn, size := utf8.DecodeRune(content[col8:])
		if size == 0 {
			break // clamp to end of line
		}
		col8 += size
		col16++
		if rn >= 0x10000 {
			col16++ // surrogate pair
			if col16 > p.Character {
				break // cursor inside a surrogate pair; treat as before it
			}
		}
	}
	return lineOff + col8, nil
}

// lineOf returns the 0-based line index containing the given byte offset.
func (r *Rope) lineOf(offset int) int {
	i := sort.Search(len(r.lineStart), func(i int) bool {
		return r.lineStart[i] > offset
	})
	return i - 1
}

// UTF16Len returns the number of UTF-16 code units needed to encode s.
func UTF16Len(s []byte) int {
	var n int
	for len(s) > 0 {
		n++
		if s[0] < 0x80 {
			s = s[1:]
			continue
		}
		r, size := utf8.DecodeRune(s)
		if r >= 0x10000 {
			n++ // surrogate pair
		}
		s = s[size:]
	}
	return n
}
