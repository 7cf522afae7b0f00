package jsonscan

// Analyze classifies the structural slot that offset occupies within raw.
// It never panics and never requires raw to parse successfully.
//
// Analyze is a pure function of (raw, offset): repeated calls with the same
// arguments always return the same Context.
func Analyze(raw []byte, offset int) Context {
	if offset < 0 {
		offset = 0
	}
	if offset > len(raw) {
		offset = len(raw)
	}
	s := &scanner{buf: raw, cursor: offset}
	s.scanRoot()
	if s.found {
		return s.result
	}
	return Context{Kind: Unknown}
}

type scanner struct {
	buf    []byte
	pos    int
	cursor int

	found  bool
	result Context
}

func (s *scanner) eof() bool { return s.pos >= len(s.buf) }

func (s *scanner) byteAt(i int) byte {
	if i < 0 || i >= len(s.buf) {
		return 0
	}
	return s.buf[i]
}

// set records the classification once. The scanner stops doing further
// useful work after this (callers return promptly), but harmlessly
// tolerates being called more than once — the first call wins.
func (s *scanner) set(ctx Context) {
	if !s.found {
		s.found = true
		s.result = ctx
	}
}

// markSpan reports whether the cursor lies in [start, end], and if so
// records ctx as the result. Callers choose the endpoints so that a cursor
// sitting exactly on a delimiter belongs to the slot that starts there,
// while a cursor on the first byte of a value token belongs to the token.
func (s *scanner) markSpan(start, end int, ctx Context) bool {
	if s.cursor >= start && s.cursor <= end {
		s.set(ctx)
		return true
	}
	return false
}

// scanRoot scans the single top-level JSON value. Whitespace/comments
// before or after the root value (or in a wholly empty document) have no
// defined slot and are Unknown.
func (s *scanner) scanRoot() {
	s.skipSpace()
	if s.found || s.eof() {
		return
	}
	s.scanValue(nil, 0)
}

// skipSpace advances past JSON whitespace and // and /* */ comments. A
// cursor strictly inside a comment has no structural slot, so it is
// recorded as Unknown on the spot.
func (s *scanner) skipSpace() {
	for !s.eof() {
		switch s.buf[s.pos] {
		case ' ', '\t', '\n', '\r':
			s.pos++
		case '/':
			if s.byteAt(s.pos+1) == '/' {
				start := s.pos
				for !s.eof() && s.buf[s.pos] != '\n' {
					s.pos++
				}
				if s.cursor > start && s.cursor < s.pos {
					s.set(Context{Kind: Unknown})
				}
				continue
			}
			if s.byteAt(s.pos+1) == '*' {
				start := s.pos
				s.pos += 2
				for !s.eof() {
					if s.buf[s.pos] == '*' && s.byteAt(s.pos+1) == '/' {
						s.pos += 2
						break
					}
					s.pos++
				}
				if s.cursor > start && s.cursor < s.pos {
					s.set(Context{Kind: Unknown})
				}
				continue
			}
			return
		default:
			return
		}
	}
}

// scanValue scans one JSON value located at the current path, stopping (by
// calling s.set) as soon as it determines the cursor's context. depth
// counts container nesting for the recursion cap.
func (s *scanner) scanValue(path Path, depth int) {
	if s.found {
		return
	}
	if depth > maxDepth {
		return // leave s.found false: caller treats as Unknown
	}
	if s.eof() {
		return
	}
	switch s.buf[s.pos] {
	case '{':
		s.scanObject(path, depth)
	case '[':
		s.scanArray(path, depth)
	case '"':
		s.scanStringValue(path)
	default:
		s.scanPrimitive(path)
	}
}

// scanObject scans "{ members }" at the current path. gapStart tracks the
// offset of the '{' or ',' that opened the current key slot, so a cursor
// sitting on either delimiter classifies as the KeyStart slot to its right.
func (s *scanner) scanObject(path Path, depth int) {
	gapStart := s.pos
	s.pos++ // consume '{'

	for {
		s.skipSpace()
		if s.found {
			return
		}
		if s.eof() {
			// Unterminated object: the KeyStart slot extends to EOF.
			s.markSpan(gapStart, len(s.buf), Context{Kind: KeyStart, Path: path})
			return
		}
		if s.buf[s.pos] == '}' {
			// Inclusive of the '}' offset: a cursor just before the brace
			// is still in the key slot.
			if s.markSpan(gapStart, s.pos, Context{Kind: KeyStart, Path: path}) {
				return
			}
			s.pos++ // consume '}'
			return
		}
		if s.buf[s.pos] != '"' {
			// Malformed: something other than a key or '}'. The gap before
			// the dangling token is still a key slot; the token itself has
			// no defined classification, so stop rather than loop.
			s.markSpan(gapStart, s.pos-1, Context{Kind: KeyStart, Path: path})
			return
		}
		// The KeyStart span ends just before the key's opening quote; the
		// quote itself belongs to the key string.
		if s.markSpan(gapStart, s.pos-1, Context{Kind: KeyStart, Path: path}) {
			return
		}

		key, ok := s.scanKeyOrValueString(true, path)
		if s.found {
			return
		}
		if !ok {
			return // unterminated key string already handled inside scanKeyOrValueString
		}
		keyPath := append(append(Path{}, path...), PathElement{Key: key})

		s.skipSpace()
		if s.found {
			return
		}
		if s.eof() || s.buf[s.pos] != ':' {
			// Missing colon: no value slot is defined without one.
			return
		}
		colonPos := s.pos
		s.pos++ // consume ':'

		s.skipSpace()
		if s.found {
			return
		}
		switch {
		case s.eof():
			s.markSpan(colonPos, len(s.buf), Context{Kind: ValueStart, Path: keyPath})
			return
		case s.buf[s.pos] == '}':
			// Absent value; the slot runs up to (and includes the position
			// just before) the closing brace.
			if s.markSpan(colonPos, s.pos, Context{Kind: ValueStart, Path: keyPath}) {
				return
			}
		case s.buf[s.pos] == ',':
			// Absent value; a cursor on the ',' belongs to the next key
			// slot, so the value slot ends just before it.
			if s.markSpan(colonPos, s.pos-1, Context{Kind: ValueStart, Path: keyPath}) {
				return
			}
		default:
			// The value slot ends just before the value token; the token's
			// own first byte belongs to the value.
			if s.markSpan(colonPos, s.pos-1, Context{Kind: ValueStart, Path: keyPath}) {
				return
			}
			s.scanValue(keyPath, depth+1)
			if s.found {
				return
			}
		}

		s.skipSpace()
		if s.found {
			return
		}
		if s.eof() {
			return
		}
		switch s.buf[s.pos] {
		case ',':
			gapStart = s.pos
			s.pos++
			continue
		case '}':
			s.pos++
			return
		default:
			// Malformed separator; stop scanning this object.
			return
		}
	}
}

// scanArray scans "[ elements ]" at the current path. gapStart tracks the
// '[' or ',' opening the current element slot, mirroring scanObject.
func (s *scanner) scanArray(path Path, depth int) {
	gapStart := s.pos
	s.pos++ // consume '['

	index := 0
	for {
		s.skipSpace()
		if s.found {
			return
		}
		elemPath := append(append(Path{}, path...), PathElement{Index: index, IsIndex: true})

		if s.eof() {
			s.markSpan(gapStart, len(s.buf), Context{Kind: ValueStart, Path: elemPath})
			return
		}
		if s.buf[s.pos] == ']' {
			if s.markSpan(gapStart, s.pos, Context{Kind: ValueStart, Path: elemPath}) {
				return
			}
			s.pos++
			return
		}

		if s.markSpan(gapStart, s.pos-1, Context{Kind: ValueStart, Path: elemPath}) {
			return
		}
		s.scanValue(elemPath, depth+1)
		if s.found {
			return
		}
		index++

		s.skipSpace()
		if s.found {
			return
		}
		if s.eof() {
			return
		}
		switch s.buf[s.pos] {
		case ',':
			gapStart = s.pos
			s.pos++
			continue
		case ']':
			s.pos++
			return
		default:
			return
		}
	}
}

// scanStringValue scans a string literal used as a value at path.
func (s *scanner) scanStringValue(path Path) {
	s.scanKeyOrValueString(false, path)
}

// scanKeyOrValueString scans a double-quoted string starting at the
// current position. If isKey, the cursor inside it (including on the
// opening quote) classifies as Key{path + thisKey}; otherwise as
// Value{path}. The closing quote itself is outside the string. Returns the
// decoded string and whether the string was properly terminated.
func (s *scanner) scanKeyOrValueString(isKey bool, path Path) (string, bool) {
	openPos := s.pos
	s.pos++ // consume opening quote
	var raw []byte
	for {
		if s.eof() {
			// Unterminated: everything from the opening quote to EOF is
			// "inside" the string.
			ctx := Context{Kind: Value, Path: path}
			if isKey {
				ctx = Context{Kind: Key, Path: append(append(Path{}, path...), PathElement{Key: string(raw)})}
			}
			s.markSpan(openPos, len(s.buf), ctx)
			return string(raw), false
		}
		b := s.buf[s.pos]
		if b == '"' {
			closePos := s.pos
			s.pos++ // consume closing quote
			ctx := Context{Kind: Value, Path: path}
			if isKey {
				ctx = Context{Kind: Key, Path: append(append(Path{}, path...), PathElement{Key: string(raw)})}
			}
			// [openPos, closePos): inclusive of opening quote, exclusive
			// of closing quote.
			s.markSpan(openPos, closePos-1, ctx)
			return string(raw), true
		}
		if b == '\\' && s.pos+1 < len(s.buf) {
			raw = append(raw, b, s.buf[s.pos+1])
			s.pos += 2
			continue
		}
		raw = append(raw, b)
		s.pos++
	}
}

// scanPrimitive scans a maximal run of "bare token" bytes: numbers, true,
// false, null, or partially-typed tokens mid-edit. Any touching of this
// span (including both endpoints) classifies as Value{path}.
func (s *scanner) scanPrimitive(path Path) {
	start := s.pos
	for !s.eof() && !isStructural(s.buf[s.pos]) {
		s.pos++
	}
	if s.pos == start {
		// Nothing to consume (e.g. a stray structural byte reached here
		// some other way); avoid an infinite loop upstream.
		s.pos++
		return
	}
	s.markSpan(start, s.pos, Context{Kind: Value, Path: path})
}

func isStructural(b byte) bool {
	switch b {
	case '{', '}', '[', ']', ',', ':', '"', ' ', '\t', '\n', '\r':
		return true
	default:
		return false
	}
}
