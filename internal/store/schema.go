package store

import "net/url"

// extractSchemaURL scans raw to find the "$schema" member of the document's
// top-level object and, if present and a string, resolves it against base
// (the document's own URI) and returns the absolute URL.
//
// The scan is tolerant: it never panics on malformed input, and obeys JSON
// grammar only for the top-level object — values are skipped wholesale
// without being validated. // and /* */ comments are treated as
// insignificant whitespace so JSON-with-comments documents scan the same
// way.
func extractSchemaURL(raw []byte, base string) (string, bool) {
	s := &scanner{buf: raw}
	s.skipSpace()
	if !s.consumeByte('{') {
		return "", false
	}
	for {
		s.skipSpace()
		if s.consumeByte('}') {
			return "", false // exhausted the object without finding $schema
		}
		if s.eof() {
			return "", false
		}
		key, ok := s.scanString()
		if !ok {
			return "", false
		}
		s.skipSpace()
		if !s.consumeByte(':') {
			return "", false
		}
		s.skipSpace()
		if key == "$schema" {
			val, ok := s.scanString()
			if !ok {
				return "", false
			}
			return resolveAgainst(base, val), true
		}
		if !s.skipValue() {
			return "", false
		}
		s.skipSpace()
		if s.consumeByte(',') {
			continue
		}
		if s.consumeByte('}') {
			return "", false
		}
		return "", false
	}
}

func resolveAgainst(base, ref string) string {
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if refURL.IsAbs() {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

// scanner is a minimal tolerant byte-oriented JSON(C) scanner used only to
// locate and skip top-level values; it is deliberately simpler than
// internal/jsonscan's cursor-aware scanner since it never needs to report a
// position, only a boolean success.
type scanner struct {
	buf []byte
	pos int
}

func (s *scanner) eof() bool { return s.pos >= len(s.buf) }

func (s *scanner) peek() byte {
	if s.eof() {
		return 0
	}
	return s.buf[s.pos]
}

func (s *scanner) consumeByte(b byte) bool {
	if s.peek() == b {
		s.pos++
		return true
	}
	return false
}

func (s *scanner) skipSpace() {
	for !s.eof() {
		switch s.buf[s.pos] {
		case ' ', '\t', '\n', '\r':
			s.pos++
		case '/':
			if s.pos+1 < len(s.buf) && s.buf[s.pos+1] == '/' {
				for !s.eof() && s.buf[s.pos] != '\n' {
					s.pos++
				}
				continue
			}
			if s.pos+1 < len(s.buf) && s.buf[s.pos+1] == '*' {
				s.pos += 2
				for !s.eof() {
					if s.buf[s.pos] == '*' && s.pos+1 < len(s.buf) && s.buf[s.pos+1] == '/' {
						s.pos += 2
						break
					}
					s.pos++
				}
				continue
			}
			return
		default:
			return
		}
	}
}

// scanString scans a double-quoted JSON string starting at the current
// position (which must be the opening quote) and returns its decoded
// (unescaped, best-effort) value.
func (s *scanner) scanString() (string, bool) {
	if !s.consumeByte('"') {
		return "", false
	}
	var out []byte
	for !s.eof() {
		b := s.buf[s.pos]
		if b == '"' {
			s.pos++
			return string(out), true
		}
		if b == '\\' {
			s.pos++
			if s.eof() {
				return "", false
			}
			esc := s.buf[s.pos]
			switch esc {
			case '"', '\\', '/':
				out = append(out, esc)
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case 'r':
				out = append(out, '\r')
			default:
				out = append(out, esc)
			}
			s.pos++
			continue
		}
		out = append(out, b)
		s.pos++
	}
	return "", false // unterminated string
}

// skipValue consumes one JSON value (of any kind) starting at the current
// position, tolerating malformed tails by stopping at EOF rather than
// panicking.
func (s *scanner) skipValue() bool {
	s.skipSpace()
	if s.eof() {
		return false
	}
	switch s.buf[s.pos] {
	case '"':
		_, ok := s.scanString()
		return ok
	case '{':
		return s.skipBracketed('{', '}')
	case '[':
		return s.skipBracketed('[', ']')
	default:
		// number, true, false, null, or a bare malformed token: consume until
		// a structural character or whitespace.
		start := s.pos
		for !s.eof() {
			switch s.buf[s.pos] {
			case ',', '}', ']', ' ', '\t', '\n', '\r':
				return s.pos > start
			}
			s.pos++
		}
		return s.pos > start
	}
}

func (s *scanner) skipBracketed(open, close byte) bool {
	if !s.consumeByte(open) {
		return false
	}
	depth := 1
	for !s.eof() && depth < 256 {
		s.skipSpace()
		if s.eof() {
			return false
		}
		switch s.buf[s.pos] {
		case '"':
			if _, ok := s.scanString(); !ok {
				return false
			}
			continue
		case open:
			depth++
			s.pos++
			continue
		case close:
			depth--
			s.pos++
			if depth == 0 {
				return true
			}
			continue
		default:
			s.pos++
		}
	}
	return false
}
