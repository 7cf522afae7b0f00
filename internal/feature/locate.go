// Package feature implements the three editor features — diagnostics,
// hover, and completion — on top of the document store, the position
// analyzer, and the schema navigator.
package feature

import (
	"strconv"
	"strings"

	gojson "github.com/goccy/go-json"

	"github.com/jsonschemals/jsonschemals/internal/jsonscan"
)

// locateJSONPointer finds the byte span of the value addressed by a JSON
// Pointer (RFC 6901, without the leading '#') inside raw, by replaying the
// document as a token stream and tracking the current path alongside each
// token's offset. It walks gojson's streaming Decoder — the same decoder
// already used for document parsing — rather than introduce a second
// parser for offset bookkeeping.
func locateJSONPointer(raw []byte, pointer string) (start, end int, ok bool) {
	if pointer == "" {
		return 0, len(raw), true
	}
	want := strings.Split(strings.TrimPrefix(pointer, "/"), "/")
	for i, tok := range want {
		want[i] = unescapeToken(tok)
	}

	dec := gojson.NewDecoder(strings.NewReader(string(raw)))
	return walkTokens(dec, raw, nil, want)
}

// walkTokens recursively consumes one JSON value from dec, descending into
// the child addressed by want[len(path):] when present under path.
func walkTokens(dec *gojson.Decoder, raw []byte, path []string, want []string) (int, int, bool) {
	startOffset := int(dec.InputOffset())
	tok, err := dec.Token()
	if err != nil {
		return 0, 0, false
	}

	match := len(path) == len(want)

	switch v := tok.(type) {
	case gojson.Delim:
		switch v {
		case '{':
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return 0, 0, false
				}
				key, _ := keyTok.(string)
				childPath := append(append([]string{}, path...), key)
				s, e, ok := walkTokens(dec, raw, childPath, want)
				if ok {
					return s, e, true
				}
			}
			// consume closing '}'
			if _, err := dec.Token(); err != nil {
				return 0, 0, false
			}
		case '[':
			idx := 0
			for dec.More() {
				childPath := append(append([]string{}, path...), strconv.Itoa(idx))
				s, e, ok := walkTokens(dec, raw, childPath, want)
				if ok {
					return s, e, true
				}
				idx++
			}
			if _, err := dec.Token(); err != nil {
				return 0, 0, false
			}
		}
	default:
		// scalar token already fully consumed
	}

	endOffset := int(dec.InputOffset())
	if match && pathEqual(path, want) {
		return startOffset, endOffset, true
	}
	return 0, 0, false
}

// ExistingKeys returns the member names already present in the JSON object
// located at path within raw, so that key completion can exclude keys the
// document already has. It is best-effort: if path can't
// be located (the buffer is mid-edit, or doesn't parse that far), it
// returns an empty set and the caller falls back to offering every schema
// property.
func ExistingKeys(raw []byte, path jsonscan.Path) map[string]bool {
	want := make([]string, len(path))
	for i, e := range path {
		if e.IsIndex {
			want[i] = strconv.Itoa(e.Index)
		} else {
			want[i] = e.Key
		}
	}

	keys := make(map[string]bool)
	dec := gojson.NewDecoder(strings.NewReader(string(raw)))
	collectObjectKeys(dec, nil, want, keys)
	return keys
}

// collectObjectKeys descends dec to the container addressed by want,
// recording its immediate member names into out if it is a JSON object. It
// returns true once the target has been reached (found or not an object),
// so the caller can stop descending siblings.
func collectObjectKeys(dec *gojson.Decoder, path, want []string, out map[string]bool) bool {
	tok, err := dec.Token()
	if err != nil {
		return false
	}
	match := pathEqual(path, want)

	delim, ok := tok.(gojson.Delim)
	if !ok {
		return match
	}

	switch delim {
	case '{':
		if match {
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return true
				}
				if key, ok := keyTok.(string); ok {
					out[key] = true
				}
				if err := skipJSONValue(dec); err != nil {
					return true
				}
			}
			dec.Token() // consume closing '}'
			return true
		}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return false
			}
			key, _ := keyTok.(string)
			childPath := append(append([]string{}, path...), key)
			if collectObjectKeys(dec, childPath, want, out) {
				return true
			}
		}
		dec.Token()
	case '[':
		if match {
			return true // matched location is an array, not an object
		}
		idx := 0
		for dec.More() {
			childPath := append(append([]string{}, path...), strconv.Itoa(idx))
			if collectObjectKeys(dec, childPath, want, out) {
				return true
			}
			idx++
		}
		dec.Token()
	}
	return false
}

// skipJSONValue consumes exactly one JSON value (scalar, object, or array)
// from dec without interpreting it, for skipping sibling values while
// collecting an object's own key list.
func skipJSONValue(dec *gojson.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(gojson.Delim)
	if !ok {
		return nil
	}
	switch delim {
	case '{':
		for dec.More() {
			if _, err := dec.Token(); err != nil {
				return err
			}
			if err := skipJSONValue(dec); err != nil {
				return err
			}
		}
		_, err := dec.Token()
		return err
	case '[':
		for dec.More() {
			if err := skipJSONValue(dec); err != nil {
				return err
			}
		}
		_, err := dec.Token()
		return err
	}
	return nil
}

func pathEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func unescapeToken(tok string) string {
	tok = strings.ReplaceAll(tok, "~1", "/")
	tok = strings.ReplaceAll(tok, "~0", "~")
	return tok
}
