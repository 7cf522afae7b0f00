package store

import "testing"

func TestExtractSchemaURL(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		raw  string
		base string
		want string
		ok   bool
	}{
		"absolute http schema": {
			raw:  `{"$schema":"https://example.com/s.json","name":"x"}`,
			base: "file:///doc.json",
			want: "https://example.com/s.json",
			ok:   true,
		},
		"relative schema resolved against document": {
			raw:  `{"$schema":"./schemas/s.json"}`,
			base: "file:///a/b/doc.json",
			want: "file:///a/b/schemas/s.json",
			ok:   true,
		},
		"schema after other members": {
			raw:  `{"a":1,"b":{"nested":[1,2,3]},"$schema":"file:///s.json"}`,
			base: "file:///doc.json",
			want: "file:///s.json",
			ok:   true,
		},
		"missing schema member": {
			raw:  `{"name":"x"}`,
			base: "file:///doc.json",
			ok:   false,
		},
		"not an object": {
			raw:  `[1,2,3]`,
			base: "file:///doc.json",
			ok:   false,
		},
		"schema value not a string": {
			raw:  `{"$schema":42}`,
			base: "file:///doc.json",
			ok:   false,
		},
		"malformed tail before schema reached": {
			raw:  `{"a": [1, 2,`,
			base: "file:///doc.json",
			ok:   false,
		},
		"jsonc comments tolerated": {
			raw: "{\n  // leading comment\n  \"$schema\": \"file:///s.json\", /* trailing */\n  \"a\": 1\n}",
			base: "file:///doc.json",
			want: "file:///s.json",
			ok:   true,
		},
		"empty document": {
			raw:  ``,
			base: "file:///doc.json",
			ok:   false,
		},
	}
	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			got, ok := extractSchemaURL([]byte(tc.raw), tc.base)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Fatalf("url = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExtractSchemaURLNeverPanics(t *testing.T) {
	t.Parallel()

	inputs := []string{
		`{`,
		`{"$schema`,
		`{"$schema":`,
		`{"$schema":"`,
		`{"a":"\`,
		`{"a":{{{{{{`,
		string(make([]byte, 2000)), // deep run of NUL bytes
	}
	for _, in := range inputs {
		extractSchemaURL([]byte(in), "file:///doc.json")
	}
}
