package feature

import (
	"testing"

	"github.com/jsonschemals/jsonschemals/internal/jsonscan"
)

func TestLocateJSONPointerFindsTopLevelMember(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"a":1,"b":"x"}`)
	start, end, ok := locateJSONPointer(raw, "/b")
	if !ok {
		t.Fatal("expected to locate /b")
	}
	got := string(raw[start:end])
	if got != `"x"` {
		t.Fatalf("got %q, want %q", got, `"x"`)
	}
}

func TestLocateJSONPointerFindsArrayElement(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"a":[10,20,30]}`)
	start, end, ok := locateJSONPointer(raw, "/a/1")
	if !ok {
		t.Fatal("expected to locate /a/1")
	}
	if string(raw[start:end]) != "20" {
		t.Fatalf("got %q", raw[start:end])
	}
}

func TestLocateJSONPointerRootMatchesWholeDocument(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"a":1}`)
	start, end, ok := locateJSONPointer(raw, "")
	if !ok || start != 0 || end != len(raw) {
		t.Fatalf("got (%d,%d,%v), want (0,%d,true)", start, end, ok, len(raw))
	}
}

func TestLocateJSONPointerMissingPathFails(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"a":1}`)
	_, _, ok := locateJSONPointer(raw, "/missing")
	if ok {
		t.Fatal("expected not to locate /missing")
	}
}

func TestLocateJSONPointerEscapedTokens(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"a/b":1,"c~d":2}`)
	start, end, ok := locateJSONPointer(raw, "/a~1b")
	if !ok {
		t.Fatal("expected to locate /a~1b")
	}
	if string(raw[start:end]) != "1" {
		t.Fatalf("got %q", raw[start:end])
	}

	start, end, ok = locateJSONPointer(raw, "/c~0d")
	if !ok {
		t.Fatal("expected to locate /c~0d")
	}
	if string(raw[start:end]) != "2" {
		t.Fatalf("got %q", raw[start:end])
	}
}

func TestExistingKeysAtRoot(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"$schema":"x","name":"y"}`)
	keys := ExistingKeys(raw, nil)
	if !keys["$schema"] || !keys["name"] || len(keys) != 2 {
		t.Fatalf("got %v", keys)
	}
}

func TestExistingKeysAtNestedObject(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"a":{"b":1,"c":2},"d":3}`)
	keys := ExistingKeys(raw, jsonscan.Path{{Key: "a"}})
	if !keys["b"] || !keys["c"] || len(keys) != 2 {
		t.Fatalf("got %v", keys)
	}
}

func TestExistingKeysMissingPathIsEmpty(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"a":1}`)
	keys := ExistingKeys(raw, jsonscan.Path{{Key: "nope"}})
	if len(keys) != 0 {
		t.Fatalf("got %v, want empty", keys)
	}
}
