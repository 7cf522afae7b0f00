package feature

import (
	"errors"

	gojson "github.com/goccy/go-json"
	"github.com/kaptinlin/jsonschema"
	"go.lsp.dev/protocol"

	"github.com/jsonschemals/jsonschemals/internal/rope"
)

// DiagnosticSource is the "source" field LSP clients display alongside
// each diagnostic.
const DiagnosticSource = "jsonschemals"

// Diagnose validates raw against compiled and maps each validation failure
// to an LSP [protocol.Diagnostic], locating its range in text via the
// failing instance's JSON Pointer.
func Diagnose(raw []byte, compiled *jsonschema.Schema, text *rope.Rope) ([]protocol.Diagnostic, error) {
	var instance any
	if err := gojson.Unmarshal(raw, &instance); err != nil {
		return []protocol.Diagnostic{documentParseDiagnostic(raw, text, err)}, nil
	}

	result := compiled.Validate(instance)
	if result.IsValid() {
		return nil, nil
	}

	list := result.ToList(false)
	var diags []protocol.Diagnostic
	for _, item := range list.Details {
		for _, msg := range item.Errors {
			diags = append(diags, toDiagnostic(raw, text, item.InstanceLocation, msg))
		}
	}
	for _, msg := range list.Errors {
		diags = append(diags, toDiagnostic(raw, text, list.InstanceLocation, msg))
	}
	return diags, nil
}

func toDiagnostic(raw []byte, text *rope.Rope, instanceLocation, message string) protocol.Diagnostic {
	rng := rangeForPointer(raw, text, instanceLocation)
	return protocol.Diagnostic{
		Range:    rng,
		Severity: protocol.DiagnosticSeverityError,
		Source:   DiagnosticSource,
		Message:  message,
	}
}

// rangeForPointer resolves instanceLocation's byte span in raw and converts
// it to an LSP range via text. If the pointer can't be located (a
// defensive fallback against any divergence between the decoded instance
// and the token stream), the whole document is reported.
func rangeForPointer(raw []byte, text *rope.Rope, instanceLocation string) protocol.Range {
	start, end, ok := locateJSONPointer(raw, instanceLocation)
	if !ok {
		start, end = 0, len(raw)
	}
	startPos, err1 := text.OffsetToPosition(start)
	endPos, err2 := text.OffsetToPosition(end)
	if err1 != nil || err2 != nil {
		return protocol.Range{}
	}
	return protocol.Range{Start: startPos, End: endPos}
}

// documentParseDiagnostic places a single diagnostic at the parser's first
// error location. The decoder's errors carry the byte offset consumed when
// parsing failed; the diagnostic covers the byte just before it, clamped
// to the document. An error that carries no offset falls back to the
// document start.
func documentParseDiagnostic(raw []byte, text *rope.Rope, err error) protocol.Diagnostic {
	offset := parseErrorOffset(err)
	if offset > 0 {
		offset--
	}
	if offset > len(raw) {
		offset = len(raw)
	}
	end := offset + 1
	if end > len(raw) {
		end = len(raw)
	}

	rng := protocol.Range{}
	startPos, err1 := text.OffsetToPosition(offset)
	endPos, err2 := text.OffsetToPosition(end)
	if err1 == nil && err2 == nil {
		rng = protocol.Range{Start: startPos, End: endPos}
	}
	return protocol.Diagnostic{
		Range:    rng,
		Severity: protocol.DiagnosticSeverityError,
		Source:   DiagnosticSource,
		Message:  "document is not valid JSON: " + err.Error(),
	}
}

func parseErrorOffset(err error) int {
	var syn *gojson.SyntaxError
	if errors.As(err, &syn) {
		return int(syn.Offset)
	}
	var typ *gojson.UnmarshalTypeError
	if errors.As(err, &typ) {
		return int(typ.Offset)
	}
	return 0
}
