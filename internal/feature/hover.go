package feature

import (
	"fmt"
	"strings"

	gojson "github.com/goccy/go-json"
	"go.lsp.dev/protocol"

	"github.com/jsonschemals/jsonschemals/internal/jsonscan"
	"github.com/jsonschemals/jsonschemals/internal/schema"
)

// Hover builds the hover contents for ctx's resolved schema node: a single
// Markdown body assembled from the node's description, type, default,
// enum, and examples, in that order, each only when present. It returns
// false if ctx has no schema-bearing position (Unknown, or a resolution
// failure) or the node has nothing to say.
func Hover(nv *schema.Navigator, ctx jsonscan.Context) (protocol.Hover, bool) {
	if ctx.Kind != jsonscan.Key && ctx.Kind != jsonscan.Value {
		return protocol.Hover{}, false
	}

	node, err := nv.At(ctx.Path)
	if err != nil || node == nil {
		return protocol.Hover{}, false
	}

	body := hoverBody(node)
	if body == "" {
		return protocol.Hover{}, false
	}
	return protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.Markdown,
			Value: body,
		},
	}, true
}

func hoverBody(node *schema.Node) string {
	var b strings.Builder
	if desc := node.Description(); desc != "" {
		b.WriteString(desc)
		b.WriteString("\n\n")
	}
	if types := node.Type(); len(types) > 0 {
		fmt.Fprintf(&b, "Type: `%s`\n\n", strings.Join(types, " | "))
	}
	if def, ok := node.Default(); ok {
		fmt.Fprintf(&b, "Default: `%s`\n\n", jsonLiteral(def))
	}
	if enum := node.Enum(); len(enum) > 0 {
		values := make([]string, 0, len(enum))
		for _, v := range enum {
			values = append(values, jsonLiteral(v))
		}
		fmt.Fprintf(&b, "Allowed values: `%s`\n\n", strings.Join(values, "`, `"))
	}
	if examples := node.Examples(); len(examples) > 0 {
		values := make([]string, 0, len(examples))
		for _, v := range examples {
			values = append(values, jsonLiteral(v))
		}
		fmt.Fprintf(&b, "Examples: `%s`\n\n", strings.Join(values, "`, `"))
	}
	return strings.TrimSpace(b.String())
}

// jsonLiteral renders v in its JSON source form, falling back to fmt for
// anything that won't marshal.
func jsonLiteral(v any) string {
	data, err := gojson.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
