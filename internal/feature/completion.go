package feature

import (
	"fmt"
	"sort"
	"strings"

	"go.lsp.dev/protocol"

	"github.com/jsonschemals/jsonschemals/internal/jsonscan"
	"github.com/jsonschemals/jsonschemals/internal/schema"
)

// Completion builds the completion list for ctx: property-key snippets at
// KeyStart positions, and value candidates (enum members, or skeleton
// literals per declared type: one each, but both true and false for
// boolean) where a value is expected or a partial value token is being
// typed.
func Completion(nv *schema.Navigator, ctx jsonscan.Context) []protocol.CompletionItem {
	switch ctx.Kind {
	case jsonscan.KeyStart:
		return propertyCompletions(nv, ctx.Path)
	case jsonscan.ValueStart, jsonscan.Value:
		return valueCompletions(nv, ctx.Path)
	default:
		return nil
	}
}

func propertyCompletions(nv *schema.Navigator, path jsonscan.Path) []protocol.CompletionItem {
	node, err := nv.At(path)
	if err != nil || node == nil {
		return nil
	}
	required := make(map[string]bool, len(node.Required))
	for _, r := range node.Required {
		required[r] = true
	}

	items := make([]protocol.CompletionItem, 0, len(node.Properties))
	for name, sub := range node.Properties {
		item := protocol.CompletionItem{
			Label:            name,
			Kind:             protocol.CompletionItemKindProperty,
			InsertText:       fmt.Sprintf("%q: $0", name),
			InsertTextFormat: protocol.InsertTextFormatSnippet,
		}
		var detail []string
		if required[name] {
			detail = append(detail, "required")
		}
		if sub != nil {
			if types := sub.Type(); len(types) > 0 {
				detail = append(detail, types[0])
			}
			if desc := sub.Description(); desc != "" {
				item.Documentation = protocol.MarkupContent{Kind: protocol.Markdown, Value: desc}
			}
		}
		item.Detail = strings.Join(detail, " ")
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	return items
}

func valueCompletions(nv *schema.Navigator, path jsonscan.Path) []protocol.CompletionItem {
	node, err := nv.At(path)
	if err != nil || node == nil {
		return nil
	}

	if enum := node.Enum(); len(enum) > 0 {
		items := make([]protocol.CompletionItem, 0, len(enum))
		for _, v := range enum {
			lit := jsonLiteral(v)
			items = append(items, protocol.CompletionItem{
				Label:      lit,
				Kind:       protocol.CompletionItemKindValue,
				InsertText: lit,
			})
		}
		sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
		return items
	}

	var items []protocol.CompletionItem
	for _, t := range node.Type() {
		for _, lit := range typeSkeletons(t) {
			items = append(items, protocol.CompletionItem{
				Label:      lit,
				Kind:       protocol.CompletionItemKindValue,
				InsertText: lit,
			})
		}
	}
	return items
}

// typeSkeletons returns the placeholder literal(s) to offer for a declared
// schema type.
func typeSkeletons(t string) []string {
	switch t {
	case "string":
		return []string{`""`}
	case "number", "integer":
		return []string{"0"}
	case "boolean":
		return []string{"true", "false"}
	case "array":
		return []string{"[]"}
	case "object":
		return []string{"{}"}
	case "null":
		return []string{"null"}
	default:
		return nil
	}
}
