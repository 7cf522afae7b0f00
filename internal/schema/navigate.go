package schema

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"github.com/jsonschemals/jsonschemals/internal/jsonscan"
)

// Node is the subschema that applies at some instance path, resolved from
// the raw JSON Schema document. It intentionally mirrors only the fields
// the feature engines (hover, completion) need, rather than the full
// keyword surface a validator cares about.
type Node struct {
	// Raw is the schema object itself, after any $ref chain has been
	// followed. A boolean schema appears as {} (true) or {"not":{}}
	// (false). allOf/anyOf/oneOf branches are not merged into Raw; only
	// their properties are folded into Properties.
	Raw map[string]any

	// Properties maps sibling property names to their subschemas, used by
	// completion to offer keys.
	Properties map[string]*Node

	// Required lists the required property names at this node.
	Required []string
}

// Description returns the schema's "description" keyword, if any.
func (n *Node) Description() string {
	if n == nil || n.Raw == nil {
		return ""
	}
	s, _ := n.Raw["description"].(string)
	return s
}

// Title returns the schema's "title" keyword, if any.
func (n *Node) Title() string {
	if n == nil || n.Raw == nil {
		return ""
	}
	s, _ := n.Raw["title"].(string)
	return s
}

// Enum returns the schema's "enum" values, if any.
func (n *Node) Enum() []any {
	if n == nil || n.Raw == nil {
		return nil
	}
	e, _ := n.Raw["enum"].([]any)
	return e
}

// Default returns the schema's "default" keyword and whether it is
// present.
func (n *Node) Default() (any, bool) {
	if n == nil || n.Raw == nil {
		return nil, false
	}
	v, ok := n.Raw["default"]
	return v, ok
}

// Examples returns the schema's "examples" values, if any.
func (n *Node) Examples() []any {
	if n == nil || n.Raw == nil {
		return nil
	}
	e, _ := n.Raw["examples"].([]any)
	return e
}

// Type returns the schema's "type" keyword as a list (a single string is
// normalized to a one-element list).
func (n *Node) Type() []string {
	if n == nil || n.Raw == nil {
		return nil
	}
	switch t := n.Raw["type"].(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Navigator resolves, for a root schema document and a structural
// [jsonscan.Path], the subschema that governs the value at that path,
// walking $ref, allOf/anyOf/oneOf composition, and properties/
// patternProperties/additionalProperties/items/prefixItems. It operates on
// the plain map[string]any tree and is purely for navigation, never
// validation; validation is delegated wholesale to the compiled schema the
// Cache returns.
type Navigator struct {
	root map[string]any
	base string

	// resolveExternal fetches another schema document by absolute URL,
	// for $ref targets outside root. May be nil, in which case external
	// refs simply fail to resolve.
	resolveExternal func(url string) (map[string]any, error)
}

// NewNavigator returns a Navigator over root, whose own $id (or the
// supplied base) anchors relative $ref resolution.
func NewNavigator(root map[string]any, base string, resolveExternal func(string) (map[string]any, error)) *Navigator {
	if id, ok := root["$id"].(string); ok && id != "" {
		base = id
	}
	return &Navigator{root: root, base: base, resolveExternal: resolveExternal}
}

// visitKey identifies a (document, JSON-pointer) pair. Within one $ref
// chain — hops with no instance-path step in between — landing on the
// same pair twice is a cycle; across path steps a revisit is just schema
// recursion and perfectly legal.
type visitKey struct {
	docBase string
	pointer string
}

// maxResolveDepth bounds recursive descent so that adversarial composition
// graphs (a branch whose $ref points back at an ancestor without consuming
// any of the instance path) terminate instead of recursing forever. A
// legitimate resolution consumes a path element or descends into a
// strictly deeper subschema on every hop, so real lookups stay far below
// this.
const maxResolveDepth = 128

// At resolves the subschema governing path, starting from the document
// root (the empty path resolves to the root schema itself).
func (nv *Navigator) At(path jsonscan.Path) (*Node, error) {
	node, _, err := nv.resolve(nv.root, nv.base, "", path, 0)
	if err != nil {
		return nil, err
	}
	return node, nil
}

// resolve walks schema (rooted at docBase, addressed by pointer so far)
// down the remaining elements of path, returning the [Node] that governs
// the value at the end of path.
func (nv *Navigator) resolve(schema map[string]any, docBase, pointer string, path jsonscan.Path, depth int) (*Node, string, error) {
	if depth > maxResolveDepth {
		return nil, pointer, fmt.Errorf("schema: resolution exceeds depth limit at %s#%s", docBase, pointer)
	}
	schema, docBase, pointer, err := nv.deref(schema, docBase, pointer)
	if err != nil {
		return nil, pointer, err
	}
	if len(path) == 0 {
		return nv.toNode(schema, docBase), pointer, nil
	}

	step := path[0]
	rest := path[1:]

	if step.IsIndex {
		return nv.resolveArrayStep(schema, docBase, pointer, step.Index, rest, depth)
	}
	return nv.resolveObjectStep(schema, docBase, pointer, step.Key, rest, depth)
}

func (nv *Navigator) resolveObjectStep(schema map[string]any, docBase, pointer, key string, rest jsonscan.Path, depth int) (*Node, string, error) {
	if props, ok := schema["properties"].(map[string]any); ok {
		if sub, ok := props[key]; ok {
			subSchema, ok := asSchemaObject(sub)
			if ok {
				return nv.resolve(subSchema, docBase, pointer+"/properties/"+escapePointerToken(key), rest, depth+1)
			}
		}
	}
	if pp, ok := schema["patternProperties"].(map[string]any); ok {
		for pattern, sub := range pp {
			re, err := regexp.Compile(pattern)
			if err != nil {
				continue
			}
			if re.MatchString(key) {
				if subSchema, ok := asSchemaObject(sub); ok {
					return nv.resolve(subSchema, docBase, pointer+"/patternProperties/"+escapePointerToken(pattern), rest, depth+1)
				}
			}
		}
	}
	if ap, ok := schema["additionalProperties"]; ok {
		if subSchema, ok := asSchemaObject(ap); ok {
			return nv.resolve(subSchema, docBase, pointer+"/additionalProperties", rest, depth+1)
		}
	}
	if node, ptr, ok := nv.resolveViaComposition(schema, docBase, pointer, jsonscan.PathElement{Key: key}, rest, depth); ok {
		return node, ptr, nil
	}
	// No applicable keyword: an unconstrained subschema (equivalent to
	// `true`), matching additionalProperties' documented default.
	return nv.toNode(map[string]any{}, docBase), pointer, nil
}

func (nv *Navigator) resolveArrayStep(schema map[string]any, docBase, pointer string, index int, rest jsonscan.Path, depth int) (*Node, string, error) {
	if prefix, ok := schema["prefixItems"].([]any); ok && index < len(prefix) {
		if subSchema, ok := asSchemaObject(prefix[index]); ok {
			return nv.resolve(subSchema, docBase, fmt.Sprintf("%s/prefixItems/%d", pointer, index), rest, depth+1)
		}
	}
	if items, ok := schema["items"]; ok {
		if subSchema, ok := asSchemaObject(items); ok {
			return nv.resolve(subSchema, docBase, pointer+"/items", rest, depth+1)
		}
	}
	if node, ptr, ok := nv.resolveViaComposition(schema, docBase, pointer, jsonscan.PathElement{Index: index, IsIndex: true}, rest, depth); ok {
		return node, ptr, nil
	}
	return nv.toNode(map[string]any{}, docBase), pointer, nil
}

// resolveViaComposition tries to descend one path step through each
// allOf/anyOf/oneOf branch of schema, in keyword then branch order, taking
// the first branch that yields a constrained child.
func (nv *Navigator) resolveViaComposition(schema map[string]any, docBase, pointer string, step jsonscan.PathElement, rest jsonscan.Path, depth int) (*Node, string, bool) {
	path := append(jsonscan.Path{step}, rest...)
	for _, kw := range []string{"allOf", "anyOf", "oneOf"} {
		branches, ok := schema[kw].([]any)
		if !ok {
			continue
		}
		for i, b := range branches {
			branchSchema, ok := asSchemaObject(b)
			if !ok {
				continue
			}
			branchPointer := fmt.Sprintf("%s/%s/%d", pointer, kw, i)
			node, ptr, err := nv.resolve(branchSchema, docBase, branchPointer, path, depth+1)
			if err != nil || node == nil || len(node.Raw) == 0 {
				continue
			}
			return node, ptr, true
		}
	}
	return nil, "", false
}

// deref follows a $ref chain until schema settles on a node with no $ref.
// The visited set is local to the chain: recursion that re-enters the same
// schema node via distinct instance-path steps must not trip it, only a
// ref pointing (possibly transitively) back at itself. On a revisit the
// current node is returned unchanged, so navigation over a cyclic graph
// terminates instead of erroring.
func (nv *Navigator) deref(schema map[string]any, docBase, pointer string) (map[string]any, string, string, error) {
	visited := make(map[visitKey]bool)
	for {
		ref, hasRef := schema["$ref"].(string)
		if !hasRef {
			return schema, docBase, pointer, nil
		}
		key := visitKey{docBase: docBase, pointer: pointer}
		if visited[key] {
			return schema, docBase, pointer, nil
		}
		visited[key] = true

		target, newBase, newPointer, err := nv.followRef(docBase, ref)
		if err != nil {
			return nil, docBase, pointer, err
		}
		schema, docBase, pointer = target, newBase, newPointer
	}
}

// followRef resolves ref (which may be a JSON pointer fragment like
// "#/$defs/foo", an absolute URL, or a relative URL with a fragment)
// against docBase, returning the target schema object.
func (nv *Navigator) followRef(docBase, ref string) (map[string]any, string, string, error) {
	refURL, fragment, _ := strings.Cut(ref, "#")

	targetBase := docBase
	targetDoc := nv.root
	if refURL != "" {
		resolved, err := resolveURL(docBase, refURL)
		if err != nil {
			return nil, "", "", fmt.Errorf("schema: resolve $ref %q: %w", ref, err)
		}
		if resolved == nv.base {
			targetDoc = nv.root
		} else if nv.resolveExternal != nil {
			doc, err := nv.resolveExternal(resolved)
			if err != nil {
				return nil, "", "", fmt.Errorf("schema: fetch $ref target %q: %w", resolved, err)
			}
			targetDoc = doc
		} else {
			return nil, "", "", fmt.Errorf("schema: no resolver for external $ref %q", resolved)
		}
		targetBase = resolved
	}

	node, err := resolveJSONPointer(targetDoc, fragment)
	if err != nil {
		return nil, "", "", fmt.Errorf("schema: $ref %q: %w", ref, err)
	}
	return node, targetBase, fragment, nil
}

// resolveJSONPointer walks a JSON Pointer (RFC 6901) fragment, without the
// leading '#', against doc.
func resolveJSONPointer(doc map[string]any, pointer string) (map[string]any, error) {
	if pointer == "" {
		return doc, nil
	}
	pointer = strings.TrimPrefix(pointer, "/")
	var cur any = doc
	for _, tok := range strings.Split(pointer, "/") {
		tok = unescapePointerToken(tok)
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[tok]
			if !ok {
				return nil, fmt.Errorf("pointer token %q not found", tok)
			}
			cur = next
		case []any:
			var idx int
			if _, err := fmt.Sscanf(tok, "%d", &idx); err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("pointer token %q is not a valid array index", tok)
			}
			cur = v[idx]
		default:
			return nil, fmt.Errorf("pointer token %q: not an object or array", tok)
		}
	}
	obj, ok := cur.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("pointer %q does not resolve to a schema object", pointer)
	}
	return obj, nil
}

// toNode builds the navigable [Node] for schema, folding in allOf/anyOf/
// oneOf branches' properties so that completion sees the union of
// properties contributed by composition, matching how draft 2020-12
// applicators compose (each branch is evaluated against the same
// instance, so all branches' properties are simultaneously "visible").
func (nv *Navigator) toNode(schema map[string]any, docBase string) *Node {
	n := &Node{Raw: schema, Properties: make(map[string]*Node)}

	if props, ok := schema["properties"].(map[string]any); ok {
		for name, sub := range props {
			subSchema, ok := asSchemaObject(sub)
			if !ok {
				continue
			}
			// One deref level is enough here: a property node's own
			// keywords feed completion labels and details, while anything
			// deeper is resolved on demand when that property becomes the
			// navigation target. Recursing fully would never terminate on
			// a schema whose properties refer back to it.
			resolved, _, _, err := nv.deref(subSchema, docBase, "")
			if err != nil {
				continue
			}
			n.Properties[name] = &Node{Raw: resolved, Properties: map[string]*Node{}}
		}
	}
	if req, ok := schema["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				n.Required = append(n.Required, s)
			}
		}
	}

	for _, kw := range []string{"allOf", "anyOf", "oneOf"} {
		branches, ok := schema[kw].([]any)
		if !ok {
			continue
		}
		for _, b := range branches {
			branchSchema, ok := asSchemaObject(b)
			if !ok {
				continue
			}
			branchNode := nv.toNode(branchSchema, docBase)
			for name, sub := range branchNode.Properties {
				if _, exists := n.Properties[name]; !exists {
					n.Properties[name] = sub
				}
			}
			n.Required = append(n.Required, branchNode.Required...)
		}
	}

	return n
}

// asSchemaObject normalizes a raw JSON Schema value (object or boolean) to
// a map[string]any, treating `true` as an empty (unconstrained) schema and
// `false` as a schema matching nothing (returned as {"not":{}}, which is
// close enough for navigation purposes — no feature engine distinguishes
// "matches nothing" from "an empty schema nobody will satisfy").
func asSchemaObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case bool:
		if t {
			return map[string]any{}, true
		}
		return map[string]any{"not": map[string]any{}}, true
	default:
		return nil, false
	}
}

func escapePointerToken(tok string) string {
	tok = strings.ReplaceAll(tok, "~", "~0")
	tok = strings.ReplaceAll(tok, "/", "~1")
	return tok
}

func unescapePointerToken(tok string) string {
	tok = strings.ReplaceAll(tok, "~1", "/")
	tok = strings.ReplaceAll(tok, "~0", "~")
	return tok
}

func resolveURL(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// ParseDocument decodes a raw schema document into the plain-map form the
// Navigator operates on.
func ParseDocument(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("schema: parse document: %w", err)
	}
	return doc, nil
}
