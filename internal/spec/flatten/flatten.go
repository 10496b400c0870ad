// Package flatten resolves internal pointer references in an API
// description tree.
//
// Description documents reference shared subtrees with JSON pointers
// ("$ref": "#/components/schemas/Product"). The script engine injects the
// description as a plain read-only binding, so every pointer is replaced by
// its resolved target up front. Cycles are detected per resolution path and
// substituted with a circular marker, which bounds recursion depth by the
// number of distinct pointers in the tree. Pointers that do not resolve are
// left in place as unresolved markers rather than raising an error.
package flatten

import (
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonpointer"
)

// CircularKey marks a reference that would revisit a pointer already on the
// current resolution path.
const CircularKey = "circular"

// Resolve returns a copy of tree with every internal pointer replaced by
// its resolved subtree. The input is not mutated.
func Resolve(tree map[string]interface{}) map[string]interface{} {
	r := &resolver{root: tree, onPath: make(map[string]bool)}
	out, _ := r.walk(tree).(map[string]interface{})
	if out == nil {
		return map[string]interface{}{}
	}
	return out
}

type resolver struct {
	root   map[string]interface{}
	onPath map[string]bool
	// loc is the pointer path of the node currently being walked. While a
	// target subtree is expanded, loc tracks the target's location so refs
	// nested inside it resolve against where they live in the document.
	loc []string
}

func (r *resolver) walk(node interface{}) interface{} {
	switch n := node.(type) {
	case map[string]interface{}:
		if ref, ok := refOf(n); ok {
			return r.resolveRef(ref, n)
		}
		out := make(map[string]interface{}, len(n))
		for k, v := range n {
			r.loc = append(r.loc, k)
			out[k] = r.walk(v)
			r.loc = r.loc[:len(r.loc)-1]
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(n))
		for i, v := range n {
			r.loc = append(r.loc, strconv.Itoa(i))
			out[i] = r.walk(v)
			r.loc = r.loc[:len(r.loc)-1]
		}
		return out
	default:
		return node
	}
}

func (r *resolver) resolveRef(ref string, original map[string]interface{}) interface{} {
	if r.onPath[ref] {
		return map[string]interface{}{CircularKey: ref}
	}

	if !strings.HasPrefix(ref, "#") {
		// External reference: left unresolved
		return copyMap(original)
	}

	fragment := strings.TrimPrefix(ref, "#")
	if fragment == "" {
		return map[string]interface{}{CircularKey: ref}
	}

	tokens := pointerTokens(fragment)
	// A ref that lives inside its own target is circular at this very node:
	// expanding it would reproduce the current location inside the copy.
	if hasPathPrefix(r.loc, tokens) {
		return map[string]interface{}{CircularKey: ref}
	}

	pointer, err := gojsonpointer.NewJsonPointer(fragment)
	if err != nil {
		return copyMap(original)
	}
	target, _, err := pointer.Get(r.root)
	if err != nil {
		return copyMap(original)
	}

	r.onPath[ref] = true
	saved := r.loc
	r.loc = tokens
	resolved := r.walk(target)
	r.loc = saved
	delete(r.onPath, ref)

	return resolved
}

// pointerTokens splits a pointer fragment into unescaped path segments.
func pointerTokens(fragment string) []string {
	parts := strings.Split(strings.TrimPrefix(fragment, "/"), "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		parts[i] = strings.ReplaceAll(p, "~0", "~")
	}
	return parts
}

func hasPathPrefix(loc, tokens []string) bool {
	if len(tokens) > len(loc) {
		return false
	}
	for i, tok := range tokens {
		if loc[i] != tok {
			return false
		}
	}
	return true
}

// refOf reports whether a node is a pointer marker.
func refOf(node map[string]interface{}) (string, bool) {
	v, ok := node["$ref"]
	if !ok {
		return "", false
	}
	ref, ok := v.(string)
	return ref, ok
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
