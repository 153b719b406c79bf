package cloudysetup

import (
	"encoding/json"
	"strings"
)

// PatchOperation is one RFC 6902 JSON Patch operation.
type PatchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value Value  `json:"value"`
}

// BuildUpdatePatch returns a JSON Patch document with one "add" operation per
// top-level property, in property order. "add" replaces existing members, so
// the document is valid whether or not the property is already set.
func BuildUpdatePatch(props Properties) ([]byte, error) {
	ops := make([]PatchOperation, 0, props.Len())
	for _, k := range props.Keys() {
		v, _ := props.Get(k)
		ops = append(ops, PatchOperation{Op: "add", Path: "/" + escapePointer(k), Value: v})
	}
	return json.Marshal(ops)
}

// escapePointer escapes a JSON Pointer reference token (RFC 6901).
func escapePointer(token string) string {
	return strings.NewReplacer("~", "~0", "/", "~1").Replace(token)
}
