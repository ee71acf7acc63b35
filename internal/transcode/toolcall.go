package transcode

import "strings"

// ToolCallAssembly is the mutable per-stream accumulator keyed by a
// stable index slot, per spec.md §3 "ToolCallAssembly". One request's
// upstream reader owns this map exclusively, so no locking is needed
// inside a request (spec.md §9 Design Notes).
type ToolCallAssembly struct {
	ID        string
	Name      string
	Arguments strings.Builder
	Started   bool // content_block_start already emitted
	Completed bool // multi-object bug suppressed further fragments
	BlockIndex int
}

// Append adds one argument-JSON fragment, applying the multi-object
// detection heuristic from spec.md §4.8 step 4: if the accumulated
// text already ends with '}' and the new fragment starts with '{',
// the slot is marked completed and the fragment is dropped. Returns
// the fragment that should actually be flushed to the caller (empty
// once completed).
func (a *ToolCallAssembly) Append(fragment string) string {
	if a.Completed {
		return ""
	}
	current := a.Arguments.String()
	if current != "" && strings.HasSuffix(strings.TrimRight(current, " \t\n"), "}") && strings.HasPrefix(strings.TrimLeft(fragment, " \t\n"), "{") {
		a.Completed = true
		return ""
	}
	a.Arguments.WriteString(fragment)
	return fragment
}
