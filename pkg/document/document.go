// Package document parses the target artifact under validation into an
// immutable typed tree. Absent fields resolve to a distinguished Missing
// node so evaluators can treat "field absent" as a first-class, checkable
// condition instead of a crash.
package document

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the type of a tree node.
type Kind int

const (
	KindMissing Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMapping
)

// String returns the lowercase kind name used in messages and contracts.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMapping:
		return "mapping"
	default:
		return "missing"
	}
}

// KindFromName maps a contract type name to a Kind. Unknown names map to
// KindMissing, which no real node carries, so type checks against an
// unknown name always fail.
func KindFromName(name string) Kind {
	switch name {
	case "string":
		return KindString
	case "number":
		return KindNumber
	case "bool":
		return KindBool
	case "list":
		return KindList
	case "mapping":
		return KindMapping
	default:
		return KindMissing
	}
}

// Field is one ordered key/value pair of a mapping node.
type Field struct {
	Key   string
	Value *Node
}

// Node is a single vertex of the document tree. Exactly the fields for
// its Kind are meaningful; the rest stay zero.
type Node struct {
	Kind   Kind
	Str    string
	Num    float64
	Bool   bool
	Items  []*Node // KindList
	Fields []Field // KindMapping, insertion order preserved
	Line   int
	Column int

	// Explicit marks a Missing node that was written out as null in the
	// source, as opposed to a path that simply does not resolve.
	Explicit bool
}

// missing is the shared node returned for unresolved paths.
var missing = &Node{Kind: KindMissing}

// Missing reports whether the node is absent (implicitly or explicitly).
func (n *Node) Missing() bool {
	return n == nil || n.Kind == KindMissing
}

// Field returns the value for key, or the shared Missing node.
func (n *Node) Field(key string) *Node {
	if n == nil || n.Kind != KindMapping {
		return missing
	}
	for _, f := range n.Fields {
		if f.Key == key {
			return f.Value
		}
	}
	return missing
}

// Index returns the i-th list item, or the shared Missing node.
func (n *Node) Index(i int) *Node {
	if n == nil || n.Kind != KindList || i < 0 || i >= len(n.Items) {
		return missing
	}
	return n.Items[i]
}

// Len returns the child count of a list or mapping node, 0 otherwise.
func (n *Node) Len() int {
	switch {
	case n == nil:
		return 0
	case n.Kind == KindList:
		return len(n.Items)
	case n.Kind == KindMapping:
		return len(n.Fields)
	default:
		return 0
	}
}

// Empty reports whether the node holds an empty string, list, or mapping.
// Missing nodes are not Empty; absence and emptiness are distinct
// conditions and rules pin down which one they accept.
func (n *Node) Empty() bool {
	if n == nil || n.Missing() {
		return false
	}
	switch n.Kind {
	case KindString:
		return n.Str == ""
	case KindList:
		return len(n.Items) == 0
	case KindMapping:
		return len(n.Fields) == 0
	default:
		return false
	}
}

// Document is the parsed target artifact. Read-only after Parse.
type Document struct {
	Root *Node
}

// Lookup resolves a dotted path ("module.deps.0.name") from the root.
// Path segments that look like integers index into lists. Lookup never
// fails; any unresolvable segment yields the Missing node.
func (d *Document) Lookup(path string) *Node {
	if d == nil || d.Root == nil {
		return missing
	}
	node := d.Root
	if path == "" {
		return node
	}
	for _, seg := range strings.Split(path, ".") {
		if node.Missing() {
			return missing
		}
		if node.Kind == KindList {
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return missing
			}
			node = node.Index(idx)
			continue
		}
		node = node.Field(seg)
	}
	return node
}

// Strings returns the scalar items of the list at path rendered as
// strings, and true when the path resolves to a list of scalars only.
func (d *Document) Strings(path string) ([]string, bool) {
	node := d.Lookup(path)
	if node.Kind != KindList {
		return nil, false
	}
	out := make([]string, 0, len(node.Items))
	for _, item := range node.Items {
		switch item.Kind {
		case KindString:
			out = append(out, item.Str)
		case KindNumber:
			out = append(out, strconv.FormatFloat(item.Num, 'g', -1, 64))
		case KindBool:
			out = append(out, strconv.FormatBool(item.Bool))
		default:
			return nil, false
		}
	}
	return out, true
}

// Number returns the numeric value at path and whether it resolved to a
// number node.
func (d *Document) Number(path string) (float64, bool) {
	node := d.Lookup(path)
	if node.Kind != KindNumber {
		return 0, false
	}
	return node.Num, true
}

// ToInterface converts the tree into plain maps, slices, and scalars for
// consumption by the declarative backend. Explicit Missing nodes become
// nil; mappings keep only their present fields.
func (n *Node) ToInterface() any {
	switch n.Kind {
	case KindString:
		return n.Str
	case KindNumber:
		// Integral numbers surface as int64 so predicate arithmetic and
		// string conversion behave like the imperative side.
		if n.Num == float64(int64(n.Num)) {
			return int64(n.Num)
		}
		return n.Num
	case KindBool:
		return n.Bool
	case KindList:
		items := make([]any, len(n.Items))
		for i, item := range n.Items {
			items[i] = item.ToInterface()
		}
		return items
	case KindMapping:
		m := make(map[string]any, len(n.Fields))
		for _, f := range n.Fields {
			m[f.Key] = f.Value.ToInterface()
		}
		return m
	default:
		return nil
	}
}

// Equal reports structural equality of two nodes, field for field.
// Explicit and implicit Missing compare equal; source positions are
// ignored.
func Equal(a, b *Node) bool {
	if a.Missing() || b.Missing() {
		return a.Missing() && b.Missing()
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindString:
		return a.Str == b.Str
	case KindNumber:
		return a.Num == b.Num
	case KindBool:
		return a.Bool == b.Bool
	case KindList:
		if len(a.Items) != len(b.Items) {
			return false
		}
		for i := range a.Items {
			if !Equal(a.Items[i], b.Items[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(a.Fields) != len(b.Fields) {
			return false
		}
		for i := range a.Fields {
			if a.Fields[i].Key != b.Fields[i].Key {
				return false
			}
			if !Equal(a.Fields[i].Value, b.Fields[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// ParseError reports malformed document syntax with source position.
type ParseError struct {
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("document parse error at line %d, column %d: %s", e.Line, e.Column, e.Msg)
	}
	return fmt.Sprintf("document parse error: %s", e.Msg)
}
