// Package mapping holds the declarative field mapping from local content
// types to remote catalog payloads, and the transformer that applies it.
//
// A mapping document is YAML keyed by local content type:
//
//	event:
//	  type: event              # remote resource kind
//	  mapping:
//	    name: title            # path into the object
//	    occurrences:           # nested composite field, same root object
//	      mapping:
//	        startDate: field_start_time
//	      defaults:
//	        place: {name: Dokk1}
//	    ticketPurchaseUrl:     # empty: default only
//	  defaults:
//	    langcode: da
//
// The document is parsed once into a Set; transformation never sees YAML.
package mapping

import (
	"slices"

	"github.com/roach88/eventpush/internal/ir"
)

// NodeKind tags the variants of Node.
type NodeKind int

const (
	// NodeEmpty maps nothing; only a default can fill the key.
	NodeEmpty NodeKind = iota
	// NodePath resolves a path against the object.
	NodePath
	// NodeSub builds a nested object from a sub-spec.
	NodeSub
)

func (k NodeKind) String() string {
	switch k {
	case NodePath:
		return "path"
	case NodeSub:
		return "sub"
	default:
		return "empty"
	}
}

// Node is the value side of one mapping rule.
type Node struct {
	Kind NodeKind
	Path string // NodePath
	Sub  *Spec  // NodeSub
}

// PathNode returns a NodePath node.
func PathNode(path string) Node { return Node{Kind: NodePath, Path: path} }

// SubNode returns a NodeSub node.
func SubNode(sub *Spec) Node { return Node{Kind: NodeSub, Sub: sub} }

// Rule maps one remote field name to a Node.
type Rule struct {
	Key  string
	Node Node
}

// Spec is the mapping for one content type, or a nested composite field.
type Spec struct {
	// Type is the remote resource kind. Empty on nested specs.
	Type string

	// Fields keeps document order; keys are unique.
	Fields []Rule

	Defaults ir.Object
}

// Rule returns the rule for key.
func (s *Spec) Rule(key string) (Rule, bool) {
	for _, r := range s.Fields {
		if r.Key == key {
			return r, true
		}
	}
	return Rule{}, false
}

// Set is a parsed mapping document. The zero value and nil map no types.
type Set struct {
	specs map[string]*Spec
}

// NewSet builds a Set from specs keyed by content type.
func NewSet(specs map[string]*Spec) *Set {
	return &Set{specs: specs}
}

// Lookup returns the spec for a content type.
func (s *Set) Lookup(objectType string) (*Spec, bool) {
	if s == nil {
		return nil, false
	}
	spec, ok := s.specs[objectType]
	return spec, ok && spec != nil
}

// Types returns the mapped content types, sorted.
func (s *Set) Types() []string {
	if s == nil {
		return nil
	}
	types := make([]string, 0, len(s.specs))
	for t := range s.specs {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Len returns the number of mapped content types.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.specs)
}
