package mapping

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/eventpush/internal/ir"
	"github.com/roach88/eventpush/internal/resolve"
)

// ParseError reports a malformed mapping document.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("mapping %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Load reads and parses a mapping document from a file.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Source: path, Err: err}
	}
	return Parse(path, data)
}

// Parse parses a mapping document. source names the document in errors.
//
// The document is checked against the CUE schema first, then decoded. An
// empty document parses to an empty Set.
func Parse(source string, data []byte) (*Set, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NewSet(nil), nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}
	if len(root.Content) == 0 || isNull(root.Content[0]) {
		return NewSet(nil), nil
	}

	if err := Validate(source, data); err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}

	var specs map[string]*Spec
	if err := root.Content[0].Decode(&specs); err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}
	for typ, spec := range specs {
		if spec == nil || spec.Type == "" {
			return nil, &ParseError{Source: source, Err: fmt.Errorf("content type %q: missing remote type", typ)}
		}
	}

	return NewSet(specs), nil
}

// UnmarshalYAML decodes a spec, keeping mapping rules in document order.
func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	node = deref(node)
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: mapping spec must be a map", node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], deref(node.Content[i+1])

		var err error
		switch key.Value {
		case "type":
			if !isNull(val) {
				err = val.Decode(&s.Type)
			}
		case "mapping":
			s.Fields, err = decodeFields(val)
		case "defaults":
			s.Defaults, err = decodeDefaults(val)
		default:
			err = fmt.Errorf("line %d: unknown key %q", key.Line, key.Value)
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func decodeFields(node *yaml.Node) ([]Rule, error) {
	if isNull(node) {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: mapping must be a map", node.Line)
	}

	seen := make(map[string]bool, len(node.Content)/2)
	rules := make([]Rule, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], deref(node.Content[i+1])
		if seen[key.Value] {
			return nil, fmt.Errorf("line %d: duplicate mapping key %q", key.Line, key.Value)
		}
		seen[key.Value] = true

		rule := Rule{Key: key.Value}
		switch {
		case isNull(val):
			rule.Node = Node{Kind: NodeEmpty}
		case val.Kind == yaml.ScalarNode && val.ShortTag() == "!!str":
			if _, err := resolve.Parse(val.Value); err != nil {
				return nil, fmt.Errorf("line %d: %w", val.Line, err)
			}
			rule.Node = PathNode(val.Value)
		case val.Kind == yaml.MappingNode:
			var sub Spec
			if err := val.Decode(&sub); err != nil {
				return nil, err
			}
			rule.Node = SubNode(&sub)
		default:
			return nil, fmt.Errorf("line %d: %q must be a path, a nested mapping or empty", val.Line, key.Value)
		}
		rules = append(rules, rule)
	}

	return rules, nil
}

func decodeDefaults(node *yaml.Node) (ir.Object, error) {
	if isNull(node) {
		return nil, nil
	}

	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return nil, fmt.Errorf("line %d: defaults: %w", node.Line, err)
	}

	defaults := make(ir.Object, len(raw))
	for k, v := range raw {
		val, err := ir.FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("line %d: default %q: %w", node.Line, k, err)
		}
		defaults[k] = val
	}
	return defaults, nil
}

func deref(node *yaml.Node) *yaml.Node {
	for node != nil && node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}

func isNull(node *yaml.Node) bool {
	node = deref(node)
	return node == nil || node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null"
}
