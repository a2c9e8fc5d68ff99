package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Node is the JSON-backed Object implementation.
//
// Wire form:
//
//	{
//	  "type": "event",
//	  "id": 42,
//	  "title": "Jazz Night",
//	  "fields": {
//	    "field_description": "Live music",
//	    "field_tags": {"kind": "entity-reference", "target": "taxonomy_term",
//	                   "values": [{"type": "tags", "id": 3, "title": "jazz"}]}
//	  }
//	}
//
// A field given as a bare JSON value or array is a scalar field (boolean if
// every value is a bool).
type Node struct {
	typ    string
	id     string
	title  string
	fields map[string]*Field
}

var _ Object = (*Node)(nil)

// NewNode builds a Node from already-typed fields.
func NewNode(typ, id, title string, fields ...*Field) *Node {
	n := &Node{typ: typ, id: id, title: title, fields: make(map[string]*Field, len(fields))}
	for _, f := range fields {
		n.fields[f.Name] = f
	}
	return n
}

// Type, ID and Title return "" on a nil *Node, so a dangling reference
// reads as an empty object.
func (n *Node) Type() string {
	if n == nil {
		return ""
	}
	return n.typ
}

func (n *Node) ID() string {
	if n == nil {
		return ""
	}
	return n.id
}

func (n *Node) Title() string {
	if n == nil {
		return ""
	}
	return n.title
}

// Field returns the named field. "title", "id" and "type" are available as
// scalar fields unless the node declares a field with that name.
func (n *Node) Field(name string) (*Field, bool) {
	if n == nil {
		return nil, false
	}
	if f, ok := n.fields[name]; ok {
		return f, true
	}
	switch name {
	case "title":
		return builtin(name, n.title), true
	case "id":
		return builtin(name, n.id), true
	case "type":
		return builtin(name, n.typ), true
	}
	return nil, false
}

func builtin(name, value string) *Field {
	f := &Field{Name: name, Kind: KindScalar}
	if value != "" {
		f.Values = []any{value}
	}
	return f
}

// Load reads a Node from a JSON file.
func Load(path string) (*Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	n, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// Decode reads one Node from r. Type and id are required.
func Decode(r io.Reader) (*Node, error) {
	var n Node
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	if n.typ == "" {
		return nil, errors.New("decode object: missing type")
	}
	if n.id == "" {
		return nil, errors.New("decode object: missing id")
	}
	return &n, nil
}

type nodeJSON struct {
	Type   string                     `json:"type"`
	ID     json.RawMessage            `json:"id"`
	Title  string                     `json:"title"`
	Fields map[string]json.RawMessage `json:"fields"`
}

type fieldJSON struct {
	Kind   Kind              `json:"kind"`
	Target string            `json:"target"`
	Values []json.RawMessage `json:"values"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, err := decodeID(raw.ID)
	if err != nil {
		return err
	}

	n.typ = raw.Type
	n.id = id
	n.title = raw.Title
	n.fields = make(map[string]*Field, len(raw.Fields))
	for name, fieldData := range raw.Fields {
		f, err := decodeField(name, fieldData)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		n.fields[name] = f
	}
	return nil
}

func decodeID(data json.RawMessage) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return "", nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", fmt.Errorf("id: %w", err)
		}
		return s, nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return "", fmt.Errorf("id must be a string or number: %w", err)
	}
	return num.String(), nil
}

func decodeField(name string, data json.RawMessage) (*Field, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var raw fieldJSON
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		f := &Field{Name: name, Kind: raw.Kind, Target: raw.Target}
		if f.Kind == "" {
			f.Kind = KindScalar
		}
		if f.Kind == KindEntityReference && f.Target == "" {
			f.Target = TargetContent
		}
		for i, v := range raw.Values {
			val, err := decodeValue(f.Kind, v)
			if err != nil {
				return nil, fmt.Errorf("values[%d]: %w", i, err)
			}
			f.Values = append(f.Values, val)
		}
		return f, nil
	}

	// Shorthand: bare value or array of values.
	var values []json.RawMessage
	switch {
	case len(data) == 0 || string(data) == "null":
	case data[0] == '[':
		if err := json.Unmarshal(data, &values); err != nil {
			return nil, err
		}
	default:
		values = []json.RawMessage{data}
	}

	f := &Field{Name: name, Kind: KindScalar}
	allBool := len(values) > 0
	for i, v := range values {
		val, err := decodePrimitive(v)
		if err != nil {
			return nil, fmt.Errorf("values[%d]: %w", i, err)
		}
		if _, ok := val.(bool); !ok {
			allBool = false
		}
		f.Values = append(f.Values, val)
	}
	if allBool {
		f.Kind = KindBoolean
	}
	return f, nil
}

func decodeValue(kind Kind, data json.RawMessage) (any, error) {
	data = bytes.TrimSpace(data)
	switch kind {
	case KindEntityReference:
		var ref Node
		if err := json.Unmarshal(data, &ref); err != nil {
			return nil, fmt.Errorf("entity reference: %w", err)
		}
		return &ref, nil

	case KindImageReference:
		if len(data) > 0 && data[0] == '"' {
			var uri string
			err := json.Unmarshal(data, &uri)
			return File{URI: uri}, err
		}
		var file File
		err := json.Unmarshal(data, &file)
		return file, err

	case KindLink:
		if len(data) > 0 && data[0] == '"' {
			var uri string
			err := json.Unmarshal(data, &uri)
			return Link{URI: uri}, err
		}
		var link Link
		err := json.Unmarshal(data, &link)
		return link, err

	case KindDateRange:
		var dr DateRange
		err := json.Unmarshal(data, &dr)
		return dr, err

	case KindBoolean:
		val, err := decodePrimitive(data)
		if err != nil {
			return nil, err
		}
		switch v := val.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		case string:
			return v != "" && v != "0", nil
		}
		return nil, fmt.Errorf("boolean value expected, got %s", data)
	}

	return decodePrimitive(data)
}

// decodePrimitive decodes a scalar value. Numbers become int64 when
// integral, float64 otherwise; objects and arrays are kept as decoded by
// encoding/json with json.Number leaves.
func decodePrimitive(data json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if num, ok := v.(json.Number); ok {
		if i, err := strconv.ParseInt(num.String(), 10, 64); err == nil {
			return i, nil
		}
		f, err := num.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %s: %w", num, err)
		}
		return f, nil
	}
	return v, nil
}
