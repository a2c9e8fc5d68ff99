// Package content models the local objects that get pushed to the catalog.
//
// The host content system owns these objects; eventpush only reads them.
// An Object has a type tag, an id that is stable within the type, a title
// and named fields. Each Field carries a kind and zero or more values.
package content

// Kind is the declared type of a field.
type Kind string

const (
	KindScalar          Kind = "scalar"
	KindImageReference  Kind = "image-reference"
	KindLink            Kind = "link"
	KindEntityReference Kind = "entity-reference"
	KindDateRange       Kind = "date-range"
	KindBoolean         Kind = "boolean"
	KindMultiValue      Kind = "multi-value"
)

// Entity reference targets.
const (
	TargetContent      = "node"
	TargetTaxonomyTerm = "taxonomy_term"
)

// Object is a read-only handle to a content object.
type Object interface {
	Type() string
	ID() string
	Title() string

	// Field returns the named field, or false if the object has none.
	Field(name string) (*Field, bool)
}

// Field is one named attribute of an Object.
//
// Values depend on Kind:
//   - KindEntityReference: Object
//   - KindImageReference: File
//   - KindLink: Link
//   - KindDateRange: DateRange
//   - KindBoolean: bool
//   - everything else: string, int64, float64, bool or nil
type Field struct {
	Name string
	Kind Kind

	// Target is the referenced entity type for KindEntityReference
	// (TargetContent or TargetTaxonomyTerm).
	Target string

	Values []any
}

// Len returns the number of values.
func (f *Field) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Values)
}

// Entity returns the i-th value as an Object.
func (f *Field) Entity(i int) (Object, bool) {
	if f == nil || i < 0 || i >= len(f.Values) {
		return nil, false
	}
	obj, ok := f.Values[i].(Object)
	if !ok || IsNil(obj) {
		return nil, false
	}
	return obj, true
}

// IsNil reports whether obj is nil or a nil *Node. Hosts represent a
// deleted referenced object either way.
func IsNil(obj Object) bool {
	if obj == nil {
		return true
	}
	n, ok := obj.(*Node)
	return ok && n == nil
}

// File is an image or file reference.
type File struct {
	URI string `json:"uri"`
	Alt string `json:"alt,omitempty"`
}

// Link is a link field value.
type Link struct {
	URI   string `json:"uri"`
	Title string `json:"title,omitempty"`
}

// DateRange is one start/end pair. Both ends are kept as the host's strings.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}
