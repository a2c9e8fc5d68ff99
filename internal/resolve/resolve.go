// Package resolve walks dotted, indexed paths through content objects.
//
// Grammar:
//
//	path    = segment { "." segment }
//	segment = name [ "[" digits "]" ]
//
// A plain segment looks up a field on the current object. When the current
// position is a field rather than an object, the field's first referenced
// entity is used. An index selects the N-th referenced entity of the field
// just looked up and continues from there. A path must end on a field.
package resolve

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/eventpush/internal/content"
)

// Segment is one parsed path step.
type Segment struct {
	Name  string
	Index int // -1 when the segment has no index
}

func (s Segment) String() string {
	if s.Index < 0 {
		return s.Name
	}
	return fmt.Sprintf("%s[%d]", s.Name, s.Index)
}

// Path is a parsed path.
type Path struct {
	raw      string
	Segments []Segment
}

func (p Path) String() string { return p.raw }

// PathError reports where strict resolution stopped.
type PathError struct {
	Path    string
	Segment string
	Reason  string
}

func (e *PathError) Error() string {
	if e.Segment == "" {
		return fmt.Sprintf("invalid path %q: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("invalid path %q at %q: %s", e.Path, e.Segment, e.Reason)
}

// Parse parses a path string.
func Parse(path string) (Path, error) {
	if path == "" {
		return Path{}, &PathError{Path: path, Reason: "empty path"}
	}

	var segments []Segment
	for part := range strings.SplitSeq(path, ".") {
		seg, err := parseSegment(part)
		if err != nil {
			return Path{}, &PathError{Path: path, Segment: part, Reason: err.Error()}
		}
		segments = append(segments, seg)
	}

	return Path{raw: path, Segments: segments}, nil
}

func parseSegment(part string) (Segment, error) {
	if part == "" {
		return Segment{}, fmt.Errorf("empty segment")
	}

	open := strings.IndexByte(part, '[')
	if open < 0 {
		if strings.ContainsRune(part, ']') {
			return Segment{}, fmt.Errorf("unbalanced bracket")
		}
		return Segment{Name: part, Index: -1}, nil
	}

	if open == 0 {
		return Segment{}, fmt.Errorf("index without field name")
	}
	if !strings.HasSuffix(part, "]") {
		return Segment{}, fmt.Errorf("index must close the segment")
	}

	digits := part[open+1 : len(part)-1]
	if digits == "" || strings.IndexFunc(digits, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return Segment{}, fmt.Errorf("index must be a non-negative integer")
	}
	idx, err := strconv.Atoi(digits)
	if err != nil {
		return Segment{}, fmt.Errorf("index out of range")
	}

	return Segment{Name: part[:open], Index: idx}, nil
}

// Resolve returns the field at path, or false when any step is missing.
func Resolve(root content.Object, path string) (*content.Field, bool) {
	f, err := ResolveStrict(root, path)
	return f, err == nil
}

// ResolveStrict is Resolve for diagnostic callers: it returns a *PathError
// naming the step that failed.
func ResolveStrict(root content.Object, path string) (*content.Field, error) {
	p, err := Parse(path)
	if err != nil {
		return nil, err
	}
	return p.Resolve(root)
}

// Resolve walks the parsed path from root.
func (p Path) Resolve(root content.Object) (*content.Field, error) {
	if content.IsNil(root) {
		return nil, &PathError{Path: p.raw, Reason: "no object"}
	}

	obj := root
	var field *content.Field

	for _, seg := range p.Segments {
		if field != nil {
			next, ok := field.Entity(0)
			if !ok {
				return nil, &PathError{Path: p.raw, Segment: seg.String(),
					Reason: fmt.Sprintf("field %q does not reference an object", field.Name)}
			}
			obj = next
			field = nil
		}

		if content.IsNil(obj) {
			return nil, &PathError{Path: p.raw, Segment: seg.String(), Reason: "no object"}
		}

		f, ok := obj.Field(seg.Name)
		if !ok || f == nil {
			return nil, &PathError{Path: p.raw, Segment: seg.String(),
				Reason: fmt.Sprintf("%s %q has no field %q", obj.Type(), obj.ID(), seg.Name)}
		}

		if seg.Index < 0 {
			field = f
			continue
		}

		next, ok := f.Entity(seg.Index)
		if !ok {
			return nil, &PathError{Path: p.raw, Segment: seg.String(),
				Reason: fmt.Sprintf("field %q has no referenced object at index %d", seg.Name, seg.Index)}
		}
		obj = next
	}

	if field == nil {
		return nil, &PathError{Path: p.raw, Reason: "path ends on an object, not a field"}
	}
	return field, nil
}
