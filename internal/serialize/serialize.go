// Package serialize turns a resolved content field into a payload value.
//
// Serialization is a closed table keyed by field kind. Two field names are
// handled before the table for scalar and multi-value fields, because the
// catalog expects organizer references as objects:
//
//	field_partner_organizers -> [{"name": v}, ...]
//	field_organiser          -> {"name": first value}
//
// A rule returns false when the field yields nothing; callers omit the key.
package serialize

import (
	"github.com/roach88/eventpush/internal/content"
	"github.com/roach88/eventpush/internal/ir"
)

// Field names with built-in handling.
const (
	FieldPartnerOrganizers = "field_partner_organizers"
	FieldOrganiser         = "field_organiser"
)

// FileURLs makes stored file URIs absolute. *site.Site implements it.
type FileURLs interface {
	FileURL(uri string) string
}

type rule func(s *Serializer, f *content.Field) (ir.Value, bool)

var kindRules = map[content.Kind]rule{
	content.KindImageReference:  (*Serializer).image,
	content.KindLink:            (*Serializer).link,
	content.KindEntityReference: (*Serializer).entityReference,
	content.KindDateRange:       (*Serializer).dateRange,
	content.KindBoolean:         (*Serializer).boolean,
}

var nameRules = map[string]rule{
	FieldPartnerOrganizers: (*Serializer).partnerOrganizers,
	FieldOrganiser:         (*Serializer).organiser,
}

// Serializer converts fields to ir values.
type Serializer struct {
	files FileURLs
}

// New returns a Serializer. With a nil files, image URIs are emitted as stored.
func New(files FileURLs) *Serializer {
	return &Serializer{files: files}
}

// Serialize converts f. The bool is false when the field yields no value.
func (s *Serializer) Serialize(f *content.Field) (ir.Value, bool) {
	if f == nil {
		return nil, false
	}

	if f.Kind == content.KindScalar || f.Kind == content.KindMultiValue {
		if r, ok := nameRules[f.Name]; ok {
			return r(s, f)
		}
	}

	if r, ok := kindRules[f.Kind]; ok {
		return r(s, f)
	}

	return s.scalar(f)
}

// scalar is the default rule: one value as is, several as a list.
func (s *Serializer) scalar(f *content.Field) (ir.Value, bool) {
	values := make(ir.Array, 0, len(f.Values))
	for _, raw := range f.Values {
		v, err := ir.FromGo(raw)
		if err != nil {
			return nil, false
		}
		values = append(values, v)
	}
	return cardinality(values)
}

func (s *Serializer) image(f *content.Field) (ir.Value, bool) {
	if len(f.Values) == 0 {
		return nil, false
	}

	var uri string
	switch v := f.Values[0].(type) {
	case content.File:
		uri = v.URI
	case *content.File:
		if v != nil {
			uri = v.URI
		}
	case string:
		uri = v
	}
	if uri == "" {
		return nil, false
	}

	if s.files != nil {
		uri = s.files.FileURL(uri)
	}
	return ir.String(uri), true
}

func (s *Serializer) link(f *content.Field) (ir.Value, bool) {
	if len(f.Values) == 0 {
		return nil, false
	}

	switch v := f.Values[0].(type) {
	case content.Link:
		return ir.String(v.URI), true
	case *content.Link:
		if v != nil {
			return ir.String(v.URI), true
		}
	case string:
		return ir.String(v), true
	}
	return nil, false
}

// entityReference emits titles of referenced content as a string when there
// is exactly one and a list otherwise, but always a list for taxonomy terms.
func (s *Serializer) entityReference(f *content.Field) (ir.Value, bool) {
	titles := make(ir.Array, 0, len(f.Values))
	for i := range f.Values {
		if obj, ok := f.Entity(i); ok {
			titles = append(titles, ir.String(obj.Title()))
		}
	}

	switch f.Target {
	case content.TargetContent, "":
		return cardinality(titles)
	case content.TargetTaxonomyTerm:
		if len(titles) == 0 {
			return nil, false
		}
		return titles, true
	}
	return nil, false
}

func (s *Serializer) dateRange(f *content.Field) (ir.Value, bool) {
	ranges := make(ir.Array, 0, len(f.Values))
	for _, raw := range f.Values {
		var dr content.DateRange
		switch v := raw.(type) {
		case content.DateRange:
			dr = v
		case *content.DateRange:
			if v == nil {
				continue
			}
			dr = *v
		default:
			continue
		}
		ranges = append(ranges, ir.Object{
			"startDate": ir.String(dr.Start),
			"endDate":   ir.String(dr.End),
		})
	}
	if len(ranges) == 0 {
		return nil, false
	}
	return ranges, true
}

func (s *Serializer) boolean(f *content.Field) (ir.Value, bool) {
	values := make(ir.Array, 0, len(f.Values))
	for _, raw := range f.Values {
		values = append(values, ir.Bool(truthy(raw)))
	}
	return cardinality(values)
}

func (s *Serializer) partnerOrganizers(f *content.Field) (ir.Value, bool) {
	organizers := make(ir.Array, 0, len(f.Values))
	for _, raw := range f.Values {
		name, err := ir.FromGo(raw)
		if err != nil {
			return nil, false
		}
		organizers = append(organizers, ir.Object{"name": name})
	}
	if len(organizers) == 0 {
		return nil, false
	}
	return organizers, true
}

func (s *Serializer) organiser(f *content.Field) (ir.Value, bool) {
	if len(f.Values) == 0 {
		return nil, false
	}
	name, err := ir.FromGo(f.Values[0])
	if err != nil {
		return nil, false
	}
	return ir.Object{"name": name}, true
}

func cardinality(values ir.Array) (ir.Value, bool) {
	switch len(values) {
	case 0:
		return nil, false
	case 1:
		return values[0], true
	default:
		return values, true
	}
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case int:
		return b != 0
	case float64:
		return b != 0
	case string:
		return b != "" && b != "0"
	}
	return false
}
