package mapping

import (
	"errors"

	"github.com/roach88/eventpush/internal/content"
	"github.com/roach88/eventpush/internal/ir"
	"github.com/roach88/eventpush/internal/resolve"
	"github.com/roach88/eventpush/internal/serialize"
)

// Transformer builds payloads from content objects.
type Transformer struct {
	serializer *serialize.Serializer
}

// NewTransformer returns a Transformer that serializes fields with s.
func NewTransformer(s *serialize.Serializer) *Transformer {
	if s == nil {
		s = serialize.New(nil)
	}
	return &Transformer{serializer: s}
}

// Transform builds the payload for obj under spec, then merges extra on top.
//
// For each rule: a path that resolves and serializes sets the key; a nested
// spec is built from the same root object and set when non-empty; otherwise
// the key's default is used, if any. Defaults for keys without a rule are
// always emitted. Keys in extra overwrite mapped keys.
//
// Resolution failures never surface; the key is simply left out.
func (t *Transformer) Transform(obj content.Object, spec *Spec, extra ir.Object) ir.Object {
	out := t.transform(obj, spec)
	out.Merge(extra)
	return out
}

func (t *Transformer) transform(obj content.Object, spec *Spec) ir.Object {
	out := ir.Object{}
	if spec == nil {
		return out
	}

	mapped := make(map[string]bool, len(spec.Fields))
	for _, r := range spec.Fields {
		mapped[r.Key] = true

		switch r.Node.Kind {
		case NodePath:
			if f, ok := resolve.Resolve(obj, r.Node.Path); ok {
				if v, ok := t.serializer.Serialize(f); ok {
					out[r.Key] = v
					continue
				}
			}
		case NodeSub:
			if sub := t.transform(obj, r.Node.Sub); len(sub) > 0 {
				out[r.Key] = sub
				continue
			}
		}

		if d, ok := spec.Defaults[r.Key]; ok {
			out[r.Key] = ir.Clone(d)
		}
	}

	for k, d := range spec.Defaults {
		if !mapped[k] {
			out[k] = ir.Clone(d)
		}
	}

	return out
}

// Diagnose resolves every path in spec strictly and returns the failures.
// Paths covered by a default are still reported.
func (t *Transformer) Diagnose(obj content.Object, spec *Spec) []*resolve.PathError {
	var out []*resolve.PathError
	if spec == nil {
		return out
	}
	for _, r := range spec.Fields {
		switch r.Node.Kind {
		case NodePath:
			if _, err := resolve.ResolveStrict(obj, r.Node.Path); err != nil {
				var pe *resolve.PathError
				if errors.As(err, &pe) {
					out = append(out, pe)
				}
			}
		case NodeSub:
			out = append(out, t.Diagnose(obj, r.Node.Sub)...)
		}
	}
	return out
}
