// Package reconcile builds the initial values of a wizard from the entity the
// backend returned, the locally saved draft and the form defaults.
package reconcile

import "github.com/goliatone/go-formwizard/pkg/values"

// Sources are the inputs of Reconcile. Any of them may be nil.
type Sources struct {
	Server   map[string]any
	Draft    map[string]any
	Defaults map[string]any
}

// Synthesizer derives form-only fields from the server shape, for example an
// "online" toggle inferred from a sentinel location id. It returns only the
// fields it derives.
type Synthesizer func(server map[string]any) map[string]any

// Reconcile merges the sources with precedence draft > server > defaults.
// Server nulls never override defaults, and an empty array never replaces a
// non-empty one, so the most specific non-empty array wins wholesale. A null
// in the draft is a field the user cleared: it removes whatever the lower
// sources hold at that path.
// Synthesizers run against server data and rank just above it, which lets a
// draft still override a derived toggle the user already changed.
func Reconcile(src Sources, synthesizers ...Synthesizer) map[string]any {
	opts := values.MergeOptions{SkipNil: true, KeepNonEmptyArrays: true}

	var derived map[string]any
	if len(src.Server) > 0 {
		derived = map[string]any{}
		for _, synth := range synthesizers {
			if synth == nil {
				continue
			}
			derived = values.MergeWith(derived, synth(values.Clone(src.Server)), opts)
		}
	}

	out := values.Layer(opts, src.Defaults, src.Server, derived)
	out = values.MergeWith(out, src.Draft, values.MergeOptions{KeepNonEmptyArrays: true})
	for path, value := range values.Flatten(src.Draft) {
		if value == nil {
			values.Delete(out, path)
		}
	}
	return out
}
