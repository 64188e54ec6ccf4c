package values

// MergeOptions tunes how an overlay is folded into a base map.
type MergeOptions struct {
	// SkipNil leaves base values untouched when the overlay holds nil.
	SkipNil bool
	// KeepNonEmptyArrays stops an empty overlay array from replacing a
	// non-empty base array.
	KeepNonEmptyArrays bool
}

// Merge deep merges overlay into a copy of base. Maps merge key by key, arrays
// are replaced wholesale, scalars (nil included) overwrite.
func Merge(base, overlay map[string]any) map[string]any {
	return MergeWith(base, overlay, MergeOptions{})
}

// MergeWith is Merge with explicit options. Neither input is mutated.
func MergeWith(base, overlay map[string]any, opts MergeOptions) map[string]any {
	out := Clone(base)
	for key, value := range overlay {
		if value == nil {
			if !opts.SkipNil {
				out[key] = nil
			}
			continue
		}

		if IsArray(value) {
			if opts.KeepNonEmptyArrays && Len(value) == 0 {
				if existing, ok := out[key]; ok && Len(existing) > 0 {
					continue
				}
			}
			out[key] = CloneValue(value)
			continue
		}

		if nested, ok := value.(map[string]any); ok {
			if current, ok := out[key].(map[string]any); ok {
				out[key] = MergeWith(current, nested, opts)
			} else {
				out[key] = MergeWith(nil, nested, opts)
			}
			continue
		}

		out[key] = value
	}
	return out
}

// Layer merges sources from lowest to highest precedence using opts.
func Layer(opts MergeOptions, sources ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, src := range sources {
		if len(src) == 0 {
			continue
		}
		out = MergeWith(out, src, opts)
	}
	return out
}
