package settings

type fieldKind int

const (
	fieldKeep fieldKind = iota
	fieldSet
	fieldClear
)

// Field is a tagged per-field update decision: leave the current value alone,
// set a new one, or explicitly clear it back to the zero value. The zero
// Field keeps, so an Update literal only needs to name the fields it touches.
type Field[T any] struct {
	kind  fieldKind
	value T
}

func Keep[T any]() Field[T] {
	return Field[T]{kind: fieldKeep}
}

func SetTo[T any](value T) Field[T] {
	return Field[T]{kind: fieldSet, value: value}
}

func Clear[T any]() Field[T] {
	return Field[T]{kind: fieldClear}
}

// Apply resolves the decision against the current value.
func (f Field[T]) Apply(current T) T {
	switch f.kind {
	case fieldSet:
		return f.value
	case fieldClear:
		var zero T
		return zero
	default:
		return current
	}
}

// Update is a typed partial update of Settings.
type Update struct {
	Preprompt     Field[string]
	APIKey        Field[string]
	DebugEnabled  Field[bool]
	SelectedScope Field[Scope]
}

func (u Update) ApplyTo(s *Settings) {
	s.Preprompt = u.Preprompt.Apply(s.Preprompt)
	s.APIKey = u.APIKey.Apply(s.APIKey)
	s.DebugEnabled = u.DebugEnabled.Apply(s.DebugEnabled)
	s.SelectedScope = u.SelectedScope.Apply(s.SelectedScope)
}

// DeepMerge merges overlay into base with overlay taking precedence.
// Recursion applies to nested objects only; arrays and scalars are replaced
// wholesale. Neither input map is mutated.
func DeepMerge(base, overlay map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		overlayChild, overlayIsMap := v.(map[string]interface{})
		baseChild, baseIsMap := out[k].(map[string]interface{})
		if overlayIsMap && baseIsMap {
			out[k] = DeepMerge(baseChild, overlayChild)
			continue
		}
		out[k] = v
	}
	return out
}
