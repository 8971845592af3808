package event

// Event is a single security event as returned by the source API.
// Values keep their JSON shapes: nested objects are map[string]any,
// lists are []any and numbers are json.Number when decoded by the source client.
type Event map[string]any

// Page is one response of the paginated events endpoint.
type Page struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"nextAnchor,omitempty"`
}

// Done reports whether pagination must stop after this page.
func (p Page) Done() bool {
	return len(p.Items) == 0 || p.NextCursor == ""
}

// Details returns the nested detail mapping, or nil when absent.
func (e Event) Details() map[string]any {
	d, _ := e["details"].(map[string]any)
	return d
}

// Clone returns a deep copy of e. Nested maps and slices are copied so that
// mutating the clone never touches the original.
func (e Event) Clone() Event {
	if e == nil {
		return nil
	}
	return Event(cloneMap(e))
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case Event:
		return Event(cloneMap(t))
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
