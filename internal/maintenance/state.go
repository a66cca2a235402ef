package maintenance

import "context"

// Mode is the server-wide maintenance toggle.
type Mode string

const (
	ModeDefault     Mode = "default"
	ModeMaintenance Mode = "maintenance"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m == ModeDefault || m == ModeMaintenance
}

// ResponseOptions is the payload served to blocked requests.
type ResponseOptions struct {
	StatusCode int            `json:"statusCode" validate:"required,min=100,max=599"`
	Body       map[string]any `json:"body"`
}

// State is the authoritative maintenance data. A nil ResponseOptions means the
// blocked response was never configured.
type State struct {
	Mode            Mode             `json:"mode"`
	ResponseOptions *ResponseOptions `json:"responseOptions,omitempty"`
}

// Clone returns a deep copy so callers never share the body map with the gate.
func (s State) Clone() State {
	out := State{Mode: s.Mode}
	if s.ResponseOptions != nil {
		opts := s.ResponseOptions.clone()
		out.ResponseOptions = &opts
	}
	return out
}

func (o ResponseOptions) clone() ResponseOptions {
	return ResponseOptions{StatusCode: o.StatusCode, Body: copyMap(o.Body)}
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}

// ReadStateFunc fetches the shared state. A nil state with a nil error means
// no update is available.
type ReadStateFunc func(ctx context.Context) (*State, error)

// WriteStateFunc persists the shared state.
type WriteStateFunc func(ctx context.Context, state State) error

// Store is a shared state provider and persister.
type Store interface {
	ReadState(ctx context.Context) (*State, error)
	WriteState(ctx context.Context, state State) error
}
