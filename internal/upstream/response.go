package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Response is a decoded GraphQL response envelope. Data is kept raw so each
// extractor can decode only the shape it expects.
type Response struct {
	Data   json.RawMessage `json:"data"`
	Errors []Error         `json:"errors"`
}

// Error is one entry of the GraphQL errors array.
type Error struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e Error) Error() string {
	if len(e.Path) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Path))
	for _, p := range e.Path {
		parts = append(parts, fmt.Sprint(p))
	}
	return fmt.Sprintf("%s (path %s)", e.Message, strings.Join(parts, "."))
}

// HasErrors reports whether the upstream returned a non-empty errors array.
func (r *Response) HasErrors() bool {
	return r != nil && len(r.Errors) > 0
}

// Err joins all reported errors into one, or returns nil if there are none.
func (r *Response) Err() error {
	if !r.HasErrors() {
		return nil
	}
	errs := make([]error, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, e)
	}
	return errors.Join(errs...)
}
