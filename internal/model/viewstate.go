package model

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// DefaultRequiredViewKeys are the keys a view state needs before it is
// considered fully specified.
var DefaultRequiredViewKeys = []string{"StudyInstanceUIDs", "layout"}

// ViewState is the key-value description of what a client is looking at. It
// is opaque to the subsystem except for completeness checks. Each key holds
// a single value; multi-valued parameters must be joined by the caller.
type ViewState map[string]string

// ParseViewState decodes a url-encoded view state. A repeated key is an
// error, since a ViewState could not carry it through re-encoding.
func ParseViewState(encoded string) (ViewState, error) {
	values, err := url.ParseQuery(strings.TrimPrefix(encoded, "?"))
	if err != nil {
		return nil, fmt.Errorf("parse view state: %w", err)
	}
	vs := make(ViewState, len(values))
	for k, v := range values {
		if len(v) > 1 {
			return nil, fmt.Errorf("parse view state: repeated key %q", k)
		}
		vs[k] = v[0]
	}
	return vs, nil
}

// Encode returns the url-encoded form with keys sorted.
func (v ViewState) Encode() string {
	if len(v) == 0 {
		return ""
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := url.Values{}
	for _, k := range keys {
		values.Set(k, v[k])
	}
	return values.Encode()
}

// Complete reports whether every required key has a non-empty value.
func (v ViewState) Complete(required []string) bool {
	if len(required) == 0 {
		return false
	}
	for _, k := range required {
		if strings.TrimSpace(v[k]) == "" {
			return false
		}
	}
	return true
}

// Equal reports whether both view states hold the same pairs.
func (v ViewState) Equal(other ViewState) bool {
	if len(v) != len(other) {
		return false
	}
	for k, val := range v {
		if ov, ok := other[k]; !ok || ov != val {
			return false
		}
	}
	return true
}

// Clone returns a copy of the view state.
func (v ViewState) Clone() ViewState {
	out := make(ViewState, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}
