package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingField is returned when a host record lacks a required key
// or the key holds a value of the wrong shape.
var ErrMissingField = errors.New("missing required field")

// Required host record keys
const (
	FieldExpoID        = "expo_id"
	FieldSegment       = "segment"
	FieldOS            = "os"
	FieldServiceChecks = "service_checks"
)

// HostRecord is one discovered asset from the expo dump.
// Fields holds the decoded object (numbers as json.Number), Raw the
// element exactly as it appeared in the dump.
type HostRecord struct {
	Fields map[string]interface{}
	Raw    json.RawMessage
}

// ServiceCheck is a single observed network service on a host
type ServiceCheck map[string]interface{}

// String returns a required scalar field rendered as a string
func (h *HostRecord) String(key string) (string, error) {
	v, ok := h.Fields[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	switch val := v.(type) {
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		return fmt.Sprintf("%t", val), nil
	default:
		return "", fmt.Errorf("%w: %s is not a scalar", ErrMissingField, key)
	}
}

// ExpoID returns the host identifier
func (h *HostRecord) ExpoID() (string, error) {
	return h.String(FieldExpoID)
}

// ServiceChecks returns the ordered service checks of the host
func (h *HostRecord) ServiceChecks() ([]ServiceCheck, error) {
	v, ok := h.Fields[FieldServiceChecks]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, FieldServiceChecks)
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a list", ErrMissingField, FieldServiceChecks)
	}

	checks := make([]ServiceCheck, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d] is not an object", ErrMissingField, FieldServiceChecks, i)
		}
		checks = append(checks, ServiceCheck(m))
	}
	return checks, nil
}
