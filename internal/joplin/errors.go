package joplin

import (
	"errors"
	"fmt"
)

var (
	ErrMissingToken = errors.New("joplin API token is not set")
	ErrMissingURL   = errors.New("joplin API URL is not set")
	ErrMissingID    = errors.New("note id is required for update")
)

// StatusError is returned when the API answers with a non-success status
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}
