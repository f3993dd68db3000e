package projectapi

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError wraps any failure talking to the project service. Code is the HTTP status, or zero when
// the request never produced a response.
type APIError struct {
	Code    int
	Message string
	Body    map[string]any
	Err     error
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Code != 0 && e.Err != nil:
		return fmt.Sprintf("project api error (%d): %s: %v", e.Code, e.Message, e.Err)
	case e.Code != 0:
		return fmt.Sprintf("project api error (%d): %s", e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("project api error: %s: %v", e.Message, e.Err)
	default:
		return "project api error: " + e.Message
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// StatusCode extracts the HTTP status from err, or zero.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// IsConflict reports a 409, which the service returns for duplicate completions.
func IsConflict(err error) bool {
	return StatusCode(err) == http.StatusConflict
}

// IsNotFound reports a 404.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
