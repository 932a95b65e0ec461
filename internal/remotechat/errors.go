package remotechat

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a non-2xx answer from the chat backend. ID and Message come from
// the backend's JSON error body when it has one.
type Error struct {
	Method     string `json:"-"`
	Path       string `json:"-"`
	StatusCode int    `json:"status_code"`
	ID         string `json:"id"`
	Message    string `json:"message"`
}

func (e *Error) Error() string {
	if e.ID == "" && e.Message == "" {
		return fmt.Sprintf("remotechat: %s %s returned %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("remotechat: %s %s returned %d (%s): %s", e.Method, e.Path, e.StatusCode, e.ID, e.Message)
}

// StatusCode returns the backend status carried by err, or 0.
func StatusCode(err error) int {
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr.StatusCode
	}
	return 0
}

func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
