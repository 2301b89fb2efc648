package api

import (
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// StatusError represents a non-success HTTP response from a DHIS2 instance.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("DHIS2 returned HTTP %d: %s", e.Code, e.Body)
}

// statusError builds a StatusError from a resty response, truncating large bodies
func statusError(resp *resty.Response) error {
	body := resp.Body()
	text := string(body[:min(500, len(body))])
	return &StatusError{Code: resp.StatusCode(), Body: text}
}

// IsNotFound reports whether err is an HTTP 404 from DHIS2.
// 404 is expected-absence throughout the app, never a hard failure.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == 404
}

// IsConflict reports whether err is an HTTP 409 (naming/identifier conflict).
func IsConflict(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == 409
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
