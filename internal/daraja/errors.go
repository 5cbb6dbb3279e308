package daraja

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	// ErrConfiguration means deployment configuration is missing or invalid.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation means caller-supplied input (e.g. a callback URL) is malformed.
	ErrValidation = errors.New("validation error")
	// ErrAuthentication means an access token could not be obtained.
	ErrAuthentication = errors.New("authentication failed")
	// ErrUpstreamProtocol means Daraja answered with an unexpected shape.
	ErrUpstreamProtocol = errors.New("unexpected upstream response")
	// ErrUpstreamHTTP means Daraja answered with a non-2xx status.
	ErrUpstreamHTTP = errors.New("upstream http error")
)

// Error describes a failed Daraja operation. Messages never include upstream
// response bodies; those are logged where the response is read.
type Error struct {
	Kind       error  // one of the Err* kinds above
	Op         string // e.g. "oauth", "registerurl"
	StatusCode int    // upstream HTTP status, 0 if none
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("daraja %s: %v", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// StatusCode returns the upstream HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var de *Error
	for errors.As(err, &de) {
		if de.StatusCode != 0 {
			return de.StatusCode
		}
		if de.Err == nil {
			return 0
		}
		err = de.Err
	}
	return 0
}
