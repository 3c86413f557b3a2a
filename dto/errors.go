package dto

import (
	"errors"
	"fmt"
)

var (
	ErrNilReqConfig = errors.New("nil ReqConfig provided")
	// ErrUnauthorized marks a 401 reply from a generic call.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoSession is returned when a renewal is requested without an authenticated session.
	ErrNoSession = errors.New("no active session")
	// ErrSessionClosed is returned when a renewal completes after the session it belonged to ended.
	ErrSessionClosed = errors.New("session closed")
)

// DecodeError reports a credential that cannot be decoded into an expiry and claims.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode credential: %s: %v", e.Reason, e.Err)
	}
	return "decode credential: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// RenewalFailure wraps any failure of the refresh call, including timeouts.
type RenewalFailure struct {
	Err error
}

func (e *RenewalFailure) Error() string {
	return fmt.Sprintf("credential renewal failed: %v", e.Err)
}

func (e *RenewalFailure) Unwrap() error { return e.Err }

// APIError is a non-2xx reply from the collaborator API.
type APIError struct {
	StatusCode int
	URL        string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %s: status %d", e.URL, e.StatusCode)
}

// Is lets a 401 APIError match ErrUnauthorized.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == 401
}

func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

func IsRenewalFailure(err error) bool {
	var rf *RenewalFailure
	return errors.As(err, &rf)
}
