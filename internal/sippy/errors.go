package sippy

import (
	"fmt"
	"time"
)

// APIError is a failure reported by the switch itself, either as an XML-RPC
// fault or as an unexpected HTTP status on an authenticated request.
type APIError struct {
	Method  string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("sippy: %s failed with code %d", e.Method, e.Code)
	}
	return fmt.Sprintf("sippy: %s failed: %s (code %d)", e.Method, e.Message, e.Code)
}

// AuthKind classifies authentication failures so callers can tell
// connectivity, credential, and routing problems apart.
type AuthKind int

const (
	// AuthNoChallenge means the first request did not come back with a
	// digest challenge. The channel must not proceed unauthenticated.
	AuthNoChallenge AuthKind = iota
	// AuthBadChallenge means the challenge was missing realm, nonce, or
	// qop. Fatal: the remote end is not a compatible switch.
	AuthBadChallenge
	// AuthRejected means the switch refused the authenticated request.
	AuthRejected
	// AuthHTMLResponse means the authenticated response was an HTML page
	// rather than XML. The switch serves HTML error pages for some
	// failure classes, so this signals a wrong endpoint or silently
	// failed auth rather than a protocol fault.
	AuthHTMLResponse
)

// AuthError is an authentication or endpoint-routing failure.
type AuthError struct {
	Kind   AuthKind
	Reason string
}

func (e *AuthError) Error() string {
	return "sippy: " + e.Reason
}

// TimeoutError reports that an operation exceeded its deadline.
type TimeoutError struct {
	Method string
	After  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("sippy: %s timed out after %s", e.Method, e.After)
}

// Timeout implements the net.Error convention.
func (e *TimeoutError) Timeout() bool { return true }

// ParseError reports a response that did not match the shape expected for
// the requested operation. Snippet carries the start of the offending
// payload for diagnostics.
type ParseError struct {
	Method  string
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("sippy: %s returned an unparseable response: %v (payload starts %q)", e.Method, e.Err, e.Snippet)
}

func (e *ParseError) Unwrap() error { return e.Err }

// snippetLen bounds how much payload a ParseError carries.
const snippetLen = 160

func snippet(data []byte) string {
	if len(data) > snippetLen {
		data = data[:snippetLen]
	}
	return string(data)
}
