// Package sky provides an authenticated HTTP client for the Blackbaud SKY
// API: OAuth2 token lifecycle (exchange, refresh, interactive re-auth),
// subscription-key fallback on 401, error classification, and signed-URL
// artifact downloads.
package sky

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for classification. Use errors.Is(err, sky.ErrUnauthorized).
var (
	ErrBadRequest   = errors.New("sky: bad request")
	ErrUnauthorized = errors.New("sky: unauthorized")
	ErrForbidden    = errors.New("sky: forbidden")
	ErrNotFound     = errors.New("sky: not found")
	ErrThrottled    = errors.New("sky: throttled")
	ErrServerError  = errors.New("sky: server error")
	ErrTransport    = errors.New("sky: transport failure")

	// ErrSubscriptionKey means both the primary and secondary subscription
	// keys were rejected. Reported, never retried.
	ErrSubscriptionKey = errors.New("sky: subscription key rejected")

	// ErrMissingCredentials means the client id or secret is absent from the
	// credential store. Fatal at startup.
	ErrMissingCredentials = errors.New("sky: client id or secret not found in credential store")

	// ErrAuthRequired means no usable refresh token exists and interactive
	// authentication did not resolve one.
	ErrAuthRequired = errors.New("sky: interactive authentication required")
)

// TransportStatus is the StatusCode a RequestError carries when the failure
// happened below HTTP (connection refused, timeout).
const TransportStatus = -1

// RequestError wraps a sentinel with the HTTP status and the error payload
// returned by the API (parsed JSON when available, raw text otherwise).
type RequestError struct {
	StatusCode int
	Body       string
	Err        error // sentinel, for errors.Is()
}

func (e *RequestError) Error() string {
	if e.StatusCode == TransportStatus {
		return fmt.Sprintf("sky: request failed: %s", e.Body)
	}

	return fmt.Sprintf("sky: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}
