package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingApprovalURL is returned when a created order carries no link the
// payer can be redirected to.
var ErrMissingApprovalURL = errors.New("gateway: approval url missing from order")

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode int
	Name       string
	Message    string
	DebugID    string
}

func (e *APIError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("gateway: %d %s: %s", e.StatusCode, e.Name, e.Message)
	}
	return fmt.Sprintf("gateway: unexpected status %d", e.StatusCode)
}

// Temporary reports whether retrying later may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var decoded struct {
		Name    string `json:"name"`
		Message string `json:"message"`
		DebugID string `json:"debug_id"`
		// token endpoint errors
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if json.Unmarshal(body, &decoded) == nil {
		apiErr.Name = decoded.Name
		apiErr.Message = decoded.Message
		apiErr.DebugID = decoded.DebugID
		if apiErr.Name == "" {
			apiErr.Name = decoded.Error
			apiErr.Message = decoded.Description
		}
	}
	return apiErr
}

// TransportError wraps failures to reach the gateway at all, including a
// tripped circuit breaker and token requests that got no answer.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying later.
func IsTransient(err error) bool {
	var transport *TransportError
	if errors.As(err, &transport) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Temporary()
}
