package storefront

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var ErrMalformedResponse = errors.New("malformed backend response")

// APIError is a non-2xx answer from the backend
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend returned status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the same request later may succeed
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// TransportError means the request never got a backend answer
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// maxErrorBody caps how much of an error response is read
const maxErrorBody = 64 << 10

// newAPIError keeps only strings the backend meant as a message. Anything
// else (HTML from a proxy, structured validation output) becomes the status text.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err == nil {
		apiErr.Code = stringField(fields["code"])
		for _, key := range []string{"message", "detail", "error"} {
			if msg := messageField(fields[key]); msg != "" {
				apiErr.Message = msg
				break
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	if apiErr.Message == "" {
		apiErr.Message = "unexpected backend response"
	}
	return apiErr
}

func stringField(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// messageField reads a plain string, or the first "msg" of a validation error list
func messageField(raw json.RawMessage) string {
	if s := stringField(raw); s != "" {
		return s
	}
	var list []struct {
		Msg string `json:"msg"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &list) != nil {
		return ""
	}
	for _, item := range list {
		if msg := strings.TrimSpace(item.Msg); msg != "" {
			return msg
		}
	}
	return ""
}
