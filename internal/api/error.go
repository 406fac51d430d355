package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error is a structured backend rejection decoded from an error response
// body. The backend emits `{"code": "...", "detail": "..."}`; older endpoints
// only set detail, so Code may be empty.
type Error struct {
	StatusCode int
	Code       string
	Detail     string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend rejected request (%d): %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("backend rejected request (%d)", e.StatusCode)
}

// IsAuth reports whether the rejection is a credential problem. The caller
// must obtain a fresh token before retrying.
func (e *Error) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// decodeError builds an *Error from a non-2xx response body. Unknown body
// shapes degrade to a status-only error rather than failing.
func decodeError(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var payload struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Code = payload.Code
		apiErr.Detail = payload.Detail
	}
	return apiErr
}
