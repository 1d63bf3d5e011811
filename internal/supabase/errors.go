package supabase

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// CodeNoSingleRow is the PostgREST code for a single-object request that
// matched zero or several rows.
const CodeNoSingleRow = "PGRST116"

// Error is a non-2xx answer from the platform. PostgREST fills Code,
// Message, Details and Hint; GoTrue uses error/error_description or msg.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("platform error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("platform error %d: %s", e.Status, e.Message)
}

// NoRows reports whether e means "the filtered set was empty".
func (e *Error) NoRows() bool {
	return e.Code == CodeNoSingleRow || (e.Status == http.StatusNotAcceptable && strings.Contains(e.Message, "no) rows"))
}

func (e *Error) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// AsError unwraps err to *Error.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func parseError(status int, raw []byte) error {
	var body struct {
		Code             interface{} `json:"code"`
		Message          string      `json:"message"`
		Msg              string      `json:"msg"`
		Details          interface{} `json:"details"`
		Hint             interface{} `json:"hint"`
		Err              string      `json:"error"`
		ErrorDescription string      `json:"error_description"`
	}
	apiErr := &Error{Status: status}

	if err := json.Unmarshal(raw, &body); err != nil {
		apiErr.Message = strings.TrimSpace(string(raw))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
		return apiErr
	}

	apiErr.Code = stringify(body.Code)
	apiErr.Details = stringify(body.Details)
	apiErr.Hint = stringify(body.Hint)
	switch {
	case body.Message != "":
		apiErr.Message = body.Message
	case body.Msg != "":
		apiErr.Message = body.Msg
	case body.ErrorDescription != "":
		apiErr.Message = body.ErrorDescription
	case body.Err != "":
		apiErr.Message = body.Err
	default:
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// stringify flattens the loosely typed code/details/hint fields, which are
// numbers for GoTrue and strings (or null) for PostgREST.
func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return fmt.Sprintf("%.0f", val)
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}
