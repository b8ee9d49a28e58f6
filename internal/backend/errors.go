package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	ErrUnauthorized = errors.New("backend: unauthorized")
	ErrForbidden    = errors.New("backend: permission denied")
	ErrNotFound     = errors.New("backend: not found")
	ErrValidation   = errors.New("backend: validation failed")
	ErrConflict     = errors.New("backend: conflict")
	ErrServer       = errors.New("backend: server error")
	ErrTransport    = errors.New("backend: unavailable")
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status int
	// Message is the human readable reason taken from the body when present.
	Message string
	// Fields holds per-field validation messages.
	Fields map[string]string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: status %d", e.Status)
	}
	return fmt.Sprintf("backend: status %d: %s", e.Status, e.Message)
}

// Is matches the status class against the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrValidation:
		return e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity
	case ErrConflict:
		return e.Status == http.StatusConflict
	case ErrServer:
		return e.Status >= 500
	}
	return false
}

// Message returns the user-facing message carried by err, or fallback when
// err is not an *APIError or carries none.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// FieldErrors returns the per-field messages carried by err, if any.
func FieldErrors(err error) map[string]string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && len(apiErr.Fields) > 0 {
		out := make(map[string]string, len(apiErr.Fields))
		for k, v := range apiErr.Fields {
			out[k] = v
		}
		return out
	}
	return nil
}

func newAPIError(status int, raw []byte) *APIError {
	e := &APIError{Status: status}
	var body map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &body) != nil {
		e.Message = strings.TrimSpace(http.StatusText(status))
		return e
	}
	for _, key := range []string{"detail", "error", "message"} {
		if msg := firstString(body[key]); msg != "" {
			e.Message = msg
			break
		}
	}
	if e.Message == "" {
		e.Message = firstString(body["non_field_errors"])
	}
	keys := make([]string, 0, len(body))
	for k := range body {
		switch k {
		case "detail", "error", "message", "non_field_errors", "code":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		msg := firstString(body[k])
		if msg == "" {
			continue
		}
		if e.Fields == nil {
			e.Fields = make(map[string]string)
		}
		e.Fields[k] = msg
		if e.Message == "" {
			e.Message = k + ": " + msg
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// firstString accepts "msg" or ["msg", ...].
func firstString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
		return strings.TrimSpace(list[0])
	}
	return ""
}
