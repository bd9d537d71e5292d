package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/justestif/go-moodtunes/internal/errkind"
)

// APIError is a non-2xx backend response with its message extracted.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend status %d", e.Status)
	}
	return fmt.Sprintf("backend status %d: %s", e.Status, e.Message)
}

// decodeError reads an error response and maps it onto the failure taxonomy.
func decodeError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(body)}
	return errkind.Wrap(kindForStatus(resp.StatusCode), op, apiErr)
}

func kindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errkind.Unauthenticated
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return errkind.NetworkFailure
	default:
		return errkind.Rejected
	}
}

// errorMessage extracts a human-readable message from the error payload
// shapes the backend produces:
//
//	{"error": "..."}
//	{"detail": "..."}
//	{"message": "..."}
//	{"non_field_errors": ["..."]}
//	{"email": ["..."], "password": ["..."]}
func errorMessage(body []byte) string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}

	for _, key := range []string{"error", "detail", "message", "non_field_errors"} {
		if raw, ok := payload[key]; ok {
			if msg := flatten(raw); msg != "" {
				return msg
			}
		}
	}

	fields := make([]string, 0, len(payload))
	for field := range payload {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var parts []string
	for _, field := range fields {
		if msg := flatten(payload[field]); msg != "" {
			parts = append(parts, field+": "+msg)
		}
	}
	return strings.Join(parts, "; ")
}

// flatten renders a string, a list of strings or a nested object as text.
func flatten(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		var parts []string
		for _, item := range list {
			if msg := flatten(item); msg != "" {
				parts = append(parts, msg)
			}
		}
		return strings.Join(parts, " ")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		return errorMessage(raw)
	}
	return ""
}
