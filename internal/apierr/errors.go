// Package apierr defines the error kinds every endpoint operation surfaces.
// Callers branch with errors.As on the concrete types.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNoSession is wrapped by AuthenticationError when a call needing a
// session was attempted with no tokens stored at all.
var ErrNoSession = errors.New("no active session")

// Payload is the decoded JSON error body exactly as the server sent it
type Payload map[string]any

// ParsePayload decodes an error body. Non-object bodies are kept under
// "message" so nothing the server said is lost.
func ParsePayload(body []byte) Payload {
	p := Payload{}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return p
	}
	if err := json.Unmarshal([]byte(trimmed), &p); err != nil || p == nil {
		return Payload{"message": trimmed}
	}
	return p
}

var headlineOrder = []string{"detail", "username", "email", "password", "non_field_errors", "message"}

// Headline returns the first available message, preferring the fields a
// human is most likely to act on.
func (p Payload) Headline() string {
	for _, key := range headlineOrder {
		if msg := firstMessage(p[key]); msg != "" {
			return msg
		}
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if msg := firstMessage(p[k]); msg != "" {
			return msg
		}
	}
	return ""
}

// Fields returns field-level messages, dropping non-field entries
func (p Payload) Fields() map[string][]string {
	fields := make(map[string][]string)
	for k, v := range p {
		if k == "detail" || k == "message" {
			continue
		}
		if msgs := messages(v); len(msgs) > 0 {
			fields[k] = msgs
		}
	}
	return fields
}

func firstMessage(v any) string {
	if msgs := messages(v); len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

func messages(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, messages(item)...)
		}
		return out
	default:
		return nil
	}
}

// ValidationError is returned when register or login input was rejected
type ValidationError struct {
	StatusCode int
	Payload    Payload
	Fallback   string
}

func (e *ValidationError) Error() string {
	return e.Headline()
}

// Headline is the single line a UI should show
func (e *ValidationError) Headline() string {
	if h := e.Payload.Headline(); h != "" {
		return h
	}
	if e.Fallback != "" {
		return e.Fallback
	}
	return "request was rejected"
}

// Fields returns the per-field messages
func (e *ValidationError) Fields() map[string][]string {
	return e.Payload.Fields()
}

// AuthReason explains why a call ended unauthenticated
type AuthReason string

const (
	ReasonNoSession     AuthReason = "no_session"
	ReasonRefreshFailed AuthReason = "refresh_failed"
	ReasonRetryRejected AuthReason = "retry_rejected"
)

// AuthenticationError is a 401 that survived the renewal attempt, or an
// authenticated call made with no session. The local session is gone.
type AuthenticationError struct {
	Reason  AuthReason
	Payload Payload
}

func (e *AuthenticationError) Error() string {
	if h := e.Payload.Headline(); h != "" {
		return "authentication required: " + h
	}
	return "authentication required: please log in again"
}

func (e *AuthenticationError) Unwrap() error {
	if e.Reason == ReasonNoSession {
		return ErrNoSession
	}
	return nil
}

// NetworkError means no response was received
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error, please try again: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError means the call ran past its deadline
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ServerError is any other non-2xx response
type ServerError struct {
	StatusCode int
	Payload    Payload
}

func (e *ServerError) Error() string {
	if h := e.Payload.Headline(); h != "" {
		return fmt.Sprintf("server error (HTTP %d): %s", e.StatusCode, h)
	}
	return fmt.Sprintf("server error (HTTP %d)", e.StatusCode)
}

// Message returns the headline text, or a generic line when the payload is empty
func Message(err error) string {
	var (
		valErr  *ValidationError
		authErr *AuthenticationError
		netErr  *NetworkError
		toErr   *TimeoutError
		srvErr  *ServerError
	)
	switch {
	case errors.As(err, &valErr):
		return valErr.Headline()
	case errors.As(err, &authErr):
		return "Your session has ended. Please log in again."
	case errors.As(err, &netErr):
		return "Network error. Please try again."
	case errors.As(err, &toErr):
		return "The request timed out. Please try again."
	case errors.As(err, &srvErr):
		if h := srvErr.Payload.Headline(); h != "" {
			return h
		}
		return fmt.Sprintf("The server returned HTTP %d.", srvErr.StatusCode)
	case err != nil:
		return err.Error()
	default:
		return ""
	}
}
