package poster

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingCredentials = errors.New("missing OAuth 1.0a credentials: set API_KEY, API_SECRET, ACCESS_TOKEN, ACCESS_TOKEN_SECRET")
	ErrBearerReadOnly     = errors.New("posting requires OAuth 1.0a user credentials; the bearer token is read-only")
	ErrNoLookupAuth       = errors.New("missing credentials for lookup: provide OAuth 1.0a keys or X_BEARER_TOKEN")
)

// APIError is a non-2xx answer from the X API.
type APIError struct {
	Status  int
	Body    json.RawMessage
	Message string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = SummarizeError(e.Body)
	}
	if msg == "" {
		msg = strings.TrimSpace(string(e.Body))
	}
	return fmt.Sprintf("API error %d: %s", e.Status, msg)
}

// Retryable reports whether the status is worth another attempt.
func (e *APIError) Retryable() bool { return retryableStatus(e.Status) }

func retryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// SummarizeError extracts a human message from an X API error body.
//
// Shapes seen in the wild:
//
//	{"errors":[{"message":"...","detail":"...","title":"..."}]}
//	{"title":"...","detail":"..."}
//	{"detail":"..."}
func SummarizeError(body []byte) string {
	var v struct {
		Errors json.RawMessage `json:"errors"`
		Title  string          `json:"title"`
		Detail json.RawMessage `json:"detail"`
	}
	if len(body) == 0 || json.Unmarshal(body, &v) != nil {
		return ""
	}
	if len(v.Errors) > 0 {
		var list []struct {
			Message string `json:"message"`
			Detail  string `json:"detail"`
			Title   string `json:"title"`
		}
		if json.Unmarshal(v.Errors, &list) == nil && len(list) > 0 {
			for _, s := range []string{list[0].Detail, list[0].Message, list[0].Title} {
				if s != "" {
					return s
				}
			}
		}
	}
	var detail string
	_ = json.Unmarshal(v.Detail, &detail)
	switch {
	case v.Title != "" && detail != "":
		return v.Title + ": " + detail
	case detail != "":
		return detail
	default:
		return v.Title
	}
}

// IsAPIError returns the *APIError in err's chain, if any.
func IsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
