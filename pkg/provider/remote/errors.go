package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rhuss/chatwire/pkg/api"
)

// errorBody covers the error envelopes NVIDIA endpoints are known to
// return: OpenAI-style {"error":{"message":...}}, a bare {"error":"..."},
// and problem+json {"title":...,"detail":...}.
type errorBody struct {
	Error   json.RawMessage `json:"error"`
	Detail  any             `json:"detail"`
	Title   string          `json:"title"`
	Message string          `json:"message"`
}

// MapHTTPError converts a non-2xx response into an APIError. The body is
// read (up to 4KB) for a descriptive message.
func MapHTTPError(resp *http.Response) *api.APIError {
	message := ExtractErrorMessage(resp.Body)

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		if message == "" {
			message = "invalid request to backend"
		}
		return api.NewInvalidRequestError("", message)

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if message == "" {
			message = "backend authentication failed"
		}
		return api.NewServerError(message)

	case resp.StatusCode == http.StatusNotFound:
		if message == "" {
			message = "backend resource not found"
		}
		return api.NewNotFoundError(message)

	case resp.StatusCode == http.StatusTooManyRequests:
		if message == "" {
			message = "backend rate limit exceeded"
		}
		return api.NewTooManyRequestsError(message)

	default:
		if message == "" {
			message = fmt.Sprintf("backend error (HTTP %d)", resp.StatusCode)
		}
		return api.NewUpstreamError("http_"+strconv.Itoa(resp.StatusCode), message)
	}
}

// MapNetworkError converts a connection-level failure into an APIError.
func MapNetworkError(err error) *api.APIError {
	return api.NewUpstreamError("connection_error", fmt.Sprintf("backend connection error: %s", err.Error()))
}

// ExtractErrorMessage returns the most specific message found in an error
// body, or the trimmed body text when it is not JSON.
func ExtractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var eb errorBody
	if err := json.Unmarshal(data, &eb); err != nil {
		return strings.TrimSpace(string(data))
	}

	if len(eb.Error) > 0 {
		var s string
		if json.Unmarshal(eb.Error, &s) == nil && s != "" {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(eb.Error, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
	}

	switch d := eb.Detail.(type) {
	case string:
		if d != "" {
			return d
		}
	case nil:
	default:
		if b, err := json.Marshal(d); err == nil {
			return string(b)
		}
	}

	if eb.Title != "" {
		return eb.Title
	}
	return eb.Message
}

// isClientError reports whether err is the caller's fault rather than a
// sign of an unhealthy backend. Such errors do not trip the breaker.
func isClientError(err error) bool {
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Type == api.ErrorTypeInvalidRequest || apiErr.Type == api.ErrorTypeNotFound
}
