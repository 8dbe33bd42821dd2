package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrTransientNetwork marks DNS, timeout and connection-reset class failures.
var ErrTransientNetwork = errors.New("transient network error")

// ConfigurationError reports missing provider credentials. It is never retried.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("open finance provider is not configured: missing %s", strings.Join(e.Missing, ", "))
}

func (e *ConfigurationError) Retryable() bool { return false }

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    json.RawMessage
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("provider api error: status %d: %s", e.StatusCode, e.Message)
}

// Retryable is true for 5xx, 429 and 408; other 4xx are terminal.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout
}

// IsNotFound reports whether err is a provider 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsConfigurationError reports whether err comes from missing credentials.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// apiErrorPayload accepts both numeric and string codes.
type apiErrorPayload struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

func newAPIError(statusCode int, status string, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}

	var payload apiErrorPayload
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		apiErr.Code = strings.Trim(string(payload.Code), `"`)
		apiErr.Message = payload.Message
		apiErr.Details = payload.Details
	}
	if apiErr.Code == "" {
		apiErr.Code = fmt.Sprintf("%d", statusCode)
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(status)
	}
	return apiErr
}
