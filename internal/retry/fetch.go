package retry

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody bounds how much of a failed response is kept for diagnostics.
const maxErrorBody = 64 << 10

// StatusError is returned by DoFetch when the last attempt ended with a
// retryable HTTP status.
type StatusError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("retryable http status %s", e.Status)
}

func (e *StatusError) Retryable() bool { return true }

// IsRetryableStatus reports whether a response status should be retried:
// any 5xx, 429 Too Many Requests and 408 Request Timeout.
func IsRetryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

// DoFetch sends the request built by newRequest under the retry policy.
// newRequest runs once per attempt so request bodies can be replayed.
// Responses with a retryable status are drained and retried; every other
// status is returned as-is for the caller to interpret.
func DoFetch(ctx context.Context, client *http.Client, newRequest func(ctx context.Context) (*http.Request, error), policy Policy) (*http.Response, error) {
	return Do(ctx, policy, func(ctx context.Context) (*http.Response, error) {
		req, err := newRequest(ctx)
		if err != nil {
			return nil, Permanent(err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}

		if IsRetryableStatus(resp.StatusCode) {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			_ = resp.Body.Close()
			return nil, &StatusError{
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Body:       body,
			}
		}

		return resp, nil
	})
}
