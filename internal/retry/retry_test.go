package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
	}
}

type codedError struct {
	retry bool
}

func (e *codedError) Error() string   { return "coded" }
func (e *codedError) Retryable() bool { return e.retry }

func TestPolicyDelay(t *testing.T) {
	p := Policy{
		MaxAttempts:   5,
		InitialDelay:  time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{60, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	var observed []int

	policy := fastPolicy(3)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		observed = append(observed, attempt)
	}

	got, err := Do(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got != "ok" {
		t.Errorf("Expected ok, got %q", got)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	if len(observed) != 2 || observed[0] != 1 || observed[1] != 2 {
		t.Errorf("Unexpected retry observations: %v", observed)
	}
}

func TestDo_DefaultPolicySleepsExponentially(t *testing.T) {
	var slept []time.Duration
	policy := DefaultPolicy()
	policy.Sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	calls := 0
	_, err := Do(context.Background(), policy, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("down")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Errorf("Unexpected sleeps: %v", slept)
	}
}

func TestDo_ReturnsLastErrorUnchanged(t *testing.T) {
	sentinel := &codedError{retry: true}
	calls := 0

	_, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) (int, error) {
		calls++
		return 0, sentinel
	})
	if err != sentinel {
		t.Fatalf("Expected the original error back, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	fatal := &codedError{retry: false}

	_, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) (int, error) {
		calls++
		return 0, fatal
	})
	if err != fatal {
		t.Fatalf("Expected fatal error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestDo_PermanentIsUnwrapped(t *testing.T) {
	root := errors.New("bad request")
	calls := 0

	_, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) (int, error) {
		calls++
		return 0, Permanent(root)
	})
	if err != root {
		t.Fatalf("Expected root error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxAttempts: 3, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffFactor: 2}
	policy.OnRetry = func(int, error, time.Duration) { cancel() }

	_, err := Do(ctx, policy, func(ctx context.Context) (int, error) {
		return 0, errors.New("flaky")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), true},
		{"permanent", Permanent(errors.New("boom")), false},
		{"cancelled", context.Canceled, false},
		{"coded retryable", &codedError{retry: true}, true},
		{"coded fatal", &codedError{retry: false}, false},
		{"status", &StatusError{StatusCode: 503}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
