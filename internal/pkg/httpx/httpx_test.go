package httpx

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"429", &StatusError{Service: "x", StatusCode: 429}, true},
		{"503", &StatusError{Service: "x", StatusCode: 503}, true},
		{"400", &StatusError{Service: "x", StatusCode: 400}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsRetryableError(tc.err); got != tc.want {
			t.Fatalf("%s: want=%v got=%v", tc.name, tc.want, got)
		}
	}
}

func TestRetryAfterDurationCapsAtMax(t *testing.T) {
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"120"}}}
	if got := RetryAfterDuration(resp, time.Second, 10*time.Second); got != 10*time.Second {
		t.Fatalf("RetryAfterDuration: want=%s got=%s", 10*time.Second, got)
	}
	if got := RetryAfterDuration(nil, 2*time.Second, 10*time.Second); got != 2*time.Second {
		t.Fatalf("RetryAfterDuration fallback: want=%s got=%s", 2*time.Second, got)
	}
}

func TestDoRetriesRetryableThenSucceeds(t *testing.T) {
	calls := 0
	retries := 0
	err := Do(context.Background(), RetryPolicy{
		Attempts:    3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
		OnRetry:     func(int, time.Duration, error) { retries++ },
	}, func(context.Context) (*http.Response, error) {
		calls++
		if calls < 3 {
			return nil, &StatusError{Service: "x", StatusCode: 502}
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 || retries != 2 {
		t.Fatalf("calls/retries: want=3/2 got=%d/%d", calls, retries)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), RetryPolicy{Attempts: 5, BaseBackoff: time.Millisecond}, func(context.Context) (*http.Response, error) {
		calls++
		return nil, &StatusError{Service: "x", StatusCode: 401}
	})
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != 401 {
		t.Fatalf("expected 401 StatusError, got=%v", err)
	}
	if calls != 1 {
		t.Fatalf("calls: want=1 got=%d", calls)
	}
}
