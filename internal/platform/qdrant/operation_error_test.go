package qdrant

import (
	"context"
	"fmt"
	"net/http"
	"testing"
)

func TestOperationErrorMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{statusErr("upsert", http.StatusBadRequest, "bad vector"), "qdrant upsert: query_failed status=400: bad vector"},
		{opErr("query", OperationErrorTimeout, "", context.DeadlineExceeded), "qdrant query: timeout: context deadline exceeded"},
		{opErr("delete", OperationErrorValidation, "", nil), "qdrant delete: validation_failed"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Fatalf("Error(): want=%q got=%q", tc.want, got)
		}
	}
}

func TestIsUnreachable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", classifyHTTPCallError("query", "q", context.DeadlineExceeded), true},
		{"transport", classifyHTTPCallError("query", "q", fmt.Errorf("dial tcp: refused")), true},
		{"unavailable", statusErr("bootstrap_verify", http.StatusServiceUnavailable, "ready check failed"), true},
		{"not found", statusErr("bootstrap_verify", http.StatusNotFound, "missing"), false},
		{"validation", opErr("upsert", OperationErrorValidation, "dim", nil), false},
		{"wrapped", fmt.Errorf("index: %w", opErr("query", OperationErrorTimeout, "", nil)), true},
		{"foreign", fmt.Errorf("boom"), false},
	}
	for _, tc := range cases {
		if got := IsUnreachable(tc.err); got != tc.want {
			t.Fatalf("%s: want=%v got=%v", tc.name, tc.want, got)
		}
	}
}

func TestIsCodeAndStatus(t *testing.T) {
	err := fmt.Errorf("wrap: %w", statusErr("bootstrap_verify", http.StatusNotFound, "missing"))
	if !IsCode(err, OperationErrorQueryFailed) {
		t.Fatalf("IsCode: want query_failed")
	}
	if IsCode(err, OperationErrorValidation) {
		t.Fatalf("IsCode: unexpected validation match")
	}
	if !isStatus(err, http.StatusNotFound) {
		t.Fatalf("isStatus: want 404")
	}
}
