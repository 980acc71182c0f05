package types

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithTarget("research_agent")

	if GetErrorCode(err) != ErrUpstreamError {
		t.Fatalf("expected code %s, got %s", ErrUpstreamError, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if err.Target != "research_agent" || err.HTTPStatus != 502 {
		t.Fatalf("unexpected metadata: %+v", err)
	}
	if got := err.Error(); got != "[UPSTREAM_ERROR] upstream failed: root" {
		t.Fatalf("unexpected error string %q", got)
	}
}

func TestError_DefaultRetryable(t *testing.T) {
	t.Parallel()

	cases := map[ErrorCode]bool{
		ErrTransient:       true,
		ErrTimeout:         true,
		ErrUpstreamError:   true,
		ErrNotFound:        false,
		ErrUnhealthy:       false,
		ErrCircuitOpen:     false,
		ErrValidation:      false,
		ErrDependencyUnmet: false,
		ErrAgentBusy:       false,
		ErrInternalError:   false,
	}
	for code, want := range cases {
		if got := NewError(code, "x").Retryable; got != want {
			t.Errorf("%s: retryable = %v, want %v", code, got, want)
		}
	}
}

func TestIsRetryable_Untyped(t *testing.T) {
	t.Parallel()

	if IsRetryable(nil) {
		t.Fatalf("nil must not be retryable")
	}
	if IsRetryable(context.Canceled) {
		t.Fatalf("cancellation must not be retryable")
	}
	if !IsRetryable(context.DeadlineExceeded) {
		t.Fatalf("deadline must be retryable")
	}
	if !IsRetryable(errors.New("connection reset")) {
		t.Fatalf("untyped errors are transport-class")
	}
	wrapped := fmt.Errorf("call: %w", NewValidationError("bad payload"))
	if IsRetryable(wrapped) {
		t.Fatalf("wrapped validation error must not be retryable")
	}
}

func TestGetErrorCode(t *testing.T) {
	t.Parallel()

	if GetErrorCode(nil) != "" {
		t.Fatalf("nil error has no code")
	}
	if GetErrorCode(fmt.Errorf("x: %w", context.DeadlineExceeded)) != ErrTimeout {
		t.Fatalf("deadline maps to TIMEOUT")
	}
	if GetErrorCode(context.Canceled) != ErrInternalError {
		t.Fatalf("cancel maps to INTERNAL_ERROR")
	}
	if GetErrorCode(errors.New("boom")) != ErrTransient {
		t.Fatalf("untyped maps to TRANSIENT")
	}
	if !IsErrorCode(NewCircuitOpenError("redis"), ErrCircuitOpen) {
		t.Fatalf("expected CIRCUIT_OPEN")
	}
}

func TestConstructors(t *testing.T) {
	t.Parallel()

	dep := NewDependencyUnmetError("step_2", "step_1")
	if dep.Code != ErrDependencyUnmet || dep.Target != "step_2" {
		t.Fatalf("unexpected dependency error: %+v", dep)
	}
	if dep.Message != "step step_2 skipped: dependency step_1 did not succeed" {
		t.Fatalf("unexpected message %q", dep.Message)
	}

	unhealthy := NewUnhealthyError("x", "Agent 'x' is unhealthy")
	if unhealthy.Target != "x" || unhealthy.Retryable {
		t.Fatalf("unexpected unhealthy error: %+v", unhealthy)
	}

	cause := errors.New("dial tcp: refused")
	tr := NewTransientError("connect failed", cause)
	if !errors.Is(tr, cause) || !tr.Retryable {
		t.Fatalf("transient error must wrap cause and be retryable")
	}
}
