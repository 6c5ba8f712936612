package vcs

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrNetwork, true},
		{ErrTimeout, true},
		{ErrPushRejected, false},
		{ErrAuth, false},
		{ErrConflicts, false},
		{fmt.Errorf("fetch: %w", ErrNetwork), true},
		{errors.New("something else"), false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestIsAuthFailure(t *testing.T) {
	if !IsAuthFailure(fmt.Errorf("push: %w", ErrAuth)) {
		t.Error("wrapped ErrAuth not detected")
	}
	if IsAuthFailure(ErrNetwork) {
		t.Error("ErrNetwork misreported as auth failure")
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Register("testdup", Backend{})
	defer func() {
		if recover() == nil {
			t.Error("duplicate registration did not panic")
		}
	}()
	Register("testdup", Backend{})
}

func TestOpenWithoutBackend(t *testing.T) {
	old := DefaultBackend
	DefaultBackend = "does-not-exist"
	defer func() { DefaultBackend = old }()

	if _, err := Open(t.TempDir()); err == nil {
		t.Error("Open with unregistered backend should fail")
	}
}
