package utils

import (
	"errors"
	"testing"
)

func TestAppErrorWrapsCause(t *testing.T) {
	err := NewAppError("archive_session", "insert failed", ErrExternalUnavailable)
	if !errors.Is(err, ErrExternalUnavailable) {
		t.Fatalf("AppError must unwrap to its cause: %v", err)
	}
	want := "archive_session: insert failed: external source unavailable"
	if err.Error() != want {
		t.Fatalf("unexpected message %q, want %q", err.Error(), want)
	}

	bare := NewAppError("lock_target", "target missing", nil)
	if bare.Error() != "lock_target: target missing" {
		t.Fatalf("unexpected message %q", bare.Error())
	}
}
