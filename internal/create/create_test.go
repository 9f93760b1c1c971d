package create

import (
	"errors"
	"testing"

	cerrors "github.com/greenhandatsjtu/pura/internal/errors"
)

func TestExitCodeSuccess(t *testing.T) {
	if code := ExitCode(nil); code != 0 {
		t.Fatalf("got %d, want 0", code)
	}
}

func TestExitCodeChildInitFailure(t *testing.T) {
	err := &ChildInitError{Message: "rootfs construction failed"}
	if code := ExitCode(err); code != 2 {
		t.Fatalf("got %d, want 2", code)
	}
}

func TestExitCodeOtherFailure(t *testing.T) {
	cases := []error{
		cerrors.New(cerrors.Spec, "load spec", "bad config"),
		cerrors.New(cerrors.Runtime, "open pid file", "permission denied"),
		errors.New("plain error"),
	}
	for _, err := range cases {
		if code := ExitCode(err); code != 1 {
			t.Fatalf("ExitCode(%v) = %d, want 1", err, code)
		}
	}
}

func TestChildInitErrorMessage(t *testing.T) {
	err := &ChildInitError{Message: "boom"}
	if err.Error() != "child failed to initialize: boom" {
		t.Fatalf("got %q", err.Error())
	}
}
