package errors

import (
	"errors"
	"testing"
)

func TestWrapNil(t *testing.T) {
	if Wrap(Runtime, "op", nil) != nil {
		t.Fatal("expected Wrap(nil) to return nil")
	}
}

func TestIsKind(t *testing.T) {
	err := New(Spec, "load spec", "bad field")
	if !IsKind(err, Spec) {
		t.Fatal("expected IsKind Spec to be true")
	}
	if IsKind(err, Runtime) {
		t.Fatal("expected IsKind Runtime to be false")
	}
	if IsKind(errors.New("plain"), Spec) {
		t.Fatal("expected plain error to not match any Kind")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("syscall failed")
	err := Wrap(Runtime, "mount", cause)

	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("expected errors.As to find *Error")
	}
	if e.Kind != Runtime {
		t.Fatalf("got kind %v, want Runtime", e.Kind)
	}
}

func TestKindString(t *testing.T) {
	if Runtime.String() != "runtime" {
		t.Fatalf("got %q", Runtime.String())
	}
	if Spec.String() != "spec" {
		t.Fatalf("got %q", Spec.String())
	}
}
