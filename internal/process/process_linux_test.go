package process

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/greenhandatsjtu/pura/internal/oci"
)

func TestCloneFlagsMinimum(t *testing.T) {
	flags, err := cloneFlags(nil)
	if err != nil {
		t.Fatalf("cloneFlags(nil): %v", err)
	}
	want := uintptr(unix.CLONE_NEWNS | unix.CLONE_NEWUTS | unix.CLONE_NEWIPC | unix.CLONE_NEWPID)
	if flags != want {
		t.Fatalf("got %#x, want %#x", flags, want)
	}
}

func TestCloneFlagsAddsUser(t *testing.T) {
	flags, err := cloneFlags([]oci.Namespace{{Type: "user"}})
	if err != nil {
		t.Fatalf("cloneFlags: %v", err)
	}
	if flags&unix.CLONE_NEWUSER == 0 {
		t.Fatal("expected CLONE_NEWUSER to be set")
	}
}

func TestCloneFlagsSkipsJoinedNamespace(t *testing.T) {
	flags, err := cloneFlags([]oci.Namespace{{Type: "net", Path: "/proc/1234/ns/net"}})
	if err != nil {
		t.Fatalf("cloneFlags: %v", err)
	}
	if flags&unix.CLONE_NEWNET != 0 {
		t.Fatal("expected a namespace with a Path set to be skipped, not cloned")
	}
}

func TestCloneFlagsUnsupportedType(t *testing.T) {
	if _, err := cloneFlags([]oci.Namespace{{Type: "bogus"}}); err == nil {
		t.Fatal("expected unsupported namespace type to error")
	}
}
