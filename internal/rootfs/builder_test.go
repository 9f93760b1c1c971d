package rootfs

import (
	"testing"

	"golang.org/x/sys/unix"

	cerrors "github.com/greenhandatsjtu/pura/internal/errors"
	"github.com/greenhandatsjtu/pura/internal/oci"
)

func TestTranslateOptions(t *testing.T) {
	flags, data := translateOptions([]string{"ro", "nosuid", "nodev", "mode=755", "size=65536k"})

	want := uintptr(unix.MS_RDONLY | unix.MS_NOSUID | unix.MS_NODEV)
	if flags != want {
		t.Fatalf("got flags %#x, want %#x", flags, want)
	}
	if data != "mode=755,size=65536k" {
		t.Fatalf("got data %q", data)
	}
}

func TestValidateMountDataValidSize(t *testing.T) {
	if err := validateMountData([]string{"size=65536k"}); err != nil {
		t.Fatalf("expected valid size to pass, got %v", err)
	}
}

func TestValidateMountDataInvalidSize(t *testing.T) {
	err := validateMountData([]string{"size=not-a-size"})
	if !cerrors.IsKind(err, cerrors.Spec) {
		t.Fatalf("expected Spec error, got %v", err)
	}
}

func TestDeviceMode(t *testing.T) {
	cases := map[string]uint32{"c": unix.S_IFCHR, "u": unix.S_IFCHR, "b": unix.S_IFBLK, "p": unix.S_IFIFO}
	for typ, want := range cases {
		got, err := deviceMode(typ)
		if err != nil {
			t.Fatalf("deviceMode(%q): %v", typ, err)
		}
		if got != want {
			t.Fatalf("deviceMode(%q) = %#o, want %#o", typ, got, want)
		}
	}
	if _, err := deviceMode("x"); err == nil {
		t.Fatal("expected unsupported device type to error")
	}
}

func TestPropagationFlag(t *testing.T) {
	cases := map[string]uintptr{
		"shared":     unix.MS_SHARED | unix.MS_REC,
		"slave":      unix.MS_SLAVE | unix.MS_REC,
		"unbindable": unix.MS_UNBINDABLE | unix.MS_REC,
		"private":    unix.MS_PRIVATE | unix.MS_REC,
		"":           unix.MS_PRIVATE | unix.MS_REC,
	}
	for in, want := range cases {
		if got := propagationFlag(in); got != want {
			t.Fatalf("propagationFlag(%q) = %#x, want %#x", in, got, want)
		}
	}
}

func TestApplyMountsRejectsDuplicateDestination(t *testing.T) {
	mounts := []oci.Mount{
		{Destination: "/proc", Type: "proc", Source: "proc"},
		{Destination: "/proc", Type: "proc", Source: "proc"},
	}
	err := applyMounts(t.TempDir(), mounts)
	if !cerrors.IsKind(err, cerrors.Spec) {
		t.Fatalf("expected Spec error for duplicate destination, got %v", err)
	}
}
