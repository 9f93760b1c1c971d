package state

import (
	"path/filepath"
	"testing"

	"github.com/greenhandatsjtu/pura/internal/oci"
)

// TestRoundTrip asserts the load(save(s)) = s invariant from spec.md
// section 8.
func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := oci.NewState("abc123", "/bundles/abc123")
	s.Pid = 4242
	s.Status = oci.StatusCreated
	s.Annotations["owner"] = "test"

	if err := Save(dir, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.ID != s.ID || loaded.Pid != s.Pid || loaded.Status != s.Status || loaded.Bundle != s.Bundle {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", loaded, s)
	}
	if loaded.Annotations["owner"] != "test" {
		t.Fatalf("annotations lost in round-trip: %+v", loaded.Annotations)
	}
}

func TestSaveCreatesDir(t *testing.T) {
	root := t.TempDir()
	dir := Dir(root, "newcontainer")
	s := oci.NewState("newcontainer", "/bundles/newcontainer")

	if err := Save(dir, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := Load(dir); err != nil {
		t.Fatalf("Load after Save: %v", err)
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	s := oci.NewState("gone", "/bundles/gone")
	if err := Save(dir, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := Remove(dir); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected Load to fail after Remove")
	}
}

func TestPath(t *testing.T) {
	got := Path("/tmp/pura/abc")
	want := filepath.Join("/tmp/pura/abc", FileName)
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
