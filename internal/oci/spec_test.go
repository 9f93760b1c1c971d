package oci

import (
	"os"
	"path/filepath"
	"testing"

	cerrors "github.com/greenhandatsjtu/pura/internal/errors"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestLoadValid(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{
		"root": {"path": "rootfs"},
		"process": {"args": ["/bin/true"], "terminal": false},
		"unknownField": "ignored"
	}`)

	spec, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if spec.Root.Path != "rootfs" {
		t.Fatalf("got root.path %q", spec.Root.Path)
	}
	if spec.HasTerminal() {
		t.Fatal("expected HasTerminal() false")
	}
}

func TestLoadMissingBundle(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); !cerrors.IsKind(err, cerrors.Spec) {
		t.Fatalf("expected Spec error, got %v", err)
	}
}

func TestLoadMissingRootPath(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{"root": {"path": ""}}`)

	if _, err := Load(dir); !cerrors.IsKind(err, cerrors.Spec) {
		t.Fatalf("expected Spec error, got %v", err)
	}
}

func TestLoadEmptyProcessArgs(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{"root": {"path": "rootfs"}, "process": {"args": []}}`)

	if _, err := Load(dir); !cerrors.IsKind(err, cerrors.Spec) {
		t.Fatalf("expected Spec error, got %v", err)
	}
}

func TestHasTerminal(t *testing.T) {
	s := &Spec{Process: &Process{Terminal: true}}
	if !s.HasTerminal() {
		t.Fatal("expected HasTerminal() true")
	}

	s2 := &Spec{}
	if s2.HasTerminal() {
		t.Fatal("expected HasTerminal() false when process is nil")
	}
}
