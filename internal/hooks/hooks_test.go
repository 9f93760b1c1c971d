package hooks

import (
	"testing"
	"time"

	"github.com/greenhandatsjtu/pura/internal/oci"
)

func testState() *oci.State {
	return oci.NewState("test-container", "/bundles/test-container")
}

func TestCommandRunSuccess(t *testing.T) {
	c := Command{Path: "/bin/sh", Args: []string{"-c", "cat >/dev/null"}}
	if err := c.Run(testState()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestCommandRunFailure(t *testing.T) {
	c := Command{Path: "/bin/sh", Args: []string{"-c", "exit 1"}}
	if err := c.Run(testState()); err == nil {
		t.Fatal("expected non-zero exit to be reported as an error")
	}
}

func TestCommandRunTimeout(t *testing.T) {
	d := 10 * time.Millisecond
	c := Command{Path: "/bin/sh", Args: []string{"-c", "sleep 5"}, Timeout: &d}

	start := time.Now()
	if err := c.Run(testState()); err == nil {
		t.Fatal("expected timeout to be reported as an error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Run took too long to time out: %v", elapsed)
	}
}

func TestHooksRunOnlyConfiguredName(t *testing.T) {
	h := FromConfig(&oci.Hooks{
		Prestart: []oci.Hook{{Path: "/bin/sh", Args: []string{"-c", "exit 1"}}},
	})

	if err := h.Run(CreateRuntime, testState()); err != nil {
		t.Fatalf("expected no createRuntime hooks to run without error, got %v", err)
	}
	if err := h.Run(Prestart, testState()); err == nil {
		t.Fatal("expected the configured prestart hook's failure to surface")
	}
}

func TestFromConfigNil(t *testing.T) {
	h := FromConfig(nil)
	if err := h.Run(Prestart, testState()); err != nil {
		t.Fatalf("expected no-op for nil Hooks config, got %v", err)
	}
}
