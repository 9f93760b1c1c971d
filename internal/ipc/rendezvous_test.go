package ipc

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestHappyPath mirrors spec.md section 8 scenario 1 and the Rust
// original's notify() test: one listener, one connector, one message.
func TestHappyPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tmp.sock")

	parent, err := NewParent(path)
	if err != nil {
		t.Fatalf("NewParent: %v", err)
	}
	defer parent.Close()

	errCh := make(chan error, 1)
	go func() {
		child, err := NewChild(path)
		if err != nil {
			errCh <- err
			return
		}
		defer child.Close()
		errCh <- child.Notify("hello")
	}()

	got, err := parent.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Notify: %v", err)
	}
}

// TestDuplicateBind mirrors spec.md section 8 scenario 2 and the Rust
// original's duplicate_sock() test.
func TestDuplicateBind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tmp.sock")

	first, err := NewParent(path)
	if err != nil {
		t.Fatalf("first NewParent: %v", err)
	}
	defer first.Close()

	if _, err := NewParent(path); err == nil {
		t.Fatal("expected second NewParent on the same path to fail")
	}
}

// TestIndependentPaths mirrors spec.md section 8 scenario 3 and the
// Rust original's two_socks() test.
func TestIndependentPaths(t *testing.T) {
	dir := t.TempDir()
	path1 := filepath.Join(dir, "tmp1.sock")
	path2 := filepath.Join(dir, "tmp2.sock")

	p1, err := NewParent(path1)
	if err != nil {
		t.Fatalf("NewParent path1: %v", err)
	}
	defer p1.Close()

	p2, err := NewParent(path2)
	if err != nil {
		t.Fatalf("NewParent path2: %v", err)
	}
	defer p2.Close()

	go func() {
		c, err := NewChild(path1)
		if err == nil {
			c.Notify("one")
			c.Close()
		}
	}()
	go func() {
		c, err := NewChild(path2)
		if err == nil {
			c.Notify("two")
			c.Close()
		}
	}()

	got1, err := p1.Wait()
	if err != nil || got1 != "one" {
		t.Fatalf("p1.Wait: got %q, err %v", got1, err)
	}
	got2, err := p2.Wait()
	if err != nil || got2 != "two" {
		t.Fatalf("p2.Wait: got %q, err %v", got2, err)
	}
}

// TestWhitespaceTrim asserts the trim contract spec.md section 8
// "Invariants (quantified)" describes: the returned string equals the
// sent message with leading/trailing whitespace trimmed.
func TestWhitespaceTrim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tmp.sock")

	parent, err := NewParent(path)
	if err != nil {
		t.Fatalf("NewParent: %v", err)
	}
	defer parent.Close()

	go func() {
		child, err := NewChild(path)
		if err != nil {
			return
		}
		defer child.Close()
		child.Notify("  padded  \n")
	}()

	got, err := parent.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got != "padded" {
		t.Fatalf("got %q, want %q", got, "padded")
	}
}

// TestWaitTimeoutExpires asserts WaitTimeout gives up when no
// connector ever shows up, per spec.md section 5.
func TestWaitTimeoutExpires(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tmp.sock")

	parent, err := NewParent(path)
	if err != nil {
		t.Fatalf("NewParent: %v", err)
	}
	defer os.Remove(path)

	start := time.Now()
	_, err = parent.WaitTimeout(20 * time.Millisecond)
	if err == nil {
		t.Fatal("expected WaitTimeout to fail when nothing connects")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("WaitTimeout took too long: %v", elapsed)
	}
}

// TestCloseUnlinksPath asserts Close removes the socket file, the
// "deferred unlink" design note in spec.md section 9.
func TestCloseUnlinksPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tmp.sock")

	parent, err := NewParent(path)
	if err != nil {
		t.Fatalf("NewParent: %v", err)
	}
	if err := parent.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be removed, stat err: %v", path, err)
	}
}
