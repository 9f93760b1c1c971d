// Package create drives the top-level sequence of spec.md section
// 4.6: parse the bundle, spawn the init process, wait on the
// rendezvous, persist state, and run lifecycle hooks.
package create

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	cerrors "github.com/greenhandatsjtu/pura/internal/errors"
	"github.com/greenhandatsjtu/pura/internal/hooks"
	"github.com/greenhandatsjtu/pura/internal/ipc"
	"github.com/greenhandatsjtu/pura/internal/kernelcheck"
	"github.com/greenhandatsjtu/pura/internal/notify"
	"github.com/greenhandatsjtu/pura/internal/oci"
	"github.com/greenhandatsjtu/pura/internal/process"
	"github.com/greenhandatsjtu/pura/internal/state"
	"github.com/greenhandatsjtu/pura/internal/terminal"
)

// Options are the create subcommand's parsed arguments.
type Options struct {
	ID            string
	Bundle        string
	PidFile       string
	ConsoleSocket string
	Root          string
}

// ChildInitError marks a spec.md section 4.6 step 7 failure: the init
// process reported a non-"0" message over the init-lock, or the wait on
// the init-lock failed (including its timeout). It exists so
// the CLI layer can tell this apart from an argument/precondition
// failure and exit with code 2 instead of 1.
type ChildInitError struct {
	Message string
}

func (e *ChildInitError) Error() string {
	return "child failed to initialize: " + e.Message
}

// ExitCode maps a Run error to the process exit code spec.md section
// 4.6 assigns it: 0 on success, 2 when step 7 fails (the child reported
// a failure over the init-lock, or the wait on it failed), 1 for
// everything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if _, ok := err.(*ChildInitError); ok {
		return 2
	}
	return 1
}

// Run executes the twelve-step create sequence.
func Run(opts Options) error {
	if err := kernelcheck.Check(minimumNamespaceTypes); err != nil {
		return err
	}

	// Step 1.
	spec, err := oci.Load(opts.Bundle)
	if err != nil {
		return err
	}

	// Step 2.
	pidFile, err := os.OpenFile(opts.PidFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return cerrors.Wrap(cerrors.Runtime, "open pid file "+opts.PidFile, err)
	}
	defer pidFile.Close()

	// Step 3.
	dir := state.Dir(opts.Root, opts.ID)
	doc := oci.NewState(opts.ID, opts.Bundle)
	if err := state.Save(dir, doc); err != nil {
		return err
	}

	// Step 4.
	var consoleSocket *terminal.Socket
	if spec.HasTerminal() {
		if opts.ConsoleSocket == "" {
			return cerrors.New(cerrors.Spec, "create", "process.terminal is set but --console-socket was not given")
		}
		consoleSocket, err = terminal.NewSocket(opts.ConsoleSocket)
		if err != nil {
			return err
		}
	}

	// Step 5.
	initSockPath := dir + "/init.sock"
	initLock, err := ipc.NewParent(initSockPath)
	if err != nil {
		return err
	}

	rootfsPath := spec.Root.Path
	if !filepath.IsAbs(rootfsPath) {
		rootfsPath = filepath.Join(opts.Bundle, rootfsPath)
	}
	bootstrap := process.Bootstrap{
		ID:           opts.ID,
		Bundle:       opts.Bundle,
		RootfsPath:   rootfsPath,
		InitSockPath: initSockPath,
		RunSockPath:  dir + "/run.sock",
		HasConsole:   consoleSocket != nil,
		Spec:         spec,
	}

	var consoleFile *os.File
	if consoleSocket != nil {
		consoleFile = consoleSocket.File()
	}

	// Step 6.
	child, err := process.Start(bootstrap, consoleFile)
	if err != nil {
		initLock.Close()
		return err
	}

	// Step 7.
	msg, err := initLock.WaitTimeout(initWaitTimeout)
	if err != nil {
		teardown(child, dir, initLock)
		return &ChildInitError{Message: err.Error()}
	}
	if msg != "0" {
		teardown(child, dir, initLock)
		notify.Failed(msg)
		return &ChildInitError{Message: msg}
	}

	// Step 8.
	if err := initLock.Close(); err != nil {
		teardown(child, dir, nil)
		return err
	}

	// Step 9.
	if _, err := fmt.Fprintf(pidFile, "%d", child.Pid()); err != nil {
		teardown(child, dir, nil)
		return cerrors.Wrap(cerrors.Runtime, "write pid file", err)
	}

	// Step 10.
	doc.Status = oci.StatusCreated
	doc.Pid = child.Pid()
	if err := state.Save(dir, doc); err != nil {
		teardown(child, dir, nil)
		return err
	}

	// Step 11.
	hookSet := hooks.FromConfig(spec.Hooks)
	if err := hookSet.Run(hooks.Prestart, doc); err != nil {
		teardown(child, dir, nil)
		return err
	}
	if err := hookSet.Run(hooks.CreateRuntime, doc); err != nil {
		teardown(child, dir, nil)
		return err
	}

	// Step 12.
	if consoleSocket != nil {
		if err := consoleSocket.Close(); err != nil {
			return err
		}
	}

	notify.Ready()
	return nil
}

// minimumNamespaceTypes is the floor the kernel preflight checks
// against before any spec is parsed (SPEC_FULL.md section 4.6).
var minimumNamespaceTypes = []string{"mount", "uts", "ipc", "pid"}

// initWaitTimeout bounds step 7's init-lock wait, resolving spec.md
// section 5's "an implementer should add a bounded timeout" note: a
// child deadlocked in filesystem or terminal setup otherwise hangs
// create forever.
const initWaitTimeout = 30 * time.Second

// teardown performs the best-effort recovery spec.md section 9
// describes for failures after resources are allocated: kill the
// child if it's still alive, remove the state directory, and close
// whatever init-lock handle is still open.
func teardown(child *process.Child, dir string, initLock *ipc.Parent) {
	if child != nil {
		_ = child.Signal(unix.SIGKILL)
		_, _ = child.Wait()
	}
	_ = state.Remove(dir)
	if initLock != nil {
		_ = initLock.Close()
	}
}
