package process

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	cerrors "github.com/greenhandatsjtu/pura/internal/errors"
	"github.com/greenhandatsjtu/pura/internal/oci"
)

// nsFlags maps the OCI namespace type vocabulary onto CLONE_NEW*
// flags.
var nsFlags = map[string]uintptr{
	"mount":  unix.CLONE_NEWNS,
	"uts":    unix.CLONE_NEWUTS,
	"ipc":    unix.CLONE_NEWIPC,
	"pid":    unix.CLONE_NEWPID,
	"user":   unix.CLONE_NEWUSER,
	"net":    unix.CLONE_NEWNET,
	"cgroup": unix.CLONE_NEWCGROUP,
}

// minimumNamespaces is the spec.md section 4.5 floor: mount, uts, ipc,
// and pid are always requested even if config.json's linux.namespaces
// is empty or absent.
var minimumNamespaces = []string{"mount", "uts", "ipc", "pid"}

// cloneFlags computes the CLONE_NEW* bitmask for the requested
// namespace set, folding in the minimum set and skipping namespaces
// with a non-empty Path (join an existing namespace, not "create a new
// one" — not implemented by this core, so such entries are ignored
// rather than rejected).
func cloneFlags(namespaces []oci.Namespace) (uintptr, error) {
	want := map[string]bool{}
	for _, ns := range minimumNamespaces {
		want[ns] = true
	}
	for _, ns := range namespaces {
		if ns.Path != "" {
			continue
		}
		want[ns.Type] = true
	}

	var flags uintptr
	for name := range want {
		f, ok := nsFlags[name]
		if !ok {
			return 0, cerrors.New(cerrors.Spec, "clone flags", "unsupported namespace type "+name)
		}
		flags |= f
	}
	return flags, nil
}

// Child is the parent's handle on the cloned init process, modeled on
// the parentProcess interface in libcontainer/process_linux.go,
// trimmed to what this core's create path needs.
type Child struct {
	cmd           *exec.Cmd
	bootstrapPipe *os.File
}

// Start re-execs the running binary with a hidden "init" argv[1]
// inside new namespaces, and streams bootstrap to it over an inherited
// pipe. consoleFile, when non-nil, is also inherited at a fixed fd so
// the child can hand its master off to the supervisor.
func Start(bootstrap Bootstrap, consoleFile *os.File) (*Child, error) {
	var namespaces []oci.Namespace
	if bootstrap.Spec.Linux != nil {
		namespaces = bootstrap.Spec.Linux.Namespaces
	}
	flags, err := cloneFlags(namespaces)
	if err != nil {
		return nil, err
	}

	self, err := os.Executable()
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Runtime, "resolve self executable", err)
	}

	readPipe, writePipe, err := os.Pipe()
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Runtime, "create bootstrap pipe", err)
	}

	cmd := &exec.Cmd{
		Path:   self,
		Args:   []string{self, "init"},
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		SysProcAttr: &syscall.SysProcAttr{
			Cloneflags: uintptr(flags),
		},
	}
	cmd.ExtraFiles = append(cmd.ExtraFiles, readPipe)
	if consoleFile != nil {
		cmd.ExtraFiles = append(cmd.ExtraFiles, consoleFile)
	}

	if err := cmd.Start(); err != nil {
		readPipe.Close()
		writePipe.Close()
		return nil, cerrors.Wrap(cerrors.Runtime, "start init process", err)
	}
	readPipe.Close()

	data, err := json.Marshal(bootstrap)
	if err != nil {
		writePipe.Close()
		return nil, cerrors.Wrap(cerrors.Runtime, "marshal bootstrap", err)
	}
	if _, err := writePipe.Write(data); err != nil {
		writePipe.Close()
		return nil, cerrors.Wrap(cerrors.Runtime, "write bootstrap pipe", err)
	}
	if err := writePipe.Close(); err != nil {
		return nil, cerrors.Wrap(cerrors.Runtime, "close bootstrap pipe", err)
	}

	return &Child{cmd: cmd, bootstrapPipe: writePipe}, nil
}

// Pid returns the cloned process's PID.
func (c *Child) Pid() int {
	return c.cmd.Process.Pid
}

// Signal sends signo to the child, wrapping kill(2) per spec.md
// section 4.5. Per spec.md section 9 anomaly 2, the create orchestrator
// never calls this between hooks.
func (c *Child) Signal(signo unix.Signal) error {
	if err := unix.Kill(c.Pid(), signo); err != nil {
		return cerrors.Wrap(cerrors.Runtime, fmt.Sprintf("signal %d to pid %d", signo, c.Pid()), err)
	}
	return nil
}

// Wait blocks until the child exits.
func (c *Child) Wait() (*os.ProcessState, error) {
	err := c.cmd.Wait()
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return nil, cerrors.Wrap(cerrors.Runtime, "wait for init process", err)
		}
	}
	return c.cmd.ProcessState, nil
}
