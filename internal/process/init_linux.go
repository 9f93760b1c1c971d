package process

import (
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/greenhandatsjtu/pura/internal/caps"
	cerrors "github.com/greenhandatsjtu/pura/internal/errors"
	"github.com/greenhandatsjtu/pura/internal/ipc"
	"github.com/greenhandatsjtu/pura/internal/oci"
	"github.com/greenhandatsjtu/pura/internal/rootfs"
	"github.com/greenhandatsjtu/pura/internal/terminal"
)

// RunInit is the entry point of the hidden "init" subcommand: it is
// the process body clone(2) would otherwise run directly, realizing
// the child half of spec.md section 4.5's ordering contract (steps
// 3-6, then 8 once released). It never returns on a successful run —
// it ends in execve — and calls os.Exit directly on failure, since by
// the time it runs there is no parent Go call stack left to unwind
// into.
func RunInit() {
	bootstrap, err := readBootstrap()
	if err != nil {
		logrus.WithError(err).Error("read bootstrap data")
		os.Exit(1)
	}

	startLock, err := ipc.NewParent(bootstrap.RunSockPath)
	if err != nil {
		logrus.WithError(err).Error("create start-lock")
		os.Exit(1)
	}

	initClient, err := ipc.NewChild(bootstrap.InitSockPath)
	if err != nil {
		logrus.WithError(err).Error("connect init-lock")
		os.Exit(1)
	}

	if err := setup(bootstrap); err != nil {
		reportFailure(initClient, err)
	}

	if err := initClient.Notify("0"); err != nil {
		logrus.WithError(err).Error("notify init-lock")
	}
	if err := initClient.Close(); err != nil {
		logrus.WithError(err).Warn("close init-lock client")
	}

	sanitizeEnv(bootstrap.Spec.Process)

	if _, err := startLock.Wait(); err != nil {
		logrus.WithError(err).Error("wait on start-lock")
		os.Exit(1)
	}
	if err := startLock.Close(); err != nil {
		logrus.WithError(err).Warn("close start-lock")
	}

	if err := execWorkload(bootstrap.Spec); err != nil {
		logrus.WithError(err).Error("exec workload")
		os.Exit(1)
	}
}

// readBootstrap decodes the Bootstrap document the parent wrote to the
// inherited pipe at bootstrapFd.
func readBootstrap() (*Bootstrap, error) {
	f := os.NewFile(uintptr(bootstrapFd), "bootstrap-pipe")
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Runtime, "read bootstrap pipe", err)
	}

	var b Bootstrap
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, cerrors.Wrap(cerrors.Runtime, "unmarshal bootstrap", err)
	}
	return &b, nil
}

// setup performs spec.md section 4.3-4.4's child-side work: terminal
// allocation and handoff (if requested), filesystem construction, and
// sethostname. Any failure here is reported over the init-lock by the
// caller.
func setup(b *Bootstrap) error {
	if b.HasConsole {
		if err := setupConsole(b); err != nil {
			return err
		}
	}

	var devices []oci.Device
	var propagation string
	if b.Spec.Linux != nil {
		devices = b.Spec.Linux.Devices
		propagation = b.Spec.Linux.RootfsPropagation
	}

	if err := rootfs.Build(b.RootfsPath, b.Spec.Mounts, devices, propagation); err != nil {
		return err
	}
	if err := rootfs.Pivot(b.RootfsPath); err != nil {
		return err
	}

	if b.Spec.Hostname != "" {
		if err := unix.Sethostname([]byte(b.Spec.Hostname)); err != nil {
			return cerrors.Wrap(cerrors.Runtime, "sethostname", err)
		}
	}

	return nil
}

// setupConsole allocates the pty, makes it the calling process's
// controlling terminal, and hands the master off to the supervisor
// over the inherited console-socket fd (spec.md section 4.4).
func setupConsole(b *Bootstrap) error {
	pty, err := terminal.Open()
	if err != nil {
		return err
	}

	if err := pty.MakeControlling(); err != nil {
		return err
	}

	if err := terminal.SendMaster(consoleFd, pty.Name, int(pty.Master.Fd())); err != nil {
		return err
	}

	if err := pty.CloseMaster(); err != nil {
		return err
	}

	if err := unix.Close(consoleFd); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "close inherited console socket", err)
	}

	return nil
}

// reportFailure sends err's message over the init-lock, the contract
// spec.md section 7 describes for child-side setup failures, then
// exits non-zero. It does not return.
func reportFailure(initClient *ipc.Child, err error) {
	if notifyErr := initClient.Notify(err.Error()); notifyErr != nil {
		logrus.WithError(notifyErr).Error("notify init-lock of failure")
	}
	if closeErr := initClient.Close(); closeErr != nil {
		logrus.WithError(closeErr).Warn("close init-lock client")
	}
	os.Exit(1)
}

// sanitizeEnv clears the inherited process environment and replaces it
// with process.env, the process-global mutation spec.md section 9
// requires happen in the child, after clone and before exec.
func sanitizeEnv(p *oci.Process) {
	os.Clearenv()
	if p == nil {
		return
	}
	for _, kv := range p.Env {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		os.Setenv(parts[0], parts[1])
	}
}

// execWorkload applies the final identity and capability changes and
// replaces the calling process's image with process.args, per spec.md
// section 4.5 step 8 and SPEC_FULL.md section 4.8.
func execWorkload(spec *oci.Spec) error {
	if spec.Process == nil {
		return cerrors.New(cerrors.Spec, "exec workload", "process not configured")
	}
	p := spec.Process

	if err := unix.Setgid(int(p.User.GID)); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "setgid", err)
	}
	if err := unix.Setuid(int(p.User.UID)); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "setuid", err)
	}

	var capSet *caps.Set
	if p.Capabilities != nil {
		var err error
		capSet, err = caps.FromNames(p.Capabilities.Bounding)
		if err != nil {
			return err
		}
	}
	if err := capSet.Apply(); err != nil {
		return err
	}

	if p.Cwd != "" {
		if err := unix.Chdir(p.Cwd); err != nil {
			return cerrors.Wrap(cerrors.Runtime, "chdir "+p.Cwd, err)
		}
	}

	path, err := exec.LookPath(p.Args[0])
	if err != nil {
		return cerrors.Wrap(cerrors.Spec, "resolve executable "+p.Args[0], err)
	}

	if err := syscall.Exec(path, p.Args, os.Environ()); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "execve "+path, err)
	}
	return nil
}
