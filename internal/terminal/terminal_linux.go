// Package terminal implements the pseudo-terminal handoff described in
// spec.md section 4.4: the parent dials the supervisor's console
// socket before forking, and the child, once inside its namespaces,
// allocates a pty pair, makes the slave its controlling terminal, and
// sends the master fd back to the supervisor as SCM_RIGHTS ancillary
// data.
package terminal

import (
	"fmt"
	"os"

	"github.com/containerd/console"
	"golang.org/x/sys/unix"

	cerrors "github.com/greenhandatsjtu/pura/internal/errors"
)

// Socket is the parent-side connection to the supervisor's console
// socket ("PtySocket" in spec.md section 4.4). It is dialed before
// forking so its fd can be inherited by the child via ExtraFiles.
type Socket struct {
	file *os.File
}

// NewSocket connects to the supervisor's listening console socket at
// path.
func NewSocket(path string) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Runtime, "create console socket", err)
	}

	addr := &unix.SockaddrUnix{Name: path}
	if err := unix.Connect(fd, addr); err != nil {
		unix.Close(fd)
		return nil, cerrors.Wrap(cerrors.Runtime, "connect console socket "+path, err)
	}

	return &Socket{file: os.NewFile(uintptr(fd), "console-socket")}, nil
}

// File returns the underlying fd for inclusion in exec.Cmd.ExtraFiles.
func (s *Socket) File() *os.File {
	return s.file
}

// Close closes the parent's copy of the socket, once the child has
// taken over the inherited fd (spec.md section 4.5, step 12).
func (s *Socket) Close() error {
	if err := s.file.Close(); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "close console socket", err)
	}
	return nil
}

// SendMaster transmits masterFd to the peer listening on socketFd as
// SCM_RIGHTS ancillary data, with name as the accompanying message
// body (spec.md section 4.4, "Handoff"). It runs inside the child,
// operating on the socket fd it inherited from the parent.
func SendMaster(socketFd int, name string, masterFd int) error {
	rights := unix.UnixRights(masterFd)
	if err := unix.Sendmsg(socketFd, []byte(name), rights, nil, 0); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "sendmsg console master", err)
	}
	return nil
}

// Pty is the child-side pseudo-terminal pair, created after the child
// enters its namespaces and before the slave becomes its stdio
// (spec.md section 4.4, "Pty (child side)").
type Pty struct {
	Master console.Console
	Slave  *os.File
	Name   string
}

// Open allocates a new pty pair: opens /dev/ptmx for the master, grants
// and unlocks it, resolves the slave path, and opens the slave
// read-write. containerd/console's NewPty folds the ptmx/grantpt/
// unlockpt/ptsname sequence into one call.
func Open() (*Pty, error) {
	master, slaveName, err := console.NewPty()
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Runtime, "open pty", err)
	}

	slave, err := os.OpenFile(slaveName, os.O_RDWR, 0)
	if err != nil {
		master.Close()
		return nil, cerrors.Wrap(cerrors.Runtime, "open pty slave "+slaveName, err)
	}

	return &Pty{Master: master, Slave: slave, Name: slaveName}, nil
}

// MakeControlling makes the slave the calling process's controlling
// terminal: starts a new session, performs TIOCSCTTY, then dups the
// slave onto stdin/stdout/stderr (spec.md section 4.4).
func (p *Pty) MakeControlling() error {
	if _, err := unix.Setsid(); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "setsid", err)
	}

	if err := unix.IoctlSetInt(int(p.Slave.Fd()), unix.TIOCSCTTY, 0); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "ioctl TIOCSCTTY", err)
	}

	for fd := 0; fd < 3; fd++ {
		if err := unix.Dup2(int(p.Slave.Fd()), fd); err != nil {
			return cerrors.Wrap(cerrors.Runtime, fmt.Sprintf("dup2 pty slave to fd %d", fd), err)
		}
	}

	return nil
}

// CloseMaster closes the child's copy of the master fd once it has
// been handed off to the supervisor (spec.md section 4.4: "the child
// closes its copy of the master").
func (p *Pty) CloseMaster() error {
	if err := p.Master.Close(); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "close pty master", err)
	}
	return nil
}
