// Package ipc implements the two-phase rendezvous primitive described
// in spec.md section 4.1: a one-shot, one-way notification layered over
// an AF_UNIX SOCK_SEQPACKET socket bound to a filesystem path. It backs
// both the init-lock and the start-lock used during create.
package ipc

import (
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sys/unix"

	cerrors "github.com/greenhandatsjtu/pura/internal/errors"
)

// maxMessage is the fixed receive-buffer size from spec.md section
// 4.1. Writes larger than this are truncated by the receiver; this is
// a documented limit, not enforced on the sender.
const maxMessage = 1024

// backlog is the listen(2) backlog for the rendezvous socket.
const backlog = 10

// Parent is the listener side of the rendezvous: it binds the socket
// and blocks in Wait until a Child connects and sends exactly one
// message.
type Parent struct {
	fd   int
	path string
}

// NewParent creates and binds a SOCK_SEQPACKET socket at path. A
// second Parent bound to an already-bound path fails here with a
// Runtime error (spec.md section 8, scenario 2).
func NewParent(path string) (*Parent, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Runtime, "create ipc socket", err)
	}

	addr := &unix.SockaddrUnix{Name: path}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, cerrors.Wrap(cerrors.Runtime, "bind ipc socket "+path, err)
	}

	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, cerrors.Wrap(cerrors.Runtime, "listen ipc socket "+path, err)
	}

	return &Parent{fd: fd, path: path}, nil
}

// Wait blocks for exactly one Child connection and returns its
// message, trimmed of surrounding whitespace. One notify corresponds
// to exactly one Wait return (spec.md section 4.1 contract).
func (p *Parent) Wait() (string, error) {
	connFd, _, err := unix.Accept(p.fd)
	if err != nil {
		return "", cerrors.Wrap(cerrors.Runtime, "accept on ipc socket "+p.path, err)
	}
	defer unix.Close(connFd)

	buf := make([]byte, maxMessage)
	n, err := unix.Read(connFd, buf)
	if err != nil {
		return "", cerrors.Wrap(cerrors.Runtime, "read ipc socket "+p.path, err)
	}

	if !utf8.Valid(buf[:n]) {
		return "", cerrors.New(cerrors.Runtime, "decode ipc message", "payload is not valid UTF-8")
	}

	return strings.TrimSpace(string(buf[:n])), nil
}

// WaitTimeout behaves like Wait but gives up after d, closing the
// listening fd to unblock the pending accept/read (spec.md section 5:
// "An implementer should add a bounded timeout on init-lock wait — a
// deadlocked child otherwise hangs create forever"). A zero or
// negative d means no deadline. After a timeout the Parent is no
// longer usable; callers should treat it the same as any other
// Runtime failure and tear down.
func (p *Parent) WaitTimeout(d time.Duration) (string, error) {
	if d <= 0 {
		return p.Wait()
	}

	type result struct {
		msg string
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := p.Wait()
		done <- result{msg, err}
	}()

	select {
	case r := <-done:
		return r.msg, r.err
	case <-time.After(d):
		unix.Close(p.fd)
		return "", cerrors.New(cerrors.Runtime, "wait on ipc socket "+p.path, "timed out")
	}
}

// Close closes the listening fd and unlinks the socket path. Callers
// must call this on every exit path, success or error, so a stale
// socket file doesn't block a later create with the same id (spec.md
// section 9, "Deferred unlink").
func (p *Parent) Close() error {
	if err := unix.Close(p.fd); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "close ipc socket "+p.path, err)
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return cerrors.Wrap(cerrors.Runtime, "unlink ipc socket "+p.path, err)
	}
	return nil
}

// Child is the connector side of the rendezvous.
type Child struct {
	fd int
}

// NewChild connects to the rendezvous socket at path.
func NewChild(path string) (*Child, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Runtime, "create ipc socket", err)
	}

	addr := &unix.SockaddrUnix{Name: path}
	if err := unix.Connect(fd, addr); err != nil {
		unix.Close(fd)
		return nil, cerrors.Wrap(cerrors.Runtime, "connect ipc socket "+path, err)
	}

	return &Child{fd: fd}, nil
}

// Notify sends msg as a single datagram. Messages larger than 1024
// bytes are silently truncated by the receiver; callers are
// responsible for staying under that limit.
func (c *Child) Notify(msg string) error {
	if err := unix.Send(c.fd, []byte(msg), 0); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "write ipc socket", err)
	}
	return nil
}

// Close closes the connector's fd.
func (c *Child) Close() error {
	if err := unix.Close(c.fd); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "close ipc socket", err)
	}
	return nil
}
