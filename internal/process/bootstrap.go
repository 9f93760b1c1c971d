// Package process implements the fork/clone driver of spec.md section
// 4.5. Go cannot hand clone(2) a raw function pointer the way the
// source's fork-and-run-a-closure idiom does, so the driver re-execs
// /proc/self/exe with a hidden "init" argument (argv[1]) and
// exec.Cmd.SysProcAttr.Cloneflags carrying the namespace bitmask,
// mirroring every Go OCI runtime in the pack (libcontainer's
// initProcess/setnsProcess split in process_linux.go).
package process

import (
	"github.com/greenhandatsjtu/pura/internal/oci"
)

// bootstrapFd and consoleFd are the fixed ExtraFiles slots the child
// inherits: fd 3 always carries the JSON-encoded Bootstrap document,
// fd 4 carries the console-socket connection when the workload
// requests a terminal.
const (
	bootstrapFd = 3
	consoleFd   = 4
)

// Bootstrap is everything the re-exec'd child needs that it cannot
// otherwise discover: it travels over the inherited pipe the way
// initProcess.bootstrapData does in libcontainer/process_linux.go.
type Bootstrap struct {
	ID           string    `json:"id"`
	Bundle       string    `json:"bundle"`
	RootfsPath   string    `json:"rootfsPath"`
	InitSockPath string    `json:"initSockPath"`
	RunSockPath  string    `json:"runSockPath"`
	HasConsole   bool      `json:"hasConsole"`
	Spec         *oci.Spec `json:"spec"`
}
