// Package caps restores the process.capabilities.bounding field that
// the distilled spec omits but every real config.json carries (see
// SPEC_FULL.md section 4.8). It tracks the bounding set as a bitset
// indexed by Linux capability number and drops the excluded bits via
// PR_CAPBSET_DROP before exec.
package caps

import (
	"strings"

	"github.com/willf/bitset"
	"golang.org/x/sys/unix"

	cerrors "github.com/greenhandatsjtu/pura/internal/errors"
)

// names maps the OCI capability name vocabulary (CAP_NET_ADMIN, ...) to
// the kernel capability number. The list stops at CAP_CHECKPOINT_RESTORE
// (40), the newest capability defined as of the 5.9 kernel this core
// targets.
var names = map[string]uint{
	"CAP_CHOWN":              0,
	"CAP_DAC_OVERRIDE":       1,
	"CAP_DAC_READ_SEARCH":    2,
	"CAP_FOWNER":             3,
	"CAP_FSETID":             4,
	"CAP_KILL":               5,
	"CAP_SETGID":             6,
	"CAP_SETUID":             7,
	"CAP_SETPCAP":            8,
	"CAP_LINUX_IMMUTABLE":    9,
	"CAP_NET_BIND_SERVICE":   10,
	"CAP_NET_BROADCAST":      11,
	"CAP_NET_ADMIN":          12,
	"CAP_NET_RAW":            13,
	"CAP_IPC_LOCK":           14,
	"CAP_IPC_OWNER":          15,
	"CAP_SYS_MODULE":         16,
	"CAP_SYS_RAWIO":          17,
	"CAP_SYS_CHROOT":         18,
	"CAP_SYS_PTRACE":         19,
	"CAP_SYS_PACCT":          20,
	"CAP_SYS_ADMIN":          21,
	"CAP_SYS_BOOT":           22,
	"CAP_SYS_NICE":           23,
	"CAP_SYS_RESOURCE":       24,
	"CAP_SYS_TIME":           25,
	"CAP_SYS_TTY_CONFIG":     26,
	"CAP_MKNOD":              27,
	"CAP_LEASE":              28,
	"CAP_AUDIT_WRITE":        29,
	"CAP_AUDIT_CONTROL":      30,
	"CAP_SETFCAP":            31,
	"CAP_MAC_OVERRIDE":       32,
	"CAP_MAC_ADMIN":          33,
	"CAP_SYSLOG":             34,
	"CAP_WAKE_ALARM":         35,
	"CAP_BLOCK_SUSPEND":      36,
	"CAP_AUDIT_READ":         37,
	"CAP_PERFMON":            38,
	"CAP_BPF":                39,
	"CAP_CHECKPOINT_RESTORE": 40,
}

// Set is a bounding capability set.
type Set struct {
	bits *bitset.BitSet
}

// FromNames builds a Set from OCI capability names. An unrecognized
// name is a Spec error: a typo here should fail create, not silently
// grant more than intended.
func FromNames(bounding []string) (*Set, error) {
	if len(bounding) == 0 {
		return nil, nil
	}

	bits := bitset.New(41)
	for _, name := range bounding {
		n, ok := names[strings.ToUpper(name)]
		if !ok {
			return nil, cerrors.New(cerrors.Spec, "parse capability", "unknown capability "+name)
		}
		bits.Set(n)
	}

	return &Set{bits: bits}, nil
}

// Apply drops every capability bit not present in the set from the
// calling process's bounding set, via PR_CAPBSET_DROP. It must run
// after setuid/setgid and before execvp (SPEC_FULL.md section 4.8): a
// capability dropped before a privileged setuid could otherwise be
// regranted by the kernel's capability-inheritance rules on exec.
func (s *Set) Apply() error {
	if s == nil {
		return nil
	}
	for name, n := range names {
		if s.bits.Test(n) {
			continue
		}
		if err := unix.Prctl(unix.PR_CAPBSET_DROP, uintptr(n), 0, 0, 0); err != nil {
			return cerrors.Wrap(cerrors.Runtime, "drop capability "+name, err)
		}
	}
	return nil
}
