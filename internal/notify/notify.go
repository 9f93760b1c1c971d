// Package notify reports create's outcome to an enclosing systemd
// unit via the sd_notify protocol, the way a systemd-supervised
// container runtime is expected to (SPEC_FULL.md section 4.6).
// Outside of systemd (NOTIFY_SOCKET unset) every call is a no-op.
package notify

import (
	"github.com/coreos/go-systemd/v22/daemon"
)

// Ready reports READY=1 to the supervising systemd unit, if any.
func Ready() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
}

// Failed reports a human-readable failure status to the supervising
// systemd unit, if any.
func Failed(status string) {
	_, _ = daemon.SdNotify(false, "STATUS="+status)
}
