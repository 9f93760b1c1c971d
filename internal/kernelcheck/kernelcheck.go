// Package kernelcheck runs the preflight described in SPEC_FULL.md
// section 4.6: verify the running kernel is new enough for the
// requested namespace set before the create orchestrator commits to
// any clone(2) call, so an unsupported kernel fails fast with a Spec
// error instead of a deep, confusing clone failure.
package kernelcheck

import (
	"bytes"
	"fmt"

	"github.com/Masterminds/semver"
	"golang.org/x/sys/unix"

	cerrors "github.com/greenhandatsjtu/pura/internal/errors"
)

// minimum is the lowest kernel version each namespace type requires to
// behave the way this runtime assumes. User namespaces are the
// youngest and strictest requirement in the set.
var minimum = map[string]string{
	"mount": "3.8.0",
	"uts":   "2.6.19",
	"ipc":   "2.6.19",
	"pid":   "2.6.24",
	"user":  "3.8.0",
}

// Check verifies uname(2)'s release string satisfies the minimum
// version for every namespace type in requested.
func Check(requested []string) error {
	release, err := unameRelease()
	if err != nil {
		return cerrors.Wrap(cerrors.Runtime, "uname", err)
	}

	running, err := parseRelease(release)
	if err != nil {
		return cerrors.Wrap(cerrors.Spec, "parse kernel release "+release, err)
	}

	for _, ns := range requested {
		min, ok := minimum[ns]
		if !ok {
			continue
		}
		minVer, err := semver.NewVersion(min)
		if err != nil {
			return cerrors.Wrap(cerrors.Runtime, "parse minimum version for "+ns, err)
		}
		if running.LessThan(minVer) {
			return cerrors.New(cerrors.Spec, "kernel preflight",
				fmt.Sprintf("kernel %s is too old for %s namespace (requires >= %s)", release, ns, min))
		}
	}

	return nil
}

func unameRelease() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", err
	}
	n := bytes.IndexByte(uts.Release[:], 0)
	if n < 0 {
		n = len(uts.Release)
	}
	return string(uts.Release[:n]), nil
}

// parseRelease extracts the leading major.minor.patch run from a
// uname release string such as "5.15.0-91-generic", which semver can't
// parse directly because of the trailing distro suffix.
func parseRelease(release string) (*semver.Version, error) {
	end := 0
	dots := 0
	for end < len(release) {
		c := release[end]
		if c >= '0' && c <= '9' {
			end++
			continue
		}
		if c == '.' && dots < 2 {
			dots++
			end++
			continue
		}
		break
	}
	return semver.NewVersion(release[:end])
}
