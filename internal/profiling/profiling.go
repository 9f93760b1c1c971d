// Package profiling gates optional CPU profiling of the runtime
// process behind an environment variable, for use while developing
// the create pipeline. It is never enabled by default.
package profiling

import (
	"os"

	"github.com/pkg/profile"
)

const envVar = "PURA_PROFILE"

// Start begins CPU profiling if PURA_PROFILE is set in the
// environment, writing the profile into the directory it names. Callers
// defer the returned stop function; it is a no-op when profiling
// wasn't enabled.
func Start() func() {
	dir := os.Getenv(envVar)
	if dir == "" {
		return func() {}
	}
	stopper := profile.Start(profile.CPUProfile, profile.ProfilePath(dir), profile.Quiet)
	return stopper.Stop
}
