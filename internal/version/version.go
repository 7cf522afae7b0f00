// Package version manages the jsonschemals version.
//
// The VersionOverride variable may be used to set the reported version at
// link time, e.g. -ldflags "-X .../internal/version.VersionOverride=v1.2.3".
package version

import "runtime/debug"

// semver is the version reported when no build info and no linker override
// are available (e.g. `go run`).
const semver = "v0.1.0-dev"

// VersionOverride, when set via the linker, takes precedence over build
// info.
var VersionOverride = ""

// Version returns the jsonschemals version.
//
// By default this is read from runtime/debug.ReadBuildInfo, falling back to
// the hardcoded semver above, but may be overridden by [VersionOverride].
func Version() string {
	if VersionOverride != "" {
		return VersionOverride
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return semver
}
