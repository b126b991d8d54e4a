// Package validation checks the release versions a CLI and a running daemon
// report to each other.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// DevVersion is reported by builds without release ldflags.
const DevVersion = "dev"

// ErrIncompatible means the bridge API of the daemon may differ from the
// one the CLI speaks.
var ErrIncompatible = errors.New("incompatible daemon version")

// ValidateVersion validates a release version: X.Y.Z with an optional
// prerelease or build suffix and an optional leading v.
func ValidateVersion(v string) error {
	normalized := strings.TrimPrefix(v, "v")
	if normalized == "" {
		return errors.New("version cannot be empty")
	}

	// semver expects the leading v
	if !semver.IsValid("v" + normalized) {
		return errors.New("invalid version: must be in format X.Y.Z or X.Y.Z-prerelease")
	}

	// semver accepts vX and vX.Y; releases carry all three parts
	mainPart := strings.SplitN(strings.SplitN(normalized, "+", 2)[0], "-", 2)[0]
	if strings.Count(mainPart, ".") < 2 {
		return errors.New("invalid version: must be in format X.Y.Z (major.minor.patch)")
	}

	return nil
}

// CheckCompatible reports whether a CLI at cliVersion can drive a daemon at
// daemonVersion. Releases must share the major version, or the minor version
// while still at v0. Development builds are compatible with anything.
func CheckCompatible(cliVersion, daemonVersion string) error {
	if isDev(cliVersion) || isDev(daemonVersion) {
		return nil
	}
	if err := ValidateVersion(cliVersion); err != nil {
		return fmt.Errorf("cli version %q: %w", cliVersion, err)
	}
	if err := ValidateVersion(daemonVersion); err != nil {
		return fmt.Errorf("daemon version %q: %w", daemonVersion, err)
	}

	a, b := canonical(cliVersion), canonical(daemonVersion)
	if semver.Major(a) != semver.Major(b) {
		return fmt.Errorf("%w: cli %s, daemon %s", ErrIncompatible, a, b)
	}
	if semver.Major(a) == "v0" && semver.MajorMinor(a) != semver.MajorMinor(b) {
		return fmt.Errorf("%w: cli %s, daemon %s", ErrIncompatible, a, b)
	}
	return nil
}

func isDev(v string) bool {
	return v == "" || v == DevVersion
}

func canonical(v string) string {
	return semver.Canonical("v" + strings.TrimPrefix(v, "v"))
}
