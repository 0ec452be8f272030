// Package version implements the SDK version compatibility check spec
// §4.C places between two INTERSECT peers, built on
// github.com/Masterminds/semver/v3 for parsing.
package version

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Compatible implements spec §4.C: major version differences are always
// incompatible; when either version is a pre-release (major == 0) a
// minor-version difference is also incompatible; patch differences are
// always compatible.
func Compatible(theirs, ours string) (bool, error) {
	theirV, err := semver.NewVersion(theirs)
	if err != nil {
		return false, fmt.Errorf("invalid peer sdk_version %q: %w", theirs, err)
	}
	ourV, err := semver.NewVersion(ours)
	if err != nil {
		return false, fmt.Errorf("invalid local sdk_version %q: %w", ours, err)
	}

	if theirV.Major() != ourV.Major() {
		return false, nil
	}
	if (theirV.Major() == 0 || ourV.Major() == 0) && theirV.Minor() != ourV.Minor() {
		return false, nil
	}
	return true, nil
}

// MustCompatible is Compatible but treats a parse failure as
// incompatible rather than propagating the error, for callers that
// already validated the version string is well-formed semver.
func MustCompatible(theirs, ours string) bool {
	ok, err := Compatible(theirs, ours)
	return err == nil && ok
}
