package versions

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// MeetsMinimum reports whether the running server version satisfies the
// minimum version a config file declares. Development builds ("dev",
// "build-<commit>") always pass, since they cannot be ordered against
// released versions.
func MeetsMinimum(current, minimum string) error {
	required, err := semver.NewVersion(minimum)
	if err != nil {
		return fmt.Errorf("invalid minimum version %q: %w", minimum, err)
	}

	cur, err := semver.NewVersion(current)
	if err != nil {
		// Not a released version; let it through.
		return nil
	}

	if cur.LessThan(required) {
		return fmt.Errorf("server version %s is older than the required minimum %s", current, minimum)
	}

	return nil
}
