// semver.go compares build version strings, such as the build recorded in a flat file
// header against the running binary.
package validation

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// ValidateBuild checks that a build string is a version go-version can parse.
func ValidateBuild(build string) error {
	if _, err := version.NewVersion(build); err != nil {
		return fmt.Errorf("invalid build version: %w", err)
	}
	return nil
}

// CompareBuild compares two build versions.
// Returns -1 if a < b, 0 if a == b, 1 if a > b
func CompareBuild(a, b string) (int, error) {
	va, err := version.NewVersion(a)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", a, err)
	}

	vb, err := version.NewVersion(b)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", b, err)
	}

	return va.Compare(vb), nil
}
