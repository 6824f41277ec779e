package types //nolint:revive // types is a valid package name

import (
	"regexp"
	"testing"
)

func TestVersion_Format(t *testing.T) {
	semverRegex := regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)
	if !semverRegex.MatchString(Version) {
		t.Errorf("Version %q is not a valid semver", Version)
	}
}

func TestManifestFormatVersion_MatchesVersion(t *testing.T) {
	if ManifestFormatVersion != Version {
		t.Errorf("ManifestFormatVersion %q != Version %q (lockstep versioning violated)", ManifestFormatVersion, Version)
	}
}
