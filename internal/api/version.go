package api

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// DefaultVersion is the API version the cart endpoints were built against.
const DefaultVersion = "v1"

// BasePath maps an API version to its URL prefix. Only the major version
// appears in the path: "v1.4.0" and "1.4" both give "/api/v1".
func BasePath(version string) (string, error) {
	if version == "" {
		version = DefaultVersion
	}
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	if !semver.IsValid(version) {
		return "", fmt.Errorf("invalid api version %q", version)
	}
	return "/api/" + semver.Major(version), nil
}
