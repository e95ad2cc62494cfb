package version

import (
	_ "embed"
	"strings"
)

// Version information for pbirefresh and pbidatasets.
// The VERSION file sits next to this file and is embedded at compile time.

//go:embed VERSION
var versionRaw string

// Version is the current version of the tool suite, trimmed of whitespace.
var Version = strings.TrimSpace(versionRaw)

// Get returns the current version string.
func Get() string {
	return Version
}

