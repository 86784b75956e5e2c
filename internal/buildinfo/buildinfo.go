// Package buildinfo holds build-time metadata injected with -ldflags, e.g.
//
//	-X github.com/firewatch-ai/firewatch/internal/buildinfo.Version=v1.2.0
package buildinfo

// UnknownValue is reported for metadata that was not injected at build time.
const UnknownValue = "unknown"

var (
	// Version is the git tag of the build.
	Version = "dev"
	// BuildDate is when the binary was built.
	BuildDate = UnknownValue
)

// Release names the build for error telemetry, e.g. "firewatch@v1.2.0".
func Release() string {
	return "firewatch@" + orUnknown(Version)
}

// String describes the build for --version output.
func String() string {
	return orUnknown(Version) + " (built " + orUnknown(BuildDate) + ")"
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownValue
	}
	return s
}
