package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelease(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })

	Version = "v1.2.0"
	assert.Equal(t, "firewatch@v1.2.0", Release())

	Version = ""
	assert.Equal(t, "firewatch@unknown", Release())
}

func TestString(t *testing.T) {
	origVersion, origDate := Version, BuildDate
	t.Cleanup(func() { Version, BuildDate = origVersion, origDate })

	Version, BuildDate = "v1.2.0", "2024-08-01"
	assert.Equal(t, "v1.2.0 (built 2024-08-01)", String())
}
