package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetCurrentVersion(t *testing.T) {
	require.Equal(t, DevVersion, GetCurrentVersion("dev"))
	require.Equal(t, DevVersion, GetCurrentVersion("demo"))
	require.Equal(t, Version, GetCurrentVersion("prod"))
}

func TestStringFull(t *testing.T) {
	require.Contains(t, StringFull(), "Version="+Version)
	// Unknown build metadata stays out of the output.
	require.NotContains(t, StringFull(), "Commit=")
	require.NotContains(t, StringFull(), "BuildTime=")
}
