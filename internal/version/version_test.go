package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveUsesLdflags(t *testing.T) {
	oldV, oldC := Version, Commit
	t.Cleanup(func() { Version, Commit = oldV, oldC })

	Version = "v1.2.3"
	Commit = "0123456789abcdef"
	require.Equal(t, "v1.2.3", Resolve().Version)
	require.Equal(t, "v1.2.3 (0123456789ab)", String())
}

func TestResolveFallback(t *testing.T) {
	oldV := Version
	t.Cleanup(func() { Version = oldV })

	Version = ""
	require.NotEmpty(t, Resolve().Version)
}
