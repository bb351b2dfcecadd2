package semver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsValid(t *testing.T) {
	valid := []string{"0.0.1", "1.2.3", "10.20.30"}
	for _, v := range valid {
		require.True(t, IsValid(v), v)
	}
	invalid := []string{"", "1", "1.2", "v1.2.3", "1.2.3-beta", "1.2.3.4", "a.b.c", "1.2.x"}
	for _, v := range invalid {
		require.False(t, IsValid(v), v)
	}
}

func TestCompare(t *testing.T) {
	require.Equal(t, 0, Compare("1.2.3", "1.2.3"))
	require.Equal(t, -1, Compare("1.2.3", "1.2.4"))
	require.Equal(t, 1, Compare("2.0.0", "1.99.99"))
	require.Equal(t, 1, Compare("1.10.0", "1.9.0"))
}

func TestBumpPatch(t *testing.T) {
	next, err := BumpPatch("1.2.3")
	require.NoError(t, err)
	require.Equal(t, "1.2.4", next)

	_, err = BumpPatch("not-a-version")
	require.Error(t, err)
}
