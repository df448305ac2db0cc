package signcache

import (
	"testing"

	"github.com/ipasign/ipasign/internal/bundletree"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	base := t.TempDir()
	node, ok, err := Load(base, "deadbeef")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, node)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	base := t.TempDir()
	node := &bundletree.SignNode{
		Path:             "/",
		BundleID:         "com.x.y",
		BundleExecutable: "Main",
		Changed:          []string{"embedded.mobileprovision"},
	}
	require.NoError(t, Save(base, "abc123", node))

	loaded, ok, err := Load(base, "abc123")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, node.BundleID, loaded.BundleID)
	require.Equal(t, node.Changed, loaded.Changed)
}

func TestKeyIsStableForSamePath(t *testing.T) {
	k1, err := Key("/tmp/a/b")
	require.NoError(t, err)
	k2, err := Key("/tmp/a/b")
	require.NoError(t, err)
	require.Equal(t, k1, k2)

	k3, err := Key("/tmp/a/c")
	require.NoError(t, err)
	require.NotEqual(t, k1, k3)
}
