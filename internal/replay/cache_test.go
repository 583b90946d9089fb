package replay

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckAndAddSingleUse(t *testing.T) {
	cache := NewCache(filepath.Join(t.TempDir(), "replay.json"))
	tokenID := []byte{0x01, 0x02, 0x03}

	ok, err := cache.CheckAndAdd(tokenID, 1000, 10)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = cache.CheckAndAdd(tokenID, 1000, 11)
	require.NoError(t, err)
	require.False(t, ok, "second use of the same token_id must be rejected")
}

func TestCheckAndAddAllowsReuseAfterExpiry(t *testing.T) {
	cache := NewCache(filepath.Join(t.TempDir(), "replay.json"))
	tokenID := []byte{0xAA}

	ok, err := cache.CheckAndAdd(tokenID, 100, 10)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = cache.CheckAndAdd(tokenID, 200, 150)
	require.NoError(t, err)
	require.True(t, ok, "an expired entry must be purged before the new check")
}

func TestCheckAndAddPersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.json")
	tokenID := []byte{0x05}

	ok, err := NewCache(path).CheckAndAdd(tokenID, 1000, 10)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = NewCache(path).CheckAndAdd(tokenID, 1000, 11)
	require.NoError(t, err)
	require.False(t, ok)
}
