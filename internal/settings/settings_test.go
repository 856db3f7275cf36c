package settings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Get("server_addr")
	require.NoError(t, err)
	require.False(t, ok, "missing key is not an error")

	require.NoError(t, s.Set("server_addr", "192.168.1.40"))
	v, ok, err := s.Get("server_addr")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "192.168.1.40", v)

	require.NoError(t, s.Set("server_addr", "192.168.1.41"))
	v, _, err = s.Get("server_addr")
	require.NoError(t, err)
	require.Equal(t, "192.168.1.41", v, "set overwrites")

	require.NoError(t, s.Delete("server_addr"))
	_, ok, err = s.Get("server_addr")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Delete("server_addr"), "deleting a missing key is fine")
}
