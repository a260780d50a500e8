package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_DefaultWhenMissing(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "nested", "remote.env"))
	require.NoError(t, err)

	addr, err := s.ServerAddress()
	require.NoError(t, err)
	assert.Equal(t, DefaultServerAddress, addr)
}

func TestStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "remote.env")
	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.SetServerAddress(" 192.168.1.20:7777 "))
	addr, err := s.ServerAddress()
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20:7777", addr)

	// a second store on the same file sees the value, as on the next run
	again, err := Open(path)
	require.NoError(t, err)
	addr, err = again.ServerAddress()
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20:7777", addr)
}

func TestStore_KeepsOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remote.env")
	require.NoError(t, os.WriteFile(path, []byte("THEME=dark\nSERVER_ADDRESS=old:1\n"), 0o600))

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SetServerAddress("new:2"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "THEME")
	addr, err := s.ServerAddress()
	require.NoError(t, err)
	assert.Equal(t, "new:2", addr)
}

func TestStore_EmptyValueFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remote.env")
	require.NoError(t, os.WriteFile(path, []byte("SERVER_ADDRESS=\n"), 0o600))

	s, err := Open(path)
	require.NoError(t, err)
	addr, err := s.ServerAddress()
	require.NoError(t, err)
	assert.Equal(t, DefaultServerAddress, addr)
}
