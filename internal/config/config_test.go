package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTempHome(t *testing.T) {
	t.Helper()
	t.Setenv("HFMC_HOME", t.TempDir())
}

func TestLoadInitializesDefaults(t *testing.T) {
	withTempHome(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultDaemonPort, cfg.DaemonPort)
	assert.NotEmpty(t, cfg.Mirrors)
}

func TestAddPeerIsIdempotent(t *testing.T) {
	withTempHome(t)

	require.NoError(t, AddPeer("10.0.0.1", 9090))
	require.NoError(t, AddPeer("10.0.0.1", 9090))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Len(t, cfg.Peers, 1)
}

func TestRemovePeer(t *testing.T) {
	withTempHome(t)

	require.NoError(t, AddPeer("10.0.0.1", 9090))
	require.NoError(t, AddPeer("10.0.0.2", 9090))
	require.NoError(t, RemovePeer("10.0.0.1", 9090))

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Peers, 1)
	assert.Equal(t, "10.0.0.2", cfg.Peers[0].IP)
}

func TestResetRestoresDefaults(t *testing.T) {
	withTempHome(t)

	cfg, err := Load()
	require.NoError(t, err)
	defaultCache := cfg.CacheDir

	cfg.CacheDir = "/elsewhere"
	cfg.DaemonPort = 9999
	require.NoError(t, Save(cfg))

	gotCache, err := ResetCacheDir()
	require.NoError(t, err)
	assert.Equal(t, defaultCache, gotCache)

	gotPort, err := ResetDaemonPort()
	require.NoError(t, err)
	assert.Equal(t, DefaultDaemonPort, gotPort)

	reloaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, defaultCache, reloaded.CacheDir)
	assert.Equal(t, DefaultDaemonPort, reloaded.DaemonPort)
}

func TestSaveAndLoadRoundTripsCustomFields(t *testing.T) {
	withTempHome(t)

	cfg, err := Load()
	require.NoError(t, err)
	cfg.DaemonPort = 9999
	cfg.CloudflareZoneID = "zone-123"
	require.NoError(t, Save(cfg))

	got, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, got.DaemonPort)
	assert.Equal(t, "zone-123", got.CloudflareZoneID)
}
