package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netpool/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "~/netpool/data/netpool.db", cfg.DBPath)
	assert.Empty(t, cfg.NetworkVlanRanges)
	assert.Equal(t, int64(domain.TunnelKeyMinHard), cfg.TunnelKeyMin)
	assert.Equal(t, int64(domain.TunnelKeyMaxHard), cfg.TunnelKeyMax)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "netpool.yaml")
	content := []byte(`
db_path: /var/lib/netpool/pool.db
network_vlan_ranges:
  - physnet1:1000:1999
  - physnet1:3000:3999
  - physnet2:100:199
tunnel_key_min: 1
tunnel_key_max: 65535
`)
	require.NoError(t, os.WriteFile(path, content, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/netpool/pool.db", cfg.DBPath)
	assert.Len(t, cfg.NetworkVlanRanges, 3)
	assert.Equal(t, int64(65535), cfg.TunnelKeyMax)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfig_VlanRanges(t *testing.T) {
	cfg := &Config{
		NetworkVlanRanges: []string{
			"physnet1:1000:1999",
			"physnet1:3000:3999",
			"physnet2:100:199",
		},
	}

	ranges, err := cfg.VlanRanges()
	require.NoError(t, err)

	require.Len(t, ranges["physnet1"], 2)
	assert.Equal(t, domain.VlanRange{Min: 1000, Max: 1999}, ranges["physnet1"][0])
	assert.Equal(t, domain.VlanRange{Min: 3000, Max: 3999}, ranges["physnet1"][1])
	require.Len(t, ranges["physnet2"], 1)
	assert.Equal(t, domain.VlanRange{Min: 100, Max: 199}, ranges["physnet2"][0])
}

func TestConfig_VlanRanges_Invalid(t *testing.T) {
	cases := []struct {
		name  string
		entry string
	}{
		{"missing parts", "physnet1:1000"},
		{"empty network", ":1000:1999"},
		{"bad min", "physnet1:x:1999"},
		{"bad max", "physnet1:1000:y"},
		{"min above max", "physnet1:1999:1000"},
		{"outside hard limits", "physnet1:0:4095"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{NetworkVlanRanges: []string{tc.entry}}
			_, err := cfg.VlanRanges()
			assert.ErrorIs(t, err, domain.ErrInvalidRange)
		})
	}
}

func TestConfig_InitializeDatabase(t *testing.T) {
	cfg := NewConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "data", "pool.db")

	db, err := cfg.InitializeDatabase()
	require.NoError(t, err)
	defer db.Close()

	// Migrations ran and the pool tables exist
	for _, table := range []string{"vlan_slots", "network_bindings", "tunnel_key_cursor", "tunnel_key_assignments"} {
		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "expected table %s to exist", table)
	}
}

func TestConfig_ExpandPath(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "/absolute/path.db", cfg.expandPath("/absolute/path.db"))

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "pool.db"), cfg.expandPath("~/pool.db"))
}
