package migrations

import (
	"database/sql"
)

// GetInitialMigrations returns the migrations that create the segment
// identifier pool tables.
func GetInitialMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_segment_pool_tables",
			Up: func(tx *sql.Tx) error {
				// One row per VLAN id believed to be inside a configured
				// range, or currently allocated even if now out of range.
				_, err := tx.Exec(`
					CREATE TABLE vlan_slots (
						physical_network TEXT NOT NULL,
						vlan_id INTEGER NOT NULL,
						allocated INTEGER NOT NULL DEFAULT 0,
						PRIMARY KEY (physical_network, vlan_id)
					)
				`)
				if err != nil {
					return err
				}

				_, err = tx.Exec(`
					CREATE TABLE network_bindings (
						network_id TEXT PRIMARY KEY,
						physical_network TEXT NOT NULL,
						vlan_id INTEGER NOT NULL
					)
				`)
				if err != nil {
					return err
				}

				// Deliberately no primary key: duplicate cursor rows left
				// behind by racing transactions must stay representable so
				// the repair path in the tunnel repository can collapse them.
				_, err = tx.Exec(`
					CREATE TABLE tunnel_key_cursor (
						last_key INTEGER NOT NULL
					)
				`)
				if err != nil {
					return err
				}

				_, err = tx.Exec(`
					CREATE TABLE tunnel_key_assignments (
						network_id TEXT NOT NULL,
						tunnel_key INTEGER NOT NULL UNIQUE
					)
				`)
				return err
			},
			Down: func(tx *sql.Tx) error {
				for _, stmt := range []string{
					`DROP TABLE IF EXISTS tunnel_key_assignments`,
					`DROP TABLE IF EXISTS tunnel_key_cursor`,
					`DROP TABLE IF EXISTS network_bindings`,
					`DROP TABLE IF EXISTS vlan_slots`,
				} {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Version: 2,
			Name:    "add_allocation_indices",
			Up: func(tx *sql.Tx) error {
				indices := []string{
					"CREATE INDEX IF NOT EXISTS idx_vlan_slots_free ON vlan_slots(physical_network, allocated)",
					"CREATE INDEX IF NOT EXISTS idx_tunnel_key_assignments_network ON tunnel_key_assignments(network_id)",
				}

				for _, indexSQL := range indices {
					if _, err := tx.Exec(indexSQL); err != nil {
						return err
					}
				}

				return nil
			},
			Down: func(tx *sql.Tx) error {
				indices := []string{
					"DROP INDEX IF EXISTS idx_vlan_slots_free",
					"DROP INDEX IF EXISTS idx_tunnel_key_assignments_network",
				}

				for _, dropSQL := range indices {
					if _, err := tx.Exec(dropSQL); err != nil {
						return err
					}
				}

				return nil
			},
		},
	}
}
