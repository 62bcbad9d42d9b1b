package config

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	_ "modernc.org/sqlite"

	"netpool/internal/domain"
	"netpool/internal/migrations"
)

// Config holds all configuration for the segment pool service
type Config struct {
	// DBPath is the sqlite database file backing the pool state
	DBPath string `mapstructure:"db_path"`

	// NetworkVlanRanges lists allocatable VLAN ranges as
	// "physical_network:min:max" entries, one or more per physical network
	NetworkVlanRanges []string `mapstructure:"network_vlan_ranges"`

	// TunnelKeyMin and TunnelKeyMax bound the global tunnel key space
	TunnelKeyMin int64 `mapstructure:"tunnel_key_min"`
	TunnelKeyMax int64 `mapstructure:"tunnel_key_max"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		DBPath:       "~/netpool/data/netpool.db",
		TunnelKeyMin: domain.TunnelKeyMinHard,
		TunnelKeyMax: domain.TunnelKeyMaxHard,
	}
}

// Load reads configuration from an optional file plus NETPOOL_* environment
// variables, falling back to defaults for anything unset.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("db_path", "~/netpool/data/netpool.db")
	v.SetDefault("network_vlan_ranges", []string{})
	v.SetDefault("tunnel_key_min", int64(domain.TunnelKeyMinHard))
	v.SetDefault("tunnel_key_max", int64(domain.TunnelKeyMaxHard))

	v.SetEnvPrefix("NETPOOL")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// VlanRanges parses the configured "physical_network:min:max" entries into
// validated per-network ranges.
func (c *Config) VlanRanges() (domain.VlanRanges, error) {
	ranges := make(domain.VlanRanges)
	for _, entry := range c.NetworkVlanRanges {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 || parts[0] == "" {
			return nil, fmt.Errorf("%w: malformed vlan range entry %q", domain.ErrInvalidRange, entry)
		}

		min, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad minimum in %q", domain.ErrInvalidRange, entry)
		}
		max, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad maximum in %q", domain.ErrInvalidRange, entry)
		}

		vlanRange, err := domain.NewVlanRange(min, max)
		if err != nil {
			return nil, err
		}
		ranges[parts[0]] = append(ranges[parts[0]], vlanRange)
	}
	return ranges, nil
}

// InitializeDatabase creates and configures the database connection
func (c *Config) InitializeDatabase() (*sql.DB, error) {
	dbPath := c.expandPath(c.DBPath)

	// Ensure database directory exists
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	OptimizeDatabaseConnection(db)

	if err := ApplyPragmaOptimizations(db); err != nil {
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := c.runMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// expandPath expands ~ to home directory
func (c *Config) expandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Return original path if we can't get home dir
		return path
	}

	return filepath.Join(homeDir, path[2:])
}

// runMigrations runs all database migrations
func (c *Config) runMigrations(db *sql.DB) error {
	migrator := migrations.NewMigrator(db)
	for _, migration := range migrations.GetInitialMigrations() {
		migrator.AddMigration(migration)
	}
	return migrator.RunMigrations()
}
