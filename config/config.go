// Package config is the JSON-loadable configuration surface for a stratadb
// instance: a flat JSON-tagged struct with a Load/Default pair and
// field-level validation.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/stratadb/stratadb/hnsw"
	"github.com/stratadb/stratadb/wal"
)

// Config is the full set of tunables a stratadb instance accepts. Every
// field has a sane default (see Default) so a zero-value Config is never
// used directly — callers go through Default or Load.
type Config struct {
	// Dir is the root directory for WAL, catalog, and table/HNSW snapshots.
	// Empty means purely in-memory, no durability.
	Dir string `json:"dir"`

	MaxWalFileSize  int64 `json:"max_wal_file_size"`
	MaxTotalWalSize int64 `json:"max_total_wal_size"`

	HNSW HNSWConfig `json:"hnsw"`

	// VacuumIntervalSeconds is loaded, defaulted and validated (it must not
	// be negative), but no code reads it: there is no background vacuum
	// sweep, and dead versions are reclaimed only by an explicit VACUUM.
	VacuumIntervalSeconds int `json:"vacuum_interval_seconds"`
}

// HNSWConfig mirrors hnsw.Params with JSON tags; it is translated to
// hnsw.Params at graph-construction time rather than reusing hnsw.Params
// directly so the hnsw package stays free of a config-package dependency.
type HNSWConfig struct {
	M              int `json:"m"`
	EfConstruction int `json:"ef_construction"`
	EfSearch       int `json:"ef_search"`
}

// Params converts the JSON-facing HNSWConfig into the hnsw package's own
// parameter type.
func (h HNSWConfig) Params() hnsw.Params {
	return hnsw.Params{M: h.M, EfConstruction: h.EfConstruction, EfSearch: h.EfSearch}
}

// Default returns the configuration used when a caller supplies none.
func Default() Config {
	def := hnsw.DefaultParams()
	return Config{
		MaxWalFileSize:        wal.DefaultMaxFileSize,
		MaxTotalWalSize:       wal.DefaultMaxTotalWalSize,
		HNSW:                  HNSWConfig{M: def.M, EfConstruction: def.EfConstruction, EfSearch: def.EfSearch},
		VacuumIntervalSeconds: 60,
	}
}

// Load reads a JSON config file, filling any field the file omits with its
// Default value rather than leaving it zero.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects nonsensical tunables before they reach the WAL writer or
// HNSW graphs, where a bad value would otherwise surface as a confusing
// downstream panic or silent misbehavior.
func (c Config) Validate() error {
	if c.MaxWalFileSize <= 0 {
		return fmt.Errorf("config: max_wal_file_size must be positive, got %d", c.MaxWalFileSize)
	}
	if c.MaxTotalWalSize < c.MaxWalFileSize {
		return fmt.Errorf("config: max_total_wal_size (%d) must be >= max_wal_file_size (%d)", c.MaxTotalWalSize, c.MaxWalFileSize)
	}
	if c.HNSW.M <= 0 || c.HNSW.EfConstruction <= 0 || c.HNSW.EfSearch <= 0 {
		return fmt.Errorf("config: hnsw M/ef_construction/ef_search must all be positive")
	}
	if c.VacuumIntervalSeconds < 0 {
		return fmt.Errorf("config: vacuum_interval_seconds must not be negative")
	}
	return nil
}
