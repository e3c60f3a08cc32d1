// Package config defines the server's startup configuration surface: a
// declarative struct loadable from an optional JSON file, with CLI flags
// applied on top (flags win on conflict — see cmd/shardindexd).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config is the full set of knobs needed to start the server or the
// indexer.
type Config struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	IndexRoot   string `json:"index_root"`
	SourceName  string `json:"source_name"`
	ArtifactExt string `json:"artifact_ext"`

	RangeFilterThreshold uint64  `json:"range_filter_threshold"`
	ErrorRate            float64 `json:"error_rate"`

	ChunkReadTimeout time.Duration `json:"chunk_read_timeout"`

	ConnectionsPerSecond float64 `json:"connections_per_second"`
	ConnectionBurst      int     `json:"connection_burst"`
}

// Default returns the baseline configuration used when no file or flags
// override a field.
func Default() Config {
	return Config{
		Host:                 "127.0.0.1",
		Port:                 8888,
		IndexRoot:            "./index",
		SourceName:           "bloom",
		ArtifactExt:          ".filter",
		RangeFilterThreshold: 1000,
		ErrorRate:            0.1,
		ChunkReadTimeout:     10 * time.Second,
		ConnectionsPerSecond: 1000,
		ConnectionBurst:      100,
	}
}

// Load reads a JSON config file at path and overlays it onto Default().
// A missing file is not an error; it simply leaves the defaults in place.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects a configuration that cannot start a server.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.SourceName == "" {
		return fmt.Errorf("config: source_name must not be empty")
	}
	if c.ArtifactExt == "" {
		return fmt.Errorf("config: artifact_ext must not be empty")
	}
	if c.ErrorRate <= 0 || c.ErrorRate >= 1 {
		return fmt.Errorf("config: error_rate must be in (0, 1), got %v", c.ErrorRate)
	}
	if c.ChunkReadTimeout <= 0 {
		return fmt.Errorf("config: chunk_read_timeout must be positive")
	}
	return nil
}

// Addr renders the listen address as host:port.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
