package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

// Config is the optional scenario file shape: either a human-edited
// JWCC (JSON-with-comments) document or a YAML document, overriding
// any benchmark flag, for checked-in reproducible scenarios instead of
// long flag lines.
type Config struct {
	Seed        *uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
	DatasetSize *uint64 `json:"datasetSize,omitempty" yaml:"datasetSize,omitempty"`
	MapType     *string `json:"mapType,omitempty" yaml:"mapType,omitempty"`
	KeyType     *string `json:"keyType,omitempty" yaml:"keyType,omitempty"`
	ValueType   *string `json:"valueType,omitempty" yaml:"valueType,omitempty"`
}

// loadConfig reads a scenario file. Files named *.yaml/*.yml are
// decoded directly as YAML; everything else is treated as JWCC and
// standardized to plain JSON (stripping comments and trailing commas)
// via hujson before decoding.
func loadConfig(path string) (Config, error) {
	var cfg Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("foabench: reading config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("foabench: decoding config %s: %w", path, err)
		}
	default:
		standardized, err := hujson.Standardize(raw)
		if err != nil {
			return cfg, fmt.Errorf("foabench: parsing config %s: %w", path, err)
		}
		if err := json.Unmarshal(standardized, &cfg); err != nil {
			return cfg, fmt.Errorf("foabench: decoding config %s: %w", path, err)
		}
	}
	return cfg, nil
}

// applyTo overlays non-nil fields onto the flag-derived defaults.
func (c Config) applyTo(seed, datasetSize *uint64, mapType, keyType, valueType *string) {
	if c.Seed != nil {
		*seed = *c.Seed
	}
	if c.DatasetSize != nil {
		*datasetSize = *c.DatasetSize
	}
	if c.MapType != nil {
		*mapType = *c.MapType
	}
	if c.KeyType != nil {
		*keyType = *c.KeyType
	}
	if c.ValueType != nil {
		*valueType = *c.ValueType
	}
}
