package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigFromJWCC(t *testing.T) {
	path := writeFile(t, "scenario.hujson", `{
		// a comment, which plain JSON would reject
		"seed": 99,
		"mapType": "cfoa",
	}`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Seed)
	require.Equal(t, uint64(99), *cfg.Seed)
	require.NotNil(t, cfg.MapType)
	require.Equal(t, "cfoa", *cfg.MapType)
	require.Nil(t, cfg.DatasetSize)
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := writeFile(t, "scenario.yaml", "seed: 7\ndatasetSize: 500\nmapType: foa\n")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, uint64(7), *cfg.Seed)
	require.Equal(t, uint64(500), *cfg.DatasetSize)
	require.Equal(t, "foa", *cfg.MapType)
}

func TestApplyToOverlaysOnlySetFields(t *testing.T) {
	seed, size := uint64(1), uint64(2)
	mapType, keyType, valueType := "std", "int", "int"

	mt := "foa"
	cfg := Config{MapType: &mt}
	cfg.applyTo(&seed, &size, &mapType, &keyType, &valueType)

	require.Equal(t, uint64(1), seed, "unset fields must be left alone")
	require.Equal(t, "foa", mapType)
}
