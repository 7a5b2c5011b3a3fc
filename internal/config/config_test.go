package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "#like#", cfg.Mapping.LikeMarker)
	assert.Equal(t, "Active", cfg.Mapping.ActiveColumn)
	assert.Equal(t, "params", cfg.Mapping.Render)
	assert.Equal(t, "file", cfg.KeyVault.Backend)
	assert.Equal(t, "vault.keys.json", cfg.KeyVault.Path)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(t.TempDir())
	yaml := []byte("database:\n  driver: mysql\n  port: 3306\nkeyvault:\n  backend: s3\n  s3:\n    bucket: keys\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rowgraph.yaml"), yaml, 0o644))
	t.Setenv("ROWGRAPH_MAPPING_ACTIVE_COLUMN", "Enabled")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, "s3", cfg.KeyVault.Backend)
	assert.Equal(t, "keys", cfg.KeyVault.S3.Bucket)
	assert.Equal(t, "us-east-1", cfg.KeyVault.S3.Region)
	assert.Equal(t, "Enabled", cfg.Mapping.ActiveColumn)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "./data/app.db", DatabaseConfig{Driver: "sqlite", Path: "./data", Name: "app"}.DSN())
	assert.Equal(t, "file::memory:?cache=shared", DatabaseConfig{Driver: "sqlite", Path: ":memory:"}.DSN())
	assert.Equal(t, "u:p@tcp(db:3306)/app?parseTime=true",
		DatabaseConfig{Driver: "mysql", User: "u", Password: "p", Host: "db", Port: 3306, Name: "app"}.DSN())
	assert.Equal(t, "postgres://u:p@db:5432/app?sslmode=disable",
		DatabaseConfig{Driver: "pq", User: "u", Password: "p", Host: "db", Port: 5432, Name: "app"}.DSN())
}
