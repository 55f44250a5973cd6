package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectAuditDriver(t *testing.T) {
	tests := []struct {
		name       string
		yamlDriver string
		dsn        string
		want       string
	}{
		{"YAML sqlite", "sqlite", "", "sqlite"},
		{"YAML postgres mixed case", "Postgres", "", "postgres"},
		{"YAML mongodb", "mongodb", "", "mongodb"},
		{"DSN file: prefix", "", "file:/var/lib/audit.db?cache=shared", "sqlite"},
		{"DSN postgresql:// prefix", "", "postgresql://u:p@localhost:5432/db", "postgres"},
		{"DSN mongodb+srv prefix", "", "mongodb+srv://cluster.example", "mongodb"},
		{"YAML overrides DSN", "sqlite", "postgres://u:p@localhost/db", "sqlite"},
		{"empty defaults to none", "", "", "none"},
		{"explicit none", "none", "", "none"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectAuditDriver(tt.yamlDriver, tt.dsn))
		})
	}
}

func TestBuildAuditDSN(t *testing.T) {
	assert.Equal(t, "file:/data/a.db?cache=shared&mode=rwc", buildAuditDSN("sqlite", AuditConfig{Path: "/data/a.db"}))
	assert.Equal(t, "file:batchrpc-audit.db?cache=shared&mode=rwc", buildAuditDSN("sqlite", AuditConfig{}))
	assert.Equal(t, "postgres://u:p@db:5432/audit?sslmode=disable",
		buildAuditDSN("postgres", AuditConfig{User: "u", Password: "p", Host: "db", Port: 5432, Name: "audit", SSLMode: "disable"}))
	assert.Equal(t, "mongodb://m:27017", buildAuditDSN("mongodb", AuditConfig{Host: "m", Port: 27017}))
	assert.Equal(t, "mongodb://x", buildAuditDSN("mongodb", AuditConfig{URI: "mongodb://x"}))
	assert.Empty(t, buildAuditDSN("none", AuditConfig{}))
}

func TestBuildRedisURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  RedisConfig
		want string
	}{
		{"no password", RedisConfig{Host: "localhost", Port: 6379, DB: 0}, "redis://localhost:6379/0"},
		{"with password", RedisConfig{Host: "localhost", Port: 6379, DB: 1, Password: "secret"}, "redis://:secret@localhost:6379/1"},
		{"URL takes precedence", RedisConfig{Host: "localhost", Port: 6379, URL: "redis://other:6380/2"}, "redis://other:6380/2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildRedisURL(tt.cfg))
		})
	}
}

func TestMaskPassword(t *testing.T) {
	assert.Equal(t, "redis://:***@localhost:6379/0", maskPassword("redis://:secret@localhost:6379/0"))
	assert.Equal(t, "postgres://u:***@h:5432/db", maskPassword("postgres://u:pw@h:5432/db"))
	assert.Equal(t, "redis://localhost:6379/0", maskPassword("redis://localhost:6379/0"))
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	SetConfigDir(dir)
	t.Cleanup(func() { SetConfigDir("") })
	t.Setenv("APP_ENV", "test")

	cfg := Load()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, EnvTest, cfg.Env)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.False(t, cfg.GetEnabled())
	assert.Equal(t, "_errcode", cfg.ResultFields.ErrCode)
	assert.Equal(t, "_exectime", cfg.ResultFields.ExecTime)
	assert.Equal(t, "none", cfg.AuditDriver)
	assert.False(t, cfg.RedisEnabled)
	assert.False(t, cfg.MinIOEnabled())
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	SetConfigDir(dir)
	t.Cleanup(func() { SetConfigDir("") })
	t.Setenv("APP_ENV", "test")

	common := []byte("server:\n  port: \"9000\"\nlimits:\n  max_file_count: 3\n")
	envFile := []byte("server:\n  get_base: \"/api/\"\nresult_fields:\n  id: \"rid\"\naudit:\n  driver: sqlite\n  path: /tmp/x.db\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "common.yaml"), common, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.yaml"), envFile, 0644))

	t.Setenv("PORT", "9100")
	t.Setenv("MAX_FILE_SIZE", "1024")
	t.Setenv("REDIS_URL", "redis://cache:6379/3")

	cfg := Load()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, "/api/", cfg.Server.GetBase)
	assert.True(t, cfg.GetEnabled())
	assert.Equal(t, 3, cfg.Limits.MaxFileCount)
	assert.Equal(t, int64(1024), cfg.Limits.MaxFileSize)
	assert.Equal(t, "rid", cfg.ResultFields.ID)
	assert.Equal(t, "_errcode", cfg.ResultFields.ErrCode)
	assert.Equal(t, "sqlite", cfg.AuditDriver)
	assert.Equal(t, "file:/tmp/x.db?cache=shared&mode=rwc", cfg.AuditDSN)
	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, "redis://cache:6379/3", cfg.RedisURL)
	assert.Equal(t, filepath.Join(dir, "test.yaml"), GetConfigFilePath())
}

func TestValidate_DuplicateFieldNames(t *testing.T) {
	cfg := &Config{AuditDriver: "none"}
	cfg.fillDefaults()
	cfg.ResultFields.ID = "_errcode"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "_errcode")
}

func TestValidate_UnknownAuditDriver(t *testing.T) {
	cfg := &Config{AuditDriver: "cassandra"}
	cfg.fillDefaults()
	assert.Error(t, cfg.Validate())
}
