package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	KeyVault KeyVaultConfig `mapstructure:"keyvault"`
	Mapping  MappingConfig  `mapstructure:"mapping"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Export   ExportConfig   `mapstructure:"export"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // postgres (pgx), pq, sqlite, mysql
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files, ":memory:" for in-memory
}

type KeyVaultConfig struct {
	Backend string   `mapstructure:"backend"` // file or s3
	Path    string   `mapstructure:"path"`    // file path, or object key for s3
	Codec   string   `mapstructure:"codec"`   // json, yaml, msgpack; empty picks by extension
	S3      S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"` // optional, for MinIO
	PathStyle bool   `mapstructure:"path_style"`

	// Static credentials; empty falls back to the default AWS chain.
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type MappingConfig struct {
	LikeMarker   string `mapstructure:"like_marker"`
	ActiveColumn string `mapstructure:"active_column"`
	Naming       string `mapstructure:"naming"` // type or snake_plural
	Render       string `mapstructure:"render"` // params or literal
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type ExportConfig struct {
	Path string `mapstructure:"path"` // xlsx file for tabular results; empty disables export
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	switch d.Driver {
	case "sqlite":
		if d.Path == ":memory:" {
			return "file::memory:?cache=shared"
		}
		return d.Path + "/" + d.Name + ".db"
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name)
	default:
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			d.User, d.Password, d.Host, d.Port, d.Name)
	}
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

// Load reads rowgraph.yaml from the working directory and the given paths.
// A missing file is not an error: defaults and ROWGRAPH_* variables apply.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("rowgraph")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "rowgraph")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("keyvault.backend", "file")
	v.SetDefault("keyvault.path", "vault.keys.json")
	v.SetDefault("keyvault.s3.region", "us-east-1")
	v.SetDefault("mapping.like_marker", "#like#")
	v.SetDefault("mapping.active_column", "Active")
	v.SetDefault("mapping.naming", "type")
	v.SetDefault("mapping.render", "params")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.enabled", true)

	v.SetEnvPrefix("ROWGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
