// Package config reads the server's configuration surface from the
// environment via small getenv helpers rather than a flags/viper library.
package config

import (
	"errors"
	"os"
	"strconv"
)

// Autocreate policy for principals and their default home collections.
const (
	AutocreateNone = "none"
	AutocreatePrincipal = "principal"
	AutocreateDefaults = "defaults"
)

type HTTPConfig struct {
	Addr string
	Network string // "tcp" or "unix"
	MaxBytes int64 // cap on request bodies (PUT/REPORT)
}

// StorageConfig describes where the content-addressed object databases live
// and how the side metastore (index cache + collection metadata) is reached.
type StorageConfig struct {
	DataRoot string // C1/C2: filesystem root for per-collection object databases
	MetaDriver string // "sqlite" or "postgres"
	MetaDSN string
	IndexThreshold int // index-threshold
}

type ICSConfig struct {
	ProdID string
	Timezone string
}

type Config struct {
	HTTP HTTPConfig
	Storage StorageConfig
	ICS ICSConfig
	RoutePrefix string
	CurrentUser string // current-user-principal path prefix, 
	Autocreate string
	Strict bool
	LogLevel string
}

func (c ICSConfig) BuildProdID() string {
	if c.ProdID != "" {
		return c.ProdID
	}
	return "-//hazeldav//calendar//EN"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Load builds a Config from the process environment. Every setting, DataRoot
// included, has a sane default so the server can be smoke-tested with no
// configuration at all.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Addr: getenv("HAZELDAV_ADDR", ":8791"),
			Network: getenv("HAZELDAV_NETWORK", "tcp"),
			MaxBytes: getenvInt64("HAZELDAV_MAX_BODY_BYTES", 16<<20),
		},
		Storage: StorageConfig{
			DataRoot: getenv("HAZELDAV_DATA_ROOT", "./data"),
			MetaDriver: getenv("HAZELDAV_META_DRIVER", "sqlite"),
			MetaDSN: getenv("HAZELDAV_META_DSN", "./data/meta.sqlite3"),
			IndexThreshold: getenvInt("HAZELDAV_INDEX_THRESHOLD", 64),
		},
		ICS: ICSConfig{
			ProdID: getenv("HAZELDAV_PRODID", "-//hazeldav//calendar//EN"),
			Timezone: getenv("HAZELDAV_TIMEZONE", "UTC"),
		},
		RoutePrefix: getenv("HAZELDAV_ROUTE_PREFIX", ""),
		CurrentUser: getenv("HAZELDAV_CURRENT_USER_PRINCIPAL", ""),
		Autocreate: getenv("HAZELDAV_AUTOCREATE", AutocreateNone),
		Strict: getenvBool("HAZELDAV_STRICT", true),
		LogLevel: getenv("HAZELDAV_LOG_LEVEL", "info"),
	}

	switch cfg.Autocreate {
	case AutocreateNone, AutocreatePrincipal, AutocreateDefaults:
	default:
		return nil, errors.New("config: invalid HAZELDAV_AUTOCREATE value")
	}
	if cfg.Storage.DataRoot == "" {
		return nil, errors.New("config: HAZELDAV_DATA_ROOT required")
	}
	return cfg, nil
}
