package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config is the configuration for the sessiond server.
type Config struct {
	LogLevel           string `hcl:"log_level,optional"`
	LogFormat          string `hcl:"log_format,optional"`
	LogFile            string `hcl:"log_file,optional"`
	LogRotateMegabytes int    `hcl:"log_rotate_megabytes,optional"`
	LogRotateMaxFiles  int    `hcl:"log_rotate_max_files,optional"`

	Listener *ListenerBlock `hcl:"listener,block"`
	Storage  *StorageBlock  `hcl:"storage,block"`
	Token    *TokenBlock    `hcl:"token,block"`
	Factor   *FactorBlock   `hcl:"factor,block"`
	Audit    *AuditBlock    `hcl:"audit,block"`

	// RetentionInterval controls how often expired credential records
	// are swept. Parsed as a Go duration string.
	RetentionInterval string `hcl:"retention_interval,optional"`
}

type ListenerBlock struct {
	Address     string `hcl:"address"`
	TLSCertFile string `hcl:"tls_cert_file,optional"`
	TLSKeyFile  string `hcl:"tls_key_file,optional"`
	TLSEnabled  bool   `hcl:"tls_enabled,optional"`
}

type StorageBlock struct {
	Type string `hcl:"type,label"` // "inmem" or "postgres"

	// PostgreSQL specific config
	ConnectionURL    string `hcl:"connection_url,optional"`
	SkipCreateTables bool   `hcl:"skip_create_tables,optional"`
}

type TokenBlock struct {
	// SigningKey is the HMAC signing key. In production this comes
	// from the environment, not the config file.
	SigningKey string `hcl:"signing_key,optional"`
	Issuer     string `hcl:"issuer,optional"`
	AccessTTL  string `hcl:"access_ttl,optional"`
	RefreshTTL string `hcl:"refresh_ttl,optional"`
}

type FactorBlock struct {
	PendingTTL string `hcl:"pending_ttl,optional"`
	TOTPSkew   int    `hcl:"totp_skew,optional"`
}

type AuditBlock struct {
	Type string `hcl:"type,label"` // "file" or "noop"

	Path            string `hcl:"path,optional"`
	RotateMegabytes int    `hcl:"rotate_megabytes,optional"`
	RotateMaxFiles  int    `hcl:"rotate_max_files,optional"`
}

// LoadConfig parses an HCL configuration file.
func LoadConfig(configFile string) (*Config, error) {
	var config Config

	if err := hclsimple.DecodeFile(configFile, nil, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// ParseDuration parses an optional duration field, returning fallback
// when the field is empty.
func ParseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	return d, nil
}
