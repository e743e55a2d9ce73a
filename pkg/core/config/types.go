/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Store backends
const (
	StoreFilesystem = "filesystem"
	StoreMemory     = "memory"
	StoreVault      = "vault"
	StoreSQL        = "sql"
)

// Config is the onboarding configuration
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Store     StoreConfig     `mapstructure:"store"`
	Authority AuthorityConfig `mapstructure:"authority"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Onboard   OnboardConfig   `mapstructure:"onboard"`
}

// LoggingConfig sets logger levels
type LoggingConfig struct {
	Level   string            `mapstructure:"level"`
	Modules map[string]string `mapstructure:"modules"`
}

// StoreConfig selects and configures the identity store backend
type StoreConfig struct {
	Backend string      `mapstructure:"backend"`
	Path    string      `mapstructure:"path"`
	Vault   VaultConfig `mapstructure:"vault"`
	SQL     SQLConfig   `mapstructure:"sql"`
}

// VaultConfig configures the Vault KV v2 backend
type VaultConfig struct {
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
	Mount   string `mapstructure:"mount"`
	Path    string `mapstructure:"path"`
}

// SQLConfig configures the SQL backend
type SQLConfig struct {
	Driver       string `mapstructure:"driver"`
	DataSource   string `mapstructure:"dataSource"`
	Table        string `mapstructure:"table"`
	MaxOpenConns int    `mapstructure:"maxOpenConns"`
}

// AuthorityConfig configures the Fabric CA client
type AuthorityConfig struct {
	URL            string        `mapstructure:"url"`
	CANames        []string      `mapstructure:"caNames"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxEnrollments int           `mapstructure:"maxEnrollments"`
	TLS            TLSConfig     `mapstructure:"tls"`
}

// TLSConfig configures client TLS
type TLSConfig struct {
	CACertFile         string `mapstructure:"caCertFile"`
	InsecureSkipVerify bool   `mapstructure:"insecureSkipVerify"`
}

// LedgerConfig configures the Fabric gateway connection
type LedgerConfig struct {
	ConnectionProfile string        `mapstructure:"connectionProfile"`
	Channel           string        `mapstructure:"channel"`
	Chaincode         string        `mapstructure:"chaincode"`
	Timeout           time.Duration `mapstructure:"timeout"`
	EndorsingPeers    []string      `mapstructure:"endorsingPeers"`
}

// OnboardConfig configures the orchestrator
type OnboardConfig struct {
	MaxConcurrency int    `mapstructure:"maxConcurrency"`
	AdminContext   string `mapstructure:"adminContext"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("store.backend", StoreFilesystem)
	v.SetDefault("store.path", "wallet")
	v.SetDefault("store.vault.address", "http://localhost:8200")
	v.SetDefault("store.vault.token", "")
	v.SetDefault("store.vault.mount", "secret")
	v.SetDefault("store.vault.path", "onboarding")
	v.SetDefault("store.sql.driver", "sqlite")
	v.SetDefault("store.sql.dataSource", "")
	v.SetDefault("store.sql.table", "identities")
	v.SetDefault("store.sql.maxOpenConns", 0)
	v.SetDefault("authority.url", "")
	v.SetDefault("authority.timeout", 30*time.Second)
	v.SetDefault("authority.maxEnrollments", 1)
	v.SetDefault("authority.tls.caCertFile", "")
	v.SetDefault("authority.tls.insecureSkipVerify", false)
	v.SetDefault("ledger.connectionProfile", "")
	v.SetDefault("ledger.channel", "mychannel")
	v.SetDefault("ledger.chaincode", "foodtrace")
	v.SetDefault("ledger.timeout", 60*time.Second)
	v.SetDefault("onboard.maxConcurrency", 4)
	v.SetDefault("onboard.adminContext", "regulatorAdmin")
}

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreFilesystem:
		if c.Store.Path == "" {
			return errors.New("store.path is required for the filesystem backend")
		}
	case StoreMemory:
	case StoreVault:
		if c.Store.Vault.Address == "" {
			return errors.New("store.vault.address is required for the vault backend")
		}
	case StoreSQL:
		if c.Store.SQL.DataSource == "" {
			return errors.New("store.sql.dataSource is required for the sql backend")
		}
	default:
		return errors.Errorf("unsupported store backend [%s]", c.Store.Backend)
	}

	if c.Authority.Timeout < 0 || c.Ledger.Timeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.Ledger.Channel == "" || c.Ledger.Chaincode == "" {
		return errors.New("ledger.channel and ledger.chaincode are required")
	}
	if c.Onboard.MaxConcurrency < 1 {
		return errors.Errorf("onboard.maxConcurrency must be positive, got %d", c.Onboard.MaxConcurrency)
	}
	return nil
}
