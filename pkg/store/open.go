/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"github.com/foodtrace/onboarding-sdk-go/pkg/core/config"
	"github.com/hashicorp/vault/api"
	"github.com/pkg/errors"
)

// Open creates the store selected by cfg. The returned store is meant to be
// opened once per process and closed on shutdown.
func Open(cfg config.StoreConfig) (*Store, error) {
	backend, err := openBackend(cfg)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to open %s store", cfg.Backend)
	}
	logger.Infof("opened %s identity store", cfg.Backend)
	return New(backend), nil
}

func openBackend(cfg config.StoreConfig) (Backend, error) {
	switch cfg.Backend {
	case config.StoreFilesystem:
		return NewFileSystemBackend(cfg.Path)
	case config.StoreMemory:
		return NewMemoryBackend(), nil
	case config.StoreVault:
		vaultConfig := api.DefaultConfig()
		if vaultConfig.Error != nil {
			return nil, errors.Wrap(vaultConfig.Error, "invalid Vault environment")
		}
		vaultConfig.Address = cfg.Vault.Address
		return NewVaultBackend(cfg.Vault.Mount, cfg.Vault.Path, cfg.Vault.Token, vaultConfig)
	case config.StoreSQL:
		return OpenSQLBackend(cfg.SQL.Driver, cfg.SQL.DataSource, cfg.SQL.Table, cfg.SQL.MaxOpenConns)
	}
	return nil, errors.Errorf("unsupported store backend [%s]", cfg.Backend)
}
