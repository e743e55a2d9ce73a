/*
Copyright 2020 IBM All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/hashicorp/vault/api"
	"github.com/pkg/errors"
)

const entryField = "entry"

// vaultBackend stores entries as secrets in a Vault KV version 2 engine
type vaultBackend struct {
	mount  string
	path   string
	client *api.Logical
}

// NewVaultBackend creates a backend storing entries under mount/data/path
func NewVaultBackend(mount, prefix, token string, vaultConfig *api.Config) (Backend, error) {
	if prefix == "" {
		return nil, errors.New("vault path is empty")
	}
	if token == "" {
		return nil, errors.New("token is empty")
	}
	if mount == "" {
		mount = "secret"
	}
	if vaultConfig == nil {
		vaultConfig = &api.Config{Address: "http://localhost:8200"}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, errors.Wrap(err, "can't create Vault client")
	}
	client.SetToken(token)

	return &vaultBackend{mount: strings.Trim(mount, "/"), path: strings.Trim(prefix, "/"), client: client.Logical()}, nil
}

func (vb *vaultBackend) dataPath(key string) string {
	return path.Join(vb.mount, "data", vb.path, key)
}

func (vb *vaultBackend) metadataPath(key string) string {
	return path.Join(vb.mount, "metadata", vb.path, key)
}

// Create writes with check-and-set version 0, which Vault only accepts when
// no version of the secret exists
func (vb *vaultBackend) Create(key string, content []byte) error {
	_, err := vb.client.Write(vb.dataPath(key), map[string]interface{}{
		"options": map[string]interface{}{"cas": 0},
		"data":    map[string]interface{}{entryField: string(content)},
	})
	if err != nil {
		if isCASMismatch(err) {
			return ErrEntryExists
		}
		return errors.Wrap(err, "can't write value to Vault")
	}
	return nil
}

func (vb *vaultBackend) Replace(key string, content []byte) error {
	_, err := vb.client.Write(vb.dataPath(key), map[string]interface{}{
		"data": map[string]interface{}{entryField: string(content)},
	})
	return errors.Wrap(err, "can't write value to Vault")
}

func (vb *vaultBackend) Get(key string) ([]byte, error) {
	secret, err := vb.client.Read(vb.dataPath(key))
	if err != nil {
		return nil, errors.Wrap(err, "can't read value from Vault")
	}
	if secret == nil || secret.Data == nil {
		return nil, ErrEntryNotFound
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok || data == nil {
		// deleted versions keep their metadata but carry no data
		return nil, ErrEntryNotFound
	}
	value, ok := data[entryField].(string)
	if !ok {
		return nil, errors.Errorf("secret has no string field [%s]", entryField)
	}
	return []byte(value), nil
}

func (vb *vaultBackend) Exists(key string) (bool, error) {
	_, err := vb.Get(key)
	if err == nil {
		return true, nil
	}
	if errors.Cause(err) == ErrEntryNotFound {
		return false, nil
	}
	return false, err
}

// Remove deletes every version and the metadata of the entry
func (vb *vaultBackend) Remove(key string) error {
	exists, err := vb.Exists(key)
	if err != nil {
		return err
	}
	if !exists {
		return ErrEntryNotFound
	}

	if _, err = vb.client.Delete(vb.metadataPath(key)); err != nil {
		return errors.Wrap(err, "can't delete value from Vault")
	}
	return nil
}

func (vb *vaultBackend) List() ([]string, error) {
	secret, err := vb.client.List(path.Join(vb.mount, "metadata", vb.path))
	if err != nil {
		return nil, errors.Wrap(err, "can't list values from Vault")
	}
	if secret == nil || secret.Data == nil {
		return []string{}, nil
	}

	keys, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil, errors.New("can't cast key list from Vault")
	}

	result := make([]string, 0, len(keys))
	for _, k := range keys {
		s, ok := k.(string)
		if !ok {
			return nil, errors.New("can't cast key from Vault to string")
		}
		// nested folders are listed with a trailing slash
		if strings.HasSuffix(s, "/") {
			continue
		}
		result = append(result, s)
	}
	sort.Strings(result)
	return result, nil
}

func (vb *vaultBackend) Close() error {
	return nil
}

func isCASMismatch(err error) bool {
	var respErr *api.ResponseError
	if !errors.As(err, &respErr) || respErr.StatusCode != http.StatusBadRequest {
		return false
	}
	for _, e := range respErr.Errors {
		if strings.Contains(e, "check-and-set") {
			return true
		}
	}
	return false
}
