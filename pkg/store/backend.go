/*
Copyright 2020 IBM All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrEntryNotFound is returned by a backend when no entry exists for a key
	ErrEntryNotFound = errors.New("entry not found")

	// ErrEntryExists is returned by a backend when a create-only write finds an existing entry
	ErrEntryExists = errors.New("entry already exists")
)

// Backend stores serialized entries by key. Implementations must make
// Create atomic: when two writers race on the same key exactly one succeeds
// and the other receives ErrEntryExists, even across processes.
type Backend interface {
	Create(key string, content []byte) error
	Replace(key string, content []byte) error
	Get(key string) ([]byte, error)
	Exists(key string) (bool, error)
	Remove(key string) error
	List() ([]string, error)
	Close() error
}

// ValidateKey rejects keys that could escape a backend namespace
func ValidateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return errors.New("participant ID is empty")
	case strings.ContainsAny(key, `/\`):
		return errors.Errorf("participant ID [%s] contains a path separator", key)
	case strings.Contains(key, ".."):
		return errors.Errorf("participant ID [%s] contains '..'", key)
	case strings.ContainsRune(key, 0):
		return errors.Errorf("participant ID [%q] contains a NUL byte", key)
	}
	return nil
}
