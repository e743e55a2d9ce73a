/*
Copyright 2020 IBM All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package store is the identity store: a durable keyed store holding one
// X.509 credential per participant.
//
// Entries are serialized in the Fabric wallet identity format, optionally
// extended with the receipt of the participant's ledger onboarding. The Store
// serializes writers per participant ID and relies on the backend's
// create-only write to detect conflicting writers in other processes.
package store

import (
	"encoding/json"
	"time"

	"github.com/foodtrace/onboarding-sdk-go/pkg/common/errors/errkind"
	"github.com/foodtrace/onboarding-sdk-go/pkg/identity"
	"github.com/hyperledger/fabric-sdk-go/pkg/common/logging"
	"github.com/pkg/errors"
)

var logger = logging.NewLogger("onboard/store")

// Receipt records a committed ledger onboarding
type Receipt struct {
	Transaction    string    `json:"transaction"`
	Role           string    `json:"role"`
	ActingIdentity string    `json:"actingIdentity"`
	Response       string    `json:"response,omitempty"`
	CommittedAt    time.Time `json:"committedAt"`
}

type entry struct {
	*identity.Credential
	Onboarding *Receipt `json:"onboarding,omitempty"`
}

// Store holds participant credentials
type Store struct {
	backend Backend
	locks   *keyLock
}

// New creates a store over backend
func New(backend Backend) *Store {
	return &Store{backend: backend, locks: newKeyLock()}
}

type putOptions struct {
	replace bool
}

// PutOption configures Put
type PutOption func(*putOptions)

// WithReplace allows Put to overwrite an existing credential
func WithReplace() PutOption {
	return func(o *putOptions) {
		o.replace = true
	}
}

// Exists reports whether a credential is stored for id
func (s *Store) Exists(id string) (bool, error) {
	if err := checkID(id); err != nil {
		return false, err
	}
	ok, err := s.backend.Exists(id)
	if err != nil {
		return false, errkind.Wrap(err, errkind.StoreCorrupt, errkind.StageStore, "failed to check entry for [%s]", id)
	}
	return ok, nil
}

// Get returns the credential stored for id
func (s *Store) Get(id string) (*identity.Credential, error) {
	e, err := s.read(id)
	if err != nil {
		return nil, err
	}
	return e.Credential, nil
}

// Receipt returns the onboarding receipt stored for id, or nil if the
// participant has not been onboarded yet
func (s *Store) Receipt(id string) (*Receipt, error) {
	e, err := s.read(id)
	if err != nil {
		return nil, err
	}
	return e.Onboarding, nil
}

// Put stores cred for id. Unless WithReplace is given, Put fails with an
// AlreadyExists error when a credential is already stored.
func (s *Store) Put(id string, cred *identity.Credential, opts ...PutOption) error {
	if err := checkID(id); err != nil {
		return err
	}
	if cred == nil {
		return errkind.New(errkind.InvalidPayload, errkind.StageStore, "credential for [%s] is nil", id)
	}
	if err := cred.Validate(); err != nil {
		return errkind.Wrap(err, errkind.InvalidPayload, errkind.StageStore, "invalid credential for [%s]", id)
	}

	o := putOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	if !o.replace {
		content, err := json.Marshal(&entry{Credential: cred})
		if err != nil {
			return errkind.Wrap(err, errkind.StoreWrite, errkind.StageStore, "failed to encode entry for [%s]", id)
		}
		return s.create(id, content)
	}

	e := &entry{Credential: cred}
	if existing, err := s.decode(id); err == nil {
		e.Onboarding = existing.Onboarding
	} else if !errkind.Is(err, errkind.NotFound) {
		logger.Warnf("replacing unreadable entry for [%s]: %s", id, err)
	}
	return s.replace(id, e)
}

// RecordReceipt attaches an onboarding receipt to the entry of id without
// changing its credential
func (s *Store) RecordReceipt(id string, receipt *Receipt) error {
	if err := checkID(id); err != nil {
		return err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	e, err := s.decode(id)
	if err != nil {
		return err
	}
	e.Onboarding = receipt
	return s.replace(id, e)
}

// Remove deletes the entry of id
func (s *Store) Remove(id string) error {
	if err := checkID(id); err != nil {
		return err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.backend.Remove(id); err != nil {
		if errors.Cause(err) == ErrEntryNotFound {
			return errkind.New(errkind.NotFound, errkind.StageStore, "no credential stored for [%s]", id)
		}
		return errkind.Wrap(err, errkind.StoreWrite, errkind.StageStore, "failed to remove entry for [%s]", id)
	}
	logger.Debugf("removed entry for [%s]", id)
	return nil
}

// List returns the participant IDs of all entries
func (s *Store) List() ([]string, error) {
	ids, err := s.backend.List()
	if err != nil {
		return nil, errkind.Wrap(err, errkind.StoreCorrupt, errkind.StageStore, "failed to list entries")
	}
	return ids, nil
}

// Close releases the backend
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) read(id string) (*entry, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	return s.decode(id)
}

func (s *Store) decode(id string) (*entry, error) {
	content, err := s.backend.Get(id)
	if err != nil {
		if errors.Cause(err) == ErrEntryNotFound {
			return nil, errkind.New(errkind.NotFound, errkind.StageStore, "no credential stored for [%s]", id)
		}
		return nil, errkind.Wrap(err, errkind.StoreCorrupt, errkind.StageStore, "failed to read entry for [%s]", id)
	}

	e := &entry{}
	if err := json.Unmarshal(content, e); err != nil {
		return nil, errkind.Wrap(err, errkind.StoreCorrupt, errkind.StageStore, "failed to decode entry for [%s]", id)
	}
	if e.Credential == nil {
		return nil, errkind.New(errkind.StoreCorrupt, errkind.StageStore, "entry for [%s] holds no credential", id)
	}
	if e.Credential.Type != identity.X509Type {
		return nil, errkind.New(errkind.StoreCorrupt, errkind.StageStore, "entry for [%s] has unsupported identity type [%s]", id, e.Credential.Type)
	}
	return e, nil
}

func (s *Store) create(id string, content []byte) error {
	if err := s.backend.Create(id, content); err != nil {
		if errors.Cause(err) == ErrEntryExists {
			return errkind.New(errkind.AlreadyExists, errkind.StageStore, "a credential is already stored for [%s]", id)
		}
		return errkind.Wrap(err, errkind.StoreWrite, errkind.StageStore, "failed to write entry for [%s]", id)
	}
	logger.Debugf("stored credential for [%s]", id)
	return nil
}

func (s *Store) replace(id string, e *entry) error {
	content, err := json.Marshal(e)
	if err != nil {
		return errkind.Wrap(err, errkind.StoreWrite, errkind.StageStore, "failed to encode entry for [%s]", id)
	}
	if err := s.backend.Replace(id, content); err != nil {
		return errkind.Wrap(err, errkind.StoreWrite, errkind.StageStore, "failed to write entry for [%s]", id)
	}
	logger.Debugf("replaced entry for [%s]", id)
	return nil
}

func checkID(id string) error {
	if err := ValidateKey(id); err != nil {
		return errkind.Wrap(err, errkind.InvalidPayload, errkind.StageValidate, "invalid participant ID")
	}
	return nil
}
