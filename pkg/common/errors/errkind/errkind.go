/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package errkind defines the structured errors returned by the onboarding
// components. Every failure produced by the authority client, the ledger
// client or the identity store carries a Kind (what went wrong) and a Stage
// (where in the pipeline it went wrong). Callers should inspect errors with
// KindOf and StageOf rather than by matching error text.
package errkind

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies a class of onboarding failure
type Kind int32

const (
	// Unknown is the kind of errors that carry no structured information
	Unknown Kind = iota

	// UnsupportedRole is returned when a role is outside the closed role set
	UnsupportedRole

	// InvalidPayload is returned when a request or business payload is malformed
	InvalidPayload

	// AdminIdentityMissing is returned when the administrative identity used to
	// register participants is not enrolled or lacks registrar capabilities
	AdminIdentityMissing

	// AttributeRejected is returned when the authority refuses a requested attribute
	AttributeRejected

	// AlreadyRegistered is returned when the enrollment ID is already known to the authority
	AlreadyRegistered

	// Conflict is returned when the authority knows the enrollment ID but no
	// matching credential is held locally
	Conflict

	// AlreadyExists is returned when a store entry already exists for a key
	AlreadyExists

	// AlreadyOnboarded is returned when the ledger already holds the onboarding record
	AlreadyOnboarded

	// NotFound is returned when a store entry or an authority identity does not exist
	NotFound

	// IdentityNotFound is returned when the acting identity has no stored credential
	IdentityNotFound

	// AccessDenied is returned when the acting credential lacks permission
	AccessDenied

	// MissingAttributes is returned when the acting credential lacks attribute
	// claims required by the ledger's transaction logic
	MissingAttributes

	// Transport is returned when the authority or the ledger is unreachable or timed out
	Transport

	// StoreCorrupt is returned when a stored entry cannot be read or decoded
	StoreCorrupt

	// StoreWrite is returned when a store entry cannot be written
	StoreWrite
)

var kindName = map[Kind]string{
	Unknown:              "Unknown",
	UnsupportedRole:      "UnsupportedRole",
	InvalidPayload:       "InvalidPayload",
	AdminIdentityMissing: "AdminIdentityMissing",
	AttributeRejected:    "AttributeRejected",
	AlreadyRegistered:    "AlreadyRegistered",
	Conflict:             "Conflict",
	AlreadyExists:        "AlreadyExists",
	AlreadyOnboarded:     "AlreadyOnboarded",
	NotFound:             "NotFound",
	IdentityNotFound:     "IdentityNotFound",
	AccessDenied:         "AccessDenied",
	MissingAttributes:    "MissingAttributes",
	Transport:            "Transport",
	StoreCorrupt:         "StoreCorrupt",
	StoreWrite:           "StoreWrite",
}

func (k Kind) String() string {
	if s, ok := kindName[k]; ok {
		return s
	}
	return kindName[Unknown]
}

// Stage names the pipeline step that produced an error
type Stage string

const (
	// StageValidate input validation, before any side effect
	StageValidate Stage = "validate"
	// StageRegister registration with the authority
	StageRegister Stage = "authority.register"
	// StageEnroll enrollment with the authority
	StageEnroll Stage = "authority.enroll"
	// StageReenroll reenrollment of an enrolled identity
	StageReenroll Stage = "authority.reenroll"
	// StageRevoke revocation with the authority
	StageRevoke Stage = "authority.revoke"
	// StageRemove removal of an identity from the authority
	StageRemove Stage = "authority.remove"
	// StageStore identity store access
	StageStore Stage = "store"
	// StageConnect ledger connection establishment
	StageConnect Stage = "ledger.connect"
	// StageSubmit ledger transaction submission
	StageSubmit Stage = "ledger.submit"
)

// Error is a failure annotated with its kind and stage
type Error struct {
	Kind    Kind
	Stage   Stage
	Message string
	cause   error
}

// New returns an error of the given kind
func New(kind Kind, stage Stage, format string, args ...interface{}) error {
	return &Error{Kind: kind, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a kind, a stage and a message. It returns nil if err is nil.
func Wrap(err error, kind Kind, stage Stage, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Stage: stage, Message: fmt.Sprintf(format, args...), cause: err}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s [%s]: %s: %s", e.Kind, e.Stage, e.Message, e.cause)
}

// Cause returns the underlying error, if any
func (e *Error) Cause() error {
	return e.cause
}

// Unwrap returns the underlying error, if any
func (e *Error) Unwrap() error {
	return e.cause
}

// FromError returns the outermost structured error in err's chain
func FromError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or Unknown if err carries no kind
func KindOf(err error) Kind {
	if e, ok := FromError(err); ok {
		return e.Kind
	}
	return Unknown
}

// StageOf returns the stage of err, or an empty stage if err carries none
func StageOf(err error) Stage {
	if e, ok := FromError(err); ok {
		return e.Stage
	}
	return ""
}

// Is reports whether err is of one of the given kinds
func Is(err error, kinds ...Kind) bool {
	e, ok := FromError(err)
	if !ok {
		return false
	}
	for _, k := range kinds {
		if e.Kind == k {
			return true
		}
	}
	return false
}
