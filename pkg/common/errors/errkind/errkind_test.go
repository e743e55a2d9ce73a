/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package errkind

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := New(AdminIdentityMissing, StageRegister, "admin [%s] not enrolled", "regulatorAdmin")
	assert.Equal(t, "AdminIdentityMissing [authority.register]: admin [regulatorAdmin] not enrolled", err.Error())
	assert.Equal(t, AdminIdentityMissing, KindOf(err))
	assert.Equal(t, StageRegister, StageOf(err))
	assert.Nil(t, errors.Cause(err).(*Error).Cause())
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, Transport, StageConnect, "ignored"))

	cause := fmt.Errorf("connection refused")
	err := Wrap(cause, Transport, StageConnect, "connect failed for [%s]", "Farmer01")
	assert.Equal(t, "Transport [ledger.connect]: connect failed for [Farmer01]: connection refused", err.Error())

	e, ok := FromError(err)
	assert.True(t, ok)
	assert.Equal(t, cause, e.Cause())
	assert.Equal(t, cause, e.Unwrap())
}

func TestKindOfWrapped(t *testing.T) {
	err := errors.WithMessage(New(AccessDenied, StageSubmit, "denied"), "onboarding failed")
	assert.Equal(t, AccessDenied, KindOf(err))
	assert.Equal(t, StageSubmit, StageOf(err))

	err = errors.Wrap(err, "outer")
	assert.True(t, Is(err, AlreadyExists, AccessDenied))
	assert.False(t, Is(err, AlreadyExists))
}

func TestUnstructured(t *testing.T) {
	err := fmt.Errorf("something odd")
	assert.Equal(t, Unknown, KindOf(err))
	assert.Equal(t, Stage(""), StageOf(err))
	assert.False(t, Is(err, Unknown))

	_, ok := FromError(nil)
	assert.False(t, ok)
	assert.Equal(t, Unknown, KindOf(nil))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "StoreCorrupt", StoreCorrupt.String())
	assert.Equal(t, "MissingAttributes", MissingAttributes.String())
	assert.Equal(t, "Unknown", Kind(999).String())
}
