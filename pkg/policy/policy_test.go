/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package policy

import (
	"testing"

	"github.com/foodtrace/onboarding-sdk-go/pkg/common/errors/errkind"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAllRoles(t *testing.T) {
	roles := Roles()
	require.Len(t, roles, 6)

	for _, role := range roles {
		p, err := Resolve(role)
		require.NoError(t, err, "role %s", role)
		assert.Equal(t, role, p.Role)
		assert.NotEmpty(t, p.Affiliation)
		assert.NotEmpty(t, p.MembershipOrg)
		assert.NotEmpty(t, p.OnboardingTransaction)
		assert.NotEmpty(t, p.Payload.Required)
		assert.Contains(t, p.RequiredAttributes, AttrRole)
		assert.Contains(t, p.RequiredAttributes, AttrUUID)
		if p.Registrar {
			assert.Contains(t, p.RequiredAttributes, AttrRegistrarRoles)
			assert.Contains(t, p.RequiredAttributes, AttrRegistrarAttribute)
		}
	}
}

func TestResolveFarmer(t *testing.T) {
	p, err := Resolve(Farmer)
	require.NoError(t, err)
	assert.Equal(t, "farmer.department1", p.Affiliation)
	assert.Equal(t, "FarmerMSP", p.MembershipOrg)
	assert.Equal(t, "onboardFarmer", p.OnboardingTransaction)
	assert.Equal(t, []string{AttrRole, AttrUUID}, p.RequiredAttributes)
	assert.False(t, p.Registrar)

	assert.Equal(t, []Attribute{{Name: AttrRole, Value: "farmer"}, {Name: AttrUUID, Value: "Farmer01"}},
		p.AttributeValues("Farmer01"))
}

func TestResolveAdministrative(t *testing.T) {
	for _, role := range []Role{Regulator, Admin} {
		p, err := Resolve(role)
		require.NoError(t, err)
		assert.True(t, p.Registrar)
		attrs := p.AttributeValues("regulatorAdmin")
		require.Len(t, attrs, 4)
		assert.Equal(t, AttrRegistrarRoles, attrs[2].Name)
		assert.NotEmpty(t, attrs[2].Value)
	}
}

func TestResolveIsolation(t *testing.T) {
	p, err := Resolve(Farmer)
	require.NoError(t, err)
	p.RequiredAttributes[0] = "tampered"
	p.Payload.Required[0] = "tampered"

	p, err = Resolve(Farmer)
	require.NoError(t, err)
	assert.Equal(t, AttrRole, p.RequiredAttributes[0])
	assert.Equal(t, "name", p.Payload.Required[0])
}

func TestUnsupportedRole(t *testing.T) {
	_, err := Resolve(Role("pirate"))
	require.Error(t, err)
	assert.Equal(t, errkind.UnsupportedRole, errkind.KindOf(err))

	_, err = ParseRole("")
	assert.Equal(t, errkind.UnsupportedRole, errkind.KindOf(err))

	r, err := ParseRole("laboverseer")
	require.NoError(t, err)
	assert.Equal(t, LabOverseer, r)
}

func TestPayloadValidate(t *testing.T) {
	p, err := Resolve(Manufacturer)
	require.NoError(t, err)

	err = p.Payload.Validate(map[string]interface{}{"name": "Acme", "location": "Pune", "licenseNumber": "L-1"})
	assert.NoError(t, err)

	err = p.Payload.Validate(map[string]interface{}{"name": "Acme", "location": "  "})
	require.Error(t, err)
	assert.Equal(t, errkind.InvalidPayload, errkind.KindOf(err))
	assert.Contains(t, err.Error(), "location, licenseNumber")

	err = p.Payload.Validate(nil)
	assert.Equal(t, errkind.InvalidPayload, errkind.KindOf(err))
}
