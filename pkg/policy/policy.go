/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package policy holds the role policy table. Each participant role maps to
// a fixed affiliation, membership organization, set of required attribute
// claims and onboarding transaction.
package policy

import (
	"sort"
	"strings"

	"github.com/foodtrace/onboarding-sdk-go/pkg/common/errors/errkind"
)

// Role is a participant role
type Role string

// Participant roles
const (
	Regulator    Role = "regulator"
	Farmer       Role = "farmer"
	Manufacturer Role = "manufacturer"
	Laboratory   Role = "laboratory"
	LabOverseer  Role = "labOverseer"
	Admin        Role = "admin"
)

// Attribute names embedded in issued certificates
const (
	AttrRole               = "role"
	AttrUUID               = "uuid"
	AttrRegistrarRoles     = "hf.Registrar.Roles"
	AttrRegistrarAttribute = "hf.Registrar.Attributes"
)

// registrar capability values granted to administrative roles
const (
	registrarRoles      = "client,peer,user"
	registrarAttributes = "role,uuid"
)

// Policy describes how a role is issued and onboarded
type Policy struct {
	Role                  Role
	Affiliation           string
	MembershipOrg         string
	CAName                string
	RequiredAttributes    []string
	Registrar             bool
	OnboardingTransaction string
	Payload               PayloadShape
}

var table = map[Role]Policy{
	Regulator: {
		Affiliation:           "regulator.department1",
		MembershipOrg:         "RegulatorMSP",
		CAName:                "ca-regulator",
		Registrar:             true,
		OnboardingTransaction: "onboardRegulator",
		Payload:               PayloadShape{Required: []string{"name", "agency"}},
	},
	Farmer: {
		Affiliation:           "farmer.department1",
		MembershipOrg:         "FarmerMSP",
		CAName:                "ca-farmer",
		OnboardingTransaction: "onboardFarmer",
		Payload:               PayloadShape{Required: []string{"name", "farmLocation"}},
	},
	Manufacturer: {
		Affiliation:           "manufacturer.department1",
		MembershipOrg:         "ManufacturerMSP",
		CAName:                "ca-manufacturer",
		OnboardingTransaction: "onboardManufacturer",
		Payload:               PayloadShape{Required: []string{"name", "location", "licenseNumber"}},
	},
	Laboratory: {
		Affiliation:           "laboratory.department1",
		MembershipOrg:         "LaboratoryMSP",
		CAName:                "ca-laboratory",
		OnboardingTransaction: "onboardLaboratory",
		Payload:               PayloadShape{Required: []string{"name", "location", "accreditationId"}},
	},
	LabOverseer: {
		Affiliation:           "laboratory.overseer",
		MembershipOrg:         "LaboratoryMSP",
		CAName:                "ca-laboratory",
		OnboardingTransaction: "onboardLabOverseer",
		Payload:               PayloadShape{Required: []string{"name", "organization"}},
	},
	Admin: {
		Affiliation:           "regulator.admin",
		MembershipOrg:         "RegulatorMSP",
		CAName:                "ca-regulator",
		Registrar:             true,
		OnboardingTransaction: "onboardAdmin",
		Payload:               PayloadShape{Required: []string{"name"}},
	},
}

// Resolve returns the policy of role. Roles outside the closed set fail with
// an UnsupportedRole error.
func Resolve(role Role) (*Policy, error) {
	p, ok := table[role]
	if !ok {
		return nil, errkind.New(errkind.UnsupportedRole, errkind.StageValidate, "unsupported role [%s]", role)
	}

	p.Role = role
	p.RequiredAttributes = []string{AttrRole, AttrUUID}
	if p.Registrar {
		p.RequiredAttributes = append(p.RequiredAttributes, AttrRegistrarRoles, AttrRegistrarAttribute)
	}
	p.Payload.Required = append([]string(nil), p.Payload.Required...)
	return &p, nil
}

// ParseRole converts s to a role. The match is exact except for case.
func ParseRole(s string) (Role, error) {
	for r := range table {
		if strings.EqualFold(string(r), s) {
			return r, nil
		}
	}
	return "", errkind.New(errkind.UnsupportedRole, errkind.StageValidate, "unsupported role [%s]", s)
}

// Roles returns every supported role in a stable order
func Roles() []Role {
	roles := make([]Role, 0, len(table))
	for r := range table {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// AttributeValues returns the attribute values registered for participantID,
// in the order of RequiredAttributes
func (p *Policy) AttributeValues(participantID string) []Attribute {
	attrs := make([]Attribute, 0, len(p.RequiredAttributes))
	for _, name := range p.RequiredAttributes {
		attr := Attribute{Name: name}
		switch name {
		case AttrRole:
			attr.Value = string(p.Role)
		case AttrUUID:
			attr.Value = participantID
		case AttrRegistrarRoles:
			attr.Value = registrarRoles
		case AttrRegistrarAttribute:
			attr.Value = registrarAttributes
		}
		attrs = append(attrs, attr)
	}
	return attrs
}

// Attribute is a name/value pair registered with the authority
type Attribute struct {
	Name  string
	Value string
}
