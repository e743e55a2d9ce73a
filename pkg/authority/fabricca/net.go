/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package fabricca

import (
	"github.com/cloudflare/cfssl/signer"
	"github.com/foodtrace/onboarding-sdk-go/pkg/authority"
)

// Fabric CA server error codes
const (
	errCodeAuthenticationFailure = 20
	errCodeIdentityNotFound      = 63
	errCodeAuthorizationFailure  = 71
	errCodeAlreadyRegistered     = 74
)

type attributeNet struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	ECert bool   `json:"ecert,omitempty"`
}

type attributeRequestNet struct {
	Name     string `json:"name"`
	Optional bool   `json:"optional"`
}

type registrationRequestNet struct {
	Name           string         `json:"id"`
	Type           string         `json:"type,omitempty"`
	MaxEnrollments int            `json:"max_enrollments,omitempty"`
	Affiliation    string         `json:"affiliation"`
	Attributes     []attributeNet `json:"attrs,omitempty"`
	CAName         string         `json:"caname,omitempty"`
}

type registrationResponseNet struct {
	Secret string `mapstructure:"secret"`
}

// enrollmentRequestNet is the body of both enroll and reenroll requests
type enrollmentRequestNet struct {
	signer.SignRequest
	CAName   string
	AttrReqs []*attributeRequestNet `json:"attr_reqs,omitempty"`
}

type enrollmentResponseNet struct {
	Cert       string `mapstructure:"Cert"`
	ServerInfo struct {
		CAName  string `mapstructure:"CAName"`
		CAChain string `mapstructure:"CAChain"`
	} `mapstructure:"ServerInfo"`
}

type revocationRequestNet struct {
	Name   string `json:"id"`
	Serial string `json:"serial,omitempty"`
	AKI    string `json:"aki,omitempty"`
	Reason string `json:"reason,omitempty"`
	CAName string `json:"caname,omitempty"`
	GenCRL bool   `json:"gencrl,omitempty"`
}

func attributesNet(attrs []authority.Attribute) []attributeNet {
	var out []attributeNet
	for _, a := range attrs {
		out = append(out, attributeNet{Name: a.Name, Value: a.Value, ECert: a.ECert})
	}
	return out
}

func attributeRequestsNet(reqs []*authority.AttributeRequest) []*attributeRequestNet {
	var out []*attributeRequestNet
	for _, r := range reqs {
		out = append(out, &attributeRequestNet{Name: r.Name, Optional: r.Optional})
	}
	return out
}
