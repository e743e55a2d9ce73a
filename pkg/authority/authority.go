/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package authority issues participant credentials from a certificate
// authority.
//
// The Client registers a participant as an administrative registrar and then
// enrolls it, requesting every attribute its role requires as a non-optional
// claim. The issued credential is returned to the caller and is never
// persisted here.
package authority

import (
	"context"

	"github.com/foodtrace/onboarding-sdk-go/pkg/common/errors/errkind"
	"github.com/foodtrace/onboarding-sdk-go/pkg/identity"
	"github.com/foodtrace/onboarding-sdk-go/pkg/policy"
	"github.com/hyperledger/fabric-sdk-go/pkg/common/logging"
	"github.com/pkg/errors"
)

var logger = logging.NewLogger("onboard/authority")

const identityTypeClient = "client"

// Attribute is a registered attribute. ECert attributes are added to
// enrollment certificates by default.
type Attribute struct {
	Name  string
	Value string
	ECert bool
}

// RegistrationRequest registers an enrollment ID with the authority
type RegistrationRequest struct {
	Name           string
	Type           string
	MaxEnrollments int
	Affiliation    string
	Attributes     []Attribute
	CAName         string
}

// AttributeRequest asks for an attribute in the enrollment certificate. A
// non-optional request fails the enrollment if the attribute cannot be added.
type AttributeRequest struct {
	Name     string
	Optional bool
}

// EnrollmentRequest exchanges an enrollment secret for a certificate
type EnrollmentRequest struct {
	Name     string
	Secret   string
	CAName   string
	AttrReqs []*AttributeRequest
}

// EnrollmentResponse holds the issued certificate and the private key
// generated for it, both PEM encoded
type EnrollmentResponse struct {
	Certificate []byte
	PrivateKey  []byte
}

// ReenrollmentRequest renews the certificate of an enrolled identity
type ReenrollmentRequest struct {
	CAName   string
	AttrReqs []*AttributeRequest
}

// RevocationRequest revokes the certificates of an enrollment ID
type RevocationRequest struct {
	Name   string
	Reason string
	CAName string
}

// RemovalRequest removes a registered identity. Force is required when the
// registrar removes itself.
type RemovalRequest struct {
	Name   string
	Force  bool
	CAName string
}

// Service is a certificate authority. Implementations classify failures
// with errkind kinds: AlreadyRegistered, AttributeRejected, AccessDenied,
// AdminIdentityMissing and Transport.
type Service interface {
	Register(ctx context.Context, registrar *identity.Credential, request *RegistrationRequest) (string, error)
	Enroll(ctx context.Context, request *EnrollmentRequest) (*EnrollmentResponse, error)
}

// Revoker is implemented by services that can revoke enrollments
type Revoker interface {
	Revoke(ctx context.Context, registrar *identity.Credential, request *RevocationRequest) error
}

// Reenroller is implemented by services that can renew enrollment
// certificates, authenticating with the current one
type Reenroller interface {
	Reenroll(ctx context.Context, current *identity.Credential, request *ReenrollmentRequest) (*EnrollmentResponse, error)
}

// Remover is implemented by services that can remove registered identities.
// Removing an identity revokes its certificates and frees its enrollment ID
// for a new registration. Unknown identities are reported with the NotFound
// kind.
type Remover interface {
	RemoveIdentity(ctx context.Context, registrar *identity.Credential, request *RemovalRequest) error
}

// CredentialReader resolves stored credentials
type CredentialReader interface {
	Get(id string) (*identity.Credential, error)
}

// Client issues credentials for participants
type Client struct {
	service        Service
	credentials    CredentialReader
	maxEnrollments int
}

// ClientOption describes a functional parameter for New
type ClientOption func(*Client) error

// WithMaxEnrollments limits how often a registered participant may enroll.
// The default of 1 makes the enrollment secret single use.
func WithMaxEnrollments(n int) ClientOption {
	return func(c *Client) error {
		if n < 1 {
			return errors.Errorf("max enrollments must be positive, got %d", n)
		}
		c.maxEnrollments = n
		return nil
	}
}

// New returns a client issuing credentials from service. Registrar
// credentials are resolved through credentials.
func New(service Service, credentials CredentialReader, opts ...ClientOption) (*Client, error) {
	if service == nil {
		return nil, errors.New("authority service is required")
	}
	if credentials == nil {
		return nil, errors.New("credential reader is required")
	}

	c := &Client{service: service, credentials: credentials, maxEnrollments: 1}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WithMessage(err, "failed to create authority client")
		}
	}
	return c, nil
}

// IssueCredential registers and enrolls participantID with the attributes
// required by role, authenticating the registration as adminContext
func (c *Client) IssueCredential(ctx context.Context, participantID string, role policy.Role, adminContext string) (*identity.Credential, error) {
	p, err := policy.Resolve(role)
	if err != nil {
		return nil, err
	}

	registrar, err := c.registrar(adminContext)
	if err != nil {
		return nil, err
	}

	var attrs []Attribute
	var attrReqs []*AttributeRequest
	for _, a := range p.AttributeValues(participantID) {
		attrs = append(attrs, Attribute{Name: a.Name, Value: a.Value, ECert: true})
		attrReqs = append(attrReqs, &AttributeRequest{Name: a.Name, Optional: false})
	}

	logger.Debugf("registering [%s] as [%s] in affiliation [%s]", participantID, role, p.Affiliation)
	secret, err := c.service.Register(ctx, registrar, &RegistrationRequest{
		Name:           participantID,
		Type:           identityTypeClient,
		MaxEnrollments: c.maxEnrollments,
		Affiliation:    p.Affiliation,
		Attributes:     attrs,
		CAName:         p.CAName,
	})
	if err != nil {
		return nil, classify(err, errkind.StageRegister, "registration of [%s] failed", participantID)
	}

	resp, err := c.service.Enroll(ctx, &EnrollmentRequest{
		Name:     participantID,
		Secret:   secret,
		CAName:   p.CAName,
		AttrReqs: attrReqs,
	})
	if err != nil {
		return nil, classify(err, errkind.StageEnroll, "enrollment of [%s] failed", participantID)
	}

	cred, err := issued(participantID, p, resp, errkind.StageEnroll)
	if err != nil {
		return nil, err
	}

	logger.Infof("issued credential for [%s] with role [%s]", participantID, role)
	return cred, nil
}

// Reenroll renews the certificate of participantID with a fresh key and the
// attributes role requires. An empty role is read from the current
// certificate, which only works while that certificate still carries its
// role claim.
func (c *Client) Reenroll(ctx context.Context, participantID string, role policy.Role) (*identity.Credential, error) {
	reenroller, ok := c.service.(Reenroller)
	if !ok {
		return nil, errors.New("authority service does not support reenrollment")
	}

	current, err := c.credentials.Get(participantID)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to load credential for [%s]", participantID)
	}
	if role == "" {
		attrs, err := current.Attributes()
		if err != nil {
			return nil, errkind.Wrap(err, errkind.StoreCorrupt, errkind.StageReenroll,
				"credential for [%s] has an unreadable certificate", participantID)
		}
		role = policy.Role(attrs[policy.AttrRole])
		if role == "" {
			return nil, errkind.New(errkind.InvalidPayload, errkind.StageReenroll,
				"credential for [%s] carries no role claim, a role is required", participantID)
		}
	}
	p, err := policy.Resolve(role)
	if err != nil {
		return nil, err
	}

	var attrReqs []*AttributeRequest
	for _, name := range p.RequiredAttributes {
		attrReqs = append(attrReqs, &AttributeRequest{Name: name, Optional: false})
	}

	resp, err := reenroller.Reenroll(ctx, current, &ReenrollmentRequest{CAName: p.CAName, AttrReqs: attrReqs})
	if err != nil {
		return nil, classify(err, errkind.StageReenroll, "reenrollment of [%s] failed", participantID)
	}

	cred, err := issued(participantID, p, resp, errkind.StageReenroll)
	if err != nil {
		return nil, err
	}
	logger.Infof("reenrolled [%s] as [%s]", participantID, role)
	return cred, nil
}

// Revoke revokes the certificates of participantID, authenticating as
// adminContext. The CA is chosen from the participant's stored credential
// when one is present, otherwise the authority's default CA is used.
func (c *Client) Revoke(ctx context.Context, participantID, adminContext, reason string) error {
	revoker, ok := c.service.(Revoker)
	if !ok {
		return errors.New("authority service does not support revocation")
	}

	registrar, err := c.registrar(adminContext)
	if err != nil {
		return err
	}

	request := &RevocationRequest{Name: participantID, Reason: reason, CAName: c.storedCAName(participantID)}
	if err := revoker.Revoke(ctx, registrar, request); err != nil {
		return classify(err, errkind.StageRevoke, "revocation of [%s] failed", participantID)
	}
	logger.Infof("revoked [%s]", participantID)
	return nil
}

// RemoveIdentity removes the registration of participantID from the
// authority, authenticating as adminContext, so the ID can be registered
// again. An identity the authority does not know counts as removed.
func (c *Client) RemoveIdentity(ctx context.Context, participantID, adminContext string) error {
	remover, ok := c.service.(Remover)
	if !ok {
		return errors.New("authority service does not support identity removal")
	}

	registrar, err := c.registrar(adminContext)
	if err != nil {
		return err
	}

	request := &RemovalRequest{
		Name:   participantID,
		Force:  participantID == adminContext,
		CAName: c.storedCAName(participantID),
	}
	if err := remover.RemoveIdentity(ctx, registrar, request); err != nil {
		if errkind.Is(err, errkind.NotFound) {
			logger.Debugf("[%s] is not registered with the authority", participantID)
			return nil
		}
		return classify(err, errkind.StageRemove, "removal of [%s] failed", participantID)
	}
	logger.Infof("removed [%s] from the authority", participantID)
	return nil
}

// storedCAName returns the CA of the participant's stored credential, or ""
// for the authority's default CA
func (c *Client) storedCAName(participantID string) string {
	cred, err := c.credentials.Get(participantID)
	if err != nil {
		return ""
	}
	attrs, err := cred.Attributes()
	if err != nil {
		return ""
	}
	p, err := policy.Resolve(policy.Role(attrs[policy.AttrRole]))
	if err != nil {
		return ""
	}
	return p.CAName
}

// registrar loads the administrative credential and checks locally that it
// carries registrar capabilities
func (c *Client) registrar(adminContext string) (*identity.Credential, error) {
	cred, err := c.credentials.Get(adminContext)
	if err != nil {
		if errkind.Is(err, errkind.NotFound, errkind.InvalidPayload) {
			return nil, errkind.Wrap(err, errkind.AdminIdentityMissing, errkind.StageRegister,
				"administrative identity [%s] is not enrolled", adminContext)
		}
		return nil, errors.WithMessagef(err, "failed to load administrative identity [%s]", adminContext)
	}

	missing, err := cred.MissingAttributes(policy.AttrRegistrarRoles)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.AdminIdentityMissing, errkind.StageRegister,
			"administrative identity [%s] has an unreadable certificate", adminContext)
	}
	if len(missing) > 0 {
		return nil, errkind.New(errkind.AdminIdentityMissing, errkind.StageRegister,
			"administrative identity [%s] lacks registrar capability attributes %v", adminContext, missing)
	}
	return cred, nil
}

// issued builds the credential from an authority response and checks it
// carries every attribute p requires
func issued(participantID string, p *policy.Policy, resp *EnrollmentResponse, stage errkind.Stage) (*identity.Credential, error) {
	cred := identity.NewX509Credential(p.MembershipOrg, string(resp.Certificate), string(resp.PrivateKey))
	if err := cred.Verify(); err != nil {
		return nil, errkind.Wrap(err, errkind.Unknown, stage, "issued credential for [%s] is unusable", participantID)
	}

	missing, err := cred.MissingAttributes(p.RequiredAttributes...)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Unknown, stage, "issued certificate for [%s] is unreadable", participantID)
	}
	if len(missing) > 0 {
		return nil, errkind.New(errkind.AttributeRejected, stage,
			"issued certificate for [%s] lacks required attributes %v", participantID, missing)
	}
	return cred, nil
}

// classify keeps the kind assigned by the service and defaults everything
// else to Unknown
func classify(err error, stage errkind.Stage, format string, args ...interface{}) error {
	if _, ok := errkind.FromError(err); ok {
		return errors.WithMessagef(err, format, args...)
	}
	return errkind.Wrap(err, errkind.Unknown, stage, format, args...)
}
