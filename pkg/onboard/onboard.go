/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package onboard sequences credential issuance, credential storage and the
// ledger onboarding transaction for a participant, and reports both outcomes
// in a single result.
//
// Onboarding a participant moves it through the states
//
//	NOT_REGISTERED -> CA_REGISTERED -> CREDENTIAL_STORED -> LEDGER_ONBOARDED
//
// and is safe to repeat: a participant already onboarded is reported as
// success without any authority or ledger call, and partial progress from an
// earlier attempt is reused rather than redone.
package onboard

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/foodtrace/onboarding-sdk-go/pkg/classifier"
	"github.com/foodtrace/onboarding-sdk-go/pkg/common/errors/errkind"
	"github.com/foodtrace/onboarding-sdk-go/pkg/identity"
	"github.com/foodtrace/onboarding-sdk-go/pkg/ledger"
	"github.com/foodtrace/onboarding-sdk-go/pkg/policy"
	"github.com/foodtrace/onboarding-sdk-go/pkg/store"
	"github.com/hyperledger/fabric-lib-go/common/metrics/disabled"
	"github.com/hyperledger/fabric-sdk-go/pkg/common/logging"
	"github.com/pkg/errors"
)

var logger = logging.NewLogger("onboard")

// Identities is the credential store used by the orchestrator
type Identities interface {
	Exists(id string) (bool, error)
	Get(id string) (*identity.Credential, error)
	Put(id string, cred *identity.Credential, opts ...store.PutOption) error
	Receipt(id string) (*store.Receipt, error)
	RecordReceipt(id string, receipt *store.Receipt) error
	Remove(id string) error
}

// Issuer issues participant credentials
type Issuer interface {
	IssueCredential(ctx context.Context, participantID string, role policy.Role, adminContext string) (*identity.Credential, error)
}

// Revoker revokes participant certificates. Issuers that implement it
// support Offboard with revocation.
type Revoker interface {
	Revoke(ctx context.Context, participantID, adminContext, reason string) error
}

// Remover removes participant registrations from the authority. Issuers
// that implement it support Offboard with deregistration.
type Remover interface {
	RemoveIdentity(ctx context.Context, participantID, adminContext string) error
}

// Reenroller renews participant certificates with the attributes of role.
// Issuers that implement it support Reissue.
type Reenroller interface {
	Reenroll(ctx context.Context, participantID string, role policy.Role) (*identity.Credential, error)
}

// Submitter submits onboarding transactions
type Submitter interface {
	SubmitOnboarding(ctx context.Context, actingID string, role policy.Role, payload map[string]interface{}) (*ledger.Outcome, error)
}

// State is the last state a participant reached
type State string

const (
	// NotRegistered the authority does not know the participant
	NotRegistered State = "NOT_REGISTERED"
	// CARegistered a credential was issued but is not stored
	CARegistered State = "CA_REGISTERED"
	// CredentialStored the credential is stored but the ledger has no record
	CredentialStored State = "CREDENTIAL_STORED"
	// LedgerOnboarded the ledger holds the onboarding record
	LedgerOnboarded State = "LEDGER_ONBOARDED"
)

// Outcome is the outcome of one pipeline step
type Outcome string

const (
	// Succeeded the step was carried out
	Succeeded Outcome = "succeeded"
	// AlreadySatisfied an earlier attempt carried out the step
	AlreadySatisfied Outcome = "already_satisfied"
	// Failed the step failed
	Failed Outcome = "failed"
	// Skipped the step was not attempted
	Skipped Outcome = "skipped"
)

// Request asks for a participant to be onboarded
type Request struct {
	ParticipantID string                 `json:"id" yaml:"id"`
	Role          policy.Role            `json:"role" yaml:"role"`
	AdminContext  string                 `json:"admin,omitempty" yaml:"admin,omitempty"`
	Payload       map[string]interface{} `json:"payload" yaml:"payload"`
}

// Result is the composite outcome of an onboarding request
type Result struct {
	StatusCode             int             `json:"statusCode"`
	ParticipantID          string          `json:"participantId"`
	Role                   policy.Role     `json:"role"`
	Message                string          `json:"message"`
	RegistrationOutcome    Outcome         `json:"registrationOutcome"`
	OnboardingOutcome      Outcome         `json:"onboardingOutcome"`
	State                  State           `json:"state"`
	Code                   classifier.Code `json:"code"`
	Transaction            string          `json:"transaction,omitempty"`
	ReissueAdminCredential bool            `json:"reissueAdminCredential,omitempty"`
	Err                    error           `json:"-"`
}

// LoginResult is the outcome of a login
type LoginResult struct {
	StatusCode    int    `json:"statusCode"`
	ParticipantID string `json:"participantId"`
	Message       string `json:"message,omitempty"`
}

// Orchestrator onboards participants
type Orchestrator struct {
	identities       Identities
	issuer           Issuer
	submitter        Submitter
	adminContext     string
	maxConcurrency   int
	authorityTimeout time.Duration
	ledgerTimeout    time.Duration
	metrics          *Metrics
}

// Option configures the orchestrator
type Option func(*Orchestrator) error

// WithAdminContext sets the administrative identity used when a request
// names none
func WithAdminContext(id string) Option {
	return func(o *Orchestrator) error {
		if err := store.ValidateKey(id); err != nil {
			return errors.WithMessage(err, "invalid admin context")
		}
		o.adminContext = id
		return nil
	}
}

// WithMaxConcurrency bounds the number of requests OnboardAll runs at once
func WithMaxConcurrency(n int) Option {
	return func(o *Orchestrator) error {
		if n < 1 {
			return errors.Errorf("max concurrency must be positive, got %d", n)
		}
		o.maxConcurrency = n
		return nil
	}
}

// WithTimeouts sets the deadlines of the authority and ledger steps. A zero
// duration leaves the step bounded only by the caller's context.
func WithTimeouts(authority, ledger time.Duration) Option {
	return func(o *Orchestrator) error {
		if authority < 0 || ledger < 0 {
			return errors.New("timeouts must not be negative")
		}
		o.authorityTimeout = authority
		o.ledgerTimeout = ledger
		return nil
	}
}

// WithMetrics sets the orchestrator metrics
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) error {
		o.metrics = m
		return nil
	}
}

// New creates an orchestrator
func New(identities Identities, issuer Issuer, submitter Submitter, opts ...Option) (*Orchestrator, error) {
	if identities == nil || issuer == nil || submitter == nil {
		return nil, errors.New("identity store, issuer and submitter are required")
	}

	o := &Orchestrator{
		identities:     identities,
		issuer:         issuer,
		submitter:      submitter,
		maxConcurrency: 1,
		metrics:        NewMetrics(&disabled.Provider{}),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errors.WithMessage(err, "failed to create orchestrator")
		}
	}
	return o, nil
}

// Onboard issues, stores and onboards the participant of req. Failures are
// reported in the result.
func (o *Orchestrator) Onboard(ctx context.Context, req Request) *Result {
	start := time.Now()
	r := &Result{
		ParticipantID:       req.ParticipantID,
		Role:                req.Role,
		RegistrationOutcome: Skipped,
		OnboardingOutcome:   Skipped,
		State:               NotRegistered,
	}

	o.onboard(ctx, req, r)

	role := string(req.Role)
	if _, err := policy.Resolve(req.Role); err != nil {
		role = "unsupported"
	}
	stage := "done"
	outcome := string(Succeeded)
	if r.Err != nil {
		stage = string(errkind.StageOf(r.Err))
		outcome = string(Failed)
	} else if r.OnboardingOutcome == AlreadySatisfied {
		outcome = string(AlreadySatisfied)
	}
	o.metrics.Requests.With("role", role).Add(1)
	o.metrics.Completed.With("role", role, "stage", stage, "outcome", outcome).Add(1)
	o.metrics.Duration.With("role", role, "outcome", outcome).Observe(time.Since(start).Seconds())

	return r
}

func (o *Orchestrator) onboard(ctx context.Context, req Request, r *Result) {
	id := req.ParticipantID
	if err := store.ValidateKey(id); err != nil {
		o.fail(r, errkind.Wrap(err, errkind.InvalidPayload, errkind.StageValidate, "invalid participant ID"))
		return
	}
	p, err := policy.Resolve(req.Role)
	if err != nil {
		o.fail(r, err)
		return
	}
	payload, err := augment(req, p)
	if err != nil {
		o.fail(r, err)
		return
	}
	adminContext := req.AdminContext
	if adminContext == "" {
		adminContext = o.adminContext
	}
	if adminContext == "" {
		o.fail(r, errkind.New(errkind.AdminIdentityMissing, errkind.StageValidate, "no administrative identity given for [%s]", id))
		return
	}
	r.Transaction = p.OnboardingTransaction

	receipt, err := o.identities.Receipt(id)
	switch {
	case err == nil && receipt != nil:
		if receipt.Role != string(req.Role) {
			o.fail(r, errkind.New(errkind.Conflict, errkind.StageStore,
				"participant [%s] is already onboarded as [%s]", id, receipt.Role))
			return
		}
		logger.Debugf("[%s] already onboarded by [%s]", id, receipt.Transaction)
		r.RegistrationOutcome = AlreadySatisfied
		r.OnboardingOutcome = AlreadySatisfied
		r.State = LedgerOnboarded
		o.succeed(r, "participant [%s] is already onboarded as [%s]", id, req.Role)
		return
	case err == nil:
		if err := o.checkStored(id, req.Role); err != nil {
			o.fail(r, err)
			return
		}
		logger.Debugf("credential for [%s] is already stored, skipping the authority", id)
		r.RegistrationOutcome = AlreadySatisfied
	case errkind.Is(err, errkind.NotFound):
		if err := o.register(ctx, id, req.Role, adminContext, r); err != nil {
			o.fail(r, err)
			return
		}
	default:
		o.fail(r, err)
		return
	}
	r.State = CredentialStored

	lctx, cancel := o.withTimeout(ctx, o.ledgerTimeout)
	defer cancel()

	committed, err := o.submitter.SubmitOnboarding(lctx, adminContext, req.Role, payload)
	switch {
	case err == nil:
		r.OnboardingOutcome = Succeeded
	case errkind.Is(err, errkind.AlreadyOnboarded):
		logger.Infof("ledger already holds the onboarding record of [%s]", id)
		r.OnboardingOutcome = AlreadySatisfied
		committed = &ledger.Outcome{Transaction: p.OnboardingTransaction, ActingIdentity: adminContext, CommittedAt: time.Now().UTC()}
	default:
		r.OnboardingOutcome = Failed
		o.fail(r, err)
		return
	}
	r.State = LedgerOnboarded

	if err := o.identities.RecordReceipt(id, &store.Receipt{
		Transaction:    committed.Transaction,
		Role:           string(req.Role),
		ActingIdentity: committed.ActingIdentity,
		Response:       string(committed.Response),
		CommittedAt:    committed.CommittedAt,
	}); err != nil {
		logger.Warnf("failed to record the onboarding receipt of [%s]: %s", id, err)
	}

	if r.OnboardingOutcome == AlreadySatisfied {
		o.succeed(r, "participant [%s] was already onboarded as [%s]", id, req.Role)
		return
	}
	o.succeed(r, "participant [%s] onboarded as [%s]", id, req.Role)
}

// register issues and stores the credential of id, recording the
// registration outcome and state reached in r
func (o *Orchestrator) register(ctx context.Context, id string, role policy.Role, adminContext string, r *Result) error {
	actx, cancel := o.withTimeout(ctx, o.authorityTimeout)
	defer cancel()

	r.RegistrationOutcome = Failed
	cred, err := o.issuer.IssueCredential(actx, id, role, adminContext)
	if err != nil {
		if !errkind.Is(err, errkind.AlreadyRegistered) {
			return err
		}
		if serr := o.checkStored(id, role); serr != nil {
			if errkind.Is(serr, errkind.NotFound) {
				return errkind.Wrap(err, errkind.Conflict, errkind.StageRegister,
					"participant [%s] is registered with the authority but no credential is stored", id)
			}
			return serr
		}
		logger.Infof("[%s] was registered by a concurrent request", id)
		r.RegistrationOutcome = AlreadySatisfied
		return nil
	}
	r.State = CARegistered

	if err := o.identities.Put(id, cred); err != nil {
		if !errkind.Is(err, errkind.AlreadyExists) {
			return errors.WithMessagef(err, "failed to store the credential of [%s]", id)
		}
		if serr := o.checkStored(id, role); serr != nil {
			return serr
		}
		logger.Infof("credential for [%s] was stored by a concurrent request", id)
		r.RegistrationOutcome = AlreadySatisfied
		return nil
	}
	r.RegistrationOutcome = Succeeded
	return nil
}

// checkStored fails unless a credential for role is stored for id
func (o *Orchestrator) checkStored(id string, role policy.Role) error {
	cred, err := o.identities.Get(id)
	if err != nil {
		return err
	}
	attrs, err := cred.Attributes()
	if err != nil {
		return errkind.Wrap(err, errkind.StoreCorrupt, errkind.StageStore, "stored credential for [%s] is unreadable", id)
	}
	if stored := attrs[policy.AttrRole]; stored != string(role) {
		return errkind.New(errkind.Conflict, errkind.StageStore,
			"participant [%s] already holds a credential for role [%s]", id, stored)
	}
	return nil
}

// Login reports whether a credential is stored for id
func (o *Orchestrator) Login(id string) *LoginResult {
	ok, err := o.identities.Exists(id)
	switch {
	case err != nil:
		return &LoginResult{StatusCode: classifier.StatusCode(err), ParticipantID: id, Message: err.Error()}
	case !ok:
		return &LoginResult{StatusCode: http.StatusBadRequest, ParticipantID: id, Message: fmt.Sprintf("participant [%s] is not enrolled", id)}
	}
	return &LoginResult{StatusCode: http.StatusOK, ParticipantID: id}
}

type offboardOptions struct {
	revoke     bool
	reason     string
	deregister bool
}

// OffboardOption configures Offboard
type OffboardOption func(*offboardOptions)

// WithRevocation revokes the participant's certificates before the stored
// credential is removed
func WithRevocation(reason string) OffboardOption {
	return func(o *offboardOptions) {
		o.revoke = true
		o.reason = reason
	}
}

// WithDeregistration removes the participant's registration from the
// authority, so that a later Onboard registers it afresh
func WithDeregistration() OffboardOption {
	return func(o *offboardOptions) {
		o.deregister = true
	}
}

// Offboard removes the stored credential of id. With WithRevocation the
// authority revokes it first, and with WithDeregistration the authority
// forgets the registration, acting as adminContext or the default
// administrative identity. Without deregistration the authority still holds
// the enrollment ID and a later Onboard of id fails with a conflict.
func (o *Orchestrator) Offboard(ctx context.Context, id, adminContext string, opts ...OffboardOption) error {
	options := offboardOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if adminContext == "" {
		adminContext = o.adminContext
	}

	var revoker Revoker
	if options.revoke {
		var ok bool
		if revoker, ok = o.issuer.(Revoker); !ok {
			return errors.New("issuer does not support revocation")
		}
	}
	var remover Remover
	if options.deregister {
		var ok bool
		if remover, ok = o.issuer.(Remover); !ok {
			return errors.New("issuer does not support deregistration")
		}
	}

	actx, cancel := o.withTimeout(ctx, o.authorityTimeout)
	defer cancel()

	if revoker != nil {
		if err := revoker.Revoke(actx, id, adminContext, options.reason); err != nil {
			return errors.WithMessagef(err, "offboarding of [%s] failed", id)
		}
	}
	if remover != nil {
		if err := remover.RemoveIdentity(actx, id, adminContext); err != nil {
			return errors.WithMessagef(err, "offboarding of [%s] failed", id)
		}
	}

	if err := o.identities.Remove(id); err != nil {
		if remover != nil && errkind.Is(err, errkind.NotFound) {
			logger.Infof("deregistered [%s], no credential was stored", id)
			return nil
		}
		return errors.WithMessagef(err, "offboarding of [%s] failed", id)
	}
	logger.Infof("offboarded [%s]", id)
	return nil
}

// Reissue renews the credential of id with the attributes of role and
// replaces the stored one. The onboarding receipt is kept. An empty role is
// taken from the receipt, then from the current certificate. Callers use it
// to repair a credential after a MissingAttributes failure, when the current
// certificate may no longer name its role.
func (o *Orchestrator) Reissue(ctx context.Context, id string, role policy.Role) (*identity.Credential, error) {
	reenroller, ok := o.issuer.(Reenroller)
	if !ok {
		return nil, errors.New("issuer does not support reenrollment")
	}

	if role == "" {
		receipt, err := o.identities.Receipt(id)
		if err != nil {
			return nil, errors.WithMessagef(err, "reissue of [%s] failed", id)
		}
		if receipt != nil {
			role = policy.Role(receipt.Role)
		}
	}

	actx, cancel := o.withTimeout(ctx, o.authorityTimeout)
	defer cancel()

	cred, err := reenroller.Reenroll(actx, id, role)
	if err != nil {
		return nil, errors.WithMessagef(err, "reissue of [%s] failed", id)
	}
	if err := o.identities.Put(id, cred, store.WithReplace()); err != nil {
		return nil, errors.WithMessagef(err, "failed to store the reissued credential of [%s]", id)
	}
	logger.Infof("reissued credential for [%s]", id)
	return cred, nil
}

func (o *Orchestrator) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (o *Orchestrator) succeed(r *Result, format string, args ...interface{}) {
	r.StatusCode = http.StatusOK
	r.Code = classifier.OK
	r.Message = fmt.Sprintf(format, args...)
}

func (o *Orchestrator) fail(r *Result, err error) {
	stage := errkind.StageOf(err)
	if stage == "" {
		stage = "unknown"
	}
	r.Err = err
	r.Code = classifier.Classify(err)
	r.StatusCode = classifier.StatusCode(err)
	r.ReissueAdminCredential = classifier.NeedsCredentialReissue(r.Code)
	r.Message = fmt.Sprintf("onboarding of [%s] failed at stage [%s]: %s", r.ParticipantID, stage, err)

	if r.StatusCode >= http.StatusInternalServerError {
		logger.Errorf("%s", r.Message)
	} else {
		logger.Warnf("%s", r.Message)
	}
}

// augment returns a copy of the request payload carrying the participant ID
// and role, validated against the role's payload shape
func augment(req Request, p *policy.Policy) (map[string]interface{}, error) {
	payload := make(map[string]interface{}, len(req.Payload)+2)
	for k, v := range req.Payload {
		payload[k] = v
	}

	if v, ok := payload["id"]; ok && v != req.ParticipantID {
		return nil, errkind.New(errkind.InvalidPayload, errkind.StageValidate,
			"payload id [%v] does not match participant [%s]", v, req.ParticipantID)
	}
	payload["id"] = req.ParticipantID
	payload["role"] = string(p.Role)

	if err := p.Payload.Validate(payload); err != nil {
		return nil, errors.WithMessagef(err, "invalid %s payload for [%s]", p.OnboardingTransaction, req.ParticipantID)
	}
	return payload, nil
}
