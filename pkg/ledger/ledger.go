/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package ledger submits onboarding transactions to the shared ledger.
//
// Each submission opens its own connection with the acting credential and
// closes it before returning, so no connection or credential outlives a call.
package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/foodtrace/onboarding-sdk-go/pkg/common/errors/errkind"
	"github.com/foodtrace/onboarding-sdk-go/pkg/identity"
	"github.com/foodtrace/onboarding-sdk-go/pkg/policy"
	"github.com/hyperledger/fabric-sdk-go/pkg/common/logging"
	"github.com/pkg/errors"
)

var logger = logging.NewLogger("onboard/ledger")

// Gateway opens ledger connections. Implementations classify failures with
// errkind kinds: AccessDenied, MissingAttributes, AlreadyOnboarded and
// Transport.
type Gateway interface {
	Connect(ctx context.Context, cred *identity.Credential) (Connection, error)
}

// Connection submits transactions as a single identity
type Connection interface {
	// Submit submits the named transaction and waits for it to commit
	Submit(ctx context.Context, transaction string, payload []byte) ([]byte, error)
	Close() error
}

// CredentialReader resolves stored credentials
type CredentialReader interface {
	Get(id string) (*identity.Credential, error)
}

// Outcome is the result of a committed onboarding transaction
type Outcome struct {
	Transaction    string
	ActingIdentity string
	Response       []byte
	CommittedAt    time.Time
}

// Client submits onboarding transactions
type Client struct {
	gateway     Gateway
	credentials CredentialReader
}

// New returns a client connecting through gateway. Acting credentials are
// resolved through credentials.
func New(gateway Gateway, credentials CredentialReader) (*Client, error) {
	if gateway == nil {
		return nil, errors.New("ledger gateway is required")
	}
	if credentials == nil {
		return nil, errors.New("credential reader is required")
	}
	return &Client{gateway: gateway, credentials: credentials}, nil
}

// SubmitOnboarding submits the onboarding transaction of role with payload,
// acting as actingID. The payload is validated before any connection is made.
func (c *Client) SubmitOnboarding(ctx context.Context, actingID string, role policy.Role, payload map[string]interface{}) (*Outcome, error) {
	p, err := policy.Resolve(role)
	if err != nil {
		return nil, err
	}

	cred, err := c.credentials.Get(actingID)
	if err != nil {
		if errkind.Is(err, errkind.NotFound, errkind.InvalidPayload) {
			return nil, errkind.Wrap(err, errkind.IdentityNotFound, errkind.StageConnect,
				"acting identity [%s] is not enrolled", actingID)
		}
		return nil, errors.WithMessagef(err, "failed to load acting identity [%s]", actingID)
	}

	if err := p.Payload.Validate(payload); err != nil {
		return nil, errors.WithMessagef(err, "invalid %s payload", p.OnboardingTransaction)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.InvalidPayload, errkind.StageValidate, "payload cannot be encoded")
	}

	conn, err := c.gateway.Connect(ctx, cred)
	if err != nil {
		return nil, classify(ctx, err, errkind.StageConnect, "connection as [%s] failed", actingID)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warnf("failed to close ledger connection of [%s]: %s", actingID, err)
		}
	}()

	logger.Debugf("submitting [%s] as [%s]", p.OnboardingTransaction, actingID)
	resp, err := conn.Submit(ctx, p.OnboardingTransaction, body)
	if err != nil {
		return nil, classify(ctx, err, errkind.StageSubmit, "transaction [%s] as [%s] failed", p.OnboardingTransaction, actingID)
	}

	logger.Infof("committed [%s] as [%s]", p.OnboardingTransaction, actingID)
	return &Outcome{
		Transaction:    p.OnboardingTransaction,
		ActingIdentity: actingID,
		Response:       resp,
		CommittedAt:    time.Now().UTC(),
	}, nil
}

// classify keeps the kind assigned by the gateway. An expired context is a
// transport failure; anything else is Unknown.
func classify(ctx context.Context, err error, stage errkind.Stage, format string, args ...interface{}) error {
	if _, ok := errkind.FromError(err); ok {
		return errors.WithMessagef(err, format, args...)
	}
	if ctx.Err() != nil {
		return errkind.Wrap(err, errkind.Transport, stage, format, args...)
	}
	return errkind.Wrap(err, errkind.Unknown, stage, format, args...)
}
