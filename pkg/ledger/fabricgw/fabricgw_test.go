/*
Copyright 2020 IBM All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package fabricgw

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/foodtrace/onboarding-sdk-go/pkg/common/errors/errkind"
	"github.com/foodtrace/onboarding-sdk-go/pkg/core/config"
	"github.com/foodtrace/onboarding-sdk-go/pkg/identity"
	"github.com/foodtrace/onboarding-sdk-go/pkg/identity/mockidentity"
	cb "github.com/hyperledger/fabric-protos-go/common"
	"github.com/hyperledger/fabric-protos-go/peer"
	"github.com/hyperledger/fabric-sdk-go/pkg/common/errors/status"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpccodes "google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

type fakeSession struct {
	transaction string
	payload     []byte
	resp        []byte
	err         error
	block       chan struct{}
	closed      int32
}

func (s *fakeSession) submit(transaction string, payload []byte) ([]byte, error) {
	s.transaction = transaction
	s.payload = payload
	if s.block != nil {
		<-s.block
	}
	return s.resp, s.err
}

func (s *fakeSession) close() {
	atomic.AddInt32(&s.closed, 1)
}

func (s *fakeSession) closeCount() int32 {
	return atomic.LoadInt32(&s.closed)
}

func newCredential(t *testing.T) *identity.Credential {
	ca, err := mockidentity.NewCA()
	require.NoError(t, err)
	cred, err := ca.NewCredential("RegulatorMSP", "regulatorAdmin", map[string]string{"role": "admin", "uuid": "regulatorAdmin"})
	require.NoError(t, err)
	return cred
}

func TestConnectAndSubmit(t *testing.T) {
	cred := newCredential(t)
	s := &fakeSession{resp: []byte(`{"id":"Farmer01"}`)}

	var dialed *identity.Credential
	g := &Gateway{dial: func(c *identity.Credential) (session, error) {
		dialed = c
		return s, nil
	}}

	conn, err := g.Connect(context.Background(), cred)
	require.NoError(t, err)
	assert.Same(t, cred, dialed)

	resp, err := conn.Submit(context.Background(), "onboardFarmer", []byte(`{"id":"Farmer01"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"id":"Farmer01"}`, string(resp))
	assert.Equal(t, "onboardFarmer", s.transaction)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.EqualValues(t, 1, s.closeCount())
}

func TestConnectFailure(t *testing.T) {
	g := &Gateway{dial: func(*identity.Credential) (session, error) {
		return nil, status.New(status.EndorserClientStatus, status.ConnectionFailed.ToInt32(), "connection refused", nil)
	}}

	_, err := g.Connect(context.Background(), newCredential(t))
	require.Error(t, err)
	assert.Equal(t, errkind.Transport, errkind.KindOf(err))
	assert.Equal(t, errkind.StageConnect, errkind.StageOf(err))
}

func TestConnectDeadline(t *testing.T) {
	s := &fakeSession{}
	release := make(chan struct{})
	g := &Gateway{dial: func(*identity.Credential) (session, error) {
		<-release
		return s, nil
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.Connect(ctx, newCredential(t))
	require.Error(t, err)
	assert.Equal(t, errkind.Transport, errkind.KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	assert.Eventually(t, func() bool { return s.closeCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSubmitDeadlineClosesConnection(t *testing.T) {
	s := &fakeSession{block: make(chan struct{})}
	defer close(s.block)
	g := &Gateway{dial: func(*identity.Credential) (session, error) { return s, nil }}

	conn, err := g.Connect(context.Background(), newCredential(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = conn.Submit(ctx, "onboardFarmer", []byte(`{}`))
	require.Error(t, err)
	assert.Equal(t, errkind.Transport, errkind.KindOf(err))
	assert.Equal(t, errkind.StageSubmit, errkind.StageOf(err))
	assert.EqualValues(t, 1, s.closeCount())

	require.NoError(t, conn.Close())
	assert.EqualValues(t, 1, s.closeCount())
}

func TestSubmitRejected(t *testing.T) {
	s := &fakeSession{err: errors.New("transaction returned with failure: participant Farmer01 already exists")}
	g := &Gateway{dial: func(*identity.Credential) (session, error) { return s, nil }}

	conn, err := g.Connect(context.Background(), newCredential(t))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Submit(context.Background(), "onboardFarmer", []byte(`{}`))
	require.Error(t, err)
	assert.Equal(t, errkind.AlreadyOnboarded, errkind.KindOf(err))
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errkind.Kind
	}{
		{"access denied", errors.New("transaction returned with failure: Access denied: caller is not a regulator"), errkind.AccessDenied},
		{"not authorized", errors.New("creator is not authorized to onboard farmers"), errkind.AccessDenied},
		{"endorsement policy", status.New(status.EventServerStatus, int32(peer.TxValidationCode_ENDORSEMENT_POLICY_FAILURE), "received invalid transaction", nil), errkind.AccessDenied},
		{"missing role", errors.New("attribute 'role' missing from caller certificate"), errkind.MissingAttributes},
		{"missing uuid", errors.New("access denied: uuid attribute not found in identity"), errkind.MissingAttributes},
		{"already onboarded", errors.New("farmer Farmer01 already onboarded"), errkind.AlreadyOnboarded},
		{"already exists", errors.New("The participant Farmer01 already exists"), errkind.AlreadyOnboarded},
		{"grpc unavailable", status.NewFromGRPCStatus(grpcstatus.New(grpccodes.Unavailable, "all SubConns are in TransientFailure")), errkind.Transport},
		{"raw grpc deadline", errors.Wrap(grpcstatus.Error(grpccodes.DeadlineExceeded, "deadline"), "endorsement failed"), errkind.Transport},
		{"sdk timeout", status.New(status.OrdererClientStatus, status.Timeout.ToInt32(), "timed out waiting for orderer", nil), errkind.Transport},
		{"context", errors.Wrap(context.DeadlineExceeded, "commit"), errkind.Transport},
		{"unknown", errors.New("chaincode panicked: index out of range"), errkind.Unknown},
		{"other validation code", status.New(status.EventServerStatus, int32(peer.TxValidationCode_MVCC_READ_CONFLICT), "received invalid transaction", nil), errkind.Unknown},
		{"validation code wins over text", status.New(status.EventServerStatus, int32(peer.TxValidationCode_MVCC_READ_CONFLICT), "access denied while reading key", nil), errkind.Unknown},
		{"bad creator signature", status.New(status.EventServerStatus, int32(peer.TxValidationCode_BAD_CREATOR_SIGNATURE), "received invalid transaction", nil), errkind.AccessDenied},
		{"chaincode forbidden", status.New(status.ChaincodeStatus, int32(cb.Status_FORBIDDEN), "caller rejected", nil), errkind.AccessDenied},
		{"chaincode unauthorized", status.New(status.ChaincodeStatus, 401, "caller rejected", nil), errkind.AccessDenied},
		{"chaincode conflict", status.New(status.ChaincodeStatus, 409, "duplicate key", nil), errkind.AlreadyOnboarded},
		{"code wins over text", status.New(status.ChaincodeStatus, 409, "role attribute missing", nil), errkind.AlreadyOnboarded},
		{"chaincode error text", status.New(status.ChaincodeStatus, 500, "uuid attribute is not present in certificate", nil), errkind.MissingAttributes},
		{"chaincode error other text", status.New(status.ChaincodeStatus, 500, "index out of range", nil), errkind.Unknown},
		{"endorser unavailable", status.New(status.EndorserServerStatus, int32(cb.Status_SERVICE_UNAVAILABLE), "peer is shutting down", nil), errkind.Transport},
		{"missing attribute named first", errors.New("missing required attribute 'uuid' in creator"), errkind.MissingAttributes},
		{"unrelated missing text", errors.New("asset role not found: attribute index lacks uuid"), errkind.Unknown},
		{"unrelated not found", errors.New("batch uuid not found in world state"), errkind.Unknown},
		{"unrelated exists", errors.New("composite key already exists in index"), errkind.Unknown},
		{"unauthorized substring", errors.New("unauthorizedRetries exceeded"), errkind.Unknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := translate(tc.err, errkind.StageSubmit)
			assert.Equal(t, tc.kind, errkind.KindOf(err))
			assert.Equal(t, errkind.StageSubmit, errkind.StageOf(err))
			assert.Contains(t, err.Error(), tc.err.Error())
		})
	}
}

func TestTranslateKeepsKind(t *testing.T) {
	in := errkind.New(errkind.InvalidPayload, errkind.StageConnect, "credential has no enrollment ID")
	assert.Same(t, in, translate(in, errkind.StageSubmit))
}

func TestNew(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "connection.yaml")
	require.NoError(t, os.WriteFile(profile, []byte("name: test\n"), 0600))

	_, err := New(config.LedgerConfig{})
	assert.EqualError(t, err, "ledger.connectionProfile is required")

	_, err = New(config.LedgerConfig{ConnectionProfile: filepath.Join(t.TempDir(), "missing.yaml"), Channel: "c", Chaincode: "cc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not accessible")

	_, err = New(config.LedgerConfig{ConnectionProfile: profile})
	assert.EqualError(t, err, "ledger.channel and ledger.chaincode are required")

	g, err := New(config.LedgerConfig{ConnectionProfile: profile, Channel: "mychannel", Chaincode: "foodtrace", Timeout: time.Minute})
	require.NoError(t, err)
	assert.NotNil(t, g.dial)
}
