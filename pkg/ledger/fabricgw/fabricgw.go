/*
Copyright 2020 IBM All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package fabricgw implements the ledger gateway over the Fabric SDK gateway.
// Every connection gets its own in-memory wallet holding only the acting
// credential, so credentials never cross invocations.
package fabricgw

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/foodtrace/onboarding-sdk-go/pkg/common/errors/errkind"
	"github.com/foodtrace/onboarding-sdk-go/pkg/core/config"
	"github.com/foodtrace/onboarding-sdk-go/pkg/identity"
	"github.com/foodtrace/onboarding-sdk-go/pkg/ledger"
	"github.com/hyperledger/fabric-sdk-go/pkg/common/logging"
	fabconfig "github.com/hyperledger/fabric-sdk-go/pkg/core/config"
	"github.com/hyperledger/fabric-sdk-go/pkg/gateway"
	"github.com/pkg/errors"
)

var logger = logging.NewLogger("onboard/fabricgw")

// session is an open gateway connection bound to one contract
type session interface {
	submit(transaction string, payload []byte) ([]byte, error)
	close()
}

type dialFunc func(cred *identity.Credential) (session, error)

// Gateway connects to the network described by a connection profile
type Gateway struct {
	dial dialFunc
}

// New creates a gateway from the ledger configuration
func New(cfg config.LedgerConfig) (*Gateway, error) {
	if cfg.ConnectionProfile == "" {
		return nil, errors.New("ledger.connectionProfile is required")
	}
	if _, err := os.Stat(cfg.ConnectionProfile); err != nil {
		return nil, errors.Wrapf(err, "connection profile [%s] is not accessible", cfg.ConnectionProfile)
	}
	if cfg.Channel == "" || cfg.Chaincode == "" {
		return nil, errors.New("ledger.channel and ledger.chaincode are required")
	}

	d := &sdkDialer{
		profile:   cfg.ConnectionProfile,
		channel:   cfg.Channel,
		chaincode: cfg.Chaincode,
		timeout:   cfg.Timeout,
		endorsers: cfg.EndorsingPeers,
	}
	return &Gateway{dial: d.dial}, nil
}

// Connect opens a connection acting as cred. If ctx expires first the
// connection is abandoned and closed once it completes.
func (g *Gateway) Connect(ctx context.Context, cred *identity.Credential) (ledger.Connection, error) {
	type result struct {
		s   session
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := g.dial(cred)
		done <- result{s, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, translate(r.err, errkind.StageConnect)
		}
		return &connection{session: r.s}, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.s != nil {
				r.s.close()
			}
		}()
		return nil, errkind.Wrap(ctx.Err(), errkind.Transport, errkind.StageConnect, "gateway connection timed out")
	}
}

type connection struct {
	session session
	once    sync.Once
}

// Submit submits transaction with payload as its only argument and waits
// for the commit
func (c *connection) Submit(ctx context.Context, transaction string, payload []byte) ([]byte, error) {
	type result struct {
		resp []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := c.session.submit(transaction, payload)
		done <- result{resp, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, translate(r.err, errkind.StageSubmit)
		}
		return r.resp, nil
	case <-ctx.Done():
		c.Close()
		return nil, errkind.Wrap(ctx.Err(), errkind.Transport, errkind.StageSubmit, "transaction [%s] did not commit in time", transaction)
	}
}

// Close closes the gateway connection. It is safe to call more than once.
func (c *connection) Close() error {
	c.once.Do(c.session.close)
	return nil
}

// sdkDialer connects with the Fabric SDK gateway
type sdkDialer struct {
	profile   string
	channel   string
	chaincode string
	timeout   time.Duration
	endorsers []string
}

func (d *sdkDialer) dial(cred *identity.Credential) (session, error) {
	label, err := cred.EnrollmentID()
	if err != nil {
		return nil, errkind.Wrap(err, errkind.InvalidPayload, errkind.StageConnect, "credential has no enrollment ID")
	}

	wallet := gateway.NewInMemoryWallet()
	if err := wallet.Put(label, gateway.NewX509Identity(cred.MSPID, cred.CertificatePEM(), cred.KeyPEM())); err != nil {
		return nil, errors.Wrapf(err, "failed to add [%s] to the connection wallet", label)
	}

	options := []gateway.Option{}
	if d.timeout > 0 {
		options = append(options, gateway.WithTimeout(d.timeout))
	}
	gw, err := gateway.Connect(gateway.WithConfig(fabconfig.FromFile(d.profile)), gateway.WithIdentity(wallet, label), options...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect as [%s]", label)
	}

	network, err := gw.GetNetwork(d.channel)
	if err != nil {
		gw.Close()
		return nil, errors.Wrapf(err, "failed to get network [%s]", d.channel)
	}
	logger.Debugf("connected to [%s] as [%s]", d.channel, label)

	return &sdkSession{contract: network.GetContract(d.chaincode), endorsers: d.endorsers, closer: gw.Close}, nil
}

type sdkSession struct {
	contract  *gateway.Contract
	endorsers []string
	closer    func()
}

func (s *sdkSession) submit(transaction string, payload []byte) ([]byte, error) {
	var opts []gateway.TransactionOption
	if len(s.endorsers) > 0 {
		opts = append(opts, gateway.WithEndorsingPeers(s.endorsers...))
	}
	txn, err := s.contract.CreateTransaction(transaction, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create transaction [%s]", transaction)
	}
	return txn.Submit(string(payload))
}

func (s *sdkSession) close() {
	s.closer()
}
