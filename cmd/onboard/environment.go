/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/foodtrace/onboarding-sdk-go/pkg/authority"
	"github.com/foodtrace/onboarding-sdk-go/pkg/authority/fabricca"
	"github.com/foodtrace/onboarding-sdk-go/pkg/core/config"
	"github.com/foodtrace/onboarding-sdk-go/pkg/identity"
	"github.com/foodtrace/onboarding-sdk-go/pkg/ledger"
	"github.com/foodtrace/onboarding-sdk-go/pkg/ledger/fabricgw"
	"github.com/foodtrace/onboarding-sdk-go/pkg/onboard"
	"github.com/foodtrace/onboarding-sdk-go/pkg/policy"
	"github.com/foodtrace/onboarding-sdk-go/pkg/store"
	"github.com/hyperledger/fabric-lib-go/common/metrics"
	"github.com/hyperledger/fabric-lib-go/common/metrics/disabled"
	"github.com/hyperledger/fabric-lib-go/common/metrics/prometheus"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

// environment holds the components a command runs against
type environment struct {
	cfg          *config.Config
	store        *store.Store
	orchestrator *onboard.Orchestrator
	metrics      *http.Server
}

// component selects the remote clients a command needs
type component int

const (
	needAuthority component = 1 << iota
	needLedger
)

func newEnvironment(cCtx *cli.Context, needs component) (*environment, error) {
	cfg, err := config.FromFile(cCtx.String(flagConfig.Name))()
	if err != nil {
		return nil, err
	}
	if err := config.ApplyLogging(cfg.Logging); err != nil {
		return nil, err
	}

	env := &environment{cfg: cfg}
	var provider metrics.Provider = &disabled.Provider{}
	if addr := cCtx.String(flagMetricsAddr.Name); addr != "" {
		provider = &prometheus.Provider{}
		env.metrics = serveMetrics(addr)
	}

	env.store, err = store.Open(cfg.Store)
	if err != nil {
		env.close()
		return nil, err
	}

	if env.orchestrator, err = newOrchestrator(cfg, env.store, provider, needs); err != nil {
		env.close()
		return nil, err
	}
	return env, nil
}

func newOrchestrator(cfg *config.Config, s *store.Store, provider metrics.Provider, needs component) (*onboard.Orchestrator, error) {
	var issuer onboard.Issuer = unconfigured("authority")
	if needs&needAuthority != 0 {
		ca, err := fabricca.New(cfg.Authority)
		if err != nil {
			return nil, err
		}
		if issuer, err = authority.New(ca, s, authority.WithMaxEnrollments(cfg.Authority.MaxEnrollments)); err != nil {
			return nil, err
		}
	}

	var submitter onboard.Submitter = unconfigured("ledger")
	if needs&needLedger != 0 {
		gw, err := fabricgw.New(cfg.Ledger)
		if err != nil {
			return nil, err
		}
		if submitter, err = ledger.New(gw, s); err != nil {
			return nil, err
		}
	}

	return onboard.New(s, issuer, submitter,
		onboard.WithAdminContext(cfg.Onboard.AdminContext),
		onboard.WithMaxConcurrency(cfg.Onboard.MaxConcurrency),
		onboard.WithTimeouts(cfg.Authority.Timeout, cfg.Ledger.Timeout),
		onboard.WithMetrics(onboard.NewMetrics(provider)),
	)
}

// unconfigured stands in for a remote client the running command does not use
type unconfigured string

func (u unconfigured) IssueCredential(context.Context, string, policy.Role, string) (*identity.Credential, error) {
	return nil, errors.Errorf("the %s client is not set up for this command", string(u))
}

func (u unconfigured) SubmitOnboarding(context.Context, string, policy.Role, map[string]interface{}) (*ledger.Outcome, error) {
	return nil, errors.Errorf("the %s client is not set up for this command", string(u))
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server on [%s] failed: %s", addr, err)
		}
	}()
	logger.Infof("serving metrics on [%s]", addr)
	return srv
}

func (e *environment) close() {
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			logger.Warnf("failed to close the identity store: %s", err)
		}
	}
	if e.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.metrics.Shutdown(ctx); err != nil {
			logger.Warnf("failed to stop the metrics server: %s", err)
		}
	}
}
