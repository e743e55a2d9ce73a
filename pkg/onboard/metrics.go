/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package onboard

import (
	"github.com/hyperledger/fabric-lib-go/common/metrics"
)

var (
	requestsOpts = metrics.CounterOpts{
		Namespace:  "onboarding",
		Name:       "requests_total",
		Help:       "The number of onboarding requests received.",
		LabelNames: []string{"role"},
	}
	completedOpts = metrics.CounterOpts{
		Namespace:  "onboarding",
		Name:       "completed_total",
		Help:       "The number of onboarding requests completed, by the last stage reached and outcome.",
		LabelNames: []string{"role", "stage", "outcome"},
	}
	durationOpts = metrics.HistogramOpts{
		Namespace:  "onboarding",
		Name:       "duration_seconds",
		Help:       "The time taken to complete an onboarding request.",
		LabelNames: []string{"role", "outcome"},
		Buckets:    []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}
)

// Metrics holds the orchestrator metrics
type Metrics struct {
	Requests  metrics.Counter
	Completed metrics.Counter
	Duration  metrics.Histogram
}

// NewMetrics creates the orchestrator metrics from p
func NewMetrics(p metrics.Provider) *Metrics {
	return &Metrics{
		Requests:  p.NewCounter(requestsOpts),
		Completed: p.NewCounter(completedOpts),
		Duration:  p.NewHistogram(durationOpts),
	}
}
