/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package onboard

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// OnboardAll onboards every request, running at most the configured number
// of requests at once. Results are returned in request order.
func (o *Orchestrator) OnboardAll(ctx context.Context, reqs []Request) []*Result {
	results := make([]*Result, len(reqs))

	p := pool.New().WithMaxGoroutines(o.maxConcurrency)
	for i := range reqs {
		i := i
		p.Go(func() {
			results[i] = o.Onboard(ctx, reqs[i])
		})
	}
	p.Wait()

	logger.Debugf("onboarded %d requests with concurrency %d", len(reqs), o.maxConcurrency)
	return results
}
