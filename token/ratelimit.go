/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package token

import (
	"context"
	"crypto"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var metricRateLimited = promauto.NewCounter(prometheus.CounterOpts{
	Name: "winsign_signer_ratelimit_seconds",
	Help: "Cumulative number of seconds waiting for signer rate limits",
})

type limitedSigner struct {
	signer Signer
	limit  *rate.Limiter
}

// WithRateLimit wraps a signer so that calls are admitted at no more than
// limit per second, with the given burst. Waiting respects ctx.
func WithRateLimit(s Signer, limit float64, burst int) Signer {
	if burst < 1 {
		burst = 1
	}
	return &limitedSigner{
		signer: s,
		limit:  rate.NewLimiter(rate.Limit(limit), burst),
	}
}

func (k *limitedSigner) SignDigest(ctx context.Context, digest []byte, hash crypto.Hash) ([]byte, error) {
	start := time.Now()
	if err := k.limit.Wait(ctx); err != nil {
		return nil, err
	}
	if waited := time.Since(start); waited > 1*time.Millisecond {
		metricRateLimited.Add(waited.Seconds())
	}
	return k.signer.SignDigest(ctx, digest, hash)
}

func (k *limitedSigner) Close() error {
	return Close(k.signer)
}
