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
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sassoftware/winsign/internal/httperror"
)

var (
	buckets = []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}

	MetricOperations = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "winsign_signer_operation_seconds",
			Help:    "A histogram of latencies for signer operations",
			Buckets: buckets,
		},
		[]string{"token"},
	)
	MetricResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "winsign_signer_responses",
			Help: "Result codes from signer operations",
		},
		[]string{"token", "code"},
	)
)

type metricsSigner struct {
	signer Signer
	name   string
}

// WithMetrics wraps a signer and records the latency and outcome of each call
// under the given token name
func WithMetrics(s Signer, name string) Signer {
	return &metricsSigner{signer: s, name: name}
}

func (m *metricsSigner) SignDigest(ctx context.Context, digest []byte, hash crypto.Hash) (sig []byte, err error) {
	defer func(start time.Time) {
		observe(m.name, start, err)
	}(time.Now())
	return m.signer.SignDigest(ctx, digest, hash)
}

func (m *metricsSigner) Close() error {
	return Close(m.signer)
}

func observe(name string, start time.Time, err error) {
	dur := time.Since(start).Seconds()
	var code int
	switch {
	case err == nil:
		code = http.StatusOK
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		code = 499
	case httperror.Temporary(err):
		code = http.StatusServiceUnavailable
	default:
		code = http.StatusInternalServerError
	}
	MetricOperations.WithLabelValues(name).Observe(dur)
	MetricResponses.WithLabelValues(name, strconv.Itoa(code)).Inc()
}
