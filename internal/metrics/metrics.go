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

// Package metrics records pipeline outcomes for node-exporter style textfile
// collection
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sassoftware/winsign/lib/sigerrors"
	"github.com/sassoftware/winsign/lib/winsign"
)

var (
	MetricRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "winsign_pipeline_runs",
			Help: "Signing pipeline runs by outcome, failing stage and error kind",
		},
		[]string{"outcome", "stage", "kind"},
	)
	MetricStageSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "winsign_pipeline_stage_seconds",
			Help:    "A histogram of latencies for completed pipeline stages",
			Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)
)

// Observe records the outcome of one pipeline run
func Observe(result winsign.Result) {
	for state, dur := range result.Durations {
		MetricStageSeconds.WithLabelValues(stageLabel(state)).Observe(dur.Seconds())
	}
	if result.OK() {
		MetricRuns.WithLabelValues("ok", "", "").Inc()
		return
	}
	MetricRuns.WithLabelValues("failed", stageLabel(result.FailedAt), sigerrors.Kind(result.Err)).Inc()
}

func stageLabel(s winsign.State) string {
	return strings.ToLower(s.String())
}

// WriteTextfile atomically writes every registered metric to path
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
