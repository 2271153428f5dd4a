// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import "github.com/prometheus/client_golang/prometheus"

var (
	promRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archcrew_requests_total",
			Help: "Total number of kickoff requests processed",
		},
		[]string{"status"},
	)
	promRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archcrew_request_duration_seconds",
			Help:    "End-to-end recommendation duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
		},
		[]string{"strategy"},
	)
	promScoreFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archcrew_score_fallbacks_total",
			Help: "Assessment score extractions that fell back to defaults",
		},
		[]string{"reason"},
	)
	promSpecialistsIncluded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archcrew_specialists_included_total",
			Help: "Specialists staffed into the architecture phase",
		},
		[]string{"specialist"},
	)
	promRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "archcrew_rate_limited_requests_total",
			Help: "Kickoff requests rejected by the rate limiter",
		},
	)
)

func init() {
	prometheus.MustRegister(promRequestsTotal)
	prometheus.MustRegister(promRequestDuration)
	prometheus.MustRegister(promScoreFallbacks)
	prometheus.MustRegister(promSpecialistsIncluded)
	prometheus.MustRegister(promRateLimited)
}
