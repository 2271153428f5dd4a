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

package runner

import "github.com/prometheus/client_golang/prometheus"

var (
	promNodeExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archcrew_node_executions_total",
			Help: "Total number of task node executions",
		},
		[]string{"role", "status"},
	)
	promNodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archcrew_node_duration_milliseconds",
			Help:    "Task node execution duration in milliseconds",
			Buckets: []float64{100, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000, 300000},
		},
		[]string{"role"},
	)
	promDelegations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archcrew_manager_delegations_total",
			Help: "Manager delegation decisions by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(promNodeExecutions)
	prometheus.MustRegister(promNodeDuration)
	prometheus.MustRegister(promDelegations)
}
