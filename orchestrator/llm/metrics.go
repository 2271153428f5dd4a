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

package llm

import "github.com/prometheus/client_golang/prometheus"

var (
	promLLMCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archcrew_llm_calls_total",
			Help: "Total number of LLM completions by provider and status",
		},
		[]string{"provider", "status"},
	)
	promLLMTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archcrew_llm_tokens_total",
			Help: "Tokens consumed by provider",
		},
		[]string{"provider"},
	)
	promLLMFailovers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "archcrew_llm_failovers_total",
			Help: "Completions retried on a lower priority provider",
		},
	)
	promToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archcrew_tool_calls_total",
			Help: "Tool invocations requested by models",
		},
		[]string{"tool", "status"},
	)
)

func init() {
	prometheus.MustRegister(promLLMCalls)
	prometheus.MustRegister(promLLMTokens)
	prometheus.MustRegister(promLLMFailovers)
	prometheus.MustRegister(promToolCalls)
}
