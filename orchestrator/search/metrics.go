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

package search

import "github.com/prometheus/client_golang/prometheus"

var (
	promSearches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archcrew_search_requests_total",
			Help: "Web search API requests by status",
		},
		[]string{"status"},
	)
	promCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archcrew_search_cache_lookups_total",
			Help: "Search cache lookups by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(promSearches)
	prometheus.MustRegister(promCacheLookups)
}
