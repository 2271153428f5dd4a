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

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// Router sends each completion to the first provider that answers,
// trying healthy providers before unhealthy ones and otherwise keeping
// the configured priority order.
type Router struct {
	providers []Provider
}

// NewRouter creates a router over providers in priority order.
func NewRouter(providers ...Provider) *Router {
	return &Router{providers: append([]Provider(nil), providers...)}
}

// Name implements Provider.
func (r *Router) Name() string { return "router" }

// Providers lists provider names in priority order.
func (r *Router) Providers() []string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}

// IsHealthy reports whether any provider is healthy.
func (r *Router) IsHealthy() bool {
	for _, p := range r.providers {
		if p.IsHealthy() {
			return true
		}
	}
	return false
}

// Complete implements Provider with failover.
func (r *Router) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(r.providers) == 0 {
		return nil, ErrNoProviders
	}

	var lastErr error
	for i, p := range r.ordered() {
		if i > 0 {
			promLLMFailovers.Inc()
			log.Printf("[LLMRouter] Failing over to %s after: %v", p.Name(), lastErr)
		}
		resp, err := p.Complete(ctx, req)
		if err == nil {
			promLLMCalls.WithLabelValues(p.Name(), "success").Inc()
			promLLMTokens.WithLabelValues(p.Name()).Add(float64(resp.TokensUsed))
			return resp, nil
		}
		promLLMCalls.WithLabelValues(p.Name(), "error").Inc()
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		var pe *ProviderError
		if errors.As(err, &pe) && pe.Code == ErrCodeInvalidRequest {
			// another provider would reject the same prompt
			break
		}
	}
	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}

func (r *Router) ordered() []Provider {
	healthy := make([]Provider, 0, len(r.providers))
	var unhealthy []Provider
	for _, p := range r.providers {
		if p.IsHealthy() {
			healthy = append(healthy, p)
		} else {
			unhealthy = append(unhealthy, p)
		}
	}
	return append(healthy, unhealthy...)
}
