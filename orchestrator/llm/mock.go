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
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

// MockProvider returns deterministic text without calling any model. It
// lets the service run end to end without credentials and backs tests.
type MockProvider struct {
	name string

	mu      sync.Mutex
	respond func(Request) (string, error)
	calls   []Request
	healthy bool
}

// NewMockProvider creates a mock that answers with a stable digest of the
// prompt.
func NewMockProvider() *MockProvider {
	return &MockProvider{name: "mock", healthy: true}
}

// NewScriptedMockProvider creates a mock whose answers come from fn.
func NewScriptedMockProvider(name string, fn func(Request) (string, error)) *MockProvider {
	return &MockProvider{name: name, respond: fn, healthy: true}
}

// Name implements Provider.
func (m *MockProvider) Name() string { return m.name }

// IsHealthy implements Provider.
func (m *MockProvider) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

// SetHealthy flips the health flag.
func (m *MockProvider) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
}

// Calls returns the requests seen so far.
func (m *MockProvider) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}

// Complete implements Provider.
func (m *MockProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.calls = append(m.calls, req)
	respond := m.respond
	m.mu.Unlock()

	var content string
	if respond != nil {
		out, err := respond(req)
		if err != nil {
			return nil, err
		}
		content = out
	} else {
		content = digestResponse(req)
	}

	return &Response{
		Content:      content,
		Model:        "mock",
		Provider:     m.name,
		TokensUsed:   (len(req.System) + len(req.Prompt) + len(content)) / 4,
		ResponseTime: time.Millisecond,
	}, nil
}

func digestResponse(req Request) string {
	h := fnv.New32a()
	h.Write([]byte(req.System))
	h.Write([]byte(req.Prompt))

	first := strings.TrimSpace(req.Prompt)
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}
	if len(first) > 120 {
		first = first[:120]
	}
	return fmt.Sprintf("Mock response %08x for: %s", h.Sum32(), first)
}
