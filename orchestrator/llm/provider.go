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

// Package llm provides the text-generation backends behind crew agents:
// the Anthropic API, AWS Bedrock and a deterministic mock, plus a router
// that fails over between them in priority order.
//
// Providers run their own tool-use loop. A Request carries the tools an
// agent may call; the provider executes them and feeds results back to
// the model until it stops asking, then returns the final text.
package llm

import (
	"context"
	"encoding/json"
	"time"
)

// Provider is a single LLM backend.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Complete runs the request to completion, including any tool calls.
	Complete(ctx context.Context, req Request) (*Response, error)

	// IsHealthy reports whether the last call succeeded.
	IsHealthy() bool
}

// Request is one completion request.
type Request struct {
	System      string
	Prompt      string
	Tools       []Tool
	MaxTokens   int

	// Temperature is sent as given; zero is a valid setting.
	Temperature float64

	// Model overrides the provider default when set.
	Model string
}

// Response is the final answer of a completion.
type Response struct {
	Content      string
	Model        string
	Provider     string
	TokensUsed   int
	ToolCalls    int
	ResponseTime time.Duration
}

// Schema is a JSON-schema object description of a tool's input.
type Schema struct {
	Properties map[string]interface{}
	Required   []string
}

// Tool is a capability a model may invoke during a completion.
type Tool interface {
	Name() string
	Description() string
	InputSchema() Schema
	Call(ctx context.Context, input json.RawMessage) (string, error)
}

const (
	// DefaultMaxTokens is used when a request does not set MaxTokens
	DefaultMaxTokens = 4096

	// DefaultTemperature matches the crew's analytical tone
	DefaultTemperature = 0.7

	// maxToolIterations bounds a single completion's tool loop
	maxToolIterations = 8
)

func (r Request) maxTokens() int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return DefaultMaxTokens
}

func findTool(tools []Tool, name string) Tool {
	for _, t := range tools {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

// callTool runs one tool request and reports whether it failed, in the
// shape both tool-loop implementations feed back to the model.
func callTool(ctx context.Context, tools []Tool, name string, input json.RawMessage) (string, bool) {
	t := findTool(tools, name)
	if t == nil {
		promToolCalls.WithLabelValues(name, "unknown").Inc()
		return "unknown tool: " + name, true
	}
	out, err := t.Call(ctx, input)
	if err != nil {
		promToolCalls.WithLabelValues(name, "error").Inc()
		return "tool error: " + err.Error(), true
	}
	promToolCalls.WithLabelValues(name, "success").Inc()
	return out, false
}
