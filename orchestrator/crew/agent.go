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

package crew

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/llm"
	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/runner"
	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/search"
	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/taskgraph"
	"github.com/LBohry/AWS-SA-CHATBOT-PCD/shared/logger"
)

// ErrEmptyOutput is returned when a model answers with no text
var ErrEmptyOutput = errors.New("agent returned empty output")

// BindOptions are the per-request inputs of Bind.
type BindOptions struct {
	Provider llm.Provider
	Toolbox  search.Toolbox

	// Values are the rendered requirement fields.
	Values map[string]string

	// MaxTokens applies when neither the agent nor the crew sets one.
	MaxTokens int

	RequestID string
	Logger    *logger.Logger
}

// Bind creates one executor per agent for a single request. Agent goals
// and backstories are rendered with the request's values.
func (c *Crew) Bind(opts BindOptions) (runner.Roles, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("bind crew %s: provider is required", c.Name())
	}
	log := opts.Logger
	if log == nil {
		log = logger.New("crew")
	}

	roles := make(runner.Roles, len(c.config.Spec.Agents))
	for _, def := range c.config.Spec.Agents {
		system, err := systemPrompt(def, opts.Values)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", def.Name, err)
		}
		tools, err := opts.Toolbox.Lookup(def.Tools)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", def.Name, err)
		}

		a := &Agent{
			Name:        def.Name,
			Role:        def.Role,
			System:      system,
			Tools:       tools,
			MaxTokens:   opts.MaxTokens,
			Temperature: llm.DefaultTemperature,
			provider:    opts.Provider,
			toolbox:     opts.Toolbox,
			requestID:   opts.RequestID,
			log:         log,
		}
		a.apply(c.config.Spec.LLM)
		a.apply(def.LLM)
		roles[def.Name] = a
	}
	return roles, nil
}

// Agent is an executor backed by an LLM provider. It answers every
// invocation as the same persona with its own tools plus any the task
// adds.
type Agent struct {
	Name   string
	Role   string
	System string
	Tools  []llm.Tool

	Model       string
	MaxTokens   int
	Temperature float64

	provider  llm.Provider
	toolbox   search.Toolbox
	requestID string
	log       *logger.Logger
}

func (a *Agent) apply(s *LLMSettings) {
	if s == nil {
		return
	}
	if s.Model != "" {
		a.Model = s.Model
	}
	if s.MaxTokens > 0 {
		a.MaxTokens = s.MaxTokens
	}
	if s.Temperature != nil {
		a.Temperature = *s.Temperature
	}
}

// Execute implements runner.Executor.
func (a *Agent) Execute(ctx context.Context, inv runner.Invocation) (string, error) {
	tools, err := a.toolsFor(inv.Tools)
	if err != nil {
		return "", err
	}

	resp, err := a.provider.Complete(ctx, llm.Request{
		System:      a.System,
		Prompt:      inv.Prompt,
		Tools:       tools,
		MaxTokens:   a.MaxTokens,
		Temperature: a.Temperature,
		Model:       a.Model,
	})
	if err != nil {
		return "", err
	}

	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyOutput, a.Name)
	}

	a.log.Debug(a.requestID, "Agent completed task", logger.Fields{
		"agent":      a.Name,
		"node":       inv.Node,
		"provider":   resp.Provider,
		"model":      resp.Model,
		"tokens":     resp.TokensUsed,
		"tool_calls": resp.ToolCalls,
	})
	return out, nil
}

// toolsFor merges the agent's tools with the task's, keeping the
// agent's first and dropping duplicates.
func (a *Agent) toolsFor(names []string) ([]llm.Tool, error) {
	if len(names) == 0 {
		return a.Tools, nil
	}
	extra, err := a.toolbox.Lookup(names)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(a.Tools)+len(extra))
	out := make([]llm.Tool, 0, len(a.Tools)+len(extra))
	for _, t := range append(append([]llm.Tool(nil), a.Tools...), extra...) {
		if seen[t.Name()] {
			continue
		}
		seen[t.Name()] = true
		out = append(out, t)
	}
	return out, nil
}

// systemPrompt renders the persona an agent speaks as.
func systemPrompt(def AgentDef, values map[string]string) (string, error) {
	goal, err := taskgraph.RenderText(def.Name+".goal", def.Goal, values)
	if err != nil {
		return "", err
	}
	backstory, err := taskgraph.RenderText(def.Name+".backstory", def.Backstory, values)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.\n", def.Role)
	if backstory != "" {
		b.WriteString(backstory)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nYour personal goal is: %s", goal)
	return b.String(), nil
}
