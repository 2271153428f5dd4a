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

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/llm"
)

// Tool names agents may reference in crew definitions.
const (
	ToolInternetSearch        = "internet_search"
	ToolArchitecturePatterns  = "architecture_pattern_analyzer"
	ToolAWSServiceRecommender = "aws_service_recommendation"
	ToolRequirementsAnalyzer  = "requirements_analyzer"
	ToolTeamComposition       = "team_composition_analyzer"
)

// QueryTool exposes a Searcher to models. The model supplies a query;
// Template, when set, wraps it into a more specific search.
type QueryTool struct {
	name        string
	description string
	template    string
	searcher    Searcher
}

// NewQueryTool creates a tool. template must contain exactly one %s or
// be empty.
func NewQueryTool(name, description, template string, s Searcher) *QueryTool {
	return &QueryTool{name: name, description: description, template: template, searcher: s}
}

// Name implements llm.Tool.
func (t *QueryTool) Name() string { return t.name }

// Description implements llm.Tool.
func (t *QueryTool) Description() string { return t.description }

// InputSchema implements llm.Tool.
func (t *QueryTool) InputSchema() llm.Schema {
	return llm.Schema{
		Properties: map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "What to search for",
			},
		},
		Required: []string{"query"},
	}
}

// Call implements llm.Tool.
func (t *QueryTool) Call(ctx context.Context, input json.RawMessage) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("invalid tool input: %w", err)
	}
	q := strings.TrimSpace(args.Query)
	if q == "" {
		return "", ErrEmptyQuery
	}
	return t.searcher.Search(ctx, t.Query(q))
}

// Query renders the search that will be sent for q.
func (t *QueryTool) Query(q string) string {
	if t.template == "" {
		return q
	}
	return fmt.Sprintf(t.template, q)
}

// Toolbox resolves tool names for crew agents.
type Toolbox map[string]llm.Tool

// Lookup returns the tools for names, failing on the first unknown one.
func (b Toolbox) Lookup(names []string) ([]llm.Tool, error) {
	out := make([]llm.Tool, 0, len(names))
	for _, n := range names {
		t, ok := b[n]
		if !ok {
			return nil, fmt.Errorf("unknown tool %q", n)
		}
		out = append(out, t)
	}
	return out, nil
}

// Names lists the toolbox in sorted order.
func (b Toolbox) Names() []string {
	names := make([]string, 0, len(b))
	for n := range b {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Tools builds the standard toolbox over s.
func Tools(s Searcher) Toolbox {
	tools := []*QueryTool{
		NewQueryTool(ToolInternetSearch,
			"Search the internet for current information. Input is a search query.",
			"", s),
		NewQueryTool(ToolArchitecturePatterns,
			"Analyzes software architecture patterns for a specific use case.",
			"software architecture patterns for %s pros and cons analysis", s),
		NewQueryTool(ToolAWSServiceRecommender,
			"Recommends AWS services based on specific requirements.",
			"best AWS services for %s detailed comparison", s),
		NewQueryTool(ToolRequirementsAnalyzer,
			"Analyzes requirements for a use case and which specialists it needs.",
			"detailed technical requirements analysis for %s AWS implementation", s),
		NewQueryTool(ToolTeamComposition,
			"Determines the optimal team composition for a requirements analysis.",
			"optimal technical team composition for %s", s),
	}
	box := make(Toolbox, len(tools))
	for _, t := range tools {
		box[t.Name()] = t
	}
	return box
}

// Unavailable is a Searcher used when no search backend is configured.
// It answers every query with a notice instead of failing the agent.
type Unavailable struct{}

// Search implements Searcher.
func (Unavailable) Search(_ context.Context, query string) (string, error) {
	return fmt.Sprintf("Web search is not configured; answer %q from your own knowledge.", query), nil
}
