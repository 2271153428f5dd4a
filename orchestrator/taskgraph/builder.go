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

package taskgraph

import (
	"fmt"

	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/scoring"
)

// Specialist is one entry of the optional catalog: a node that joins the
// graph only when its aspect scores at or above Threshold, and which is
// then appended to the context of every Consumer.
type Specialist struct {
	Aspect    scoring.Aspect
	Threshold int
	Template  Template
	Label     string
	Consumers []string
}

// Included applies the inclusion rule. Unknown aspects and missing or
// negative scores never qualify.
func (s Specialist) Included(scores scoring.Record) bool {
	v, ok := scores.Get(s.Aspect)
	if !ok || v < 0 {
		return false
	}
	return v >= s.Threshold
}

// BuildInput carries everything the builder needs for one request.
type BuildInput struct {
	Scores scoring.Record

	// Baseline templates are always part of the graph.
	Baseline []Template

	// Catalog entries are considered in declaration order; that order is
	// the order of the roster and of every consumer's appended context.
	Catalog []Specialist

	// Values are the rendered requirement fields.
	Values map[string]string

	// Prior holds completed nodes from an earlier phase that templates
	// may name in their Context.
	Prior []*Node
}

// Build assembles the conditional graph. It is a pure function of its
// input: templates are cloned, never mutated.
func Build(in BuildInput) (*Graph, []string, error) {
	templates := make([]Template, 0, len(in.Baseline)+len(in.Catalog))
	position := make(map[string]int, len(in.Baseline)+len(in.Catalog))
	declared := make(map[string]bool, len(in.Catalog))

	for _, t := range in.Baseline {
		if _, dup := position[t.Name]; dup {
			return nil, nil, &ConfigurationError{Node: t.Name, Reason: "duplicate baseline node"}
		}
		position[t.Name] = len(templates)
		templates = append(templates, t.Clone())
	}
	for _, s := range in.Catalog {
		if _, dup := position[s.Template.Name]; dup || declared[s.Template.Name] {
			return nil, nil, &ConfigurationError{Node: s.Template.Name, Reason: "specialist collides with another node"}
		}
		declared[s.Template.Name] = true
	}

	var roster []string
	var included []Specialist
	for _, s := range in.Catalog {
		if !s.Included(in.Scores) {
			continue
		}
		position[s.Template.Name] = len(templates)
		templates = append(templates, s.Template.Clone())
		roster = append(roster, s.Label)
		included = append(included, s)
	}

	for _, s := range included {
		for _, consumer := range s.Consumers {
			i, ok := position[consumer]
			if !ok {
				if declared[consumer] {
					// consumer is an excluded specialist
					continue
				}
				return nil, nil, &ConfigurationError{
					Node:   s.Template.Name,
					Reason: fmt.Sprintf("consumer %q does not exist", consumer),
				}
			}
			if !contains(templates[i].Context, s.Template.Name) {
				templates[i].Context = append(templates[i].Context, s.Template.Name)
			}
		}
	}

	g, err := Assemble(templates, in.Values, in.Prior)
	if err != nil {
		return nil, nil, err
	}
	return g, roster, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
