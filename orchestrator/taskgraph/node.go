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
	"strings"
	"sync"
	"text/template"
)

// Template is the stateless definition of a task. Templates are shared
// between requests and are never mutated; Render produces a fresh Node.
type Template struct {
	Name           string
	Role           string
	Description    string
	ExpectedOutput string
	Tools          []string
	Context        []string
}

// Clone returns a deep copy so callers may append to Context freely.
func (t Template) Clone() Template {
	c := t
	c.Tools = append([]string(nil), t.Tools...)
	c.Context = append([]string(nil), t.Context...)
	return c
}

// Render substitutes the requirement values into the description and
// expected output. Unknown placeholders are an error.
func (t Template) Render(values map[string]string) (*Node, error) {
	instruction, err := RenderText(t.Name+".description", t.Description, values)
	if err != nil {
		return nil, &ConfigurationError{Node: t.Name, Reason: err.Error()}
	}
	expected, err := RenderText(t.Name+".expected_output", t.ExpectedOutput, values)
	if err != nil {
		return nil, &ConfigurationError{Node: t.Name, Reason: err.Error()}
	}

	return &Node{
		Name:           t.Name,
		Role:           t.Role,
		Instruction:    instruction,
		ExpectedOutput: expected,
		Tools:          append([]string(nil), t.Tools...),
	}, nil
}

// CheckPlaceholders parses both texts and renders them against values,
// surfacing typos in placeholder names before any request arrives.
func (t Template) CheckPlaceholders(values map[string]string) error {
	_, err := t.Render(values)
	return err
}

// RenderText executes text as a template over values. Referencing a
// value that is not present is an error.
func RenderText(name, text string, values map[string]string) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", name, err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, values); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return b.String(), nil
}

// Node is one rendered unit of work inside a single request's graph.
// Its predecessor list is fixed before execution starts and its output
// is recorded exactly once.
type Node struct {
	Name           string
	Role           string
	Instruction    string
	ExpectedOutput string
	Tools          []string

	predecessors []*Node

	mu       sync.RWMutex
	output   string
	recorded bool
}

// Predecessors returns the nodes whose outputs form this node's context,
// in declaration order.
func (n *Node) Predecessors() []*Node {
	return append([]*Node(nil), n.predecessors...)
}

// PredecessorNames is a convenience for logs and API responses.
func (n *Node) PredecessorNames() []string {
	names := make([]string, len(n.predecessors))
	for i, p := range n.predecessors {
		names[i] = p.Name
	}
	return names
}

// Output returns the recorded output and whether one exists.
func (n *Node) Output() (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.output, n.recorded
}

// Record stores the node's output. A second call fails with
// ErrOutputRecorded and leaves the first value in place.
func (n *Node) Record(output string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.recorded {
		return fmt.Errorf("%w: %s", ErrOutputRecorded, n.Name)
	}
	n.output = output
	n.recorded = true
	return nil
}
