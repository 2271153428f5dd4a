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

// Package crew turns a declarative crew definition (agents, tasks and the
// optional specialist catalog) into task templates and per-request
// executors.
//
// Two crews are embedded: the two-phase expert crew, which stages
// specialists from the requirements analyst's assessment scores, and the
// single-phase research crew with six fixed tasks. Either can be
// replaced by a YAML file of the same shape.
package crew

import (
	"embed"
	"fmt"

	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/scoring"
	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/taskgraph"
)

//go:embed crews/*.yaml
var builtin embed.FS

var builtinFiles = map[string]string{
	StrategyTwoPhase:    "crews/two_phase.yaml",
	StrategySinglePhase: "crews/single_phase.yaml",
}

// Crew is a validated crew definition. It is shared between requests
// and never mutated; every accessor returns copies.
type Crew struct {
	config *CrewConfigFile
	agents map[string]AgentDef

	initial  []taskgraph.Template
	baseline []taskgraph.Template
	catalog  []taskgraph.Specialist
	all      []taskgraph.Template
}

// Default returns the embedded crew for strategy.
func Default(strategy string) (*Crew, error) {
	file, ok := builtinFiles[strategy]
	if !ok {
		return nil, fmt.Errorf("no built-in crew for strategy '%s'", strategy)
	}
	data, err := builtin.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read built-in crew %s: %w", file, err)
	}
	config, err := ParseCrewConfig(data)
	if err != nil {
		return nil, fmt.Errorf("built-in crew %s: %w", file, err)
	}
	return New(config)
}

// Load reads, validates and builds the crew in path.
func Load(path string) (*Crew, error) {
	config, err := LoadCrewConfig(path)
	if err != nil {
		return nil, err
	}
	return New(config)
}

// New builds a crew from a parsed definition. Besides the structural
// validation it renders every text against sample requirements and
// assembles the largest possible graph, so placeholder typos and
// dependency cycles surface before any request runs.
func New(config *CrewConfigFile) (*Crew, error) {
	if err := ValidateCrewConfig(config); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	c := &Crew{
		config: config,
		agents: make(map[string]AgentDef, len(config.Spec.Agents)),
	}
	for _, a := range config.Spec.Agents {
		c.agents[a.Name] = a
	}

	initial := make(map[string]bool, len(config.Spec.Phases.Initial))
	for _, name := range config.Spec.Phases.Initial {
		initial[name] = true
	}
	conditional := make(map[string]SpecialistDef, len(config.Spec.Specialists))
	for _, s := range config.Spec.Specialists {
		conditional[s.Task] = s
	}

	byName := make(map[string]taskgraph.Template, len(config.Spec.Tasks))
	for _, t := range config.Spec.Tasks {
		tmpl := taskgraph.Template{
			Name:           t.Name,
			Role:           t.Agent,
			Description:    t.Description,
			ExpectedOutput: t.ExpectedOutput,
			Tools:          append([]string(nil), t.Tools...),
			Context:        append([]string(nil), t.Context...),
		}
		byName[t.Name] = tmpl
		c.all = append(c.all, tmpl)

		if _, isSpecialist := conditional[t.Name]; !isSpecialist && !initial[t.Name] {
			c.baseline = append(c.baseline, tmpl)
		}
	}
	for _, name := range config.Spec.Phases.Initial {
		c.initial = append(c.initial, byName[name])
	}
	for _, s := range config.Spec.Specialists {
		// unknown names are kept as is and never qualify
		aspect, ok := scoring.ParseAspect(s.Aspect)
		if !ok {
			aspect = scoring.Aspect(s.Aspect)
		}
		c.catalog = append(c.catalog, taskgraph.Specialist{
			Aspect:    aspect,
			Threshold: s.Threshold,
			Template:  byName[s.Task],
			Label:     s.Label,
			Consumers: append([]string(nil), s.Consumers...),
		})
	}

	if err := c.check(); err != nil {
		return nil, err
	}
	return c, nil
}

// SampleValues fills every requirement field with a placeholder value.
func SampleValues() map[string]string {
	values := make(map[string]string, len(RequirementFields))
	for _, f := range RequirementFields {
		values[f] = "sample " + f
	}
	return values
}

func (c *Crew) check() error {
	values := SampleValues()
	for _, a := range c.config.Spec.Agents {
		if _, err := systemPrompt(a, values); err != nil {
			return fmt.Errorf("agent %s: %w", a.Name, err)
		}
	}

	if c.Strategy() == StrategySinglePhase {
		_, err := taskgraph.Assemble(c.Templates(), values, nil)
		return err
	}

	first, err := taskgraph.Assemble(c.InitialTemplates(), values, nil)
	if err != nil {
		return fmt.Errorf("initial phase: %w", err)
	}
	for _, n := range first.Nodes() {
		if err := n.Record("sample output"); err != nil {
			return err
		}
	}

	all := make(map[scoring.Aspect]int, len(c.catalog))
	for _, s := range c.catalog {
		all[s.Aspect] = scoring.MaxScore
	}
	if _, _, err := taskgraph.Build(taskgraph.BuildInput{
		Scores:   scoring.New(all),
		Baseline: c.Baseline(),
		Catalog:  c.Catalog(),
		Values:   values,
		Prior:    first.Nodes(),
	}); err != nil {
		return fmt.Errorf("architecture phase: %w", err)
	}
	return nil
}

// Config returns the definition the crew was built from.
func (c *Crew) Config() *CrewConfigFile { return c.config }

// Name is the crew's metadata name.
func (c *Crew) Name() string { return c.config.Metadata.Name }

// Strategy is two-phase or single-phase.
func (c *Crew) Strategy() string { return c.config.Spec.Strategy }

// Manager is the delegating agent of a hierarchical crew, or "".
func (c *Crew) Manager() string { return c.config.Spec.Manager }

// ScoringSource names the initial task whose output carries the scores.
func (c *Crew) ScoringSource() string { return c.config.Spec.ScoringSource }

// ResultTask names the task whose output is the recommendation.
func (c *Crew) ResultTask() string { return c.config.Spec.ResultTask }

// Agent looks up an agent definition.
func (c *Crew) Agent(name string) (AgentDef, bool) {
	a, ok := c.agents[name]
	return a, ok
}

// InitialTemplates are the tasks run before scoring, in phase order.
func (c *Crew) InitialTemplates() []taskgraph.Template { return cloneAll(c.initial) }

// Baseline are the always-included tasks of the main phase.
func (c *Crew) Baseline() []taskgraph.Template { return cloneAll(c.baseline) }

// Templates are all tasks in declaration order.
func (c *Crew) Templates() []taskgraph.Template { return cloneAll(c.all) }

// Catalog is the specialist catalog in declaration order.
func (c *Crew) Catalog() []taskgraph.Specialist {
	out := make([]taskgraph.Specialist, len(c.catalog))
	for i, s := range c.catalog {
		s.Template = s.Template.Clone()
		s.Consumers = append([]string(nil), s.Consumers...)
		out[i] = s
	}
	return out
}

// TeamComposition lists the fixed team followed by the staffed
// specialists.
func (c *Crew) TeamComposition(roster []string) []string {
	out := make([]string, 0, len(c.config.Spec.Team)+len(roster))
	out = append(out, c.config.Spec.Team...)
	return append(out, roster...)
}

func cloneAll(in []taskgraph.Template) []taskgraph.Template {
	out := make([]taskgraph.Template, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}
