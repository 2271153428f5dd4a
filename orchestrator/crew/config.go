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
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/scoring"
	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/search"
)

// CrewConfigFile represents a complete crew definition following the
// Kubernetes-style apiVersion/kind pattern
type CrewConfigFile struct {
	APIVersion string       `yaml:"apiVersion" json:"apiVersion"`
	Kind       string       `yaml:"kind" json:"kind"`
	Metadata   CrewMetadata `yaml:"metadata" json:"metadata"`
	Spec       CrewSpec     `yaml:"spec" json:"spec"`
}

// CrewMetadata identifies the crew
type CrewMetadata struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// CrewSpec defines agents, tasks and the specialist catalog
type CrewSpec struct {
	Strategy      string          `yaml:"strategy" json:"strategy"`                                 // two-phase, single-phase
	Process       string          `yaml:"process" json:"process"`                                   // sequential, hierarchical
	Manager       string          `yaml:"manager,omitempty" json:"manager,omitempty"`               // agent allowed to re-delegate tasks
	ScoringSource string          `yaml:"scoring_source,omitempty" json:"scoring_source,omitempty"` // initial task whose output carries the scores
	ResultTask    string          `yaml:"result_task" json:"result_task"`                           // task whose output is the recommendation
	Team          []string        `yaml:"team,omitempty" json:"team,omitempty"`                     // roles always on the team
	LLM           *LLMSettings    `yaml:"llm,omitempty" json:"llm,omitempty"`
	Phases        PhasesConfig    `yaml:"phases,omitempty" json:"phases,omitempty"`
	Agents        []AgentDef      `yaml:"agents" json:"agents"`
	Tasks         []TaskDef       `yaml:"tasks" json:"tasks"`
	Specialists   []SpecialistDef `yaml:"specialists,omitempty" json:"specialists,omitempty"`
}

// LLMSettings overrides provider defaults for a crew or a single agent
type LLMSettings struct {
	Model       string   `yaml:"model,omitempty" json:"model,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// PhasesConfig lists the tasks run before scoring in a two-phase crew
type PhasesConfig struct {
	Initial []string `yaml:"initial,omitempty" json:"initial,omitempty"`
}

// AgentDef defines one crew member. Goal and backstory may reference
// requirement fields.
type AgentDef struct {
	Name            string       `yaml:"name" json:"name"`
	Role            string       `yaml:"role" json:"role"`
	Goal            string       `yaml:"goal" json:"goal"`
	Backstory       string       `yaml:"backstory" json:"backstory"`
	AllowDelegation bool         `yaml:"allow_delegation" json:"allow_delegation"`
	Tools           []string     `yaml:"tools,omitempty" json:"tools,omitempty"`
	LLM             *LLMSettings `yaml:"llm,omitempty" json:"llm,omitempty"`
}

// TaskDef defines one unit of work
type TaskDef struct {
	Name           string   `yaml:"name" json:"name"`
	Agent          string   `yaml:"agent" json:"agent"`
	Description    string   `yaml:"description" json:"description"`
	ExpectedOutput string   `yaml:"expected_output" json:"expected_output"`
	Context        []string `yaml:"context,omitempty" json:"context,omitempty"`
	Tools          []string `yaml:"tools,omitempty" json:"tools,omitempty"`
}

// SpecialistDef makes a task conditional on an assessment score
type SpecialistDef struct {
	Aspect    string   `yaml:"aspect" json:"aspect"`
	Threshold int      `yaml:"threshold" json:"threshold"`
	Task      string   `yaml:"task" json:"task"`
	Label     string   `yaml:"label" json:"label"`
	Consumers []string `yaml:"consumers" json:"consumers"`
}

// Strategies
const (
	StrategyTwoPhase    = "two-phase"
	StrategySinglePhase = "single-phase"
)

// Processes
const (
	ProcessSequential   = "sequential"
	ProcessHierarchical = "hierarchical"
)

// Configuration constants
const (
	// APIVersionPrefix is required on every crew file
	APIVersionPrefix = "archcrew.io/"

	// Kind is the only accepted kind
	Kind = "Crew"

	// MaxLLMTemperature is the maximum allowed temperature for agent calls
	MaxLLMTemperature = 1.0
)

// ValidStrategies lists the allowed strategies
var ValidStrategies = map[string]bool{
	StrategyTwoPhase:    true,
	StrategySinglePhase: true,
}

// ValidProcesses lists the allowed processes
var ValidProcesses = map[string]bool{
	ProcessSequential:   true,
	ProcessHierarchical: true,
}

// RequirementFields are the values every task and agent text may
// reference as {{.field}}.
var RequirementFields = []string{
	"use_case",
	"performance",
	"availability",
	"security_tier",
	"compliance",
	"cost_profile",
	"implementation_time",
	"required_expertise",
	"scalability",
	"ease_of_implementation",
	"integration_complexity",
}

// knownTools are the names agents and tasks may list.
var knownTools = func() map[string]bool {
	out := map[string]bool{}
	for _, n := range search.Tools(search.Unavailable{}).Names() {
		out[n] = true
	}
	return out
}()

// LoadCrewConfig loads and parses a crew definition file
func LoadCrewConfig(path string) (*CrewConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read crew file %s: %w", path, err)
	}

	return ParseCrewConfig(data)
}

// ParseCrewConfig parses YAML data into a CrewConfigFile
func ParseCrewConfig(data []byte) (*CrewConfigFile, error) {
	var config CrewConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := ValidateCrewConfig(&config); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &config, nil
}

// ValidateCrewConfig validates a crew definition for correctness. It
// covers the file's structure only; graph-level checks (cycles,
// placeholders) happen when the crew is built.
func ValidateCrewConfig(config *CrewConfigFile) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	if !strings.HasPrefix(config.APIVersion, APIVersionPrefix) {
		return fmt.Errorf("invalid apiVersion: must start with '%s', got '%s'", APIVersionPrefix, config.APIVersion)
	}

	if config.Kind != Kind {
		return fmt.Errorf("invalid kind: expected '%s', got '%s'", Kind, config.Kind)
	}

	if err := validateMetadata(&config.Metadata); err != nil {
		return fmt.Errorf("metadata validation failed: %w", err)
	}

	if err := validateSpec(&config.Spec); err != nil {
		return fmt.Errorf("spec validation failed: %w", err)
	}

	return nil
}

func validateMetadata(metadata *CrewMetadata) error {
	if metadata.Name == "" {
		return fmt.Errorf("name is required")
	}

	if !isValidIdentifier(metadata.Name) {
		return fmt.Errorf("name '%s' is invalid: must be lowercase alphanumeric with hyphens", metadata.Name)
	}

	return nil
}

func validateSpec(spec *CrewSpec) error {
	if !ValidStrategies[spec.Strategy] {
		return fmt.Errorf("invalid strategy '%s': must be one of two-phase, single-phase", spec.Strategy)
	}
	if !ValidProcesses[spec.Process] {
		return fmt.Errorf("invalid process '%s': must be one of sequential, hierarchical", spec.Process)
	}
	if spec.LLM != nil {
		if err := validateLLMSettings(spec.LLM); err != nil {
			return fmt.Errorf("llm settings invalid: %w", err)
		}
	}

	if len(spec.Agents) == 0 {
		return fmt.Errorf("at least one agent is required")
	}
	agents := make(map[string]*AgentDef, len(spec.Agents))
	for i := range spec.Agents {
		agent := &spec.Agents[i]
		if err := validateAgent(agent); err != nil {
			return fmt.Errorf("agent %d (%s) invalid: %w", i, agent.Name, err)
		}
		if agents[agent.Name] != nil {
			return fmt.Errorf("duplicate agent name: %s", agent.Name)
		}
		agents[agent.Name] = agent
	}

	if len(spec.Tasks) == 0 {
		return fmt.Errorf("at least one task is required")
	}
	tasks := make(map[string]bool, len(spec.Tasks))
	for i := range spec.Tasks {
		task := &spec.Tasks[i]
		if err := validateTask(task, agents); err != nil {
			return fmt.Errorf("task %d (%s) invalid: %w", i, task.Name, err)
		}
		if tasks[task.Name] {
			return fmt.Errorf("duplicate task name: %s", task.Name)
		}
		tasks[task.Name] = true
	}
	for _, task := range spec.Tasks {
		for _, dep := range task.Context {
			if !tasks[dep] {
				return fmt.Errorf("task %s: context task '%s' not found in tasks list", task.Name, dep)
			}
			if dep == task.Name {
				return fmt.Errorf("task %s: cannot use itself as context", task.Name)
			}
		}
	}

	if spec.Process == ProcessHierarchical {
		manager, ok := agents[spec.Manager]
		if spec.Manager == "" || !ok {
			return fmt.Errorf("hierarchical process requires a manager from the agents list, got '%s'", spec.Manager)
		}
		if !manager.AllowDelegation {
			return fmt.Errorf("manager '%s' must allow delegation", spec.Manager)
		}
	} else if spec.Manager != "" {
		return fmt.Errorf("manager is only valid with the hierarchical process")
	}

	if !tasks[spec.ResultTask] {
		return fmt.Errorf("result_task '%s' not found in tasks list", spec.ResultTask)
	}

	switch spec.Strategy {
	case StrategyTwoPhase:
		return validateTwoPhase(spec, tasks)
	default:
		if len(spec.Phases.Initial) > 0 || len(spec.Specialists) > 0 || spec.ScoringSource != "" {
			return fmt.Errorf("single-phase crews cannot declare phases, specialists or scoring_source")
		}
	}
	return nil
}

func validateTwoPhase(spec *CrewSpec, tasks map[string]bool) error {
	if len(spec.Phases.Initial) == 0 {
		return fmt.Errorf("two-phase crews require phases.initial")
	}
	initial := make(map[string]bool, len(spec.Phases.Initial))
	for _, name := range spec.Phases.Initial {
		if !tasks[name] {
			return fmt.Errorf("initial task '%s' not found in tasks list", name)
		}
		initial[name] = true
	}
	if !initial[spec.ScoringSource] {
		return fmt.Errorf("scoring_source '%s' must be an initial task", spec.ScoringSource)
	}
	if initial[spec.ResultTask] {
		return fmt.Errorf("result_task '%s' cannot be an initial task", spec.ResultTask)
	}
	for _, task := range spec.Tasks {
		if !initial[task.Name] {
			continue
		}
		for _, dep := range task.Context {
			if !initial[dep] {
				return fmt.Errorf("initial task %s cannot depend on later task '%s'", task.Name, dep)
			}
		}
	}

	specialists := make(map[string]bool, len(spec.Specialists))
	for i := range spec.Specialists {
		s := &spec.Specialists[i]
		if err := validateSpecialist(s, tasks, initial); err != nil {
			return fmt.Errorf("specialist %d (%s) invalid: %w", i, s.Task, err)
		}
		if specialists[s.Task] {
			return fmt.Errorf("duplicate specialist task: %s", s.Task)
		}
		specialists[s.Task] = true
	}
	if specialists[spec.ResultTask] {
		return fmt.Errorf("result_task '%s' cannot be conditional", spec.ResultTask)
	}

	// Conditional tasks reach other tasks only through consumers.
	for _, task := range spec.Tasks {
		for _, dep := range task.Context {
			if specialists[dep] {
				return fmt.Errorf("task %s: context cannot name conditional task '%s', list it as a consumer instead", task.Name, dep)
			}
		}
	}
	return nil
}

func validateAgent(agent *AgentDef) error {
	if agent.Name == "" {
		return fmt.Errorf("name is required")
	}

	if !isValidIdentifier(agent.Name) {
		return fmt.Errorf("name '%s' is invalid: must be lowercase alphanumeric with hyphens and underscores", agent.Name)
	}

	if agent.Role == "" {
		return fmt.Errorf("role is required")
	}

	if agent.Goal == "" {
		return fmt.Errorf("goal is required")
	}

	if err := validateTools(agent.Tools); err != nil {
		return err
	}

	if agent.LLM != nil {
		if err := validateLLMSettings(agent.LLM); err != nil {
			return fmt.Errorf("llm settings invalid: %w", err)
		}
	}

	return nil
}

func validateTask(task *TaskDef, agents map[string]*AgentDef) error {
	if task.Name == "" {
		return fmt.Errorf("name is required")
	}

	if !isValidIdentifier(task.Name) {
		return fmt.Errorf("name '%s' is invalid: must be lowercase alphanumeric with hyphens and underscores", task.Name)
	}

	if task.Agent == "" {
		return fmt.Errorf("agent is required")
	}

	if agents[task.Agent] == nil {
		return fmt.Errorf("agent '%s' not found in agents list", task.Agent)
	}

	if strings.TrimSpace(task.Description) == "" {
		return fmt.Errorf("description is required")
	}

	return validateTools(task.Tools)
}

func validateSpecialist(s *SpecialistDef, tasks, initial map[string]bool) error {
	if s.Aspect == "" {
		return fmt.Errorf("aspect is required")
	}

	// Short aliases resolve to the canonical aspect. Any other unknown
	// aspect is allowed and the task is then never included.
	if s.Threshold < scoring.MinScore || s.Threshold > scoring.MaxScore {
		return fmt.Errorf("threshold must be between %d and %d", scoring.MinScore, scoring.MaxScore)
	}

	if !tasks[s.Task] {
		return fmt.Errorf("task '%s' not found in tasks list", s.Task)
	}

	if initial[s.Task] {
		return fmt.Errorf("task '%s' is an initial task", s.Task)
	}

	if s.Label == "" {
		return fmt.Errorf("label is required")
	}

	for _, c := range s.Consumers {
		if !tasks[c] {
			return fmt.Errorf("consumer '%s' not found in tasks list", c)
		}
		if initial[c] {
			return fmt.Errorf("consumer '%s' is an initial task", c)
		}
		if c == s.Task {
			return fmt.Errorf("task cannot consume itself")
		}
	}

	return nil
}

func validateLLMSettings(llm *LLMSettings) error {
	if llm.Temperature != nil && (*llm.Temperature < 0 || *llm.Temperature > MaxLLMTemperature) {
		return fmt.Errorf("temperature must be between 0 and %.1f", MaxLLMTemperature)
	}

	if llm.MaxTokens < 0 {
		return fmt.Errorf("max_tokens cannot be negative")
	}

	return nil
}

func validateTools(names []string) error {
	for _, n := range names {
		if !knownTools[n] {
			return fmt.Errorf("unknown tool '%s'", n)
		}
	}
	return nil
}

// isValidIdentifier checks if a string is a valid identifier
// (lowercase alphanumeric with hyphens and underscores)
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, c := range s {
		if c >= 'a' && c <= 'z' {
			continue
		}
		if c >= '0' && c <= '9' {
			continue
		}
		if c == '-' || c == '_' {
			if i == 0 {
				return false
			}
			continue
		}
		return false
	}

	return true
}
