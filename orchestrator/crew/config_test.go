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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/taskgraph"
)

const miniCrew = `
apiVersion: archcrew.io/v1
kind: Crew
metadata:
  name: mini-crew
spec:
  strategy: two-phase
  process: hierarchical
  manager: lead
  scoring_source: assess
  result_task: report
  team: [Lead]
  phases:
    initial: [assess]
  agents:
    - name: lead
      role: Lead
      goal: Deliver {{.use_case}}
      allow_delegation: true
    - name: analyst
      role: Analyst
      goal: Assess
      tools: [internet_search]
  tasks:
    - name: assess
      agent: analyst
      description: Assess {{.use_case}}
    - name: design
      agent: lead
      context: [assess]
      description: Design
    - name: security
      agent: analyst
      context: [assess]
      description: Secure
    - name: report
      agent: lead
      context: [design]
      description: Report
  specialists:
    - aspect: security_requirements
      threshold: 3
      task: security
      label: Security
      consumers: [report]
`

func miniConfig(t *testing.T) *CrewConfigFile {
	t.Helper()
	var cfg CrewConfigFile
	require.NoError(t, yaml.Unmarshal([]byte(miniCrew), &cfg))
	return &cfg
}

func TestParseCrewConfig_Valid(t *testing.T) {
	cfg, err := ParseCrewConfig([]byte(miniCrew))
	require.NoError(t, err)

	assert.Equal(t, "mini-crew", cfg.Metadata.Name)
	assert.Equal(t, StrategyTwoPhase, cfg.Spec.Strategy)
	assert.Len(t, cfg.Spec.Agents, 2)
	assert.Len(t, cfg.Spec.Tasks, 4)
	assert.Equal(t, []string{"assess"}, cfg.Spec.Phases.Initial)
}

func TestParseCrewConfig_BadYAML(t *testing.T) {
	_, err := ParseCrewConfig([]byte("spec: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestValidateCrewConfig_Nil(t *testing.T) {
	assert.Error(t, ValidateCrewConfig(nil))
}

func TestValidateCrewConfig_Errors(t *testing.T) {
	temp := 1.5
	tests := []struct {
		name   string
		mutate func(c *CrewConfigFile)
		want   string
	}{
		{"api version", func(c *CrewConfigFile) { c.APIVersion = "v1" }, "invalid apiVersion"},
		{"kind", func(c *CrewConfigFile) { c.Kind = "AgentConfig" }, "invalid kind"},
		{"metadata name", func(c *CrewConfigFile) { c.Metadata.Name = "Mini Crew" }, "is invalid"},
		{"missing metadata name", func(c *CrewConfigFile) { c.Metadata.Name = "" }, "name is required"},
		{"strategy", func(c *CrewConfigFile) { c.Spec.Strategy = "three-phase" }, "invalid strategy"},
		{"process", func(c *CrewConfigFile) { c.Spec.Process = "parallel" }, "invalid process"},
		{"no agents", func(c *CrewConfigFile) { c.Spec.Agents = nil }, "at least one agent"},
		{"agent without role", func(c *CrewConfigFile) { c.Spec.Agents[1].Role = "" }, "role is required"},
		{"agent without goal", func(c *CrewConfigFile) { c.Spec.Agents[1].Goal = "" }, "goal is required"},
		{"duplicate agent", func(c *CrewConfigFile) { c.Spec.Agents[1].Name = "lead" }, "duplicate agent name"},
		{"unknown agent tool", func(c *CrewConfigFile) { c.Spec.Agents[1].Tools = []string{"crystal_ball"} }, "unknown tool"},
		{"agent temperature", func(c *CrewConfigFile) { c.Spec.Agents[0].LLM = &LLMSettings{Temperature: &temp} }, "temperature"},
		{"crew max tokens", func(c *CrewConfigFile) { c.Spec.LLM = &LLMSettings{MaxTokens: -1} }, "max_tokens"},
		{"no tasks", func(c *CrewConfigFile) { c.Spec.Tasks = nil }, "at least one task"},
		{"task agent", func(c *CrewConfigFile) { c.Spec.Tasks[1].Agent = "ghost" }, "not found in agents list"},
		{"task description", func(c *CrewConfigFile) { c.Spec.Tasks[1].Description = "  " }, "description is required"},
		{"duplicate task", func(c *CrewConfigFile) { c.Spec.Tasks[2].Name = "design" }, "duplicate task name"},
		{"unknown context", func(c *CrewConfigFile) { c.Spec.Tasks[3].Context = []string{"ghost"} }, "context task 'ghost'"},
		{"self context", func(c *CrewConfigFile) { c.Spec.Tasks[3].Context = []string{"report"} }, "itself"},
		{"missing manager", func(c *CrewConfigFile) { c.Spec.Manager = "" }, "requires a manager"},
		{"manager cannot delegate", func(c *CrewConfigFile) { c.Spec.Agents[0].AllowDelegation = false }, "must allow delegation"},
		{"manager without hierarchy", func(c *CrewConfigFile) { c.Spec.Process = ProcessSequential }, "only valid with the hierarchical"},
		{"result task", func(c *CrewConfigFile) { c.Spec.ResultTask = "ghost" }, "result_task"},
		{"no initial phase", func(c *CrewConfigFile) { c.Spec.Phases.Initial = nil }, "phases.initial"},
		{"scoring source", func(c *CrewConfigFile) { c.Spec.ScoringSource = "design" }, "scoring_source"},
		{"initial depends on later", func(c *CrewConfigFile) { c.Spec.Tasks[0].Context = []string{"design"} }, "cannot depend on later"},
		{"result task initial", func(c *CrewConfigFile) { c.Spec.ResultTask = "assess" }, "cannot be an initial task"},
		{"threshold", func(c *CrewConfigFile) { c.Spec.Specialists[0].Threshold = 0 }, "threshold"},
		{"specialist label", func(c *CrewConfigFile) { c.Spec.Specialists[0].Label = "" }, "label is required"},
		{"specialist initial", func(c *CrewConfigFile) { c.Spec.Specialists[0].Task = "assess" }, "is an initial task"},
		{"consumer unknown", func(c *CrewConfigFile) { c.Spec.Specialists[0].Consumers = []string{"ghost"} }, "consumer 'ghost'"},
		{"consumer initial", func(c *CrewConfigFile) { c.Spec.Specialists[0].Consumers = []string{"assess"} }, "is an initial task"},
		{"context names specialist", func(c *CrewConfigFile) { c.Spec.Tasks[3].Context = []string{"security"} }, "conditional task"},
		{"single phase with catalog", func(c *CrewConfigFile) { c.Spec.Strategy = StrategySinglePhase }, "single-phase crews"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := miniConfig(t)
			tt.mutate(cfg)
			err := ValidateCrewConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateCrewConfig_UnknownAspectAllowed(t *testing.T) {
	cfg := miniConfig(t)
	cfg.Spec.Specialists[0].Aspect = "quantum_readiness"
	assert.NoError(t, ValidateCrewConfig(cfg))
}

func TestIsValidIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"expert-crew", true},
		{"final_synthesis", true},
		{"task2", true},
		{"", false},
		{"_hidden", false},
		{"-dash", false},
		{"Upper", false},
		{"with space", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isValidIdentifier(tt.in), tt.in)
	}
}

func TestNew_PlaceholderTypo(t *testing.T) {
	cfg := miniConfig(t)
	cfg.Spec.Tasks[1].Description = "Design for {{.use_cas}}"

	_, err := New(cfg)
	require.Error(t, err)
	assert.True(t, taskgraph.IsConfigurationError(err))
}

func TestNew_AgentPlaceholderTypo(t *testing.T) {
	cfg := miniConfig(t)
	cfg.Spec.Agents[0].Backstory = "Veteran of {{.usecase}} projects"

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent lead")
}

func TestNew_Cycle(t *testing.T) {
	cfg := miniConfig(t)
	cfg.Spec.Tasks[1].Context = []string{"assess", "report"}

	_, err := New(cfg)
	require.Error(t, err)
	assert.True(t, taskgraph.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "dependency cycle")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crew.yaml")
	require.NoError(t, os.WriteFile(path, []byte(miniCrew), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mini-crew", c.Name())
	assert.Equal(t, "lead", c.Manager())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read crew file")
}
