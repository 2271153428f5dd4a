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

package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/taskgraph"
	"github.com/LBohry/AWS-SA-CHATBOT-PCD/shared/logger"
)

func quietLogger() *logger.Logger {
	l := logger.New("runner-test")
	l.SetOutput(io.Discard)
	return l
}

// recorder is a deterministic executor that echoes the node it ran.
type recorder struct {
	mu    sync.Mutex
	calls []Invocation
	fail  map[string]error
}

func (r *recorder) Execute(_ context.Context, inv Invocation) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, inv)
	if err := r.fail[inv.Node]; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s by %s", inv.Node, inv.Role), nil
}

func (r *recorder) nodes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.calls {
		out = append(out, c.Node)
	}
	return out
}

func chain(t *testing.T, names ...string) *taskgraph.Graph {
	t.Helper()
	templates := make([]taskgraph.Template, len(names))
	for i, name := range names {
		templates[i] = taskgraph.Template{Name: name, Role: "worker", Description: "Do " + name, ExpectedOutput: name + " report"}
		if i > 0 {
			templates[i].Context = []string{names[i-1]}
		}
	}
	g, err := taskgraph.Assemble(templates, nil, nil)
	require.NoError(t, err)
	return g
}

func fanIn(t *testing.T) *taskgraph.Graph {
	t.Helper()
	g, err := taskgraph.Assemble([]taskgraph.Template{
		{Name: "aws_service_selection", Role: "aws_expert", Description: "Select"},
		{Name: "security_architecture", Role: "security_architect", Description: "Secure", Context: []string{"aws_service_selection"}},
		{Name: "cost_optimization", Role: "cost_specialist", Description: "Cost", Context: []string{"aws_service_selection"}},
		{Name: "final_synthesis", Role: "solution_architect", Description: "Synthesize",
			Context: []string{"aws_service_selection", "security_architecture", "cost_optimization"}},
	}, nil, nil)
	require.NoError(t, err)
	return g
}

func fanInRoles(e Executor) Roles {
	return Roles{
		"aws_expert":         e,
		"security_architect": e,
		"cost_specialist":    e,
		"solution_architect": e,
		"project_manager":    e,
	}
}

func TestRun_Sequential(t *testing.T) {
	rec := &recorder{}
	r := New(Roles{"worker": rec}, Config{Logger: quietLogger()})

	outputs, err := r.Run(context.Background(), chain(t, "a", "b", "c"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, rec.nodes())
	assert.Equal(t, map[string]string{
		"a": "a by worker",
		"b": "b by worker",
		"c": "c by worker",
	}, outputs)

	prompt := rec.calls[2].Prompt
	assert.True(t, strings.HasPrefix(prompt, "Do c\n"))
	assert.Contains(t, prompt, "Expected output:\nc report")
	assert.Contains(t, prompt, "===== PREVIOUS STEP RESULTS =====")
	assert.Contains(t, prompt, "## Step: b\nb by worker")
	assert.NotContains(t, prompt, "## Step: a")

	assert.NotContains(t, rec.calls[0].Prompt, "PREVIOUS STEP RESULTS")
}

func TestRun_PromptFollowsPredecessorOrder(t *testing.T) {
	rec := &recorder{}
	r := New(fanInRoles(rec), Config{Logger: quietLogger()})

	_, err := r.Run(context.Background(), fanIn(t))
	require.NoError(t, err)

	last := rec.calls[len(rec.calls)-1]
	require.Equal(t, "final_synthesis", last.Node)
	aws := strings.Index(last.Prompt, "## Step: aws_service_selection")
	sec := strings.Index(last.Prompt, "## Step: security_architecture")
	cost := strings.Index(last.Prompt, "## Step: cost_optimization")
	assert.True(t, aws >= 0 && aws < sec && sec < cost, "prompt sections out of order:\n%s", last.Prompt)
}

func TestRun_Deterministic(t *testing.T) {
	run := func() map[string]string {
		r := New(fanInRoles(&recorder{}), Config{Logger: quietLogger()})
		out, err := r.Run(context.Background(), fanIn(t))
		require.NoError(t, err)
		return out
	}
	assert.Equal(t, run(), run())
}

func TestRun_FailureMidGraph(t *testing.T) {
	boom := errors.New("provider unavailable")
	rec := &recorder{fail: map[string]error{"n3": boom}}
	g := chain(t, "n1", "n2", "n3", "n4", "n5")
	r := New(Roles{"worker": rec}, Config{Logger: quietLogger()})

	outputs, err := r.Run(context.Background(), g)
	require.Error(t, err)
	assert.Nil(t, outputs)

	var nodeErr *NodeExecutionError
	require.True(t, errors.As(err, &nodeErr))
	assert.Equal(t, "n3", nodeErr.Node)
	assert.Equal(t, "worker", nodeErr.Role)
	assert.True(t, errors.Is(err, boom))

	assert.Equal(t, []string{"n1", "n2", "n3"}, rec.nodes())
	for _, name := range []string{"n3", "n4", "n5"} {
		n, _ := g.Node(name)
		_, recorded := n.Output()
		assert.False(t, recorded, "%s must not be recorded", name)
	}
}

func TestRun_GraphRunsOnce(t *testing.T) {
	g := chain(t, "a")
	r := New(Roles{"worker": &recorder{}}, Config{Logger: quietLogger()})

	_, err := r.Run(context.Background(), g)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), g)
	assert.ErrorIs(t, err, ErrGraphAlreadyRun)
}

func TestRun_UnresolvedRoleRejectedBeforeExecution(t *testing.T) {
	rec := &recorder{}
	g := fanIn(t)
	roles := fanInRoles(rec)
	delete(roles, "cost_specialist")

	_, err := New(roles, Config{Logger: quietLogger()}).Run(context.Background(), g)
	require.Error(t, err)
	assert.True(t, taskgraph.IsConfigurationError(err))
	assert.Empty(t, rec.calls)

	_, err = New(fanInRoles(rec), Config{Manager: "nobody", Logger: quietLogger()}).Run(context.Background(), fanIn(t))
	assert.True(t, taskgraph.IsConfigurationError(err))
	assert.Empty(t, rec.calls)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recorder{}
	outputs, err := New(Roles{"worker": rec}, Config{Logger: quietLogger()}).Run(ctx, chain(t, "a", "b"))
	assert.Nil(t, outputs)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.calls)
}

// scriptedManager answers delegation questions from a table.
type scriptedManager struct {
	mu      sync.Mutex
	answers map[string]string
	err     error
	asked   []string
}

func (m *scriptedManager) Execute(_ context.Context, inv Invocation) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.asked = append(m.asked, inv.Node)
	if m.err != nil {
		return "", m.err
	}
	return m.answers[inv.Node], nil
}

func TestRun_ManagerDelegation(t *testing.T) {
	tests := []struct {
		name     string
		manager  *scriptedManager
		wantRole string
	}{
		{
			name:     "reassigns to declared role",
			manager:  &scriptedManager{answers: map[string]string{"cost_optimization": "  \"Solution_Architect\".\n"}},
			wantRole: "solution_architect",
		},
		{
			name:     "unknown role falls back",
			manager:  &scriptedManager{answers: map[string]string{"cost_optimization": "the intern"}},
			wantRole: "cost_specialist",
		},
		{
			name:     "manager error falls back",
			manager:  &scriptedManager{err: errors.New("timeout")},
			wantRole: "cost_specialist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			roles := fanInRoles(rec)
			roles["project_manager"] = tt.manager

			outputs, err := New(roles, Config{Manager: "project_manager", Logger: quietLogger()}).Run(context.Background(), fanIn(t))
			require.NoError(t, err)

			assert.Equal(t, "cost_optimization by "+tt.wantRole, outputs["cost_optimization"])
			assert.Len(t, tt.manager.asked, 4)
		})
	}
}

func TestRun_ManagerOwnNodesNotDelegated(t *testing.T) {
	manager := &scriptedManager{answers: map[string]string{}}
	rec := &recorder{}
	g, err := taskgraph.Assemble([]taskgraph.Template{
		{Name: "aws_service_selection", Role: "aws_expert"},
		{Name: "progress_review", Role: "project_manager", Context: []string{"aws_service_selection"}},
	}, nil, nil)
	require.NoError(t, err)

	roles := Roles{"aws_expert": rec, "project_manager": manager}

	_, err = New(roles, Config{Manager: "project_manager", Logger: quietLogger()}).Run(context.Background(), g)
	require.NoError(t, err)

	assert.Equal(t, []string{"aws_service_selection", "progress_review"}, manager.asked)
	assert.Equal(t, []string{"aws_service_selection"}, rec.nodes())
}

func TestRun_ParallelLevels(t *testing.T) {
	rec := &recorder{}
	parallel, err := New(fanInRoles(rec), Config{Parallel: true, Logger: quietLogger()}).Run(context.Background(), fanIn(t))
	require.NoError(t, err)

	sequential, err := New(fanInRoles(&recorder{}), Config{Logger: quietLogger()}).Run(context.Background(), fanIn(t))
	require.NoError(t, err)

	assert.Equal(t, sequential, parallel)

	order := rec.nodes()
	require.Len(t, order, 4)
	assert.Equal(t, "aws_service_selection", order[0])
	assert.Equal(t, "final_synthesis", order[3])
}

func TestRun_ParallelFailure(t *testing.T) {
	rec := &recorder{fail: map[string]error{"security_architecture": errors.New("throttled")}}
	g := fanIn(t)

	outputs, err := New(fanInRoles(rec), Config{Parallel: true, Logger: quietLogger()}).Run(context.Background(), g)
	assert.Nil(t, outputs)

	var nodeErr *NodeExecutionError
	require.True(t, errors.As(err, &nodeErr))
	assert.Equal(t, "security_architecture", nodeErr.Node)

	synthesis, _ := g.Node("final_synthesis")
	_, recorded := synthesis.Output()
	assert.False(t, recorded)
	assert.NotContains(t, rec.nodes(), "final_synthesis")
}

func TestMatchRole(t *testing.T) {
	roles := []string{"aws_expert", "security_architect"}
	tests := []struct {
		reply string
		want  string
		ok    bool
	}{
		{"aws_expert", "aws_expert", true},
		{"\n\n  Security_Architect.\nbecause reasons", "security_architect", true},
		{"`aws_expert`", "aws_expert", true},
		{"**aws_expert**", "aws_expert", true},
		{"someone else", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := matchRole(tt.reply, roles)
		assert.Equal(t, tt.ok, ok, "reply %q", tt.reply)
		assert.Equal(t, tt.want, got, "reply %q", tt.reply)
	}
}
