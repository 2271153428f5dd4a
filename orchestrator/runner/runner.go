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

// Package runner executes a task graph against role-bound executors,
// either strictly in order or with a manager that picks the role for
// each node at run time. Independent nodes may optionally run level by
// level in parallel.
package runner

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LBohry/AWS-SA-CHATBOT-PCD/orchestrator/taskgraph"
	"github.com/LBohry/AWS-SA-CHATBOT-PCD/shared/logger"
)

// Config controls one runner.
type Config struct {
	// Manager is the role allowed to re-delegate nodes. Empty means
	// plain sequential execution.
	Manager string

	// Parallel runs each dependency level concurrently.
	Parallel bool

	RequestID string
	Logger    *logger.Logger
}

// Runner walks a graph and records each node's output.
type Runner struct {
	roles Resolver
	cfg   Config
	log   *logger.Logger
}

// New creates a runner over the given role resolver.
func New(roles Resolver, cfg Config) *Runner {
	l := cfg.Logger
	if l == nil {
		l = logger.New("runner")
	}
	return &Runner{roles: roles, cfg: cfg, log: l}
}

// Run executes every node of g and returns their outputs keyed by node
// name. On any failure it returns no outputs.
func (r *Runner) Run(ctx context.Context, g *taskgraph.Graph) (map[string]string, error) {
	if !g.Start() {
		return nil, ErrGraphAlreadyRun
	}
	if err := r.checkRoles(g); err != nil {
		return nil, err
	}

	start := time.Now()
	var err error
	if r.cfg.Parallel {
		err = r.runLevels(ctx, g)
	} else {
		err = r.runSequential(ctx, g)
	}
	if err != nil {
		r.log.Error(r.cfg.RequestID, "Graph run aborted", logger.Fields{
			"nodes": g.Len(),
			"error": err.Error(),
		})
		return nil, err
	}

	outputs := make(map[string]string, g.Len())
	for _, n := range g.Nodes() {
		out, _ := n.Output()
		outputs[n.Name] = out
	}
	r.log.InfoWithDuration(r.cfg.RequestID, "Graph run completed", float64(time.Since(start).Milliseconds()), logger.Fields{
		"nodes":    g.Len(),
		"parallel": r.cfg.Parallel,
		"managed":  r.cfg.Manager != "",
	})
	return outputs, nil
}

// checkRoles rejects a graph whose roles cannot be resolved before any
// node executes.
func (r *Runner) checkRoles(g *taskgraph.Graph) error {
	if r.cfg.Manager != "" {
		if _, ok := r.roles.Resolve(r.cfg.Manager); !ok {
			return &taskgraph.ConfigurationError{Reason: fmt.Sprintf("manager role %q has no executor", r.cfg.Manager)}
		}
	}
	for _, n := range g.Nodes() {
		if _, ok := r.roles.Resolve(n.Role); !ok {
			return &taskgraph.ConfigurationError{Node: n.Name, Reason: fmt.Sprintf("role %q has no executor", n.Role)}
		}
	}
	return nil
}

func (r *Runner) runSequential(ctx context.Context, g *taskgraph.Graph) error {
	for _, n := range g.Nodes() {
		if err := r.execute(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runLevels(ctx context.Context, g *taskgraph.Graph) error {
	for i, level := range g.Levels() {
		if len(level) == 1 {
			if err := r.execute(ctx, level[0]); err != nil {
				return err
			}
			continue
		}

		r.log.Debug(r.cfg.RequestID, "Running level in parallel", logger.Fields{
			"level": i,
			"nodes": len(level),
		})
		eg, gctx := errgroup.WithContext(ctx)
		for _, n := range level {
			n := n
			eg.Go(func() error {
				return r.execute(gctx, n)
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, n *taskgraph.Node) error {
	if err := ctx.Err(); err != nil {
		return &NodeExecutionError{Node: n.Name, Role: n.Role, Err: err}
	}

	prompt, err := BuildPrompt(n)
	if err != nil {
		return &NodeExecutionError{Node: n.Name, Role: n.Role, Err: err}
	}

	role := r.assign(ctx, n)
	exec, _ := r.roles.Resolve(role)

	start := time.Now()
	out, err := exec.Execute(ctx, Invocation{
		Node:   n.Name,
		Role:   role,
		Prompt: prompt,
		Tools:  append([]string(nil), n.Tools...),
	})
	elapsed := time.Since(start)
	promNodeDuration.WithLabelValues(role).Observe(float64(elapsed.Milliseconds()))

	if err != nil {
		promNodeExecutions.WithLabelValues(role, "error").Inc()
		return &NodeExecutionError{Node: n.Name, Role: role, Err: err}
	}
	if err := n.Record(out); err != nil {
		promNodeExecutions.WithLabelValues(role, "error").Inc()
		return &NodeExecutionError{Node: n.Name, Role: role, Err: err}
	}
	promNodeExecutions.WithLabelValues(role, "success").Inc()

	r.log.InfoWithDuration(r.cfg.RequestID, "Node completed", float64(elapsed.Milliseconds()), logger.Fields{
		"node":         n.Name,
		"role":         role,
		"output_chars": len(out),
	})
	return nil
}

// assign asks the manager which role should handle n. The declared role
// is kept when there is no manager, when n belongs to the manager, or
// when the manager's answer is unusable.
func (r *Runner) assign(ctx context.Context, n *taskgraph.Node) string {
	if r.cfg.Manager == "" || n.Role == r.cfg.Manager {
		return n.Role
	}

	manager, _ := r.roles.Resolve(r.cfg.Manager)
	roles := r.roles.Roles()
	reply, err := manager.Execute(ctx, Invocation{
		Node:   n.Name,
		Role:   r.cfg.Manager,
		Prompt: delegationPrompt(n, roles),
	})
	if err != nil {
		promDelegations.WithLabelValues("error").Inc()
		r.log.Warn(r.cfg.RequestID, "Delegation failed, using declared role", logger.Fields{
			"node":  n.Name,
			"role":  n.Role,
			"error": err.Error(),
		})
		return n.Role
	}

	role, ok := matchRole(reply, roles)
	if !ok {
		promDelegations.WithLabelValues("unknown_role").Inc()
		r.log.Warn(r.cfg.RequestID, "Manager named an unknown role, using declared role", logger.Fields{
			"node":  n.Name,
			"role":  n.Role,
			"reply": truncate(reply, 80),
		})
		return n.Role
	}
	if role == n.Role {
		promDelegations.WithLabelValues("kept").Inc()
	} else {
		promDelegations.WithLabelValues("reassigned").Inc()
		r.log.Info(r.cfg.RequestID, "Manager reassigned node", logger.Fields{
			"node": n.Name,
			"from": n.Role,
			"to":   role,
		})
	}
	return role
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
