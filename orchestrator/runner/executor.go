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
	"sort"
	"strings"
)

// Invocation is what an executor receives for one node.
type Invocation struct {
	Node   string
	Role   string
	Prompt string
	Tools  []string
}

// Executor performs one unit of text generation. It may use tools
// internally; the runner only sees the final text.
type Executor interface {
	Execute(ctx context.Context, inv Invocation) (string, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, inv Invocation) (string, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, inv Invocation) (string, error) {
	return f(ctx, inv)
}

// Resolver maps a declared role to the executor that plays it.
type Resolver interface {
	Resolve(role string) (Executor, bool)
	Roles() []string
}

// Roles is a static Resolver.
type Roles map[string]Executor

// Resolve looks up role.
func (r Roles) Resolve(role string) (Executor, bool) {
	e, ok := r[role]
	return e, ok && e != nil
}

// Roles lists the declared roles in sorted order.
func (r Roles) Roles() []string {
	out := make([]string, 0, len(r))
	for role := range r {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

// matchRole finds the declared role a manager reply names. Replies are
// compared case-insensitively on their first non-empty line after
// stripping quotes and trailing punctuation.
func matchRole(reply string, roles []string) (string, bool) {
	line := ""
	for _, l := range strings.Split(reply, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	line = strings.Trim(line, "\"'`*.: ")
	for _, role := range roles {
		if strings.EqualFold(line, role) {
			return role, true
		}
	}
	return "", false
}
