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
	"container/heap"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// Graph is an ordered list of nodes in which every node follows all of
// its predecessors. Predecessors outside the graph must already carry a
// recorded output (they were produced by an earlier phase of the same
// request).
type Graph struct {
	nodes   []*Node
	index   map[string]int
	started atomic.Bool
}

// NewGraph validates the given order and wraps it.
func NewGraph(nodes ...*Node) (*Graph, error) {
	g := &Graph{
		nodes: append([]*Node(nil), nodes...),
		index: make(map[string]int, len(nodes)),
	}
	for i, n := range g.nodes {
		if _, dup := g.index[n.Name]; dup {
			return nil, &ConfigurationError{Node: n.Name, Reason: "duplicate node name"}
		}
		g.index[n.Name] = i
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Nodes returns the execution order.
func (g *Graph) Nodes() []*Node {
	return append([]*Node(nil), g.nodes...)
}

// Len is the number of nodes the runner will execute.
func (g *Graph) Len() int { return len(g.nodes) }

// Node looks up a node by name.
func (g *Graph) Node(name string) (*Node, bool) {
	i, ok := g.index[name]
	if !ok {
		return nil, false
	}
	return g.nodes[i], true
}

// Names lists node names in execution order.
func (g *Graph) Names() []string {
	names := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		names[i] = n.Name
	}
	return names
}

// Validate checks the topological invariant: each predecessor sits at a
// strictly earlier position, or lies outside the graph with an output.
func (g *Graph) Validate() error {
	for i, n := range g.nodes {
		for _, p := range n.predecessors {
			if p == nil {
				return &ConfigurationError{Node: n.Name, Reason: "nil predecessor"}
			}
			j, inGraph := g.index[p.Name]
			if inGraph {
				if g.nodes[j] != p {
					return &ConfigurationError{Node: n.Name, Reason: fmt.Sprintf("predecessor %q is not the graph's node of that name", p.Name)}
				}
				if j >= i {
					return &ConfigurationError{Node: n.Name, Reason: fmt.Sprintf("predecessor %q is not scheduled before it", p.Name)}
				}
				continue
			}
			if _, ok := p.Output(); !ok {
				return &ConfigurationError{Node: n.Name, Reason: fmt.Sprintf("predecessor %q is neither in the graph nor completed", p.Name)}
			}
		}
	}
	return nil
}

// Start marks the graph as handed to a runner. Only the first caller
// gets true.
func (g *Graph) Start() bool {
	return g.started.CompareAndSwap(false, true)
}

// Levels groups nodes so that every node's in-graph predecessors live in
// an earlier level. Order inside a level follows graph order.
func (g *Graph) Levels() [][]*Node {
	depth := make([]int, len(g.nodes))
	maxDepth := 0
	for i, n := range g.nodes {
		for _, p := range n.predecessors {
			if j, ok := g.index[p.Name]; ok && depth[j]+1 > depth[i] {
				depth[i] = depth[j] + 1
			}
		}
		if depth[i] > maxDepth {
			maxDepth = depth[i]
		}
	}
	if len(g.nodes) == 0 {
		return nil
	}
	levels := make([][]*Node, maxDepth+1)
	for i, n := range g.nodes {
		levels[depth[i]] = append(levels[depth[i]], n)
	}
	return levels
}

// Assemble renders templates, wires their Context names to nodes (either
// in this set or among prior completed nodes) and orders them
// topologically. Ties are broken by template position, so a declaration
// order that already respects dependencies is kept as is.
func Assemble(templates []Template, values map[string]string, prior []*Node) (*Graph, error) {
	nodes := make([]*Node, len(templates))
	byName := make(map[string]int, len(templates))
	for i, t := range templates {
		if _, dup := byName[t.Name]; dup {
			return nil, &ConfigurationError{Node: t.Name, Reason: "duplicate node name"}
		}
		n, err := t.Render(values)
		if err != nil {
			return nil, err
		}
		nodes[i] = n
		byName[t.Name] = i
	}

	priorByName := make(map[string]*Node, len(prior))
	for _, p := range prior {
		priorByName[p.Name] = p
	}

	indeg := make([]int, len(nodes))
	outgoing := make([][]int, len(nodes))
	for i, t := range templates {
		seen := make(map[string]bool, len(t.Context))
		for _, name := range t.Context {
			if seen[name] {
				continue
			}
			seen[name] = true
			if j, ok := byName[name]; ok {
				if j == i {
					return nil, &ConfigurationError{Node: t.Name, Reason: "node depends on itself"}
				}
				nodes[i].predecessors = append(nodes[i].predecessors, nodes[j])
				indeg[i]++
				outgoing[j] = append(outgoing[j], i)
				continue
			}
			if p, ok := priorByName[name]; ok {
				nodes[i].predecessors = append(nodes[i].predecessors, p)
				continue
			}
			return nil, &ConfigurationError{Node: t.Name, Reason: fmt.Sprintf("unknown predecessor %q", name)}
		}
	}

	order := topoOrder(indeg, outgoing)
	if len(order) != len(nodes) {
		return nil, &ConfigurationError{Reason: "dependency cycle among " + strings.Join(cycleMembers(nodes, order), ", ")}
	}

	ordered := make([]*Node, len(order))
	for k, i := range order {
		ordered[k] = nodes[i]
	}
	return NewGraph(ordered...)
}

type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrder is Kahn's algorithm with a min-heap ready queue so the
// result is deterministic.
func topoOrder(indegree []int, outgoing [][]int) []int {
	indeg := append([]int(nil), indegree...)
	ready := &indexHeap{}
	for i, d := range indeg {
		if d == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

func cycleMembers(nodes []*Node, order []int) []string {
	placed := make(map[int]bool, len(order))
	for _, i := range order {
		placed[i] = true
	}
	var names []string
	for i, n := range nodes {
		if !placed[i] {
			names = append(names, n.Name)
		}
	}
	sort.Strings(names)
	return names
}
