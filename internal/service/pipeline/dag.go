// Package pipeline builds task graphs and runs them: bounded-concurrency
// execution with retries, a cron scheduler and a run registry.
package pipeline

import (
	"slices"

	"duckflow/internal/domain"
)

// ResolveExecutionOrder computes a topological ordering of task nodes using
// Kahn's algorithm. Returns levels of node names where each level can execute
// in parallel; names within a level keep declaration order. Returns an error
// if cycles or unknown upstream names exist.
func ResolveExecutionOrder(nodes []domain.TaskNode) ([][]string, error) {
	if len(nodes) == 0 {
		return nil, nil
	}

	position := make(map[string]int, len(nodes))
	inDegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string) // upstream name → names depending on it

	for i, n := range nodes {
		position[n.Name] = i
		inDegree[n.Name] = 0
	}

	for _, n := range nodes {
		for _, up := range n.Upstream {
			if _, ok := position[up]; !ok {
				return nil, domain.ErrValidation("task %s: unknown upstream %s", n.Name, up)
			}
			if up == n.Name {
				return nil, domain.ErrValidation("self dependency: %s", n.Name)
			}
			dependents[up] = append(dependents[up], n.Name)
			inDegree[n.Name]++
		}
	}

	byPosition := func(a, b string) int { return position[a] - position[b] }

	var levels [][]string
	var queue []string
	for _, n := range nodes {
		if inDegree[n.Name] == 0 {
			queue = append(queue, n.Name)
		}
	}

	processed := 0
	for len(queue) > 0 {
		level := slices.Clone(queue)
		slices.SortFunc(level, byPosition)
		levels = append(levels, level)
		processed += len(level)

		var next []string
		for _, name := range level {
			for _, dep := range dependents[name] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		queue = next
	}

	if processed != len(nodes) {
		return nil, domain.ErrValidation("cycle detected in task dependencies")
	}
	return levels, nil
}

// Graph is an immutable, validated set of task nodes and their edges.
type Graph struct {
	name       string
	nodes      []domain.TaskNode
	index      map[string]int
	downstream map[string][]string
	levels     [][]string
}

// Name returns the pipeline name.
func (g *Graph) Name() string { return g.name }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns copies of the nodes in declaration order.
func (g *Graph) Nodes() []domain.TaskNode {
	out := make([]domain.TaskNode, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = cloneNode(n)
	}
	return out
}

// Node returns a copy of the node with the given name.
func (g *Graph) Node(name string) (domain.TaskNode, bool) {
	i, ok := g.index[name]
	if !ok {
		return domain.TaskNode{}, false
	}
	return cloneNode(g.nodes[i]), true
}

// Upstream returns the names of the nodes name depends on.
func (g *Graph) Upstream(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	return slices.Clone(g.nodes[i].Upstream)
}

// Downstream returns the names of the nodes that depend on name.
func (g *Graph) Downstream(name string) []string {
	return slices.Clone(g.downstream[name])
}

// Roots returns the nodes without upstream dependencies.
func (g *Graph) Roots() []string {
	return slices.Clone(g.levels[0])
}

// Levels returns the Kahn levels of the graph.
func (g *Graph) Levels() [][]string {
	out := make([][]string, len(g.levels))
	for i, l := range g.levels {
		out[i] = slices.Clone(l)
	}
	return out
}

// UpstreamClosure returns targets plus every node they transitively depend on.
func (g *Graph) UpstreamClosure(targets []string) (map[string]bool, error) {
	selected := make(map[string]bool)
	stack := make([]string, 0, len(targets))
	for _, t := range targets {
		if _, ok := g.index[t]; !ok {
			return nil, domain.ErrNotFound("task %q not found in pipeline %s", t, g.name)
		}
		stack = append(stack, t)
	}
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if selected[name] {
			continue
		}
		selected[name] = true
		stack = append(stack, g.nodes[g.index[name]].Upstream...)
	}
	return selected, nil
}

// Builder assembles a Graph. Nodes and edges may be added in any order;
// Build validates the result.
type Builder struct {
	name  string
	nodes []domain.TaskNode
	edges [][2]string
}

// NewBuilder starts a graph for the named pipeline.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// AddNode adds a node. Its Upstream names become edges.
func (b *Builder) AddNode(n domain.TaskNode) *Builder {
	n.Upstream = slices.Clone(n.Upstream)
	n.Checks = slices.Clone(n.Checks)
	b.nodes = append(b.nodes, n)
	return b
}

// AddEdge records that to depends on from.
func (b *Builder) AddEdge(from, to string) *Builder {
	b.edges = append(b.edges, [2]string{from, to})
	return b
}

// Build validates the nodes and edges and returns the immutable graph.
func (b *Builder) Build() (*Graph, error) {
	if b.name == "" {
		return nil, domain.ErrValidation("pipeline name is required")
	}
	if len(b.nodes) == 0 {
		return nil, domain.ErrValidation("pipeline %s has no tasks", b.name)
	}

	nodes := make([]domain.TaskNode, len(b.nodes))
	index := make(map[string]int, len(b.nodes))
	for i, n := range b.nodes {
		if err := n.Validate(); err != nil {
			return nil, err
		}
		if _, dup := index[n.Name]; dup {
			return nil, domain.ErrValidation("pipeline %s: duplicate task %s", b.name, n.Name)
		}
		index[n.Name] = i
		n.Upstream = slices.Clone(n.Upstream)
		nodes[i] = n
	}

	for _, e := range b.edges {
		from, to := e[0], e[1]
		if _, ok := index[from]; !ok {
			return nil, domain.ErrValidation("edge %s -> %s: unknown task %s", from, to, from)
		}
		i, ok := index[to]
		if !ok {
			return nil, domain.ErrValidation("edge %s -> %s: unknown task %s", from, to, to)
		}
		nodes[i].Upstream = append(nodes[i].Upstream, from)
	}

	downstream := make(map[string][]string)
	for i := range nodes {
		nodes[i].Upstream = dedupe(nodes[i].Upstream)
		for _, up := range nodes[i].Upstream {
			downstream[up] = append(downstream[up], nodes[i].Name)
		}
	}

	levels, err := ResolveExecutionOrder(nodes)
	if err != nil {
		return nil, domain.ErrValidation("pipeline %s: %v", b.name, err)
	}

	return &Graph{
		name:       b.name,
		nodes:      nodes,
		index:      index,
		downstream: downstream,
		levels:     levels,
	}, nil
}

func cloneNode(n domain.TaskNode) domain.TaskNode {
	n.Upstream = slices.Clone(n.Upstream)
	n.Checks = slices.Clone(n.Checks)
	return n
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
