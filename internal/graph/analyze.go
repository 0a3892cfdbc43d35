package graph

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tallyward/ledgercore/internal/errs"
)

// CyclePath is one detected debt cycle: the person IDs in order, first node
// repeated at the end, plus the combined edge weight along the path.
type CyclePath struct {
	Persons []string
	Total   decimal.Decimal
}

// DetectCycle runs a depth-first search and returns the first cycle found,
// or nil if the graph is acyclic. Traversal depth is bounded by the
// configured limit; exceeding it fails closed with RecursionLimitExceeded
// rather than crashing on pathological inputs.
func (g *DebtGraph) DetectCycle() (*CyclePath, error) {
	visited := make(map[string]bool, len(g.nodes))
	onStack := make(map[string]bool, len(g.nodes))
	var stack []string

	var dfs func(node string, depth int) (*CyclePath, error)
	dfs = func(node string, depth int) (*CyclePath, error) {
		if depth > g.cfg.maxDepth() {
			return nil, errs.RecursionLimit(g.cfg.maxDepth())
		}
		visited[node] = true
		onStack[node] = true
		stack = append(stack, node)

		for _, next := range g.adj[node] {
			if onStack[next] {
				return g.cycleFromStack(stack, next), nil
			}
			if visited[next] {
				continue
			}
			cycle, err := dfs(next, depth+1)
			if cycle != nil || err != nil {
				return cycle, err
			}
		}

		onStack[node] = false
		stack = stack[:len(stack)-1]
		return nil, nil
	}

	for _, node := range g.nodes {
		if visited[node] {
			continue
		}
		cycle, err := dfs(node, 1)
		if cycle != nil || err != nil {
			return cycle, err
		}
	}
	return nil, nil
}

// cycleFromStack slices the current DFS stack from the first occurrence of
// start and closes the loop.
func (g *DebtGraph) cycleFromStack(stack []string, start string) *CyclePath {
	idx := 0
	for i, id := range stack {
		if id == start {
			idx = i
			break
		}
	}
	path := append([]string(nil), stack[idx:]...)
	path = append(path, start)

	total := decimal.Zero
	for i := 0; i < len(path)-1; i++ {
		total = total.Add(g.Weight(path[i], path[i+1]))
	}
	return &CyclePath{Persons: path, Total: total}
}

// StronglyConnectedComponents returns the graph's SCCs via Tarjan's
// algorithm. Any component with more than one node is a circular-debt group
// eligible for netting. Components and their members come back in
// deterministic order. Recursion depth is bounded by the configured limit,
// failing closed with RecursionLimitExceeded like DetectCycle.
func (g *DebtGraph) StronglyConnectedComponents() ([][]string, error) {
	index := 0
	indices := make(map[string]int, len(g.nodes))
	lowlink := make(map[string]int, len(g.nodes))
	onStack := make(map[string]bool, len(g.nodes))
	var stack []string
	var components [][]string

	var connect func(node string, depth int) error
	connect = func(node string, depth int) error {
		if depth > g.cfg.maxDepth() {
			return errs.RecursionLimit(g.cfg.maxDepth())
		}
		indices[node] = index
		lowlink[node] = index
		index++
		stack = append(stack, node)
		onStack[node] = true

		for _, next := range g.adj[node] {
			if _, seen := indices[next]; !seen {
				if err := connect(next, depth+1); err != nil {
					return err
				}
				if lowlink[next] < lowlink[node] {
					lowlink[node] = lowlink[next]
				}
			} else if onStack[next] && indices[next] < lowlink[node] {
				lowlink[node] = indices[next]
			}
		}

		if lowlink[node] == indices[node] {
			var component []string
			for {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[top] = false
				component = append(component, top)
				if top == node {
					break
				}
			}
			sort.Strings(component)
			components = append(components, component)
		}
		return nil
	}

	for _, node := range g.nodes {
		if _, seen := indices[node]; !seen {
			if err := connect(node, 1); err != nil {
				return nil, err
			}
		}
	}
	return components, nil
}

// FindPath returns the shortest debt chain between two people as an ordered
// list of person IDs including both endpoints, or nil if no chain exists.
func (g *DebtGraph) FindPath(from, to string) []string {
	if from == to {
		return []string{from}
	}
	prev := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range g.adj[node] {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = node
			if next == to {
				var path []string
				for at := to; at != ""; at = prev[at] {
					path = append([]string{at}, path...)
				}
				return path
			}
			queue = append(queue, next)
		}
	}
	return nil
}

// WouldCreateCycle reports whether adding a debt edge from -> to would close
// a cycle, i.e. whether a debt chain already leads from to back to from.
// Called before any new expense or split-bill participant edge is persisted.
func (g *DebtGraph) WouldCreateCycle(from, to string) bool {
	if from == to {
		return true
	}
	return g.FindPath(to, from) != nil
}
