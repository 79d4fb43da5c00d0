package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCycle is matched by every CycleError.
var ErrCycle = errors.New("dependency cycle")

// CycleError reports one cycle found in the graph. Path starts and ends on the
// same node, e.g. [a b a].
type CycleError struct {
	Path  []int
	Names []string // optional, filled by callers that know node names
}

func (e *CycleError) Error() string {
	var b strings.Builder
	b.WriteString("dependency cycle: ")
	for i, n := range e.Path {
		if i > 0 {
			b.WriteString(" -> ")
		}
		if i < len(e.Names) {
			b.WriteString(e.Names[i])
		} else {
			fmt.Fprintf(&b, "#%d", n)
		}
	}
	return b.String()
}

func (e *CycleError) Is(target error) bool { return target == ErrCycle }

// Graph is a directed graph over dense node indices. Node i is the i-th node
// added; an edge a->b means a must come before b.
type Graph struct {
	adj [][]int
}

func New(n int) *Graph {
	return &Graph{adj: make([][]int, n)}
}

// AddNode appends a node and returns its index.
func (g *Graph) AddNode() int {
	g.adj = append(g.adj, nil)
	return len(g.adj) - 1
}

func (g *Graph) Len() int { return len(g.adj) }

// AddEdge records from->to. Duplicate edges are kept; they do not change the order.
func (g *Graph) AddEdge(from, to int) {
	g.check(from)
	g.check(to)
	g.adj[from] = append(g.adj[from], to)
}

// Successors returns the outgoing edges of n in insertion order.
func (g *Graph) Successors(n int) []int {
	g.check(n)
	return g.adj[n]
}

func (g *Graph) check(n int) {
	if n < 0 || n >= len(g.adj) {
		panic(fmt.Sprintf("graph: node %d out of range [0,%d)", n, len(g.adj)))
	}
}

// Descendants marks every node reachable from n, n excluded unless it lies on a cycle.
func (g *Graph) Descendants(n int) []bool {
	g.check(n)
	seen := make([]bool, len(g.adj))
	stack := append([]int(nil), g.adj[n]...)
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[v] {
			continue
		}
		seen[v] = true
		stack = append(stack, g.adj[v]...)
	}
	return seen
}

// Ancestors marks every node that can reach n.
func (g *Graph) Ancestors(n int) []bool {
	g.check(n)
	rev := make([][]int, len(g.adj))
	for from, succ := range g.adj {
		for _, to := range succ {
			rev[to] = append(rev[to], from)
		}
	}
	seen := make([]bool, len(g.adj))
	stack := append([]int(nil), rev[n]...)
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[v] {
			continue
		}
		seen[v] = true
		stack = append(stack, rev[v]...)
	}
	return seen
}

// FindCycle runs a depth-first search that tracks the recursion stack and
// returns the first cycle found, or nil when the graph is acyclic. Roots are
// tried in index order so the reported cycle is deterministic.
func (g *Graph) FindCycle() *CycleError {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make([]uint8, len(g.adj))
	var path []int

	var visit func(n int) *CycleError
	visit = func(n int) *CycleError {
		state[n] = onStack
		path = append(path, n)
		for _, m := range g.adj[n] {
			switch state[m] {
			case onStack:
				start := 0
				for i, p := range path {
					if p == m {
						start = i
						break
					}
				}
				cycle := append(append([]int(nil), path[start:]...), m)
				return &CycleError{Path: cycle}
			case unvisited:
				if err := visit(m); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		state[n] = done
		return nil
	}

	for n := range g.adj {
		if state[n] != unvisited {
			continue
		}
		if err := visit(n); err != nil {
			return err
		}
	}
	return nil
}

// Sort returns a topological order of all nodes.
//
// Each node is pushed after all of its successors (DFS post-order). The outer
// loop and each successor list are walked in reverse index order and the
// result is the reversed stack, so nodes with no path between them keep their
// index order while edges always win.
func (g *Graph) Sort() ([]int, error) {
	if err := g.FindCycle(); err != nil {
		return nil, err
	}

	visited := make([]bool, len(g.adj))
	stack := make([]int, 0, len(g.adj))

	var visit func(n int)
	visit = func(n int) {
		visited[n] = true
		succ := g.adj[n]
		for i := len(succ) - 1; i >= 0; i-- {
			if m := succ[i]; !visited[m] {
				visit(m)
			}
		}
		stack = append(stack, n)
	}

	for n := len(g.adj) - 1; n >= 0; n-- {
		if !visited[n] {
			visit(n)
		}
	}

	for i, j := 0, len(stack)-1; i < j; i, j = i+1, j-1 {
		stack[i], stack[j] = stack[j], stack[i]
	}
	return stack, nil
}
