// Package graph builds ravel's artifact dependency DAG from sidecars,
// computes its leveled topological order, and detects cycles. It is
// grounded in the teacher's pkg/synchronization/core fixed-point entry
// resolution, generalized from tree reconciliation to dependency-graph
// construction.
package graph

import (
	"github.com/ravel-dvc/ravel/internal/rverr"
	"github.com/ravel-dvc/ravel/internal/sidecar"
)

// Dep is a canonicalized dependency reference: a path plus the digest that
// was recorded for it when its owning sidecar was last written. It is
// constructed once at sidecar-read time so nothing downstream needs to
// branch on whether a dependency arrived as a bare path or a richer record.
type Dep struct {
	Path           string
	ExpectedDigest string
}

// Node is one artifact in the dependency graph: a tracked output path, its
// sidecar info if one exists, and its canonicalized dependency list. A node
// with no Computation is a leaf: an external input with no command of its
// own.
type Node struct {
	Path string
	Info *sidecar.Info
	Deps []Dep
}

// IsLeaf reports whether a node has no computation, i.e. it is an external
// input never executed by the DAG executor.
func (n *Node) IsLeaf() bool {
	return n.Info == nil || n.Info.Computation == nil
}

// Cmd returns the node's shell command, or "" for a leaf.
func (n *Node) Cmd() string {
	if n.IsLeaf() {
		return ""
	}
	return n.Info.Computation.Cmd
}

// Build constructs the dependency graph reachable from targets (output
// paths whose sidecars are read directly, per spec.md §4.F's graph
// construction algorithm): each sidecar becomes a Node, each listed
// dependency path is enqueued, and any dep path without its own sidecar
// becomes a leaf node. The algorithm iterates to a fixed point.
func Build(targets []string, readSidecar func(outputPath string) (*sidecar.Info, bool, error)) (map[string]*Node, error) {
	nodes := make(map[string]*Node)
	pending := append([]string{}, targets...)

	for len(pending) > 0 {
		path := pending[0]
		pending = pending[1:]

		if _, ok := nodes[path]; ok {
			continue
		}

		info, exists, err := readSidecar(path)
		if err != nil {
			return nil, err
		}

		node := &Node{Path: path}
		if exists {
			node.Info = info
			if info.Computation != nil {
				for depPath, expected := range info.Computation.Deps {
					node.Deps = append(node.Deps, Dep{Path: depPath, ExpectedDigest: expected})
				}
			}
		}
		nodes[path] = node

		for _, dep := range node.Deps {
			if _, ok := nodes[dep.Path]; !ok {
				pending = append(pending, dep.Path)
			}
		}
	}

	return nodes, nil
}

// Levels is the leveled topological order of a graph: Levels[0] contains
// every node with no unresolved dependency, Levels[1] contains every node
// whose dependencies are entirely within Levels[0], and so on. Nodes within
// one level have no dependency edges among them and are independent
// candidates for concurrent execution.
type Levels [][]*Node

// TopologicalSort computes Levels for nodes, or returns a *rverr.CycleDetected
// error naming the first cycle found if the graph is not acyclic.
func TopologicalSort(nodes map[string]*Node) (Levels, error) {
	done := make(map[string]bool)
	remaining := make(map[string]*Node, len(nodes))
	for path, node := range nodes {
		remaining[path] = node
	}

	var levels Levels

	for len(remaining) > 0 {
		var level []*Node
		for _, node := range remaining {
			if allDepsDone(node, done) {
				level = append(level, node)
			}
		}

		if len(level) == 0 {
			return nil, &rverr.CycleDetected{Nodes: findCycle(remaining)}
		}

		for _, node := range level {
			done[node.Path] = true
			delete(remaining, node.Path)
		}
		levels = append(levels, level)
	}

	return levels, nil
}

func allDepsDone(node *Node, done map[string]bool) bool {
	for _, dep := range node.Deps {
		if !done[dep.Path] {
			return false
		}
	}
	return true
}

// findCycle returns the paths of nodes still unresolved when no progress
// can be made, which together contain at least one cycle. It walks
// dependency edges from an arbitrary starting node until a repeat is seen,
// returning that minimal cyclic path.
func findCycle(remaining map[string]*Node) []string {
	visited := make(map[string]bool)
	var path []string
	var start string
	for p := range remaining {
		start = p
		break
	}

	current := start
	for {
		if visited[current] {
			// Trim the path down to the repeated node onward.
			for i, p := range path {
				if p == current {
					return append(path[i:], current)
				}
			}
			return append(path, current)
		}
		visited[current] = true
		path = append(path, current)

		node, ok := remaining[current]
		if !ok || len(node.Deps) == 0 {
			return path
		}
		// Follow the first dependency still unresolved.
		next := ""
		for _, dep := range node.Deps {
			if _, stillRemaining := remaining[dep.Path]; stillRemaining {
				next = dep.Path
				break
			}
		}
		if next == "" {
			return path
		}
		current = next
	}
}
