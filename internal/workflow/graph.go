package workflow

import (
	"context"
	"fmt"
)

// Node names. They double as stage labels in logs and metrics.
const (
	StageGuard    = "guard"
	StageDraft    = "draft"
	StageReview   = "review"
	StageSend     = "send"
	StageEscalate = "escalate"

	// End is the implicit sink every terminal node leads to.
	End = "__end__"
)

type nodeFunc func(ctx context.Context, s *State) error

// router picks a route label from the state after a node ran.
type router func(s *State) string

type node struct {
	name     string
	run      nodeFunc
	terminal bool
}

type edge struct {
	to      string
	route   router
	targets map[string]string
}

// graph is a small directed graph of nodes with unconditional and
// conditional edges. It is built once and is read-only afterwards.
type graph struct {
	entry string
	nodes map[string]*node
	edges map[string]edge
	order []string
}

func newGraph() *graph {
	return &graph{
		nodes: make(map[string]*node),
		edges: make(map[string]edge),
	}
}

func (g *graph) addNode(name string, fn nodeFunc) {
	g.nodes[name] = &node{name: name, run: fn}
	g.order = append(g.order, name)
}

func (g *graph) setEntry(name string) {
	g.entry = name
}

func (g *graph) addEdge(from, to string) {
	g.edges[from] = edge{to: to}
}

func (g *graph) addConditionalEdges(from string, route router, targets map[string]string) {
	g.edges[from] = edge{route: route, targets: targets}
}

// compile validates the wiring and marks terminal nodes.
func (g *graph) compile() error {
	if _, ok := g.nodes[g.entry]; !ok {
		return fmt.Errorf("entry node %q is not defined", g.entry)
	}
	for _, name := range g.order {
		e, ok := g.edges[name]
		if !ok {
			return fmt.Errorf("node %q has no outgoing edge", name)
		}
		targets := []string{e.to}
		if e.route != nil {
			if len(e.targets) == 0 {
				return fmt.Errorf("node %q has a router without targets", name)
			}
			targets = targets[:0]
			for _, t := range e.targets {
				targets = append(targets, t)
			}
		}
		for _, t := range targets {
			if t == name {
				return fmt.Errorf("node %q loops back to itself", name)
			}
			if t == End {
				g.nodes[name].terminal = true
				continue
			}
			if _, ok := g.nodes[t]; !ok {
				return fmt.Errorf("edge %s -> %s targets an undefined node", name, t)
			}
		}
	}
	for from := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("edge from undefined node %q", from)
		}
	}
	return nil
}

// next resolves the node that follows from.
func (g *graph) next(from string, s *State) (string, error) {
	e := g.edges[from]
	if e.route == nil {
		return e.to, nil
	}
	label := e.route(s)
	to, ok := e.targets[label]
	if !ok {
		return "", fmt.Errorf("router of %q returned unknown route %q", from, label)
	}
	return to, nil
}

// stageHook wraps every node execution. It is used for timing and tracing.
type stageHook func(ctx context.Context, stage string, run func(ctx context.Context) error) error

// run walks the graph from the entry node until End. A node never runs
// twice in one traversal. The context is checked before every node so an
// aborted run commits no terminal side effect.
func (g *graph) run(ctx context.Context, s *State, hook stageHook) (string, error) {
	visited := make(map[string]bool, len(g.nodes))
	current := g.entry
	for current != End {
		if visited[current] {
			return current, fmt.Errorf("node %q would execute twice", current)
		}
		visited[current] = true

		if err := ctx.Err(); err != nil {
			return current, err
		}

		n := g.nodes[current]
		if err := hook(ctx, n.name, func(ctx context.Context) error { return n.run(ctx, s) }); err != nil {
			return current, err
		}

		next, err := g.next(current, s)
		if err != nil {
			return current, err
		}
		current = next
	}
	return End, nil
}
