package graph

import "fmt"

// ValidateTopology checks the structural invariants of a built graph:
// one source, one fan-out with exactly two outgoing links heading disjoint
// branches, one file sink and one frame sink, no cycles.
func ValidateTopology(g *Graph) error {
	var sources, fanouts []*Node
	sinks := map[NodeKind]int{}

	for _, n := range g.nodes {
		linked := 0
		for _, p := range n.inputs {
			if p.peer != nil {
				linked++
			}
		}
		if len(n.inputs) == 0 {
			sources = append(sources, n)
		} else if linked != len(n.inputs) {
			return fmt.Errorf("node %s has unlinked inputs", n.name)
		}
		if n.kind == KindFanOut {
			fanouts = append(fanouts, n)
		}
		if n.kind.IsSink() {
			sinks[n.kind]++
		}
	}

	if len(sources) != 1 {
		return fmt.Errorf("expected exactly one source, found %d", len(sources))
	}
	if len(fanouts) != 1 {
		return fmt.Errorf("expected exactly one fan-out, found %d", len(fanouts))
	}
	if sinks[KindFileSink] != 1 || sinks[KindFrameSink] != 1 {
		return fmt.Errorf("expected one file sink and one frame sink, found %d and %d",
			sinks[KindFileSink], sinks[KindFrameSink])
	}

	fan := fanouts[0]
	if len(fan.outputs) != 2 {
		return fmt.Errorf("fan-out %s has %d outputs, expected 2", fan.name, len(fan.outputs))
	}

	if err := checkAcyclic(sources[0]); err != nil {
		return err
	}

	// Each branch must end in its own sink without meeting the other branch.
	seen := map[*Node]int{}
	var branchSinks []NodeKind
	for i, out := range fan.outputs {
		if out.peer == nil {
			return fmt.Errorf("fan-out port %s is not linked", out.Path())
		}
		sink, err := walkBranch(out.peer.node, i, seen)
		if err != nil {
			return err
		}
		branchSinks = append(branchSinks, sink.kind)
	}
	if branchSinks[0] == branchSinks[1] {
		return fmt.Errorf("both branches terminate in a %s", branchSinks[0])
	}
	return nil
}

// walkBranch follows a linear branch from start to its sink.
func walkBranch(start *Node, branch int, seen map[*Node]int) (*Node, error) {
	n := start
	for {
		if b, ok := seen[n]; ok && b != branch {
			return nil, fmt.Errorf("node %s is shared by branches %d and %d", n.name, b, branch)
		}
		seen[n] = branch
		if n.kind.IsSink() {
			return n, nil
		}
		out := n.Output()
		if out == nil || out.peer == nil {
			return nil, fmt.Errorf("branch %d stops at %s without a sink", branch, n.name)
		}
		if len(n.outputs) != 1 {
			return nil, fmt.Errorf("node %s forks inside branch %d", n.name, branch)
		}
		n = out.peer.node
	}
}

func checkAcyclic(src *Node) error {
	const (
		visiting = 1
		done     = 2
	)
	state := map[*Node]int{}

	var visit func(n *Node) error
	visit = func(n *Node) error {
		switch state[n] {
		case visiting:
			return fmt.Errorf("cycle through node %s", n.name)
		case done:
			return nil
		}
		state[n] = visiting
		for _, out := range n.outputs {
			if out.peer == nil {
				continue
			}
			if err := visit(out.peer.node); err != nil {
				return err
			}
		}
		state[n] = done
		return nil
	}
	return visit(src)
}
