package neat

import (
	"fmt"
)

// SetInputs loads one value per input node, in creation order.
func (g *Genome) SetInputs(values []float64) error {
	if len(values) != len(g.inputNodes) {
		return fmt.Errorf("expected %d inputs, got %d", len(g.inputNodes), len(values))
	}
	for i, n := range g.inputNodes {
		n.SetInputValue(values[i])
	}
	return nil
}

// Evaluate computes every output node from the current inputs. Values are
// pulled backwards from each output and memoized per pass, so shared hidden
// nodes are computed once. Hidden nodes are squashed by the genome's
// activation function; output nodes keep their raw weighted sum.
func (g *Genome) Evaluate() error {
	act, err := GetActivation(g.Activation)
	if err != nil {
		return err
	}
	g.pass++
	for _, out := range g.outputNodes {
		if out.stateIn(g.pass) == unvisited {
			g.evaluateNode(out, act)
		}
	}
	return nil
}

func (g *Genome) evaluateNode(n *NodeGene, act ActivationType) float64 {
	pass := g.pass
	n.enter(pass)
	v := 0.0
	for _, e := range n.incoming {
		c := g.connections[e.Innovation]
		if !c.IsExpressed() {
			continue
		}
		src := g.nodes[e.From]
		switch src.stateIn(pass) {
		case unvisited:
			g.evaluateNode(src, act)
		case inProgress:
			panic(&AuditError{Genome: g.Name, Node: src.ID, Connection: c.Innovation,
				Reason: fmt.Sprintf("recurrent path reached %s while evaluating %s", src, n)})
		}
		v += c.Weight() * src.Value(pass)
	}
	if n.Role == RoleHidden {
		v = act(v)
	}
	n.SetComputedValue(v, pass)
	return v
}

// OutputValues returns the values computed by the last Evaluate, in output
// creation order.
func (g *Genome) OutputValues() []float64 {
	out := make([]float64, len(g.outputNodes))
	for i, n := range g.outputNodes {
		out[i] = n.Value(g.pass)
	}
	return out
}

// Activate is SetInputs, Evaluate and OutputValues in one call.
func (g *Genome) Activate(inputs []float64) ([]float64, error) {
	if err := g.SetInputs(inputs); err != nil {
		return nil, err
	}
	if err := g.Evaluate(); err != nil {
		return nil, err
	}
	return g.OutputValues(), nil
}
