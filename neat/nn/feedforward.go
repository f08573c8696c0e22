// Package nn compiles genomes into immutable feed-forward networks.
package nn

import (
	"fmt"

	"github.com/neatcore/dagneat/neat"
)

// link is one expressed incoming connection, by source slot.
type link struct {
	from   int
	weight float64
}

// neuralNode represents a node during network activation.
type neuralNode struct {
	ID     int
	Role   neat.NodeRole
	Inputs []link // In the genome's incoming order, so sums match Genome.Evaluate.
}

// FeedForwardNetwork represents a phenotype network that can be activated.
// It never changes after Compile and is safe for concurrent use.
type FeedForwardNetwork struct {
	InputIDs   []int
	OutputIDs  []int
	Activation neat.ActivationType

	nodes   []neuralNode // Topological order.
	inputs  []int        // Slots of the input nodes, in genome input order.
	outputs []int        // Slots of the output nodes, in genome output order.
}

// Compile builds a runnable network from a genome. Only expressed
// connections are kept; the genome itself is not modified afterwards.
func Compile(g *neat.Genome) (*FeedForwardNetwork, error) {
	act, err := neat.GetActivation(g.Activation)
	if err != nil {
		return nil, err
	}
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, fmt.Errorf("failed topological sort for %s: %w", g.Name, err)
	}

	slot := make(map[int]int, len(order))
	for i, id := range order {
		slot[id] = i
	}
	net := &FeedForwardNetwork{Activation: act, nodes: make([]neuralNode, len(order))}
	for i, id := range order {
		n := g.Node(id)
		node := neuralNode{ID: id, Role: n.Role}
		for _, innov := range n.Incoming() {
			c := g.Connection(innov)
			if !c.IsExpressed() {
				continue
			}
			node.Inputs = append(node.Inputs, link{from: slot[c.InNode], weight: c.Weight()})
		}
		net.nodes[i] = node
	}
	for _, n := range g.Inputs() {
		net.InputIDs = append(net.InputIDs, n.ID)
		net.inputs = append(net.inputs, slot[n.ID])
	}
	for _, n := range g.Outputs() {
		net.OutputIDs = append(net.OutputIDs, n.ID)
		net.outputs = append(net.outputs, slot[n.ID])
	}
	return net, nil
}

// NumNodes is the number of nodes in the network.
func (net *FeedForwardNetwork) NumNodes() int { return len(net.nodes) }

// Activate computes the network's output for a given slice of input values.
// The input slice must match the number of input nodes.
func (net *FeedForwardNetwork) Activate(inputs []float64) ([]float64, error) {
	if len(inputs) != len(net.inputs) {
		return nil, fmt.Errorf("mismatch between input count (%d) and network input nodes (%d)", len(inputs), len(net.inputs))
	}

	values := make([]float64, len(net.nodes))
	for i, s := range net.inputs {
		values[s] = inputs[i]
	}

	for i, node := range net.nodes {
		if node.Role == neat.RoleInput {
			continue
		}
		v := 0.0
		for _, in := range node.Inputs {
			v += in.weight * values[in.from]
		}
		if node.Role == neat.RoleHidden {
			v = net.Activation(v)
		}
		values[i] = v
	}

	outputs := make([]float64, len(net.outputs))
	for i, s := range net.outputs {
		outputs[i] = values[s]
	}
	return outputs, nil
}
