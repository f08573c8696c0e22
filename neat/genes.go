package neat

import (
	"fmt"
	"math"
	"strings"
)

// --------------------------- NodeGene ---------------------------

// NodeRole is the position of a node in the network.
type NodeRole int

const (
	RoleInput NodeRole = iota
	RoleHidden
	RoleOutput
)

var roleNames = [...]string{"INPUT", "HIDDEN", "OUTPUT"}

func (r NodeRole) String() string {
	if r < 0 || int(r) >= len(roleNames) {
		return fmt.Sprintf("NodeRole(%d)", int(r))
	}
	return roleNames[r]
}

// ParseNodeRole is the inverse of NodeRole.String.
func ParseNodeRole(s string) (NodeRole, error) {
	for i, n := range roleNames {
		if strings.EqualFold(n, s) {
			return NodeRole(i), nil
		}
	}
	return 0, fmt.Errorf("unknown node role %q", s)
}

// visitState tracks a node's progress within one evaluation pass.
type visitState uint8

const (
	unvisited visitState = iota
	inProgress
	done
)

// edgeRef is one entry in a node's incoming list: the innovation number of
// the connection and the id of the node it comes from.
type edgeRef struct {
	Innovation int
	From       int
}

// NodeGene represents a neuron.
type NodeGene struct {
	ID   int
	Role NodeRole
	Name string // Free-form label, e.g. "In3"; not used by the algorithm.

	incoming []edgeRef // Connections whose OutNode is this node, in insertion order.

	value float64
	pass  int // Evaluation pass the value belongs to.
	state visitState

	mark int // Traversal stamp for reachability sweeps.
}

// NewNodeGene creates a node with no connections.
func NewNodeGene(id int, role NodeRole) *NodeGene {
	return &NodeGene{ID: id, Role: role}
}

// String returns a string representation of the NodeGene.
func (n *NodeGene) String() string {
	if n.Name != "" {
		return fmt.Sprintf("NodeGene(%d %s %q)", n.ID, n.Role, n.Name)
	}
	return fmt.Sprintf("NodeGene(%d %s)", n.ID, n.Role)
}

// copy duplicates identity only. Incoming links are rebuilt as the owning
// genome adds connections.
func (n *NodeGene) copy() *NodeGene {
	return &NodeGene{ID: n.ID, Role: n.Role, Name: n.Name}
}

// Incoming returns the innovation numbers of the connections into n.
func (n *NodeGene) Incoming() []int {
	out := make([]int, len(n.incoming))
	for i, e := range n.incoming {
		out[i] = e.Innovation
	}
	return out
}

// NumInputs is the number of connections ending at n, expressed or not.
func (n *NodeGene) NumInputs() int { return len(n.incoming) }

// HasInput reports whether other is an immediate predecessor of n.
func (n *NodeGene) HasInput(other *NodeGene) bool {
	for _, e := range n.incoming {
		if e.From == other.ID {
			return true
		}
	}
	return false
}

func (n *NodeGene) link(c *ConnectionGene) {
	n.incoming = append(n.incoming, edgeRef{Innovation: c.Innovation, From: c.InNode})
}

func (n *NodeGene) unlink(innovation int) bool {
	for i, e := range n.incoming {
		if e.Innovation == innovation {
			n.incoming = append(n.incoming[:i], n.incoming[i+1:]...)
			return true
		}
	}
	return false
}

// SetInputValue loads an input node. It panics for any other role.
func (n *NodeGene) SetInputValue(v float64) {
	if n.Role != RoleInput {
		panic(fmt.Sprintf("SetInputValue on %s", n))
	}
	n.value = v
	n.state = done
}

// SetComputedValue records the value of a hidden or output node for the
// given evaluation pass.
func (n *NodeGene) SetComputedValue(v float64, pass int) {
	if n.Role == RoleInput {
		panic(fmt.Sprintf("SetComputedValue on %s", n))
	}
	n.value = v
	n.pass = pass
	n.state = done
}

// Value returns the node's value for the given pass. Input nodes are always
// current. Reading a hidden or output node that was not evaluated in this
// pass is a caller bug and panics.
func (n *NodeGene) Value(pass int) float64 {
	if n.Role == RoleInput {
		return n.value
	}
	if n.pass != pass || n.state != done {
		panic(fmt.Sprintf("%s read in pass %d but evaluated in pass %d", n, pass, n.pass))
	}
	return n.value
}

// LastValue returns the most recently stored value without any pass check.
func (n *NodeGene) LastValue() float64 { return n.value }

func (n *NodeGene) stateIn(pass int) visitState {
	if n.Role == RoleInput {
		return done
	}
	if n.pass != pass {
		return unvisited
	}
	return n.state
}

func (n *NodeGene) enter(pass int) {
	n.pass = pass
	n.state = inProgress
}

// --------------------------- ConnectionGene ---------------------------

// WeightScale is the fixed-point denominator for stored weights. A power of
// two keeps every stored weight exactly representable as a float64.
const WeightScale = 1 << 24

// QuantizeWeight converts a weight to its stored integer form.
func QuantizeWeight(w float64) int64 {
	return int64(math.Round(w * WeightScale))
}

// ConnectionGene represents a directed, weighted edge. The topology fields
// never change after creation.
type ConnectionGene struct {
	Innovation int
	InNode     int
	OutNode    int

	weight    int64 // Weight * WeightScale.
	expressed bool
}

// NewConnectionGene creates a connection. A self loop is a programming error
// and panics.
func NewConnectionGene(innovation, in, out int, weight float64, expressed bool) *ConnectionGene {
	if in == out {
		panic(fmt.Sprintf("connection %d would loop node %d onto itself", innovation, in))
	}
	return &ConnectionGene{
		Innovation: innovation,
		InNode:     in,
		OutNode:    out,
		weight:     QuantizeWeight(weight),
		expressed:  expressed,
	}
}

// String returns a string representation of the ConnectionGene.
func (c *ConnectionGene) String() string {
	return fmt.Sprintf("ConnGene(#%d %d->%d, Weight: %.4f, Enabled: %t)",
		c.Innovation, c.InNode, c.OutNode, c.Weight(), c.expressed)
}

// Copy creates a deep copy of the ConnectionGene, innovation number included.
func (c *ConnectionGene) Copy() *ConnectionGene {
	cp := *c
	return &cp
}

// Weight returns the connection weight.
func (c *ConnectionGene) Weight() float64 { return float64(c.weight) / WeightScale }

// SetWeight stores w, rounded to the fixed-point grid.
func (c *ConnectionGene) SetWeight(w float64) { c.weight = QuantizeWeight(w) }

// QuantizedWeight returns the stored integer weight.
func (c *ConnectionGene) QuantizedWeight() int64 { return c.weight }

// Enabled reports the raw expression flag.
func (c *ConnectionGene) Enabled() bool { return c.expressed }

// IsExpressed reports whether the connection takes part in evaluation. A
// weight that has decayed to exactly zero makes the connection inert.
func (c *ConnectionGene) IsExpressed() bool { return c.expressed && c.weight != 0 }

// Enable re-activates a disabled connection.
func (c *ConnectionGene) Enable() { c.expressed = true }

// Disable deactivates the connection while keeping the gene.
func (c *ConnectionGene) Disable() { c.expressed = false }
