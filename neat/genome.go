package neat

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Genome represents one candidate network: a set of NodeGenes and the
// ConnectionGenes between them, plus its own mutation parameters.
//
// The graph formed by all connections, expressed or not, is always acyclic.
// A Genome is not safe for concurrent use; distinct genomes are independent.
type Genome struct {
	Name       string  // Provenance label, "#<n>" by default.
	Species    string  // Label of the species it was last assigned to.
	Parent     string  // Name of the fitter parent it was bred from.
	Generation int     // Number of breeding steps since the seed network.
	Fitness    float64 // Last fitness recorded by the evaluator.

	// Params drive the mutation operators and are inherited by children.
	Params MutationParams
	// Activation names the squashing function applied to hidden nodes.
	Activation string

	lineage *LineageAllocator

	nodes       map[int]*NodeGene       // Node id -> NodeGene
	connections map[int]*ConnectionGene // Innovation -> ConnectionGene
	inputNodes  []*NodeGene
	outputNodes []*NodeGene

	// Ranges of ids ever held, used to classify foreign genes as excess.
	minNodeID, maxNodeID         int
	minInnovation, maxInnovation int

	nodeOrder []int // Sorted node ids; nil when stale.
	connOrder []int // Sorted innovations; nil when stale.

	pass int // Evaluation pass counter.
	mark int // Sweep stamp counter.
}

// NewGenome creates an empty genome with default parameters whose new genes
// draw ids from lineage.
func NewGenome(lineage *LineageAllocator) *Genome {
	if lineage == nil {
		panic("neat: NewGenome requires a LineageAllocator")
	}
	g := newEmptyGenome(lineage)
	g.Name = lineage.NextGenomeName()
	return g
}

func newEmptyGenome(lineage *LineageAllocator) *Genome {
	return &Genome{
		Generation:    1,
		Params:        DefaultMutationParams(),
		Activation:    DefaultActivation,
		lineage:       lineage,
		nodes:         make(map[int]*NodeGene),
		connections:   make(map[int]*ConnectionGene),
		minNodeID:     math.MaxInt,
		minInnovation: math.MaxInt,
	}
}

// NewBlankGenome builds the standard seed network: numInputs inputs named
// In<i>, numOutputs outputs named Out<i>, and one hidden node per input that
// is connected from every input and to every output with random weights.
func NewBlankGenome(lineage *LineageAllocator, numInputs, numOutputs int, r *rand.Rand) *Genome {
	g := NewGenome(lineage)
	for i := 0; i < numInputs; i++ {
		g.AddNode(RoleInput, fmt.Sprintf("In%d", i))
	}
	for i := 0; i < numOutputs; i++ {
		g.AddNode(RoleOutput, fmt.Sprintf("Out%d", i))
	}
	for h := 0; h < numInputs; h++ {
		hidden := g.AddNode(RoleHidden, "")
		for _, in := range g.inputNodes {
			g.AddConnection(in, hidden, g.Params.randomWeight(r), true)
		}
		for _, out := range g.outputNodes {
			g.AddConnection(hidden, out, g.Params.randomWeight(r), true)
		}
	}
	g.mustAudit()
	return g
}

// Copy returns a deep copy sharing the same lineage. The copy gets a fresh
// name; ids, innovations, weights and parameters are identical. Generation is
// kept as is: a copy is the same individual, and only Crossover advances it.
func (g *Genome) Copy() *Genome {
	c := g.clone()
	c.Name = g.lineage.NextGenomeName()
	return c
}

// Snapshot is Copy without a new name. It freezes a genome, fitness
// included, so later evaluation of the original leaves the snapshot alone.
func (g *Genome) Snapshot() *Genome {
	c := g.clone()
	c.Name = g.Name
	return c
}

func (g *Genome) clone() *Genome {
	c := newEmptyGenome(g.lineage)
	c.Species = g.Species
	c.Parent = g.Parent
	c.Generation = g.Generation
	c.Fitness = g.Fitness
	c.Params = g.Params.Copy()
	c.Activation = g.Activation
	for _, n := range g.Nodes() {
		c.addNodeGene(n.copy())
	}
	for _, conn := range g.Connections() {
		c.addConnectionGene(conn.Copy())
	}
	return c
}

// String returns a short summary of the Genome.
func (g *Genome) String() string {
	return fmt.Sprintf("<Genome %d %s %d+%d>", g.Generation, g.Name, len(g.nodes), len(g.connections))
}

// Lineage returns the allocator new genes are numbered from.
func (g *Genome) Lineage() *LineageAllocator { return g.lineage }

// Node returns the node with the given id, or nil.
func (g *Genome) Node(id int) *NodeGene { return g.nodes[id] }

// Connection returns the connection with the given innovation, or nil.
func (g *Genome) Connection(innovation int) *ConnectionGene { return g.connections[innovation] }

// NumNodes is the number of node genes.
func (g *Genome) NumNodes() int { return len(g.nodes) }

// NumConnections is the number of connection genes.
func (g *Genome) NumConnections() int { return len(g.connections) }

// Inputs returns the input nodes in creation order.
func (g *Genome) Inputs() []*NodeGene { return g.inputNodes }

// Outputs returns the output nodes in creation order.
func (g *Genome) Outputs() []*NodeGene { return g.outputNodes }

// Nodes returns every node ordered by id.
func (g *Genome) Nodes() []*NodeGene {
	if g.nodeOrder == nil {
		g.nodeOrder = make([]int, 0, len(g.nodes))
		for id := range g.nodes {
			g.nodeOrder = append(g.nodeOrder, id)
		}
		sort.Ints(g.nodeOrder)
	}
	out := make([]*NodeGene, len(g.nodeOrder))
	for i, id := range g.nodeOrder {
		out[i] = g.nodes[id]
	}
	return out
}

// Connections returns every connection ordered by innovation number.
func (g *Genome) Connections() []*ConnectionGene {
	if g.connOrder == nil {
		g.connOrder = make([]int, 0, len(g.connections))
		for n := range g.connections {
			g.connOrder = append(g.connOrder, n)
		}
		sort.Ints(g.connOrder)
	}
	out := make([]*ConnectionGene, len(g.connOrder))
	for i, n := range g.connOrder {
		out[i] = g.connections[n]
	}
	return out
}

// NodeIDRange returns the lowest and highest node ids this genome has held.
func (g *Genome) NodeIDRange() (lo, hi int) { return g.minNodeID, g.maxNodeID }

// InnovationRange returns the lowest and highest innovations this genome has held.
func (g *Genome) InnovationRange() (lo, hi int) { return g.minInnovation, g.maxInnovation }

// AddNode creates a node with a fresh id.
func (g *Genome) AddNode(role NodeRole, name string) *NodeGene {
	n := NewNodeGene(g.lineage.NextNodeID(), role)
	n.Name = name
	return g.addNodeGene(n)
}

func (g *Genome) addNodeGene(n *NodeGene) *NodeGene {
	if _, exists := g.nodes[n.ID]; exists {
		panic(fmt.Sprintf("node %d already present in %s", n.ID, g))
	}
	g.nodeOrder = nil
	g.minNodeID = min(g.minNodeID, n.ID)
	g.maxNodeID = max(g.maxNodeID, n.ID)
	g.nodes[n.ID] = n
	switch n.Role {
	case RoleInput:
		g.inputNodes = append(g.inputNodes, n)
	case RoleOutput:
		g.outputNodes = append(g.outputNodes, n)
	case RoleHidden:
	default:
		panic(fmt.Sprintf("unexpected role for %s", n))
	}
	return n
}

// removeNodeGene deletes a hidden node. Its connections must already be gone.
func (g *Genome) removeNodeGene(n *NodeGene) {
	if g.nodes[n.ID] != n {
		panic(fmt.Sprintf("%s is not part of %s", n, g))
	}
	if n.Role != RoleHidden {
		panic(fmt.Sprintf("only hidden nodes can be removed, not %s", n))
	}
	g.nodeOrder = nil
	delete(g.nodes, n.ID)
}

// AddConnection creates a connection with a fresh innovation number. The
// caller is responsible for keeping the graph acyclic.
func (g *Genome) AddConnection(from, to *NodeGene, weight float64, expressed bool) *ConnectionGene {
	return g.addConnectionGene(NewConnectionGene(g.lineage.NextInnovation(), from.ID, to.ID, weight, expressed))
}

func (g *Genome) addConnectionGene(c *ConnectionGene) *ConnectionGene {
	if _, exists := g.connections[c.Innovation]; exists {
		panic(fmt.Sprintf("connection %d already present in %s", c.Innovation, g))
	}
	if g.nodes[c.InNode] == nil {
		panic(fmt.Sprintf("from node %d of %s doesn't exist", c.InNode, c))
	}
	to := g.nodes[c.OutNode]
	if to == nil {
		panic(fmt.Sprintf("to node %d of %s doesn't exist", c.OutNode, c))
	}
	g.connOrder = nil
	g.minInnovation = min(g.minInnovation, c.Innovation)
	g.maxInnovation = max(g.maxInnovation, c.Innovation)
	to.link(c)
	g.connections[c.Innovation] = c
	return c
}

func (g *Genome) removeConnectionGene(c *ConnectionGene) {
	if g.connections[c.Innovation] != c {
		panic(fmt.Sprintf("%s is not part of %s", c, g))
	}
	g.connOrder = nil
	delete(g.connections, c.Innovation)
	if to := g.nodes[c.OutNode]; to != nil {
		to.unlink(c.Innovation)
	}
}

// RandomizeWeights gives every connection a fresh uniform weight.
func (g *Genome) RandomizeWeights(r *rand.Rand) {
	for _, c := range g.Connections() {
		c.SetWeight(g.Params.randomWeight(r))
	}
}

func (g *Genome) nextMark() int {
	g.mark++
	return g.mark
}
