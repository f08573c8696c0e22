package neat

import (
	"math"
	"math/rand"
)

// MutateAll applies the structural and weight operators in breeding order:
// prune, weights, add-node, add-connection.
func (g *Genome) MutateAll(r *rand.Rand) {
	g.KillConnectionMutation(r)
	g.Mutation(r)
	g.AddNodeMutation(r)
	g.AddConnectionMutation(r)
}

// Mutation perturbs connection weights. Gated by MUTATION_RATE; each
// connection is then retained, nudged by up to half of PERTURBATION_SCALE,
// or reset to a fresh uniform weight.
func (g *Genome) Mutation(r *rand.Rand) {
	p := &g.Params
	if r.Float64() >= p.MutationRate {
		return
	}
	for _, c := range g.Connections() {
		if r.Float64() <= p.ProbabilityRetaining {
			continue
		}
		if r.Float64() < p.ProbabilityPerturbing {
			c.SetWeight(c.Weight() + p.PerturbationScale*(r.Float64()-0.5))
		} else {
			c.SetWeight(p.randomWeight(r))
		}
	}
}

// AddConnectionMutation tries to add a few new connections between randomly
// chosen nodes. Gated by CONNECTION_CHANGE_RATE.
func (g *Genome) AddConnectionMutation(r *rand.Rand) {
	p := &g.Params
	if r.Float64() >= p.ConnectionChangeRate {
		return
	}
	attempts := max(1, int(p.NewConnectionRate*math.Sqrt(float64(len(g.connections)))))
	nodes := g.Nodes()
	if len(nodes) == 0 {
		return
	}
	for try := 0; try < attempts && float64(len(g.connections)) < p.MaxConnectomeSize; try++ {
		from := nodes[r.Intn(len(nodes))]
		to := nodes[r.Intn(len(nodes))]
		g.Connect(from, to, p.randomWeight(r))
	}
	g.mustAudit()
}

// Connect adds an edge between two nodes, oriented so the network stays
// acyclic: inputs only feed, outputs only receive, and between hidden nodes
// the edge runs downstream. It returns nil when no edge was added because the
// pair cannot be joined or the edge already exists.
func (g *Genome) Connect(from, to *NodeGene, weight float64) *ConnectionGene {
	if from == to {
		return nil
	}
	reversed := false
	switch from.Role {
	case RoleInput:
		if to.Role == RoleInput {
			return nil
		}
	case RoleOutput:
		if to.Role == RoleOutput {
			return nil
		}
		reversed = true
	case RoleHidden:
		switch to.Role {
		case RoleInput:
			reversed = true
		case RoleHidden:
			// to already feeds from, so the only safe direction is to->from.
			reversed = g.dependsOn(from, to)
		}
	}
	if reversed {
		from, to = to, from
	}
	if to.HasInput(from) {
		return nil
	}
	return g.AddConnection(from, to, weight, true)
}

// dependsOn reports whether target is upstream of node, following every
// incoming connection whether expressed or not.
func (g *Genome) dependsOn(node, target *NodeGene) bool {
	return g.reaches(node, target, g.nextMark())
}

func (g *Genome) reaches(node, target *NodeGene, stamp int) bool {
	if node.Role == RoleInput || node.mark == stamp {
		return false
	}
	if node == target {
		return true
	}
	node.mark = stamp
	for _, e := range node.incoming {
		if g.reaches(g.nodes[e.From], target, stamp) {
			return true
		}
	}
	return false
}

// AddNodeMutation grows the network by routing a parallel path through a
// new hidden node alongside randomly chosen connections. The original
// connection stays as it was. Gated by NODE_CHANGE_RATE.
func (g *Genome) AddNodeMutation(r *rand.Rand) {
	p := &g.Params
	if r.Float64() >= p.NodeChangeRate {
		return
	}
	count := max(1, int(p.NewNodeRate*math.Sqrt(float64(len(g.nodes)))))
	conns := g.Connections()
	if len(conns) == 0 {
		return
	}
	for i := 0; i < count && float64(len(g.nodes)) < p.MaxNetworkSize; i++ {
		c := conns[r.Intn(len(conns))]
		g.SplitConnection(c, p.randomWeight(r), p.randomWeight(r))
	}
	g.mustAudit()
}

// SplitConnection adds a hidden node H and the connections A->H and H->B
// for the connection A->B, which is left untouched.
func (g *Genome) SplitConnection(c *ConnectionGene, inWeight, outWeight float64) *NodeGene {
	a, b := g.nodes[c.InNode], g.nodes[c.OutNode]
	h := g.AddNode(RoleHidden, "")
	g.AddConnection(a, h, inWeight, true)
	g.AddConnection(h, b, outWeight, true)
	return h
}

// KillConnectionMutation prunes the network and then toggles a small share
// of connections on or off. Gated by CONNECTION_CHANGE_RATE.
//
// Pruning walks backwards from the outputs. Unexpressed connections met on
// the way are deleted with probability CONNECTION_REMOVAL_RATE. A second
// walk drops connections from hidden nodes that have no inputs left, with
// probability NODE_REMOVAL_RATE, and then deletes every hidden node it did
// not reach.
func (g *Genome) KillConnectionMutation(r *rand.Rand) {
	p := &g.Params
	if r.Float64() >= p.ConnectionChangeRate {
		return
	}
	g.removeUnusedConnections(r)
	g.removeUnusedNodes(r)

	kill := int(float64(len(g.connections)) * p.ConnectionDecayRate)
	if kill > 0 {
		conns := g.Connections()
		for i := 0; i < kill; i++ {
			c := conns[r.Intn(len(conns))]
			if c.IsExpressed() {
				c.Disable()
			} else {
				c.Enable()
			}
		}
	}
	g.mustAudit()
}

func (g *Genome) removeUnusedConnections(r *rand.Rand) {
	stamp := g.nextMark()
	rate := g.Params.ConnectionRemovalRate
	for _, out := range g.outputNodes {
		g.pruneConnections(r, out, stamp, rate)
	}
}

func (g *Genome) pruneConnections(r *rand.Rand, n *NodeGene, stamp int, rate float64) {
	if n.mark == stamp {
		return
	}
	n.mark = stamp
	for _, e := range append([]edgeRef(nil), n.incoming...) {
		c := g.connections[e.Innovation]
		if !c.IsExpressed() && r.Float64() < rate {
			g.removeConnectionGene(c)
			continue
		}
		g.pruneConnections(r, g.nodes[e.From], stamp, rate)
	}
}

func (g *Genome) removeUnusedNodes(r *rand.Rand) {
	stamp := g.nextMark()
	rate := g.Params.NodeRemovalRate
	for _, out := range g.outputNodes {
		g.pruneStubs(r, out, stamp, rate)
	}
	for _, n := range g.Nodes() {
		if n.Role != RoleHidden || n.mark == stamp {
			continue
		}
		for _, e := range append([]edgeRef(nil), n.incoming...) {
			g.removeConnectionGene(g.connections[e.Innovation])
		}
		g.removeNodeGene(n)
	}
}

func (g *Genome) pruneStubs(r *rand.Rand, n *NodeGene, stamp int, rate float64) {
	if n.mark == stamp {
		return
	}
	n.mark = stamp
	if n.Role == RoleInput {
		return
	}
	for _, e := range append([]edgeRef(nil), n.incoming...) {
		below := g.nodes[e.From]
		if below.Role != RoleHidden {
			continue
		}
		if below.NumInputs() == 0 && r.Float64() < rate {
			g.removeConnectionGene(g.connections[e.Innovation])
			continue
		}
		g.pruneStubs(r, below, stamp, rate)
	}
}
