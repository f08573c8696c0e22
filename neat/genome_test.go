package neat

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blank(t *testing.T, inputs, outputs int) *Genome {
	t.Helper()
	g := NewBlankGenome(NewLineageAllocator(), inputs, outputs, rand.New(rand.NewSource(7)))
	require.NoError(t, g.Audit())
	return g
}

func setAllWeights(g *Genome, w float64) {
	for _, c := range g.Connections() {
		c.SetWeight(w)
	}
}

func TestBlankGenomeLayout(t *testing.T) {
	g := blank(t, 3, 2)

	assert.Equal(t, 3+2+3, g.NumNodes())
	assert.Equal(t, 3*(3+2), g.NumConnections())
	require.Len(t, g.Inputs(), 3)
	require.Len(t, g.Outputs(), 2)
	assert.Equal(t, "In0", g.Inputs()[0].Name)
	assert.Equal(t, "Out1", g.Outputs()[1].Name)

	for _, n := range g.Nodes() {
		switch n.Role {
		case RoleInput:
			assert.Zero(t, n.NumInputs())
		case RoleHidden:
			assert.Equal(t, 3, n.NumInputs())
		case RoleOutput:
			assert.Equal(t, 3, n.NumInputs())
		}
	}
	for _, c := range g.Connections() {
		assert.True(t, c.IsExpressed())
		assert.GreaterOrEqual(t, c.Weight(), -1.0)
		assert.LessOrEqual(t, c.Weight(), 1.0)
	}
}

func TestCopyIsDeep(t *testing.T) {
	g := blank(t, 2, 1)
	g.Fitness = 0.5
	c := g.Copy()

	assert.NotEqual(t, g.Name, c.Name)
	assert.Equal(t, g.Fitness, c.Fitness)
	assert.Equal(t, g.Generation, c.Generation)
	require.Equal(t, g.NumConnections(), c.NumConnections())

	c.Connections()[0].SetWeight(0.25)
	c.Connections()[1].Disable()
	assert.NotEqual(t, 0.25, g.Connections()[0].Weight())
	assert.True(t, g.Connections()[1].Enabled())

	c.SplitConnection(c.Connections()[0], 1, 1)
	assert.Equal(t, 5, g.NumNodes())
	assert.Equal(t, 6, c.NumNodes())
}

func TestSnapshotKeepsNameAndFitness(t *testing.T) {
	g := blank(t, 2, 1)
	g.Fitness = 10
	created := g.Lineage().GenomesCreated()

	s := g.Snapshot()
	g.Fitness = 1
	g.Connections()[0].SetWeight(0.25)

	assert.Equal(t, g.Name, s.Name)
	assert.Equal(t, 10.0, s.Fitness)
	assert.NotEqual(t, 0.25, s.Connections()[0].Weight())
	assert.Equal(t, created, g.Lineage().GenomesCreated(), "a snapshot takes no new name")
	require.NoError(t, s.Audit())
}

func TestWeightsAreQuantized(t *testing.T) {
	c := NewConnectionGene(1, 1, 2, 0.1, true)
	assert.Equal(t, QuantizeWeight(0.1), c.QuantizedWeight())
	assert.Equal(t, float64(c.QuantizedWeight())/WeightScale, c.Weight())

	c.SetWeight(0)
	assert.True(t, c.Enabled())
	assert.False(t, c.IsExpressed())
}

func TestNewConnectionGeneRejectsSelfLoop(t *testing.T) {
	assert.Panics(t, func() { NewConnectionGene(1, 4, 4, 1, true) })
}

func TestEvaluateBlankNetwork(t *testing.T) {
	g := blank(t, 2, 1)
	setAllWeights(g, 1)

	out, err := g.Activate([]float64{1, 0})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.InDelta(t, 2*ApproximateTanh(1), out[0], 1e-12)

	out, err = g.Activate([]float64{0, 0})
	require.NoError(t, err)
	assert.Zero(t, out[0])
}

func TestEvaluateSkipsUnexpressedConnections(t *testing.T) {
	g := blank(t, 2, 1)
	setAllWeights(g, 1)
	hidden := g.Outputs()[0].Incoming()
	require.Len(t, hidden, 2)
	g.Connection(hidden[1]).Disable()

	out, err := g.Activate([]float64{1, 1})
	require.NoError(t, err)
	assert.InDelta(t, ApproximateTanh(2), out[0], 1e-12)
}

func TestEvaluateRejectsWrongInputCount(t *testing.T) {
	g := blank(t, 2, 1)
	_, err := g.Activate([]float64{1})
	assert.Error(t, err)
}

func TestEvaluateUnknownActivation(t *testing.T) {
	g := blank(t, 2, 1)
	g.Activation = "nope"
	_, err := g.Activate([]float64{1, 1})
	assert.Error(t, err)
}

func TestConnectOrientation(t *testing.T) {
	g := blank(t, 2, 2)
	in0, in1 := g.Inputs()[0], g.Inputs()[1]
	out0, out1 := g.Outputs()[0], g.Outputs()[1]

	c := g.Connect(out0, in0, 0.5)
	require.NotNil(t, c)
	assert.Equal(t, in0.ID, c.InNode)
	assert.Equal(t, out0.ID, c.OutNode)

	assert.Nil(t, g.Connect(in0, in1, 1), "input to input")
	assert.Nil(t, g.Connect(out0, out1, 1), "output to output")
	assert.Nil(t, g.Connect(in0, in0, 1), "self")
	assert.Nil(t, g.Connect(in0, out0, 1), "duplicate")

	var hidden []*NodeGene
	for _, n := range g.Nodes() {
		if n.Role == RoleHidden {
			hidden = append(hidden, n)
		}
	}
	require.Len(t, hidden, 2)
	h0, h1 := hidden[0], hidden[1]

	// Hidden to input runs the other way and already exists.
	assert.Nil(t, g.Connect(h0, in1, 1))

	c = g.Connect(h0, h1, 1)
	require.NotNil(t, c)
	assert.Equal(t, h0.ID, c.InNode)
	assert.Nil(t, g.Connect(h1, h0, 1), "reversed into the existing edge")
	require.NoError(t, g.Audit())
}

func TestSplitConnectionAddsParallelPath(t *testing.T) {
	g := blank(t, 2, 1)
	before := g.Lineage().LastInnovation()
	c := g.Connections()[0]
	a, b := g.Node(c.InNode), g.Node(c.OutNode)

	h := g.SplitConnection(c, 0.5, -0.5)

	assert.True(t, c.IsExpressed(), "split connection stays expressed")
	assert.Equal(t, RoleHidden, h.Role)
	assert.True(t, h.HasInput(a))
	assert.True(t, b.HasInput(h))
	assert.Equal(t, 8, g.NumConnections())
	_, hi := g.InnovationRange()
	assert.Equal(t, before+2, hi)
	require.NoError(t, g.Audit())
}

func TestKillConnectionMutationPrunesDeadBranch(t *testing.T) {
	g := blank(t, 2, 1)
	g.Params.ConnectionChangeRate = 1
	g.Params.ConnectionRemovalRate = 1
	g.Params.NodeRemovalRate = 1
	g.Params.ConnectionDecayRate = 0

	var dead *NodeGene
	for _, n := range g.Nodes() {
		if n.Role == RoleHidden {
			dead = n
			break
		}
	}
	require.NotNil(t, dead)
	for _, innov := range dead.Incoming() {
		g.Connection(innov).Disable()
	}
	deadID := dead.ID

	g.KillConnectionMutation(rand.New(rand.NewSource(1)))

	assert.Nil(t, g.Node(deadID))
	assert.Equal(t, 4, g.NumNodes())
	assert.Equal(t, 3, g.NumConnections())
	for _, c := range g.Connections() {
		assert.NotEqual(t, deadID, c.InNode)
		assert.NotEqual(t, deadID, c.OutNode)
		assert.True(t, c.IsExpressed())
	}
	require.NoError(t, g.Audit())
}

func TestRandomMutationKeepsGenomeAcyclic(t *testing.T) {
	g := blank(t, 3, 2)
	g.Params.MutationRate = 1
	g.Params.NodeChangeRate = 1
	g.Params.ConnectionChangeRate = 1
	g.Params.NewConnectionRate = 1
	g.Params.NewNodeRate = 0.5
	g.Params.ConnectionDecayRate = 0.05
	g.Params.ConnectionRemovalRate = 0.5
	g.Params.MaxNetworkSize = 300
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 60; i++ {
		lastNode := g.Lineage().LastNodeID()
		lastInnov := g.Lineage().LastInnovation()
		known := make(map[int]bool)
		for _, n := range g.Nodes() {
			known[n.ID] = true
		}
		knownConn := make(map[int]bool)
		for _, c := range g.Connections() {
			knownConn[c.Innovation] = true
		}

		require.NotPanics(t, func() { g.MutateAll(r) })
		require.NoError(t, g.Audit())

		for _, n := range g.Nodes() {
			if !known[n.ID] {
				assert.Greater(t, n.ID, lastNode)
			}
		}
		for _, c := range g.Connections() {
			assert.NotEqual(t, c.InNode, c.OutNode)
			assert.NotEqual(t, RoleOutput, g.Node(c.InNode).Role)
			assert.NotEqual(t, RoleInput, g.Node(c.OutNode).Role)
			if !knownConn[c.Innovation] {
				assert.Greater(t, c.Innovation, lastInnov)
			}
		}
	}
	assert.LessOrEqual(t, float64(g.NumNodes()), g.Params.MaxNetworkSize+1)
	assert.Len(t, g.Inputs(), 3)
	assert.Len(t, g.Outputs(), 2)

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	pos := make(map[int]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for _, c := range g.Connections() {
		assert.Less(t, pos[c.InNode], pos[c.OutNode])
	}

	_, err = g.Activate([]float64{0.1, -0.2, 0.3})
	assert.NoError(t, err)
}

func TestMutationZeroRatesLeaveGenomeAlone(t *testing.T) {
	g := blank(t, 2, 1)
	g.Params.MutationRate = 0
	g.Params.NodeChangeRate = 0
	g.Params.ConnectionChangeRate = 0
	before := g.Copy()

	g.MutateAll(rand.New(rand.NewSource(3)))

	assert.Zero(t, CompatibilityDistance(g, before, DefaultDistanceCoefficients()))
}

func TestAuditDetectsBrokenGenomes(t *testing.T) {
	t.Run("unlinked connection", func(t *testing.T) {
		g := blank(t, 2, 1)
		delete(g.connections, g.Connections()[0].Innovation)
		g.connOrder = nil
		var ae *AuditError
		require.True(t, errors.As(g.Audit(), &ae))
		assert.Equal(t, g.Name, ae.Genome)
	})

	t.Run("cycle", func(t *testing.T) {
		g := blank(t, 2, 1)
		var hidden []*NodeGene
		for _, n := range g.Nodes() {
			if n.Role == RoleHidden {
				hidden = append(hidden, n)
			}
		}
		g.addConnectionGene(NewConnectionGene(100, hidden[0].ID, hidden[1].ID, 1, true))
		g.addConnectionGene(NewConnectionGene(101, hidden[1].ID, hidden[0].ID, 1, false))
		err := g.Audit()
		var ae *AuditError
		require.True(t, errors.As(err, &ae))
		assert.Contains(t, err.Error(), "acyclic")
	})

	t.Run("edge out of an output", func(t *testing.T) {
		g := blank(t, 2, 2)
		g.addConnectionGene(NewConnectionGene(100, g.Outputs()[0].ID, g.Outputs()[1].ID, 1, true))
		assert.ErrorContains(t, g.Audit(), "leaves an output")
	})

	t.Run("edge into an input", func(t *testing.T) {
		g := blank(t, 2, 1)
		g.addConnectionGene(NewConnectionGene(100, g.Inputs()[0].ID, g.Inputs()[1].ID, 1, true))
		assert.ErrorContains(t, g.Audit(), "input node has incoming")
	})
}

func TestNodeValueReadBeforeEvaluationPanics(t *testing.T) {
	g := blank(t, 2, 1)
	require.NoError(t, g.SetInputs([]float64{1, 1}))
	assert.Panics(t, func() { g.OutputValues() })
}

func TestNodeRoleRoundTrip(t *testing.T) {
	for _, r := range []NodeRole{RoleInput, RoleHidden, RoleOutput} {
		got, err := ParseNodeRole(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
	_, err := ParseNodeRole("BIAS")
	assert.Error(t, err)
}
