package neat

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrossoverKeepsFitterTopology(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	fit := blank(t, 2, 1)
	weak := fit.Copy()
	weak.RandomizeWeights(r)
	weak.SplitConnection(weak.Connections()[0], 1, 1)
	fit.Params.CrossoverProbability = 1

	child := fit.Crossover(weak, r)

	assert.Equal(t, fit.Name, child.Parent)
	assert.Equal(t, fit.Generation+1, child.Generation)
	assert.Equal(t, fit.NumNodes(), child.NumNodes())
	require.Equal(t, fit.NumConnections(), child.NumConnections())
	for _, c := range child.Connections() {
		// Every shared gene came from the weaker parent.
		assert.Equal(t, weak.Connection(c.Innovation).Weight(), c.Weight())
	}
	assert.Zero(t, CountExcessGenes(child, fit))
	assert.Zero(t, CountDisjointGenes(child, fit))
}

func TestSelfCrossoverPreservesGenome(t *testing.T) {
	g := blank(t, 3, 2)
	child := g.Crossover(g.Copy(), rand.New(rand.NewSource(2)))

	assert.Zero(t, CompatibilityDistance(g, child, DefaultDistanceCoefficients()))
	assert.Equal(t, CountMatchingGenes(g, child), g.NumNodes()+g.NumConnections())
}

func TestCrossoverMismatchedEndpointsPanics(t *testing.T) {
	a := blank(t, 2, 1)
	b := blank(t, 3, 1)
	a.Params.CrossoverProbability = 1
	require.NotEqual(t, a.Connection(1).OutNode, b.Connection(1).OutNode)

	assert.Panics(t, func() { a.Crossover(b, rand.New(rand.NewSource(1))) })
}

func TestCrossoverMetaMutatesParams(t *testing.T) {
	g := blank(t, 2, 1)
	child := g.Crossover(g, rand.New(rand.NewSource(9)))
	assert.NotEqual(t, g.Params.MutationRate, child.Params.MutationRate)
	assert.Equal(t, g.Params.ResetWeightMax, child.Params.ResetWeightMax)

	g.Params.LearningRate = -1
	frozen := g.Crossover(g, rand.New(rand.NewSource(9)))
	assert.Equal(t, g.Params.MutationRate, frozen.Params.MutationRate)
}

func TestCompatibilityDistance(t *testing.T) {
	a := blank(t, 2, 1)
	b := a.Copy()
	k := DefaultDistanceCoefficients()
	assert.Zero(t, CompatibilityDistance(a, a, k))
	assert.Zero(t, CompatibilityDistance(a, b, k))

	// b grows first, so its genes land inside a's later range.
	b.SplitConnection(b.Connection(1), 1, 1)
	a.SplitConnection(a.Connection(2), 1, 1)

	assert.Equal(t, 3, CountExcessGenes(a, b))
	assert.Equal(t, 3, CountDisjointGenes(a, b))
	assert.Equal(t, 3, CountExcessGenes(b, a))
	assert.Zero(t, AverageWeightDiff(a, b))
	assert.Equal(t, 6.0, CompatibilityDistance(a, b, k))

	b.Connection(1).SetWeight(b.Connection(1).Weight() + 0.5)
	want := 6 + 0.5/6
	assert.InDelta(t, want, CompatibilityDistance(a, b, k), 1e-6)
	assert.InDelta(t, 3*2+3*0.5+0.5/6*4, CompatibilityDistance(a, b, DistanceCoefficients{Excess: 2, Disjoint: 0.5, Weight: 4}), 1e-6)
}

func TestParamsMetaMutateStaysInRange(t *testing.T) {
	p := DefaultMutationParams()
	p.LearningRate = 1
	r := rand.New(rand.NewSource(11))
	for i := 0; i < 500; i++ {
		p.MetaMutate(r)
		for _, s := range paramSpecs {
			if !s.mutatable {
				continue
			}
			v := *s.field(&p)
			assert.GreaterOrEqual(t, v, 0.0, s.key)
			assert.LessOrEqual(t, v, 1.0, s.key)
		}
	}
	assert.Equal(t, 2000.0, p.MaxNetworkSize)
}

func TestParamsExtraKeys(t *testing.T) {
	p := DefaultMutationParams()
	p.Set("ZETA", 1)
	p.Set("ALPHA", 2)
	p.Set("MUTATION_RATE", 0.75)

	keys := p.Keys()
	require.Len(t, keys, len(paramSpecs)+2)
	assert.Equal(t, "LEARNING_RATE", keys[0])
	assert.Equal(t, []string{"ALPHA", "ZETA"}, keys[len(keys)-2:])
	assert.Equal(t, 0.75, p.MutationRate)

	cp := p.Copy()
	cp.Set("ALPHA", 3)
	v, ok := p.Get("ALPHA")
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
	_, ok = p.Get("MISSING")
	assert.False(t, ok)
}
