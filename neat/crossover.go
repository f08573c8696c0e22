package neat

import (
	"fmt"
	"math"
	"math/rand"
)

// Crossover breeds a child from g, the fitter parent, and other, the less fit
// one. The child has exactly g's nodes and connections. For a connection both
// parents carry, the child takes other's copy with probability
// CROSSOVER_PROBABILITY, so only weights and expression can come from other.
// The child's parameters are g's, lightly meta-mutated.
func (g *Genome) Crossover(other *Genome, r *rand.Rand) *Genome {
	child := NewGenome(g.lineage)
	child.Parent = g.Name
	child.Generation = g.Generation + 1
	child.Activation = g.Activation
	child.Params = g.Params.Copy()
	child.Params.MetaMutate(r)

	for _, n := range g.Nodes() {
		child.addNodeGene(n.copy())
	}
	for _, c := range g.Connections() {
		gene := c
		if oc := other.connections[c.Innovation]; oc != nil && r.Float64() < g.Params.CrossoverProbability {
			if oc.InNode != c.InNode || oc.OutNode != c.OutNode {
				panic(&AuditError{Genome: other.Name, Connection: oc.Innovation,
					Reason: fmt.Sprintf("innovation %d joins different nodes than in %s", c.Innovation, g.Name)})
			}
			gene = oc
		}
		child.addConnectionGene(gene.Copy())
	}
	child.mustAudit()
	return child
}

// DistanceCoefficients weight the three terms of the compatibility distance.
type DistanceCoefficients struct {
	Excess   float64 `ini:"excess_coefficient"`
	Disjoint float64 `ini:"disjoint_coefficient"`
	Weight   float64 `ini:"weight_coefficient"`
}

// DefaultDistanceCoefficients returns C1 = C2 = C3 = 1.
func DefaultDistanceCoefficients() DistanceCoefficients {
	return DistanceCoefficients{Excess: 1, Disjoint: 1, Weight: 1}
}

// CompatibilityDistance is excess*C1 + disjoint*C2 + avgWeightDiff*C3.
func CompatibilityDistance(a, b *Genome, k DistanceCoefficients) float64 {
	return float64(CountExcessGenes(a, b))*k.Excess +
		float64(CountDisjointGenes(a, b))*k.Disjoint +
		AverageWeightDiff(a, b)*k.Weight
}

func inRange(v, lo, hi int) bool { return v >= lo && v <= hi }

// geneCounts classifies the node ids and innovations of one genome against
// the ranges another has ever held.
func geneCounts(a, b *Genome) (excess, disjoint, matching int) {
	for id := range a.nodes {
		switch {
		case !inRange(id, b.minNodeID, b.maxNodeID):
			excess++
		case b.nodes[id] == nil:
			disjoint++
		default:
			matching++
		}
	}
	for n := range a.connections {
		switch {
		case !inRange(n, b.minInnovation, b.maxInnovation):
			excess++
		case b.connections[n] == nil:
			disjoint++
		default:
			matching++
		}
	}
	return excess, disjoint, matching
}

// CountExcessGenes counts genes of either genome lying outside the range of
// ids the other has held.
func CountExcessGenes(a, b *Genome) int {
	ea, _, _ := geneCounts(a, b)
	eb, _, _ := geneCounts(b, a)
	return ea + eb
}

// CountDisjointGenes counts genes of either genome that fall inside the
// other's range but are missing from it.
func CountDisjointGenes(a, b *Genome) int {
	_, da, _ := geneCounts(a, b)
	_, db, _ := geneCounts(b, a)
	return da + db
}

// CountMatchingGenes counts node ids and innovations present in both.
func CountMatchingGenes(a, b *Genome) int {
	_, _, m := geneCounts(a, b)
	return m
}

// AverageWeightDiff is the mean absolute weight difference over the
// connections both genomes carry, or 0 if they share none.
func AverageWeightDiff(a, b *Genome) float64 {
	matching := 0
	diff := 0.0
	for _, c := range a.Connections() {
		if oc := b.connections[c.Innovation]; oc != nil {
			matching++
			diff += math.Abs(c.Weight() - oc.Weight())
		}
	}
	if matching == 0 {
		return 0
	}
	return diff / float64(matching)
}
