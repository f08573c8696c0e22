package neat

import (
	"math/rand"
	"sort"
)

// Reproduction breeds the next cohort from a speciated, evaluated one.
type Reproduction struct {
	Config *ReproductionConfig
}

// NewReproduction creates a new reproduction manager.
func NewReproduction(config *ReproductionConfig) *Reproduction {
	return &Reproduction{Config: config}
}

// Reproduce returns a cohort of exactly size genomes.
//
// Species are visited in order of average fitness. From each, the best
// Elitism members survive as they are, and the two best are also crossed to
// make one unmutated child. Every remaining slot picks a species with
// probability proportional to its average fitness, then two parents within it
// proportional to their fitness, and breeds a mutated child. Each slot draws
// from its own generator seeded from r, so a slot's child depends only on
// that seed and the parents.
func (rp *Reproduction) Reproduce(species []*Species, size int, r *rand.Rand) []*Genome {
	ranked := make([]*Species, 0, len(species))
	for _, s := range species {
		if len(s.Members) > 0 {
			ranked = append(ranked, s)
		}
	}
	if len(ranked) == 0 || size <= 0 {
		return nil
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].AverageFitness() > ranked[j].AverageFitness() })

	next := make([]*Genome, 0, size)
	for _, s := range ranked {
		elite := s.Best(max(0, rp.Config.Elitism))
		next = append(next, elite...)
		if len(elite) >= 2 {
			next = append(next, elite[0].Crossover(elite[1], r))
		}
		if len(next) >= size {
			return next[:size]
		}
	}

	weights := make([]float64, len(ranked))
	for i, s := range ranked {
		weights[i] = s.AverageFitness()
	}
	for len(next) < size {
		sr := rand.New(rand.NewSource(r.Int63()))
		next = append(next, rp.breed(ranked[weightedIndex(sr, weights)], sr))
	}
	return next
}

// breed crosses two fitness-weighted parents from s and mutates the child.
func (rp *Reproduction) breed(s *Species, r *rand.Rand) *Genome {
	fitness := s.GetFitnesses()
	a := s.Members[weightedIndex(r, fitness)]
	b := s.Members[weightedIndex(r, fitness)]
	if b.Fitness > a.Fitness {
		a, b = b, a
	}
	child := a.Crossover(b, r)
	child.MutateAll(r)
	return child
}
