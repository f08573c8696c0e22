package neat

import (
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"strconv"
)

// Species represents a group of genetically similar genomes. It only lives
// for one generation: every speciation pass re-chooses its mascot and
// refills its members.
type Species struct {
	Key     int       // Unique identifier for the species.
	Created int       // Generation number when the species was created.
	Mascot  *Genome   // Genome newcomers are compared against.
	Members []*Genome // Genomes belonging to this species, in cohort order.

	fitnessTotal float64
}

// NewSpecies creates a species whose mascot is its founder.
func NewSpecies(key, generation int, founder *Genome) *Species {
	return &Species{Key: key, Created: generation, Mascot: founder}
}

// Name is the label stored in member genomes.
func (s *Species) Name() string { return strconv.Itoa(s.Key) }

// AddFitness accumulates one member's fitness.
func (s *Species) AddFitness(f float64) { s.fitnessTotal += f }

// TotalFitness is the accumulated fitness of the members.
func (s *Species) TotalFitness() float64 { return s.fitnessTotal }

// AverageFitness is the accumulated fitness divided by the member count.
func (s *Species) AverageFitness() float64 {
	if len(s.Members) == 0 {
		return 0
	}
	return s.fitnessTotal / float64(len(s.Members))
}

// GetFitnesses returns a slice containing the fitness values of all members.
func (s *Species) GetFitnesses() []float64 {
	fitnesses := make([]float64, 0, len(s.Members))
	for _, g := range s.Members {
		fitnesses = append(fitnesses, g.Fitness)
	}
	return fitnesses
}

// Best returns up to n members, fittest first. Ties keep cohort order.
func (s *Species) Best(n int) []*Genome {
	ranked := append([]*Genome(nil), s.Members...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Fitness > ranked[j].Fitness })
	if n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

// reset picks a new mascot from the previous members and empties the
// species. A species with no members keeps its mascot.
func (s *Species) reset(r *rand.Rand) {
	if len(s.Members) > 0 {
		s.Mascot = s.Members[r.Intn(len(s.Members))]
	}
	s.Members = s.Members[:0]
	s.fitnessTotal = 0
}

// --------------------------- SpeciesSet ---------------------------

// SpeciesSet manages the collection of species within a cohort and the
// distance threshold that decides membership.
type SpeciesSet struct {
	Species      []*Species // In creation order.
	Threshold    float64    // Current compatibility distance threshold (DT).
	Coefficients DistanceCoefficients
	Config       *SpeciesSetConfig
	Logger       *slog.Logger

	indexer int
}

// NewSpeciesSet creates a new species set manager.
func NewSpeciesSet(config *SpeciesSetConfig, k DistanceCoefficients) *SpeciesSet {
	return &SpeciesSet{
		Threshold:    config.CompatibilityThreshold,
		Coefficients: k,
		Config:       config,
		Logger:       slog.Default(),
		indexer:      1,
	}
}

// TargetCount is the number of species the threshold is steered towards.
func TargetCount(cohortSize int) int {
	return int(math.Round(math.Sqrt(float64(cohortSize))))
}

// Speciate partitions the cohort. Each pass assigns every genome to the
// first species whose mascot is within the threshold, founding a new species
// when none is. While the number of occupied species is more than one away
// from TargetCount the threshold is scaled and the pass repeated, up to
// MaxAdjustPasses passes. The threshold left behind is always the one the
// final partition was made with. Empty species are dropped at the end.
func (ss *SpeciesSet) Speciate(cohort []*Genome, generation int, r *rand.Rand) {
	target := TargetCount(len(cohort))
	passes := max(1, ss.Config.MaxAdjustPasses)
	for pass := 1; ; pass++ {
		count := ss.assign(cohort, generation, r)
		if count >= target-1 && count <= target+1 {
			ss.Logger.Debug("speciated", "generation", generation, "species", count, "threshold", ss.Threshold, "passes", pass)
			break
		}
		if pass >= passes {
			ss.Logger.Debug("species target not reached",
				"generation", generation, "species", count, "target", target, "threshold", ss.Threshold, "passes", pass)
			break
		}
		old := ss.Threshold
		if count > target+1 {
			ss.Threshold *= 1.5
		} else {
			ss.Threshold = math.Max(ss.Threshold*0.75, ss.Config.MinThreshold)
		}
		ss.Logger.Debug("adjusting compatibility threshold",
			"generation", generation, "species", count, "target", target, "from", old, "to", ss.Threshold)
	}
	ss.dropEmpty()
}

func (ss *SpeciesSet) assign(cohort []*Genome, generation int, r *rand.Rand) int {
	for _, s := range ss.Species {
		s.reset(r)
	}
	occupied := 0
	for _, g := range cohort {
		var home *Species
		for _, s := range ss.Species {
			if CompatibilityDistance(s.Mascot, g, ss.Coefficients) < ss.Threshold {
				home = s
				break
			}
		}
		if home == nil {
			home = NewSpecies(ss.indexer, generation, g)
			ss.indexer++
			ss.Species = append(ss.Species, home)
		}
		if len(home.Members) == 0 {
			occupied++
		}
		home.Members = append(home.Members, g)
		g.Species = home.Name()
	}
	return occupied
}

func (ss *SpeciesSet) dropEmpty() {
	kept := ss.Species[:0]
	for _, s := range ss.Species {
		if len(s.Members) > 0 {
			kept = append(kept, s)
		}
	}
	clear(ss.Species[len(kept):])
	ss.Species = kept
}

// SpeciesOf returns the species a genome was assigned to in the last pass.
func (ss *SpeciesSet) SpeciesOf(g *Genome) *Species {
	for _, s := range ss.Species {
		if s.Name() == g.Species {
			return s
		}
	}
	return nil
}
