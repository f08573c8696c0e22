package neat

import (
	"fmt"
	"math/rand"
	"sort"
)

// MutationParams are the per-genome rates that drive the mutation operators.
// The mutatable ones drift slightly every time a child is bred, so good
// settings are inherited along with good weights.
type MutationParams struct {
	LearningRate          float64 `ini:"learning_rate"`           // Scale of the drift applied to the mutatable parameters.
	MutationRate          float64 `ini:"mutation_rate"`           // Probability of a weight mutation pass.
	ProbabilityRetaining  float64 `ini:"probability_retaining"`   // Probability a weight is left alone in that pass.
	ProbabilityPerturbing float64 `ini:"probability_perturbing"`  // Otherwise, probability it is nudged rather than reset.
	PerturbationScale     float64 `ini:"perturbation_scale"`      // A nudge is uniform in +-scale/2.
	ResetWeightMax        float64 `ini:"reset_weight_max"`        // Upper bound for fresh weights.
	ResetWeightMin        float64 `ini:"reset_weight_min"`        // Lower bound for fresh weights.
	CrossoverProbability  float64 `ini:"crossover_probability"`   // Probability of taking the other parent's copy of a shared gene.
	NodeChangeRate        float64 `ini:"node_change_rate"`        // Probability of an add-node pass.
	ConnectionChangeRate  float64 `ini:"connection_change_rate"`  // Probability of an add-connection or pruning pass.
	NewConnectionRate     float64 `ini:"new_connection_rate"`     // Attempts per pass are rate*sqrt(#connections).
	ConnectionDecayRate   float64 `ini:"connection_decay_rate"`   // Fraction of connections toggled per pruning pass.
	ConnectionRemovalRate float64 `ini:"connection_removal_rate"` // Probability an unexpressed connection is deleted.
	NodeRemovalRate       float64 `ini:"node_removal_rate"`       // Probability an input-less hidden node is deleted.
	NewNodeRate           float64 `ini:"new_node_rate"`           // Nodes per pass are rate*sqrt(#nodes).
	MaxNetworkSize        float64 `ini:"max_network_size"`        // Cap on nodes.
	MaxConnectomeSize     float64 `ini:"max_connectome_size"`     // Cap on connections.

	// Extra holds parameters read from files that this version does not know
	// about. They are carried along and written back unchanged.
	Extra map[string]float64 `ini:"-"`
}

type paramSpec struct {
	key       string
	def       float64
	mutatable bool
	field     func(*MutationParams) *float64
}

// paramSpecs is in persisted order; LEARNING_RATE must stay first so the
// meta-mutation pass updates it before scaling the others.
var paramSpecs = []paramSpec{
	{"LEARNING_RATE", 0.1, true, func(p *MutationParams) *float64 { return &p.LearningRate }},
	{"MUTATION_RATE", 0.5, true, func(p *MutationParams) *float64 { return &p.MutationRate }},
	{"PROBABILITY_RETAINING", 0.9, true, func(p *MutationParams) *float64 { return &p.ProbabilityRetaining }},
	{"PROBABILITY_PERTURBING", 0.9, true, func(p *MutationParams) *float64 { return &p.ProbabilityPerturbing }},
	{"PERTURBATION_SCALE", 0.1, true, func(p *MutationParams) *float64 { return &p.PerturbationScale }},
	{"RESET_WEIGHT_MAX", 1, false, func(p *MutationParams) *float64 { return &p.ResetWeightMax }},
	{"RESET_WEIGHT_MIN", -1, false, func(p *MutationParams) *float64 { return &p.ResetWeightMin }},
	{"CROSSOVER_PROBABILITY", 0.5, true, func(p *MutationParams) *float64 { return &p.CrossoverProbability }},
	{"NODE_CHANGE_RATE", 0.1, true, func(p *MutationParams) *float64 { return &p.NodeChangeRate }},
	{"CONNECTION_CHANGE_RATE", 0.2, true, func(p *MutationParams) *float64 { return &p.ConnectionChangeRate }},
	{"NEW_CONNECTION_RATE", 0.01, true, func(p *MutationParams) *float64 { return &p.NewConnectionRate }},
	{"CONNECTION_DECAY_RATE", 0.001, true, func(p *MutationParams) *float64 { return &p.ConnectionDecayRate }},
	{"CONNECTION_REMOVAL_RATE", 0.2, true, func(p *MutationParams) *float64 { return &p.ConnectionRemovalRate }},
	{"NODE_REMOVAL_RATE", 1.0, false, func(p *MutationParams) *float64 { return &p.NodeRemovalRate }},
	{"NEW_NODE_RATE", 0.01, true, func(p *MutationParams) *float64 { return &p.NewNodeRate }},
	{"MAX_NETWORK_SIZE", 2000, false, func(p *MutationParams) *float64 { return &p.MaxNetworkSize }},
	{"MAX_CONNECTOME_SIZE", 20000, false, func(p *MutationParams) *float64 { return &p.MaxConnectomeSize }},
}

// DefaultMutationParams returns the stock parameter set.
func DefaultMutationParams() MutationParams {
	var p MutationParams
	for _, s := range paramSpecs {
		*s.field(&p) = s.def
	}
	return p
}

// Copy returns a deep copy, including unknown parameters.
func (p MutationParams) Copy() MutationParams {
	cp := p
	if p.Extra != nil {
		cp.Extra = make(map[string]float64, len(p.Extra))
		for k, v := range p.Extra {
			cp.Extra[k] = v
		}
	}
	return cp
}

// Get returns the named parameter, known or not.
func (p *MutationParams) Get(key string) (float64, bool) {
	for _, s := range paramSpecs {
		if s.key == key {
			return *s.field(p), true
		}
	}
	v, ok := p.Extra[key]
	return v, ok
}

// Set stores the named parameter. Unknown keys go to Extra.
func (p *MutationParams) Set(key string, v float64) {
	for _, s := range paramSpecs {
		if s.key == key {
			*s.field(p) = v
			return
		}
	}
	if p.Extra == nil {
		p.Extra = make(map[string]float64)
	}
	p.Extra[key] = v
}

// Keys lists known parameters in canonical order followed by unknown ones
// sorted by name.
func (p *MutationParams) Keys() []string {
	keys := make([]string, 0, len(paramSpecs)+len(p.Extra))
	for _, s := range paramSpecs {
		keys = append(keys, s.key)
	}
	extra := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

// Len is the number of parameters that will be persisted.
func (p *MutationParams) Len() int { return len(paramSpecs) + len(p.Extra) }

// MetaMutate lets each mutatable parameter drift by a small random amount
// proportional to LearningRate, clipped to [0, 1]. A negative learning rate
// freezes the parameters.
func (p *MutationParams) MetaMutate(r *rand.Rand) {
	learn := p.LearningRate
	if learn < 0 {
		return
	}
	for _, s := range paramSpecs {
		if !s.mutatable {
			continue
		}
		f := s.field(p)
		v := *f + (r.Float64()-0.5)*learn*(*f+0.01)
		*f = clamp(v, 0, 1)
		if s.key == "LEARNING_RATE" {
			learn = *f
		}
	}
}

// Validate checks the parameters a genome cannot work without.
func (p *MutationParams) Validate() error {
	if p.ResetWeightMax < p.ResetWeightMin {
		return fmt.Errorf("reset_weight_max (%g) cannot be less than reset_weight_min (%g)", p.ResetWeightMax, p.ResetWeightMin)
	}
	if p.MaxNetworkSize < 0 || p.MaxConnectomeSize < 0 {
		return fmt.Errorf("size caps cannot be negative")
	}
	return nil
}

// randomWeight draws a fresh weight in [ResetWeightMin, ResetWeightMax].
func (p *MutationParams) randomWeight(r *rand.Rand) float64 {
	return r.Float64()*(p.ResetWeightMax-p.ResetWeightMin) + p.ResetWeightMin
}
