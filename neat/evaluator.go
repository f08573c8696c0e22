package neat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neatcore/dagneat/neat/history"
)

// GenomeEvaluator is supplied by the caller to score genomes.
//
// Evaluate may be called from several goroutines at once, each with a
// different genome; it must only modify the genome it is given.
type GenomeEvaluator interface {
	Evaluate(ctx context.Context, g *Genome) (float64, error)
	// CreateNetwork builds the seed topology. Genes must be numbered from lineage.
	CreateNetwork(lineage *LineageAllocator) *Genome
	// SetBest is told about every new overall best genome.
	SetBest(g *Genome)
}

// GenerationHooks is optionally implemented by a GenomeEvaluator to be told
// when the evaluation phase of a generation starts and ends.
type GenerationHooks interface {
	StartGeneration(generation int)
	FinishGeneration(generation int)
}

// NeatEvaluator runs the generational loop: speciate, evaluate, checkpoint,
// reproduce.
type NeatEvaluator struct {
	Config       *Config
	Logger       *slog.Logger
	Lineage      *LineageAllocator
	SpeciesSet   *SpeciesSet
	Reproduction *Reproduction
	Checkpoints  *Checkpointer // nil when checkpointing is disabled.
	History      history.Store // nil disables run history.
	RunID        string
	Generation   int     // Last generation started.
	BestGenome   *Genome // Snapshot of the best genome found so far

	evaluator GenomeEvaluator
	cohort    []*Genome
	ranked    []*Genome // Last evaluated cohort, best first.
	saved     int       // Generation of the last checkpoint.
	stop      atomic.Bool
	tracer    trace.Tracer
}

// NewNeatEvaluator validates config and prepares a run. The cohort is seeded
// lazily by Run unless Resume restores one first.
func NewNeatEvaluator(config *Config, evaluator GenomeEvaluator) (*NeatEvaluator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	store, err := history.NewStore(config.Storage.History, config.Storage.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create history store: %w", err)
	}
	e := &NeatEvaluator{
		Config:       config,
		Logger:       slog.Default(),
		Lineage:      NewLineageAllocator(),
		SpeciesSet:   NewSpeciesSet(&config.SpeciesSet, config.Genome.Coefficients()),
		Reproduction: NewReproduction(&config.Reproduction),
		History:      store,
		RunID:        uuid.NewString(),
		evaluator:    evaluator,
		tracer:       otel.Tracer("neat"),
	}
	if config.Checkpoint.Dir != "" {
		e.Checkpoints = NewCheckpointer(config.Checkpoint.Dir)
	}
	return e, nil
}

// SetLogger replaces the logger of the evaluator and its helpers.
func (e *NeatEvaluator) SetLogger(l *slog.Logger) {
	e.Logger = l
	e.SpeciesSet.Logger = l
	if e.Checkpoints != nil {
		e.Checkpoints.Logger = l
	}
}

// Cohort returns the genomes of the current generation.
func (e *NeatEvaluator) Cohort() []*Genome { return append([]*Genome(nil), e.cohort...) }

// Stop asks Run to return at the next generation boundary.
func (e *NeatEvaluator) Stop() { e.stop.Store(true) }

// Seed builds the first cohort: the evaluator's prototype plus copies of it
// with freshly drawn weights.
func (e *NeatEvaluator) Seed() error {
	proto := e.evaluator.CreateNetwork(e.Lineage)
	if proto == nil {
		return errors.New("CreateNetwork returned no genome")
	}
	if proto.lineage != e.Lineage {
		e.Lineage.ObserveGenome(proto)
		proto.lineage = e.Lineage
	}
	if err := proto.Audit(); err != nil {
		return fmt.Errorf("seed genome: %w", err)
	}
	proto.Params = e.Config.Mutation.Copy()
	proto.Activation = e.Config.Genome.HiddenActivation

	r := e.generationRand(0)
	e.cohort = make([]*Genome, 0, e.Config.Neat.CohortSize)
	e.cohort = append(e.cohort, proto)
	for len(e.cohort) < e.Config.Neat.CohortSize {
		g := proto.Copy()
		g.RandomizeWeights(r)
		e.cohort = append(e.cohort, g)
	}
	if e.Checkpoints != nil {
		err := e.Checkpoints.WriteManifest(RunManifest{
			RunID:      e.RunID,
			Seed:       e.Config.Neat.Seed,
			Created:    time.Now().UTC(),
			CohortSize: e.Config.Neat.CohortSize,
			Inputs:     len(proto.Inputs()),
			Outputs:    len(proto.Outputs()),
		})
		if err != nil {
			return err
		}
	}
	e.Logger.Info("seeded cohort", "run", e.RunID, "size", len(e.cohort), "nodes", proto.NumNodes(), "connections", proto.NumConnections())
	return nil
}

// Resume restores the latest checkpoint and breeds the generation that
// follows it.
func (e *NeatEvaluator) Resume() error {
	if e.Checkpoints == nil {
		return fmt.Errorf("resume: %w: checkpoint dir not configured", ErrNoCheckpoint)
	}
	cp, err := e.Checkpoints.Load(e.Lineage)
	if err != nil {
		return err
	}
	if m, err := e.Checkpoints.ReadManifest(); err == nil && m.RunID != "" {
		e.RunID = m.RunID
	} else if cp.State.RunID != "" {
		e.RunID = cp.State.RunID
	}
	e.Generation = cp.State.Generation
	e.saved = cp.State.Generation
	e.SpeciesSet.Threshold = cp.State.Threshold
	e.BestGenome = cp.Best
	e.evaluator.SetBest(e.BestGenome)

	r := e.generationRand(e.Generation)
	e.SpeciesSet.Speciate(cp.Cohort, e.Generation, r)
	e.accumulateFitness()
	e.ranked = cp.Cohort
	e.cohort = e.Reproduction.Reproduce(e.SpeciesSet.Species, e.Config.Neat.CohortSize, r)
	e.Logger.Info("resumed from checkpoint", "dir", cp.Dir, "generation", e.Generation, "best", e.BestGenome.Name, "fitness", e.BestGenome.Fitness)
	return nil
}

// Run evolves for up to generations generations, forever if generations is
// zero. It returns early when the fitness threshold is met, when Stop is
// called, or when ctx is done; the last evaluated cohort is checkpointed
// before returning.
func (e *NeatEvaluator) Run(ctx context.Context, generations int) (*Genome, error) {
	if e.History != nil {
		if err := e.History.Init(ctx); err != nil {
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
	}
	if len(e.cohort) == 0 {
		if err := e.Seed(); err != nil {
			return nil, err
		}
	}
	defer e.exportStats(context.WithoutCancel(ctx))

	for i := 0; generations <= 0 || i < generations; i++ {
		if e.stop.Load() || ctx.Err() != nil {
			e.Logger.Info("stop requested", "generation", e.Generation)
			e.finalCheckpoint()
			return e.BestGenome, context.Cause(ctx)
		}
		// A generation always runs to completion; cancellation is only
		// observed between generations.
		winner, err := e.RunGeneration(context.WithoutCancel(ctx))
		if err != nil {
			return e.BestGenome, err
		}
		if winner != nil {
			e.Logger.Info("fitness threshold met", "generation", e.Generation, "genome", winner.Name, "fitness", winner.Fitness)
			e.finalCheckpoint()
			return winner, nil
		}
	}
	e.finalCheckpoint()
	return e.BestGenome, nil
}

// RunGeneration executes a single generation of the NEAT algorithm.
// Returns the winning genome if the fitness threshold is met this generation, otherwise nil.
func (e *NeatEvaluator) RunGeneration(ctx context.Context) (*Genome, error) {
	if len(e.cohort) == 0 {
		return nil, errors.New("cohort is empty")
	}
	e.Generation++
	gen := e.Generation
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "neat.Generation",
		trace.WithAttributes(
			attribute.Int("generation", gen),
			attribute.Int("cohort_size", len(e.cohort)),
		))
	defer span.End()
	r := e.generationRand(gen)

	_, sspan := e.tracer.Start(ctx, "neat.Speciate")
	e.SpeciesSet.Speciate(e.cohort, gen, r)
	sspan.SetAttributes(attribute.Int("species", len(e.SpeciesSet.Species)), attribute.Float64("threshold", e.SpeciesSet.Threshold))
	sspan.End()

	hooks, _ := e.evaluator.(GenerationHooks)
	if hooks != nil {
		hooks.StartGeneration(gen)
	}
	failures := e.evaluateCohort(ctx)
	if hooks != nil {
		hooks.FinishGeneration(gen)
	}
	e.accumulateFitness()

	e.ranked = rankCohort(e.cohort)
	best := e.ranked[0]
	if e.BestGenome == nil || best.Fitness > e.BestGenome.Fitness {
		// Elites are scored again next generation; keep the score that won.
		e.BestGenome = best.Snapshot()
		e.evaluator.SetBest(e.BestGenome)
		e.Logger.Info("new best genome", "generation", gen, "genome", best.Name, "fitness", best.Fitness,
			"nodes", best.NumNodes(), "connections", best.NumConnections())
	}

	stats := e.generationStats(gen, failures, time.Since(start))
	e.Logger.Info("generation finished", "stats", stats)
	if e.History != nil {
		if err := e.History.Record(ctx, stats); err != nil {
			e.Logger.Warn("failed to record generation stats", "generation", gen, "error", err)
		}
	}
	span.SetAttributes(attribute.Float64("best_fitness", best.Fitness), attribute.Int("eval_failures", failures))

	if interval := e.Config.Checkpoint.Interval; interval > 0 && gen%interval == 0 {
		if err := e.checkpoint(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "checkpoint failed")
			return nil, err
		}
	}

	if !e.Config.Neat.NoFitnessTermination && best.Fitness >= e.Config.Neat.FitnessThreshold {
		return best, nil
	}

	_, rspan := e.tracer.Start(ctx, "neat.Reproduce")
	e.cohort = e.Reproduction.Reproduce(e.SpeciesSet.Species, e.Config.Neat.CohortSize, r)
	rspan.End()
	if len(e.cohort) == 0 {
		return nil, fmt.Errorf("cohort extinct in generation %d", gen)
	}
	return nil, nil
}

// evaluateCohort scores every genome, Workers at a time, and returns the
// number of failed evaluations. A failure scores zero and is dumped for
// inspection; it never aborts the generation.
func (e *NeatEvaluator) evaluateCohort(ctx context.Context) int {
	ctx, span := e.tracer.Start(ctx, "neat.Evaluate")
	defer span.End()

	var failures atomic.Int64
	p := pool.New().WithMaxGoroutines(e.Config.Neat.Workers)
	for _, g := range e.cohort {
		g := g
		p.Go(func() {
			f, err := e.evaluateOne(ctx, g)
			if err == nil && (math.IsNaN(f) || math.IsInf(f, 0)) {
				err = fmt.Errorf("fitness %v is not finite", f)
			}
			if err != nil {
				failures.Add(1)
				e.isolateFailure(g, err)
				f = 0
			}
			g.Fitness = f
		})
	}
	p.Wait()
	span.SetAttributes(attribute.Int64("failures", failures.Load()))
	return int(failures.Load())
}

func (e *NeatEvaluator) evaluateOne(ctx context.Context, g *Genome) (fitness float64, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("evaluation panicked: %v", v)
		}
	}()
	return e.evaluator.Evaluate(ctx, g)
}

func (e *NeatEvaluator) isolateFailure(g *Genome, cause error) {
	attrs := []any{"generation", e.Generation, "genome", g.Name, "error", cause}
	if e.Checkpoints != nil {
		path, err := e.Checkpoints.DumpFailed(g)
		if err != nil {
			attrs = append(attrs, "dump_error", err)
		} else {
			attrs = append(attrs, "dump", path)
		}
	}
	e.Logger.Warn("genome evaluation failed", attrs...)
}

func (e *NeatEvaluator) accumulateFitness() {
	for _, s := range e.SpeciesSet.Species {
		for _, g := range s.Members {
			s.AddFitness(g.Fitness)
		}
	}
}

func (e *NeatEvaluator) generationStats(gen, failures int, took time.Duration) history.GenerationStats {
	fitness := make([]float64, len(e.cohort))
	nodes := make([]float64, len(e.cohort))
	conns := make([]float64, len(e.cohort))
	for i, g := range e.cohort {
		fitness[i] = g.Fitness
		nodes[i] = float64(g.NumNodes())
		conns[i] = float64(g.NumConnections())
	}
	return history.GenerationStats{
		RunID:           e.RunID,
		Generation:      gen,
		CohortSize:      len(e.cohort),
		Species:         len(e.SpeciesSet.Species),
		Threshold:       e.SpeciesSet.Threshold,
		BestFitness:     MaxFloat(fitness),
		MeanFitness:     Mean(fitness),
		StdevFitness:    Stdev(fitness),
		BestGenome:      e.ranked[0].Name,
		MeanNodes:       Mean(nodes),
		MeanConnections: Mean(conns),
		EvalFailures:    failures,
		DurationSec:     took.Seconds(),
	}
}

func (e *NeatEvaluator) state() *CohortState {
	s := &CohortState{
		Generation: e.Generation,
		Threshold:  e.SpeciesSet.Threshold,
		CohortSize: e.Config.Neat.CohortSize,
		RunID:      e.RunID,
	}
	if best := e.runBest(); best != nil {
		s.Best = best.Name
		s.BestScore = best.Fitness
	}
	return s
}

func (e *NeatEvaluator) checkpoint() error {
	if e.Checkpoints == nil || len(e.ranked) == 0 {
		return nil
	}
	if _, err := e.Checkpoints.Save(e.state(), e.Lineage, e.ranked, e.runBest()); err != nil {
		return fmt.Errorf("checkpoint generation %d: %w", e.Generation, err)
	}
	e.saved = e.Generation
	return nil
}

func (e *NeatEvaluator) runBest() *Genome {
	if e.BestGenome != nil {
		return e.BestGenome
	}
	if len(e.ranked) > 0 {
		return e.ranked[0]
	}
	return nil
}

// finalCheckpoint saves the last evaluated cohort unless it is already saved.
func (e *NeatEvaluator) finalCheckpoint() {
	if e.saved == e.Generation {
		return
	}
	if err := e.checkpoint(); err != nil {
		e.Logger.Error("final checkpoint failed", "error", err)
	}
}

func (e *NeatEvaluator) exportStats(ctx context.Context) {
	path := e.Config.Storage.StatsCSV
	if path == "" || e.History == nil {
		return
	}
	rows, err := e.History.Generations(ctx, e.RunID)
	if err == nil {
		var f *os.File
		if f, err = os.Create(path); err == nil {
			err = history.WriteCSV(f, rows)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}
	}
	if err != nil {
		e.Logger.Warn("failed to export generation stats", "path", path, "error", err)
	}
}

// Close releases the history store.
func (e *NeatEvaluator) Close() error {
	if e.History == nil {
		return nil
	}
	return e.History.Close()
}

// generationRand derives the generator for one generation from the run seed.
func (e *NeatEvaluator) generationRand(gen int) *rand.Rand {
	return rand.New(rand.NewSource(e.Config.Neat.Seed + int64(gen)*1_000_003))
}

// rankCohort sorts by fitness, best first. Ties keep cohort order.
func rankCohort(cohort []*Genome) []*Genome {
	ranked := append([]*Genome(nil), cohort...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Fitness > ranked[j].Fitness })
	return ranked
}
