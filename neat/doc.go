// Package neat evolves acyclic neural networks with a NEAT-style genetic
// algorithm: networks grow by adding nodes and connections, genes are matched
// across genomes by innovation number, and the cohort is split into species
// so new structure gets a few generations to prove itself.
//
// Every connection ever created is part of one directed acyclic graph per
// genome, expressed or not, so a genome always evaluates in a single pass.
// Node ids and innovation numbers are handed out by a LineageAllocator shared
// by every genome of a run.
//
// Basic usage:
//
//	config, err := neat.LoadConfig("path/to/config.ini")
//	if err != nil {
//		log.Fatalf("Error loading config: %v", err)
//	}
//
//	// ev implements GenomeEvaluator: it builds the seed network and
//	// scores genomes.
//	runner, err := neat.NewNeatEvaluator(config, ev)
//	if err != nil {
//		log.Fatalf("Error creating evaluator: %v", err)
//	}
//	defer runner.Close()
//
//	if err := runner.Resume(); err != nil && !errors.Is(err, neat.ErrNoCheckpoint) {
//		log.Fatalf("Error resuming: %v", err)
//	}
//	winner, err := runner.Run(ctx, 100)
//
// Genomes, lineages and cohort state are stored in a line-oriented text
// format through Save and Load; the nn subpackage compiles a genome into an
// immutable network for fast repeated activation.
package neat
