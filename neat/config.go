package neat

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"
)

// Config stores the configuration parameters for an evolutionary run.
type Config struct {
	Neat         NeatConfig
	Genome       GenomeConfig
	Mutation     MutationParams
	Reproduction ReproductionConfig
	SpeciesSet   SpeciesSetConfig
	Checkpoint   CheckpointConfig
	Storage      StorageConfig
}

// NeatConfig holds parameters of the run loop itself.
type NeatConfig struct {
	CohortSize           int     `ini:"cohort_size"`
	Generations          int     `ini:"generations"` // 0 runs until stopped or the threshold is met.
	Seed                 int64   `ini:"seed"`
	Workers              int     `ini:"workers"` // Genomes evaluated in parallel.
	FitnessThreshold     float64 `ini:"fitness_threshold"`
	NoFitnessTermination bool    `ini:"no_fitness_termination"`
}

// GenomeConfig holds parameters describing the seed network and how genomes
// are compared.
type GenomeConfig struct {
	NumInputs           int     `ini:"num_inputs"`
	NumOutputs          int     `ini:"num_outputs"`
	ExcessCoefficient   float64 `ini:"excess_coefficient"`
	DisjointCoefficient float64 `ini:"disjoint_coefficient"`
	WeightCoefficient   float64 `ini:"weight_coefficient"`
	HiddenActivation    string  `ini:"hidden_activation"`
}

// Coefficients returns the compatibility distance weights.
func (gc *GenomeConfig) Coefficients() DistanceCoefficients {
	return DistanceCoefficients{Excess: gc.ExcessCoefficient, Disjoint: gc.DisjointCoefficient, Weight: gc.WeightCoefficient}
}

// ReproductionConfig holds parameters related to reproduction.
type ReproductionConfig struct {
	Elitism int `ini:"elitism"` // Members of each species copied unchanged.
}

// SpeciesSetConfig holds parameters related to speciation.
type SpeciesSetConfig struct {
	CompatibilityThreshold float64 `ini:"compatibility_threshold"` // Initial DT.
	MaxAdjustPasses        int     `ini:"max_adjust_passes"`
	MinThreshold           float64 `ini:"min_threshold"`
}

// CheckpointConfig controls where and how often the cohort is saved.
type CheckpointConfig struct {
	Dir      string `ini:"dir"`      // Empty disables checkpoints.
	Interval int    `ini:"interval"` // Generations between checkpoints.
}

// StorageConfig selects the run-history store.
type StorageConfig struct {
	History   string `ini:"history"` // "memory" or "sqlite".
	HistoryDB string `ini:"history_db"`
	StatsCSV  string `ini:"stats_csv"` // Written when the run ends, if set.
}

// DefaultConfig returns a usable configuration for a 2-input, 1-output network.
func DefaultConfig() *Config {
	return &Config{
		Neat: NeatConfig{CohortSize: 100, Seed: 1, Workers: 1, FitnessThreshold: 1},
		Genome: GenomeConfig{
			NumInputs:           2,
			NumOutputs:          1,
			ExcessCoefficient:   1,
			DisjointCoefficient: 1,
			WeightCoefficient:   1,
			HiddenActivation:    DefaultActivation,
		},
		Mutation:     DefaultMutationParams(),
		Reproduction: ReproductionConfig{Elitism: 2},
		SpeciesSet:   SpeciesSetConfig{CompatibilityThreshold: 3, MaxAdjustPasses: 8, MinThreshold: 0.5},
		Checkpoint:   CheckpointConfig{Interval: 10},
		Storage:      StorageConfig{History: "memory"},
	}
}

// LoadConfig loads configuration parameters from an INI file. Keys the file
// leaves out keep their DefaultConfig values.
func LoadConfig(filePath string) (*Config, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true, // Allow # comments starting with # or ;
		UnescapeValueCommentSymbols: true, // If # or ; appear in value, treat as value
	}, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file '%s': %w", filePath, err)
	}

	config := DefaultConfig()

	// Map sections to structs
	sections := []struct {
		name string
		dst  any
	}{
		{"NEAT", &config.Neat},
		{"DefaultGenome", &config.Genome},
		{"MutationParameters", &config.Mutation},
		{"DefaultReproduction", &config.Reproduction},
		{"DefaultSpeciesSet", &config.SpeciesSet},
		{"Checkpoint", &config.Checkpoint},
		{"Storage", &config.Storage},
	}
	for _, s := range sections {
		if err := cfg.Section(s.name).MapTo(s.dst); err != nil {
			return nil, fmt.Errorf("failed to map [%s] section: %w", s.name, err)
		}
	}

	// --- Explicitly clean potentially problematic string values ---
	config.Genome.HiddenActivation = cleanIniString(config.Genome.HiddenActivation)
	config.Checkpoint.Dir = cleanIniString(config.Checkpoint.Dir)
	config.Storage.History = strings.ToLower(cleanIniString(config.Storage.History))
	config.Storage.HistoryDB = cleanIniString(config.Storage.HistoryDB)
	config.Storage.StatsCSV = cleanIniString(config.Storage.StatsCSV)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks value ranges and cross-field constraints.
func (config *Config) Validate() error {
	if config.Neat.CohortSize <= 0 {
		return fmt.Errorf("config error: cohort_size must be positive")
	}
	if config.Neat.Generations < 0 {
		return fmt.Errorf("config error: generations cannot be negative")
	}
	if config.Neat.Workers <= 0 {
		return fmt.Errorf("config error: workers must be positive")
	}
	if config.Genome.NumInputs <= 0 {
		return fmt.Errorf("config error: num_inputs must be positive")
	}
	if config.Genome.NumOutputs <= 0 {
		return fmt.Errorf("config error: num_outputs must be positive")
	}
	if config.Genome.ExcessCoefficient < 0 || config.Genome.DisjointCoefficient < 0 || config.Genome.WeightCoefficient < 0 {
		return fmt.Errorf("config error: compatibility coefficients cannot be negative")
	}
	if _, err := GetActivation(config.Genome.HiddenActivation); err != nil {
		return fmt.Errorf("config error: hidden_activation: %w", err)
	}
	if err := config.Mutation.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if config.Reproduction.Elitism < 0 {
		return fmt.Errorf("config error: elitism cannot be negative")
	}
	if config.SpeciesSet.CompatibilityThreshold <= 0 {
		return fmt.Errorf("config error: compatibility_threshold must be positive")
	}
	if config.SpeciesSet.MaxAdjustPasses <= 0 {
		return fmt.Errorf("config error: max_adjust_passes must be positive")
	}
	if config.SpeciesSet.MinThreshold < 0 {
		return fmt.Errorf("config error: min_threshold cannot be negative")
	}
	if config.Checkpoint.Interval < 0 {
		return fmt.Errorf("config error: checkpoint interval cannot be negative")
	}
	switch config.Storage.History {
	case "memory":
	case "sqlite":
		if config.Storage.HistoryDB == "" {
			return fmt.Errorf("config error: history_db is required for sqlite history")
		}
	default:
		return fmt.Errorf("config error: invalid history store '%s', must be 'memory' or 'sqlite'", config.Storage.History)
	}
	return nil
}

// cleanIniString removes inline comments and trims whitespace from a string read from INI.
func cleanIniString(s string) string {
	// Remove comments starting with # or ;
	if idx := strings.IndexAny(s, "#;"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
