// Package history records per-generation statistics of evolutionary runs.
package history

import (
	"io"
	"log/slog"

	"github.com/gocarina/gocsv"
)

// GenerationStats summarizes one evaluated generation.
type GenerationStats struct {
	RunID           string  `csv:"run_id"`
	Generation      int     `csv:"generation"`
	CohortSize      int     `csv:"cohort_size"`
	Species         int     `csv:"species"`
	Threshold       float64 `csv:"threshold"`
	BestFitness     float64 `csv:"best_fitness"`
	MeanFitness     float64 `csv:"mean_fitness"`
	StdevFitness    float64 `csv:"stdev_fitness"`
	BestGenome      string  `csv:"best_genome"`
	MeanNodes       float64 `csv:"mean_nodes"`
	MeanConnections float64 `csv:"mean_connections"`
	EvalFailures    int     `csv:"eval_failures"`
	DurationSec     float64 `csv:"duration_sec"`
}

// LogValue implements slog.LogValuer for structured logging.
func (s GenerationStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("generation", s.Generation),
		slog.Int("species", s.Species),
		slog.Float64("threshold", s.Threshold),
		slog.Float64("best", s.BestFitness),
		slog.Float64("mean", s.MeanFitness),
		slog.Float64("stdev", s.StdevFitness),
		slog.String("best_genome", s.BestGenome),
		slog.Float64("mean_nodes", s.MeanNodes),
		slog.Float64("mean_connections", s.MeanConnections),
		slog.Int("eval_failures", s.EvalFailures),
		slog.Float64("duration_sec", s.DurationSec),
	)
}

// WriteCSV writes stats with a header row.
func WriteCSV(w io.Writer, stats []GenerationStats) error {
	if stats == nil {
		stats = []GenerationStats{}
	}
	return gocsv.Marshal(stats, w)
}

// ReadCSV parses rows written by WriteCSV.
func ReadCSV(r io.Reader) ([]GenerationStats, error) {
	var stats []GenerationStats
	if err := gocsv.Unmarshal(r, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}
