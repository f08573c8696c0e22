package history

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps statistics in a SQLite database so they outlive the run.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) Record(ctx context.Context, st GenerationStats) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO generations (
			run_id, generation, cohort_size, species, threshold,
			best_fitness, mean_fitness, stdev_fitness, best_genome,
			mean_nodes, mean_connections, eval_failures, duration_sec
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, generation) DO UPDATE SET
			cohort_size = excluded.cohort_size,
			species = excluded.species,
			threshold = excluded.threshold,
			best_fitness = excluded.best_fitness,
			mean_fitness = excluded.mean_fitness,
			stdev_fitness = excluded.stdev_fitness,
			best_genome = excluded.best_genome,
			mean_nodes = excluded.mean_nodes,
			mean_connections = excluded.mean_connections,
			eval_failures = excluded.eval_failures,
			duration_sec = excluded.duration_sec
	`, st.RunID, st.Generation, st.CohortSize, st.Species, st.Threshold,
		st.BestFitness, st.MeanFitness, st.StdevFitness, st.BestGenome,
		st.MeanNodes, st.MeanConnections, st.EvalFailures, st.DurationSec)
	return err
}

func (s *SQLiteStore) Generations(ctx context.Context, runID string) ([]GenerationStats, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT run_id, generation, cohort_size, species, threshold,
			best_fitness, mean_fitness, stdev_fitness, best_genome,
			mean_nodes, mean_connections, eval_failures, duration_sec
		FROM generations WHERE run_id = ? ORDER BY generation
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GenerationStats
	for rows.Next() {
		var st GenerationStats
		if err := rows.Scan(&st.RunID, &st.Generation, &st.CohortSize, &st.Species, &st.Threshold,
			&st.BestFitness, &st.MeanFitness, &st.StdevFitness, &st.BestGenome,
			&st.MeanNodes, &st.MeanConnections, &st.EvalFailures, &st.DurationSec); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Runs lists run ids in the order they were first recorded.
func (s *SQLiteStore) Runs(ctx context.Context) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT run_id FROM generations GROUP BY run_id ORDER BY MIN(rowid)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS generations (
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			cohort_size INTEGER NOT NULL,
			species INTEGER NOT NULL,
			threshold REAL NOT NULL,
			best_fitness REAL NOT NULL,
			mean_fitness REAL NOT NULL,
			stdev_fitness REAL NOT NULL,
			best_genome TEXT NOT NULL,
			mean_nodes REAL NOT NULL,
			mean_connections REAL NOT NULL,
			eval_failures INTEGER NOT NULL,
			duration_sec REAL NOT NULL,
			PRIMARY KEY (run_id, generation)
		);
	`)
	return err
}
