package neat

import (
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCheckpointer(t *testing.T) *Checkpointer {
	t.Helper()
	c := NewCheckpointer(filepath.Join(t.TempDir(), "run"))
	c.Logger = quietLogger()
	return c
}

func rankedCohort(t *testing.T, lineage *LineageAllocator, n int) []*Genome {
	t.Helper()
	proto := NewBlankGenome(lineage, 2, 1, rand.New(rand.NewSource(7)))
	ranked := make([]*Genome, n)
	for i := range ranked {
		ranked[i] = proto.Copy()
		ranked[i].Fitness = float64(n - i)
	}
	return ranked
}

func TestCheckpointSaveAndLoad(t *testing.T) {
	c := testCheckpointer(t)
	lineage := NewLineageAllocator()
	ranked := rankedCohort(t, lineage, 5)
	ranked[0].SplitConnection(ranked[0].Connections()[0], 1, 1)
	state := &CohortState{Generation: 7, Threshold: 2.25, CohortSize: 5, RunID: "r1", Best: ranked[0].Name, BestScore: 5}

	dir, err := c.Save(state, lineage, ranked, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(c.Dir, "cohort-000007"), dir)
	assert.FileExists(t, filepath.Join(dir, "generation-000007.genome"))
	assert.FileExists(t, filepath.Join(dir, "rank-004.genome"))

	fresh := NewLineageAllocator()
	cp, err := c.Load(fresh)
	require.NoError(t, err)
	assert.Equal(t, dir, cp.Dir)
	assert.Equal(t, state, cp.State)
	require.Len(t, cp.Cohort, 5)
	for i, g := range cp.Cohort {
		assert.Equal(t, ranked[i].Name, g.Name)
		assert.Equal(t, ranked[i].Fitness, g.Fitness)
		assert.Same(t, fresh, g.Lineage())
	}
	assert.Equal(t, lineage.LastNodeID(), fresh.LastNodeID())
	assert.Equal(t, lineage.LastInnovation(), fresh.LastInnovation())
	assert.Equal(t, lineage.GenomesCreated(), fresh.GenomesCreated())
	require.NotNil(t, cp.Best)
	assert.Equal(t, ranked[0].Name, cp.Best.Name)
	assert.Equal(t, ranked[0].NumNodes(), cp.Best.NumNodes())
}

func TestCheckpointKeepsRunBest(t *testing.T) {
	c := testCheckpointer(t)
	lineage := NewLineageAllocator()
	ranked := rankedCohort(t, lineage, 3)
	best := ranked[2].Snapshot()
	best.Fitness = 9
	state := &CohortState{Generation: 4, CohortSize: 3, Best: best.Name, BestScore: best.Fitness}

	dir, err := c.Save(state, lineage, ranked, best)
	require.NoError(t, err)
	files, err := rankFiles(dir)
	require.NoError(t, err)
	assert.Len(t, files, 3)

	cp, err := c.Load(nil)
	require.NoError(t, err)
	require.Len(t, cp.Cohort, 3)
	assert.Equal(t, ranked[0].Name, cp.Cohort[0].Name)
	assert.Equal(t, best.Name, cp.Best.Name)
	assert.Equal(t, 9.0, cp.Best.Fitness)
	assert.Equal(t, 1.0, cp.Cohort[2].Fitness)
}

func TestCheckpointLatestFallback(t *testing.T) {
	c := testCheckpointer(t)
	lineage := NewLineageAllocator()
	ranked := rankedCohort(t, lineage, 2)
	for _, gen := range []int{2, 10, 4} {
		_, err := c.Save(&CohortState{Generation: gen, CohortSize: 2}, lineage, ranked, nil)
		require.NoError(t, err)
	}

	dir, err := c.LatestDir()
	require.NoError(t, err)
	assert.Equal(t, "cohort-000004", filepath.Base(dir), "latest pointer wins")

	require.NoError(t, os.Remove(filepath.Join(c.Dir, latestFile)))
	dir, err = c.LatestDir()
	require.NoError(t, err)
	assert.Equal(t, "cohort-000010", filepath.Base(dir))

	require.NoError(t, os.WriteFile(filepath.Join(c.Dir, latestFile), []byte("cohort-000099\n"), 0o644))
	dir, err = c.LatestDir()
	require.NoError(t, err)
	assert.Equal(t, "cohort-000010", filepath.Base(dir))

	infos, err := c.List()
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, []int{2, 4, 10}, []int{infos[0].Generation, infos[1].Generation, infos[2].Generation})
	assert.True(t, infos[2].Latest)
	assert.Equal(t, 2, infos[0].Genomes)
	assert.Positive(t, infos[0].Bytes)
}

func TestCheckpointLoadEmpty(t *testing.T) {
	c := testCheckpointer(t)
	_, err := c.Load(nil)
	assert.Error(t, err)

	require.NoError(t, os.MkdirAll(c.Dir, 0o755))
	_, err = c.Load(nil)
	assert.True(t, errors.Is(err, ErrNoCheckpoint))

	infos, err := testCheckpointer(t).List()
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestCheckpointManifest(t *testing.T) {
	c := testCheckpointer(t)
	m := RunManifest{RunID: "abc", Seed: 42, Created: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), CohortSize: 50, Inputs: 2, Outputs: 1}
	require.NoError(t, c.WriteManifest(m))

	got, err := c.ReadManifest()
	require.NoError(t, err)
	assert.Equal(t, m, got)

	data, err := os.ReadFile(filepath.Join(c.Dir, manifestFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "run_id: abc")
}

func TestDumpFailed(t *testing.T) {
	c := testCheckpointer(t)
	g := rankedCohort(t, NewLineageAllocator(), 1)[0]

	first, err := c.DumpFailed(g)
	require.NoError(t, err)
	second, err := c.DumpFailed(g)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(c.Dir, "error-1.genome"), first)
	assert.Equal(t, filepath.Join(c.Dir, "error-2.genome"), second)

	rec, err := LoadFile(second, nil)
	require.NoError(t, err)
	assert.Equal(t, g.Name, rec.(*Genome).Name)
}
