package neat

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saveString(t *testing.T, rec Record) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Save(&buf, rec))
	return buf.String()
}

func TestGenomeRecordRoundTrip(t *testing.T) {
	g := blank(t, 2, 1)
	g.Fitness = 0.8125
	g.Species = "3"
	g.Parent = "#1"
	g.Generation = 17
	g.Params.Set("FUTURE_KNOB", 2.5)
	g.Connections()[2].Disable()
	g.SplitConnection(g.Connections()[0], 0.3, -0.7)
	text := saveString(t, g)

	lineage := NewLineageAllocator()
	loaded, err := LoadGenome(strings.NewReader(text), lineage)
	require.NoError(t, err)

	assert.Equal(t, g.Name, loaded.Name)
	assert.Equal(t, g.Fitness, loaded.Fitness)
	assert.Equal(t, g.Species, loaded.Species)
	assert.Equal(t, g.Parent, loaded.Parent)
	assert.Equal(t, g.Generation, loaded.Generation)
	assert.Equal(t, g.Params, loaded.Params)
	assert.Zero(t, CompatibilityDistance(g, loaded, DefaultDistanceCoefficients()))
	for _, c := range g.Connections() {
		lc := loaded.Connection(c.Innovation)
		require.NotNil(t, lc)
		assert.Equal(t, c.QuantizedWeight(), lc.QuantizedWeight())
		assert.Equal(t, c.Enabled(), lc.Enabled())
	}
	for _, n := range g.Nodes() {
		ln := loaded.Node(n.ID)
		require.NotNil(t, ln)
		assert.Equal(t, n.Role, ln.Role)
		assert.Equal(t, n.Name, ln.Name)
		assert.Equal(t, n.Incoming(), ln.Incoming())
	}

	// New genes in the loaded genome never collide with loaded ones.
	_, maxNode := g.NodeIDRange()
	_, maxInnov := g.InnovationRange()
	assert.Equal(t, maxNode, lineage.LastNodeID())
	assert.Equal(t, maxInnov, lineage.LastInnovation())
	h := loaded.SplitConnection(loaded.Connections()[1], 1, 1)
	assert.Greater(t, h.ID, maxNode)

	// Saving what was loaded reproduces the original bytes.
	again, err := LoadGenome(strings.NewReader(text), nil)
	require.NoError(t, err)
	assert.Equal(t, text, saveString(t, again))
}

func TestGenomeRecordActivation(t *testing.T) {
	g := blank(t, 2, 1)
	assert.NotContains(t, saveString(t, g), "ACTIVATION")

	g.Activation = "tanh"
	text := saveString(t, g)
	assert.Contains(t, text, `ACTIVATION "tanh"`)
	loaded, err := LoadGenome(strings.NewReader(text), nil)
	require.NoError(t, err)
	assert.Equal(t, "tanh", loaded.Activation)
}

const handWritten = `NEAT 1 genome
GENOME NODES 2 CONNECTIONS 1 PARAMETERS 0 GENERATION 3 FITNESS 0.5 NAME "hand made" SPECIES "" PARENT "" END
NODE 1 INPUT "x"
NODE 2 OUTPUT "y"
CONNECTION 1 1 2 16777216 1
END genome
`

func TestLoadHandWrittenGenome(t *testing.T) {
	g, err := LoadGenome(strings.NewReader(handWritten), nil)
	require.NoError(t, err)
	assert.Equal(t, "hand made", g.Name)
	assert.Equal(t, 3, g.Generation)
	assert.Equal(t, DefaultMutationParams(), g.Params)

	out, err := g.Activate([]float64{0.25})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25}, out)
}

func TestLoadRejectsMalformedRecords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want error
	}{
		{"version", strings.Replace(handWritten, "NEAT 1", "NEAT 2", 1), ErrVersionMismatch},
		{"unknown tag", "NEAT 1 species\nEND species\n", ErrUnknownRecordType},
		{"magic", strings.Replace(handWritten, "NEAT", "NAET", 1), ErrUnexpectedToken},
		{"end tag", strings.Replace(handWritten, "END genome", "END lineage", 1), ErrUnexpectedToken},
		{"header field", strings.Replace(handWritten, "FITNESS", "FITTEST", 1), ErrUnexpectedToken},
		{"role", strings.Replace(handWritten, "OUTPUT", "BIAS", 1), ErrUnexpectedToken},
		{"weight", strings.Replace(handWritten, "16777216", "1.0", 1), ErrUnexpectedToken},
		{"expressed flag", strings.Replace(handWritten, "16777216 1", "16777216 2", 1), ErrUnexpectedToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.text), nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestLoadRejectsInvalidTopology(t *testing.T) {
	tests := map[string]string{
		"duplicate node":   strings.Replace(handWritten, `NODE 2 OUTPUT "y"`, `NODE 1 OUTPUT "y"`, 1),
		"missing node":     strings.Replace(handWritten, "CONNECTION 1 1 2", "CONNECTION 1 1 9", 1),
		"self loop":        strings.Replace(handWritten, "CONNECTION 1 1 2", "CONNECTION 1 2 2", 1),
		"truncated":        strings.TrimSuffix(handWritten, "END genome\n"),
		"short node count": strings.Replace(handWritten, "NODES 2", "NODES 1", 1),
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(text), nil)
			assert.Error(t, err)
		})
	}

	reversed := strings.Replace(handWritten, "CONNECTION 1 1 2", "CONNECTION 1 2 1", 1)
	_, err := Load(strings.NewReader(reversed), nil)
	var ae *AuditError
	assert.True(t, errors.As(err, &ae), "got %v", err)
}

func TestLineageRecord(t *testing.T) {
	l := NewLineageAllocator()
	for i := 0; i < 12; i++ {
		l.NextNodeID()
	}
	for i := 0; i < 30; i++ {
		l.NextInnovation()
	}
	l.NextGenomeName()

	into := NewLineageAllocator()
	into.ObserveNode(50)
	rec, err := Load(strings.NewReader(saveString(t, l)), into)
	require.NoError(t, err)
	assert.Same(t, into, rec)
	assert.Equal(t, 50, into.LastNodeID(), "counters never move backwards")
	assert.Equal(t, 30, into.LastInnovation())
	assert.Equal(t, 1, into.GenomesCreated())
	assert.Equal(t, 51, into.NextNodeID())
}

func TestCohortRecord(t *testing.T) {
	s := &CohortState{Generation: 12, Threshold: 3.375, CohortSize: 150, RunID: "run 1", Best: "#77", BestScore: 0.9}
	rec, err := Load(strings.NewReader(saveString(t, s)), nil)
	require.NoError(t, err)
	assert.Equal(t, s, rec)
}

func TestSaveFileAndLoadFile(t *testing.T) {
	g := blank(t, 2, 1)
	path := filepath.Join(t.TempDir(), "best.genome")
	require.NoError(t, SaveFile(path, g))

	rec, err := LoadFile(path, nil)
	require.NoError(t, err)
	require.IsType(t, &Genome{}, rec)
	assert.Equal(t, g.Name, rec.(*Genome).Name)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.genome"), nil)
	assert.Error(t, err)
}
