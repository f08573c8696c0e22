package neat

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/neatcore/dagneat/neat/textio"
)

// Every record starts with "NEAT <version> <tag>" and ends with "END <tag>".
const (
	RecordMagic   = "NEAT"
	RecordVersion = "1"
	endToken      = "END"
)

// Record tags.
const (
	TagGenome  = "genome"
	TagLineage = "lineage"
	TagCohort  = "cohort"
)

var (
	// ErrUnexpectedToken is wrapped by every error about malformed input.
	ErrUnexpectedToken = textio.ErrUnexpectedToken
	// ErrUnknownRecordType is returned for a type tag with no registered codec.
	ErrUnknownRecordType = errors.New("unknown record type")
	// ErrVersionMismatch is returned for a record written by another schema version.
	ErrVersionMismatch = errors.New("unsupported record version")
)

// Record is a value that can be framed and persisted.
type Record interface {
	RecordTag() string
}

type recordCodec struct {
	encode func(w *textio.Writer, rec Record)
	decode func(t *textio.Tokenizer, lineage *LineageAllocator) (Record, error)
}

var codecs = map[string]recordCodec{
	TagGenome: {
		encode: func(w *textio.Writer, rec Record) { encodeGenome(w, rec.(*Genome)) },
		decode: func(t *textio.Tokenizer, l *LineageAllocator) (Record, error) { return decodeGenome(t, l) },
	},
	TagLineage: {
		encode: func(w *textio.Writer, rec Record) { encodeLineage(w, rec.(*LineageAllocator)) },
		decode: func(t *textio.Tokenizer, l *LineageAllocator) (Record, error) { return decodeLineage(t, l) },
	},
	TagCohort: {
		encode: func(w *textio.Writer, rec Record) { encodeCohort(w, rec.(*CohortState)) },
		decode: func(t *textio.Tokenizer, _ *LineageAllocator) (Record, error) { return decodeCohort(t) },
	},
}

func (g *Genome) RecordTag() string           { return TagGenome }
func (l *LineageAllocator) RecordTag() string { return TagLineage }
func (s *CohortState) RecordTag() string      { return TagCohort }

// Save writes rec as one framed record.
func Save(w io.Writer, rec Record) error {
	tag := rec.RecordTag()
	codec, ok := codecs[tag]
	if !ok {
		return fmt.Errorf("save %q: %w", tag, ErrUnknownRecordType)
	}
	tw := textio.NewWriter(w)
	tw.Token(RecordMagic, RecordVersion, tag).EndLine()
	codec.encode(tw, rec)
	tw.Token(endToken, tag).EndLine()
	return tw.Flush()
}

// Load reads one framed record. Genes in a loaded genome are numbered in
// lineage, which is raised past them; a nil lineage gets a fresh allocator.
func Load(r io.Reader, lineage *LineageAllocator) (Record, error) {
	if lineage == nil {
		lineage = NewLineageAllocator()
	}
	t := textio.NewTokenizer(r)
	if err := t.Expect(RecordMagic); err != nil {
		return nil, err
	}
	version, err := t.Next()
	if err != nil {
		return nil, fmt.Errorf("reading record version: %w", err)
	}
	if version != RecordVersion {
		return nil, fmt.Errorf("line %d: %w: got %q, want %q", t.Line(), ErrVersionMismatch, version, RecordVersion)
	}
	tag, err := t.Next()
	if err != nil {
		return nil, fmt.Errorf("reading record type: %w", err)
	}
	codec, ok := codecs[tag]
	if !ok {
		return nil, fmt.Errorf("line %d: %w %q", t.Line(), ErrUnknownRecordType, tag)
	}
	rec, err := codec.decode(t, lineage)
	if err != nil {
		return nil, fmt.Errorf("%s record: %w", tag, err)
	}
	if err := t.Expect(endToken); err != nil {
		return nil, err
	}
	if err := t.Expect(tag); err != nil {
		return nil, err
	}
	return rec, nil
}

// LoadGenome is Load for callers that require a genome.
func LoadGenome(r io.Reader, lineage *LineageAllocator) (*Genome, error) {
	rec, err := Load(r, lineage)
	if err != nil {
		return nil, err
	}
	g, ok := rec.(*Genome)
	if !ok {
		return nil, fmt.Errorf("%w: expected %q record, got %q", ErrUnexpectedToken, TagGenome, rec.RecordTag())
	}
	return g, nil
}

// SaveFile writes rec to path through a temporary file, so a crash never
// leaves a truncated record behind.
func SaveFile(path string, rec Record) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := Save(tmp, rec); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadFile reads one record from path.
func LoadFile(path string, lineage *LineageAllocator) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rec, err := Load(f, lineage)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

// readFields parses "KEY value ... END" after the given leading keyword,
// dispatching each key to its reader.
func readFields(t *textio.Tokenizer, keyword string, fields map[string]func() error) error {
	if err := t.Expect(keyword); err != nil {
		return err
	}
	for {
		key, err := t.Next()
		if err != nil {
			return fmt.Errorf("line %d: reading %s header: %w", t.Line(), keyword, err)
		}
		if key == endToken {
			return nil
		}
		read, ok := fields[key]
		if !ok {
			return fmt.Errorf("line %d: %w: unknown %s field %q", t.Line(), ErrUnexpectedToken, keyword, key)
		}
		if err := read(); err != nil {
			return fmt.Errorf("%s %s: %w", keyword, key, err)
		}
	}
}

func intField(t *textio.Tokenizer, dst *int) func() error {
	return func() (err error) { *dst, err = t.Int(); return }
}

func floatField(t *textio.Tokenizer, dst *float64) func() error {
	return func() (err error) { *dst, err = t.Float(); return }
}

func stringField(t *textio.Tokenizer, dst *string) func() error {
	return func() (err error) { *dst, err = t.String(); return }
}

// --------------------------- genome ---------------------------

func encodeGenome(w *textio.Writer, g *Genome) {
	w.Token("GENOME",
		"NODES").Int(int64(len(g.nodes))).
		Token("CONNECTIONS").Int(int64(len(g.connections))).
		Token("PARAMETERS").Int(int64(g.Params.Len())).
		Token("GENERATION").Int(int64(g.Generation)).
		Token("FITNESS").Float(g.Fitness).
		Token("NAME").Quoted(g.Name).
		Token("SPECIES").Quoted(g.Species).
		Token("PARENT").Quoted(g.Parent)
	if g.Activation != DefaultActivation {
		w.Token("ACTIVATION").Quoted(g.Activation)
	}
	w.Token(endToken).EndLine()
	for _, n := range g.Nodes() {
		w.Token("NODE").Int(int64(n.ID)).Token(n.Role.String()).Quoted(n.Name).EndLine()
	}
	for _, c := range g.Connections() {
		expressed := int64(0)
		if c.expressed {
			expressed = 1
		}
		w.Token("CONNECTION").
			Int(int64(c.Innovation)).Int(int64(c.InNode)).Int(int64(c.OutNode)).
			Int(c.weight).Int(expressed).EndLine()
	}
	for _, key := range g.Params.Keys() {
		v, _ := g.Params.Get(key)
		w.Token(key).Float(v).EndLine()
	}
}

func decodeGenome(t *textio.Tokenizer, lineage *LineageAllocator) (*Genome, error) {
	g := newEmptyGenome(lineage)
	var nodeCount, connCount, paramCount int
	err := readFields(t, "GENOME", map[string]func() error{
		"NODES":       intField(t, &nodeCount),
		"CONNECTIONS": intField(t, &connCount),
		"PARAMETERS":  intField(t, &paramCount),
		"GENERATION":  intField(t, &g.Generation),
		"FITNESS":     floatField(t, &g.Fitness),
		"NAME":        stringField(t, &g.Name),
		"SPECIES":     stringField(t, &g.Species),
		"PARENT":      stringField(t, &g.Parent),
		"ACTIVATION":  stringField(t, &g.Activation),
	})
	if err != nil {
		return nil, err
	}
	for i := 0; i < nodeCount; i++ {
		n, err := decodeNode(t)
		if err != nil {
			return nil, err
		}
		if g.nodes[n.ID] != nil {
			return nil, fmt.Errorf("line %d: duplicate node %d", t.Line(), n.ID)
		}
		g.addNodeGene(n)
	}
	for i := 0; i < connCount; i++ {
		c, err := decodeConnection(t)
		if err != nil {
			return nil, err
		}
		switch {
		case g.connections[c.Innovation] != nil:
			return nil, fmt.Errorf("line %d: duplicate connection %d", t.Line(), c.Innovation)
		case g.nodes[c.InNode] == nil || g.nodes[c.OutNode] == nil:
			return nil, fmt.Errorf("line %d: connection %d references a missing node", t.Line(), c.Innovation)
		}
		g.addConnectionGene(c)
	}
	for i := 0; i < paramCount; i++ {
		key, err := t.Next()
		if err != nil {
			return nil, fmt.Errorf("line %d: reading parameter: %w", t.Line(), err)
		}
		v, err := t.Float()
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", key, err)
		}
		g.Params.Set(key, v)
	}
	if err := g.Audit(); err != nil {
		return nil, err
	}
	lineage.ObserveGenome(g)
	return g, nil
}

func decodeNode(t *textio.Tokenizer) (*NodeGene, error) {
	if err := t.Expect("NODE"); err != nil {
		return nil, err
	}
	id, err := t.Int()
	if err != nil {
		return nil, err
	}
	roleName, err := t.Next()
	if err != nil {
		return nil, err
	}
	role, err := ParseNodeRole(roleName)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w: %v", t.Line(), ErrUnexpectedToken, err)
	}
	name, err := t.String()
	if err != nil {
		return nil, err
	}
	n := NewNodeGene(id, role)
	n.Name = name
	return n, nil
}

func decodeConnection(t *textio.Tokenizer) (*ConnectionGene, error) {
	if err := t.Expect("CONNECTION"); err != nil {
		return nil, err
	}
	var fields [5]int64
	for i := range fields {
		v, err := t.Int64()
		if err != nil {
			return nil, err
		}
		fields[i] = v
	}
	innovation, in, out, weight, expressed := int(fields[0]), int(fields[1]), int(fields[2]), fields[3], fields[4]
	if in == out {
		return nil, fmt.Errorf("line %d: connection %d loops node %d onto itself", t.Line(), innovation, in)
	}
	if expressed != 0 && expressed != 1 {
		return nil, fmt.Errorf("line %d: %w: expected 0 or 1, got %d", t.Line(), ErrUnexpectedToken, expressed)
	}
	c := NewConnectionGene(innovation, in, out, 0, expressed == 1)
	c.weight = weight
	return c, nil
}

// --------------------------- lineage ---------------------------

func encodeLineage(w *textio.Writer, l *LineageAllocator) {
	w.Token("LINEAGE", "NODE").Int(int64(l.LastNodeID())).
		Token("INNOVATION").Int(int64(l.LastInnovation())).
		Token("GENOMES").Int(int64(l.GenomesCreated())).
		Token(endToken).EndLine()
}

// decodeLineage raises into past every counter in the record.
func decodeLineage(t *textio.Tokenizer, into *LineageAllocator) (*LineageAllocator, error) {
	var node, innovation, genomes int
	err := readFields(t, "LINEAGE", map[string]func() error{
		"NODE":       intField(t, &node),
		"INNOVATION": intField(t, &innovation),
		"GENOMES":    intField(t, &genomes),
	})
	if err != nil {
		return nil, err
	}
	into.ObserveNode(node)
	into.ObserveInnovation(innovation)
	into.ObserveGenomes(genomes)
	return into, nil
}

// --------------------------- cohort ---------------------------

// CohortState is the run-level state saved with each checkpoint.
type CohortState struct {
	Generation int
	Threshold  float64 // Speciation distance threshold in effect.
	CohortSize int
	RunID      string
	Best       string // Name of the best genome.
	BestScore  float64
}

func encodeCohort(w *textio.Writer, s *CohortState) {
	w.Token("COHORT", "GENERATION").Int(int64(s.Generation)).
		Token("THRESHOLD").Float(s.Threshold).
		Token("SIZE").Int(int64(s.CohortSize)).
		Token("RUN").Quoted(s.RunID).
		Token("BEST").Quoted(s.Best).
		Token("SCORE").Float(s.BestScore).
		Token(endToken).EndLine()
}

func decodeCohort(t *textio.Tokenizer) (*CohortState, error) {
	s := &CohortState{}
	err := readFields(t, "COHORT", map[string]func() error{
		"GENERATION": intField(t, &s.Generation),
		"THRESHOLD":  floatField(t, &s.Threshold),
		"SIZE":       intField(t, &s.CohortSize),
		"RUN":        stringField(t, &s.RunID),
		"BEST":       stringField(t, &s.Best),
		"SCORE":      floatField(t, &s.BestScore),
	})
	return s, err
}
