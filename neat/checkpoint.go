package neat

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Checkpoint directory layout:
//
//	<dir>/run.yaml                      run manifest
//	<dir>/latest                        name of the newest cohort directory
//	<dir>/cohort-NNNNNN/state.txt       cohort record
//	<dir>/cohort-NNNNNN/lineage.txt     lineage record
//	<dir>/cohort-NNNNNN/rank-NNN.genome one per genome, best first
//	<dir>/cohort-NNNNNN/generation-NNNNNN.genome  the best genome of the run
//	<dir>/error-N.genome                genomes whose evaluation failed
const (
	manifestFile  = "run.yaml"
	latestFile    = "latest"
	stateFile     = "state.txt"
	lineageFile   = "lineage.txt"
	cohortPrefix  = "cohort-"
	rankPrefix    = "rank-"
	genomeSuffix  = ".genome"
	errorPrefix   = "error-"
	cohortPattern = cohortPrefix + "%06d"
)

// ErrNoCheckpoint is returned when a directory holds no usable checkpoint.
var ErrNoCheckpoint = errors.New("no checkpoint found")

// RunManifest describes the run a checkpoint directory belongs to.
type RunManifest struct {
	RunID      string    `yaml:"run_id"`
	Seed       int64     `yaml:"seed"`
	Created    time.Time `yaml:"created"`
	CohortSize int       `yaml:"cohort_size"`
	Inputs     int       `yaml:"inputs"`
	Outputs    int       `yaml:"outputs"`
}

// Checkpoint is one saved cohort.
type Checkpoint struct {
	Dir    string
	State  *CohortState
	Cohort []*Genome // Best first.
	Best   *Genome   // Best genome of the run so far.
}

// CheckpointInfo summarizes a cohort directory without loading it.
type CheckpointInfo struct {
	Name       string
	Generation int
	Genomes    int
	Bytes      int64
	Latest     bool
}

// Checkpointer reads and writes checkpoints under one directory.
type Checkpointer struct {
	Dir    string
	Logger *slog.Logger
}

// NewCheckpointer returns a Checkpointer for dir. The directory is created
// on first save.
func NewCheckpointer(dir string) *Checkpointer {
	return &Checkpointer{Dir: dir, Logger: slog.Default()}
}

// CohortDirName is the directory name used for a generation.
func CohortDirName(generation int) string {
	return fmt.Sprintf(cohortPattern, generation)
}

// WriteManifest records the run description in run.yaml.
func (c *Checkpointer) WriteManifest(m RunManifest) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint dir: %w", err)
	}
	data, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("encoding run manifest: %w", err)
	}
	return writeFileAtomic(filepath.Join(c.Dir, manifestFile), data)
}

// ReadManifest loads run.yaml.
func (c *Checkpointer) ReadManifest() (RunManifest, error) {
	var m RunManifest
	data, err := os.ReadFile(filepath.Join(c.Dir, manifestFile))
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parsing %s: %w", manifestFile, err)
	}
	return m, nil
}

// Save writes the ranked cohort for state.Generation along with the run's
// best genome, which defaults to ranked[0] when nil, and points latest at it.
// It returns the cohort directory.
func (c *Checkpointer) Save(state *CohortState, lineage *LineageAllocator, ranked []*Genome, best *Genome) (string, error) {
	start := time.Now()
	name := CohortDirName(state.Generation)
	dir := filepath.Join(c.Dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create checkpoint dir: %w", err)
	}
	if err := SaveFile(filepath.Join(dir, stateFile), state); err != nil {
		return "", err
	}
	if err := SaveFile(filepath.Join(dir, lineageFile), lineage); err != nil {
		return "", err
	}
	for i, g := range ranked {
		if err := SaveFile(filepath.Join(dir, fmt.Sprintf("%s%03d%s", rankPrefix, i, genomeSuffix)), g); err != nil {
			return "", err
		}
	}
	if best == nil && len(ranked) > 0 {
		best = ranked[0]
	}
	if best != nil {
		if err := SaveFile(filepath.Join(dir, bestFileName(state.Generation)), best); err != nil {
			return "", err
		}
	}
	if err := writeFileAtomic(filepath.Join(c.Dir, latestFile), []byte(name+"\n")); err != nil {
		return "", err
	}

	size, _ := dirSize(dir)
	c.Logger.Info("checkpoint saved",
		"dir", dir,
		"genomes", len(ranked),
		"size", humanize.Bytes(uint64(size)),
		"took", time.Since(start).Round(time.Millisecond))
	return dir, nil
}

// LatestDir returns the cohort directory to resume from: the one named by
// the latest pointer, or the highest numbered one if the pointer is missing
// or dangling.
func (c *Checkpointer) LatestDir() (string, error) {
	if data, err := os.ReadFile(filepath.Join(c.Dir, latestFile)); err == nil {
		name := strings.TrimSpace(string(data))
		dir := filepath.Join(c.Dir, name)
		if _, err := os.Stat(filepath.Join(dir, stateFile)); err == nil && strings.HasPrefix(name, cohortPrefix) {
			return dir, nil
		}
		c.Logger.Warn("latest checkpoint pointer is dangling", "name", name)
	}
	gens, err := c.generations()
	if err != nil {
		return "", err
	}
	for i := len(gens) - 1; i >= 0; i-- {
		dir := filepath.Join(c.Dir, CohortDirName(gens[i]))
		if _, err := os.Stat(filepath.Join(dir, stateFile)); err == nil {
			return dir, nil
		}
	}
	return "", fmt.Errorf("%s: %w", c.Dir, ErrNoCheckpoint)
}

// Load reads the latest checkpoint. Loaded genes are registered with lineage.
func (c *Checkpointer) Load(lineage *LineageAllocator) (*Checkpoint, error) {
	dir, err := c.LatestDir()
	if err != nil {
		return nil, err
	}
	return LoadCheckpointDir(dir, lineage)
}

// LoadCheckpointDir reads one cohort directory.
func LoadCheckpointDir(dir string, lineage *LineageAllocator) (*Checkpoint, error) {
	if lineage == nil {
		lineage = NewLineageAllocator()
	}
	rec, err := LoadFile(filepath.Join(dir, stateFile), lineage)
	if err != nil {
		return nil, err
	}
	state, ok := rec.(*CohortState)
	if !ok {
		return nil, fmt.Errorf("%s: %w: expected %q record, got %q", stateFile, ErrUnexpectedToken, TagCohort, rec.RecordTag())
	}
	if _, err := LoadFile(filepath.Join(dir, lineageFile), lineage); err != nil {
		return nil, err
	}

	files, err := rankFiles(dir)
	if err != nil {
		return nil, err
	}
	cp := &Checkpoint{Dir: dir, State: state}
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		g, err := LoadGenome(f, lineage)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		cp.Cohort = append(cp.Cohort, g)
	}
	if len(cp.Cohort) == 0 {
		return nil, fmt.Errorf("%s: no genomes: %w", dir, ErrNoCheckpoint)
	}

	cp.Best = cp.Cohort[0]
	f, err := os.Open(filepath.Join(dir, bestFileName(state.Generation)))
	switch {
	case err == nil:
		best, err := LoadGenome(f, lineage)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name(), err)
		}
		cp.Best = best
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}
	return cp, nil
}

func bestFileName(generation int) string {
	return fmt.Sprintf("generation-%06d%s", generation, genomeSuffix)
}

// List describes every cohort directory, oldest first.
func (c *Checkpointer) List() ([]CheckpointInfo, error) {
	gens, err := c.generations()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	latest := ""
	if dir, err := c.LatestDir(); err == nil {
		latest = filepath.Base(dir)
	}
	infos := make([]CheckpointInfo, 0, len(gens))
	for _, gen := range gens {
		name := CohortDirName(gen)
		dir := filepath.Join(c.Dir, name)
		files, _ := rankFiles(dir)
		size, _ := dirSize(dir)
		infos = append(infos, CheckpointInfo{
			Name:       name,
			Generation: gen,
			Genomes:    len(files),
			Bytes:      size,
			Latest:     name == latest,
		})
	}
	return infos, nil
}

// DumpFailed saves a genome whose evaluation failed as error-<n>.genome and
// returns the path.
func (c *Checkpointer) DumpFailed(g *Genome) (string, error) {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return "", err
	}
	for n := 1; ; n++ {
		path := filepath.Join(c.Dir, fmt.Sprintf("%s%d%s", errorPrefix, n, genomeSuffix))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		err = Save(f, g)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		return path, err
	}
}

// generations lists the numbers of all cohort directories, ascending.
func (c *Checkpointer) generations() ([]int, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return nil, err
	}
	var gens []int
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), cohortPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), cohortPrefix))
		if err != nil {
			continue
		}
		gens = append(gens, n)
	}
	sort.Ints(gens)
	return gens, nil
}

// rankFiles returns the rank-N.genome files of dir in rank order.
func rankFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, rankPrefix+"*"+genomeSuffix))
	if err != nil {
		return nil, err
	}
	rank := func(path string) int {
		base := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), rankPrefix), genomeSuffix)
		n, _ := strconv.Atoi(base)
		return n
	}
	sort.Slice(matches, func(i, j int) bool { return rank(matches[i]) < rank(matches[j]) })
	return matches, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
