package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/neatcore/dagneat/neat"
	"github.com/neatcore/dagneat/neat/history"
	"github.com/neatcore/dagneat/neat/nn"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "inspect":
		return runInspect(ctx, args[1:], out)
	case "activate":
		return runActivate(ctx, args[1:], out)
	case "checkpoints":
		return runCheckpoints(ctx, args[1:], out)
	case "history":
		return runHistory(ctx, args[1:], out)
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInspect(_ context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	genes := fs.Bool("genes", false, "list every node and connection")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("inspect: genome file required")
	}

	for _, path := range fs.Args() {
		rec, err := neat.LoadFile(path, nil)
		if err != nil {
			return err
		}
		switch r := rec.(type) {
		case *neat.Genome:
			describeGenome(out, r, *genes)
		case *neat.LineageAllocator:
			fmt.Fprintf(out, "%s\n", r)
		case *neat.CohortState:
			fmt.Fprintf(out, "cohort generation=%d size=%d threshold=%.4g run=%s best=%s score=%.6g\n",
				r.Generation, r.CohortSize, r.Threshold, r.RunID, r.Best, r.BestScore)
		}
	}
	return nil
}

func describeGenome(out io.Writer, g *neat.Genome, genes bool) {
	expressed := 0
	for _, c := range g.Connections() {
		if c.IsExpressed() {
			expressed++
		}
	}
	hidden := g.NumNodes() - len(g.Inputs()) - len(g.Outputs())
	fmt.Fprintf(out, "genome %s generation=%d fitness=%.6g species=%q parent=%q activation=%s\n",
		g.Name, g.Generation, g.Fitness, g.Species, g.Parent, g.Activation)
	fmt.Fprintf(out, "  nodes=%d (inputs=%d hidden=%d outputs=%d) connections=%d expressed=%d\n",
		g.NumNodes(), len(g.Inputs()), hidden, len(g.Outputs()), g.NumConnections(), expressed)
	if !genes {
		return
	}
	for _, n := range g.Nodes() {
		fmt.Fprintf(out, "  %s\n", n)
	}
	for _, c := range g.Connections() {
		fmt.Fprintf(out, "  %s\n", c)
	}
}

func runActivate(_ context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("activate", flag.ContinueOnError)
	inputs := fs.String("inputs", "", "comma separated input values")
	nodes := fs.Bool("nodes", false, "also print the value of every node")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("activate: exactly one genome file required")
	}

	rec, err := neat.LoadFile(fs.Arg(0), nil)
	if err != nil {
		return err
	}
	g, ok := rec.(*neat.Genome)
	if !ok {
		return fmt.Errorf("%s holds a %s record, not a genome", fs.Arg(0), rec.RecordTag())
	}
	values, err := parseFloats(*inputs)
	if err != nil {
		return err
	}
	net, err := nn.Compile(g)
	if err != nil {
		return err
	}
	outputs, err := net.Activate(values)
	if err != nil {
		return err
	}
	for i, v := range outputs {
		fmt.Fprintf(out, "%s %.6g\n", g.Outputs()[i].Name, v)
	}
	if !*nodes {
		return nil
	}
	// The compiled network keeps no per-node state; evaluate the genome
	// itself to read back what each node computed.
	if _, err := g.Activate(values); err != nil {
		return err
	}
	for _, n := range g.Nodes() {
		fmt.Fprintf(out, "  %s %.6g\n", n, n.LastValue())
	}
	return nil
}

func runCheckpoints(_ context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("checkpoints", flag.ContinueOnError)
	dir := fs.String("dir", "checkpoints", "checkpoint directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c := neat.NewCheckpointer(*dir)
	if m, err := c.ReadManifest(); err == nil {
		fmt.Fprintf(out, "run %s seed=%d cohort=%d inputs=%d outputs=%d created %s\n",
			m.RunID, m.Seed, m.CohortSize, m.Inputs, m.Outputs, humanize.Time(m.Created))
	}
	infos, err := c.List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(out, "no checkpoints found")
		return nil
	}
	for _, info := range infos {
		marker := " "
		if info.Latest {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s generation=%d genomes=%d size=%s\n",
			marker, info.Name, info.Generation, info.Genomes, humanize.Bytes(uint64(info.Bytes)))
	}
	return nil
}

func runHistory(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	storeKind := fs.String("store", "sqlite", "store backend: sqlite")
	dbPath := fs.String("db-path", "neat-history.db", "sqlite database path")
	runID := fs.String("run", "", "run id; lists runs when empty")
	csvOut := fs.Bool("csv", false, "emit generation stats as CSV")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := history.NewStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	if *runID == "" {
		runs, err := store.Runs(ctx)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "no runs found")
		}
		for _, id := range runs {
			fmt.Fprintln(out, id)
		}
		return nil
	}

	rows, err := store.Generations(ctx, *runID)
	if err != nil {
		return err
	}
	if *csvOut {
		return history.WriteCSV(out, rows)
	}
	for _, row := range rows {
		fmt.Fprintf(out, "gen=%d species=%d threshold=%.4g best=%.6g mean=%.6g stdev=%.4g nodes=%.1f conns=%.1f failures=%d took=%.2fs\n",
			row.Generation, row.Species, row.Threshold, row.BestFitness, row.MeanFitness, row.StdevFitness,
			row.MeanNodes, row.MeanConnections, row.EvalFailures, row.DurationSec)
	}
	return nil
}

func parseFloats(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	values := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		values[i] = v
	}
	return values, nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: neatctl <inspect|activate|checkpoints|history> [flags]", msg)
}
