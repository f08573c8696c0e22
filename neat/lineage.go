package neat

import (
	"fmt"
	"sync/atomic"
)

// LineageAllocator hands out node ids and innovation numbers for one
// evolutionary run. Both sequences are monotonically increasing and never
// reuse a value, even after the gene that held it is deleted.
//
// A LineageAllocator is safe for concurrent use, so different genomes may be
// mutated in parallel while sharing one allocator.
type LineageAllocator struct {
	lastNode       atomic.Int64
	lastInnovation atomic.Int64
	lastGenome     atomic.Int64
}

// NewLineageAllocator returns an allocator whose first node id and first
// innovation number are both 1.
func NewLineageAllocator() *LineageAllocator {
	return &LineageAllocator{}
}

// NextNodeID returns a fresh node id.
func (l *LineageAllocator) NextNodeID() int {
	return int(l.lastNode.Add(1))
}

// NextInnovation returns a fresh innovation number.
func (l *LineageAllocator) NextInnovation() int {
	return int(l.lastInnovation.Add(1))
}

// NextGenomeName returns a default name for a new genome, "#1", "#2", ...
func (l *LineageAllocator) NextGenomeName() string {
	return fmt.Sprintf("#%d", l.lastGenome.Add(1))
}

// GenomesCreated reports how many genome names have been handed out.
func (l *LineageAllocator) GenomesCreated() int { return int(l.lastGenome.Load()) }

// ObserveGenomes records that n genome names have been used.
func (l *LineageAllocator) ObserveGenomes(n int) {
	raise(&l.lastGenome, int64(n))
}

// LastNodeID reports the highest node id handed out or observed.
func (l *LineageAllocator) LastNodeID() int { return int(l.lastNode.Load()) }

// LastInnovation reports the highest innovation handed out or observed.
func (l *LineageAllocator) LastInnovation() int { return int(l.lastInnovation.Load()) }

// ObserveNode records that id is in use, so it is never handed out again.
func (l *LineageAllocator) ObserveNode(id int) {
	raise(&l.lastNode, int64(id))
}

// ObserveInnovation records that innovation n is in use.
func (l *LineageAllocator) ObserveInnovation(n int) {
	raise(&l.lastInnovation, int64(n))
}

// ObserveGenome raises both counters past every id held by g.
func (l *LineageAllocator) ObserveGenome(g *Genome) {
	if g.maxNodeID > 0 {
		l.ObserveNode(g.maxNodeID)
	}
	if g.maxInnovation > 0 {
		l.ObserveInnovation(g.maxInnovation)
	}
}

func (l *LineageAllocator) String() string {
	return fmt.Sprintf("Lineage(node: %d, innovation: %d, genomes: %d)", l.LastNodeID(), l.LastInnovation(), l.GenomesCreated())
}

func raise(v *atomic.Int64, to int64) {
	for {
		cur := v.Load()
		if cur >= to || v.CompareAndSwap(cur, to) {
			return
		}
	}
}
