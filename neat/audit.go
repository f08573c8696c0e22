package neat

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// AuditError describes a broken structural invariant. Node and Connection are
// zero when not applicable.
type AuditError struct {
	Genome     string
	Node       int
	Connection int
	Reason     string
}

func (e *AuditError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "genome %s", e.Genome)
	if e.Node != 0 {
		fmt.Fprintf(&b, " node %d", e.Node)
	}
	if e.Connection != 0 {
		fmt.Fprintf(&b, " connection %d", e.Connection)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// Audit checks that every node's incoming list agrees with the connection
// map, every connection joins two existing nodes in a legal direction, and
// the graph of all connections is acyclic.
func (g *Genome) Audit() error {
	fail := func(node, conn int, format string, args ...any) error {
		return &AuditError{Genome: g.Name, Node: node, Connection: conn, Reason: fmt.Sprintf(format, args...)}
	}
	linked := 0
	for _, n := range g.Nodes() {
		if n.Role == RoleInput && len(n.incoming) > 0 {
			return fail(n.ID, n.incoming[0].Innovation, "input node has incoming connections")
		}
		for _, e := range n.incoming {
			c := g.connections[e.Innovation]
			if c == nil {
				return fail(n.ID, e.Innovation, "linked connection missing from connection map")
			}
			if c.OutNode != n.ID || c.InNode != e.From {
				return fail(n.ID, e.Innovation, "linked connection %s does not end here", c)
			}
			linked++
		}
	}
	for _, c := range g.Connections() {
		if c.InNode == c.OutNode {
			return fail(c.InNode, c.Innovation, "connection loops onto its own node")
		}
		in, out := g.nodes[c.InNode], g.nodes[c.OutNode]
		if in == nil {
			return fail(c.InNode, c.Innovation, "missing input node")
		}
		if out == nil {
			return fail(c.OutNode, c.Innovation, "missing output node")
		}
		if in.Role == RoleOutput {
			return fail(in.ID, c.Innovation, "connection leaves an output node")
		}
		if !out.HasInput(in) {
			return fail(out.ID, c.Innovation, "missing dependency on node %d", in.ID)
		}
	}
	if linked != len(g.connections) {
		return fail(0, 0, "%d connections linked to nodes but %d in connection map", linked, len(g.connections))
	}
	if _, err := g.TopologicalOrder(); err != nil {
		return fail(0, 0, "%v", err)
	}
	return nil
}

func (g *Genome) mustAudit() {
	if err := g.Audit(); err != nil {
		panic(err)
	}
}

// TopologicalOrder returns node ids ordered so every connection, expressed or
// not, runs from an earlier node to a later one. Ties are broken by id.
func (g *Genome) TopologicalOrder() ([]int, error) {
	dg := simple.NewDirectedGraph()
	for _, n := range g.Nodes() {
		dg.AddNode(simple.Node(n.ID))
	}
	for _, c := range g.Connections() {
		if c.InNode == c.OutNode {
			return nil, fmt.Errorf("self loop on node %d", c.InNode)
		}
		dg.SetEdge(dg.NewEdge(simple.Node(c.InNode), simple.Node(c.OutNode)))
	}
	sorted, err := topo.SortStabilized(dg, nil)
	if err != nil {
		return nil, fmt.Errorf("connection graph is not acyclic: %w", err)
	}
	order := make([]int, len(sorted))
	for i, n := range sorted {
		order[i] = int(n.ID())
	}
	return order, nil
}
