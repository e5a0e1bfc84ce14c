package cluster

import (
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"
)

// VerifyModularity cross-checks the modularity recorded for level lvl
// (computed by modularityQ when the level is built) against an independent
// computation over a from-scratch graph snapshot, using gonum's community
// package. It returns the two values so the caller can compare them within
// a tolerance; the recorded value is authoritative, this is a diagnostic aid
// (invoked from the agglomeration loop on -i informative runs, not from the
// hot path).
func VerifyModularity(lvl *Level, gamma float64) (tracked, independent float64) {
	g := simple.NewWeightedUndirectedGraph(0, 0)
	for _, it := range lvl.items {
		g.AddNode(simple.Node(int64(it.id)))
	}
	for _, it := range lvl.items {
		for _, l := range it.links {
			if l.Target <= it.id {
				continue // each undirected edge is stored at both endpoints; visit once
			}
			u := g.Node(int64(it.id))
			v := g.Node(int64(l.Target))
			g.SetWeightedEdge(g.NewWeightedEdge(u, v, l.Weight))
		}
		// An item's self-weight is its internal, already-merged mass -- the
		// dominant term for any level with real merges -- and without a
		// self-loop edge carrying it, community.Q sees only cross-item links
		// and cannot reproduce lvl.modularity at all.
		if it.selfWeight != 0 {
			u := g.Node(int64(it.id))
			g.SetWeightedEdge(g.NewWeightedEdge(u, u, it.selfWeight))
		}
	}

	communities := make([][]graph.Node, len(lvl.items))
	for i, it := range lvl.items {
		communities[i] = []graph.Node{g.Node(int64(it.id))}
	}

	return lvl.modularity, community.Q(g, communities, gamma)
}
