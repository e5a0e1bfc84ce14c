package cluster

import (
	"github.com/daoc-go/daoc/pkg/cnl"
	"github.com/daoc-go/daoc/pkg/graph"
)

// ExternalMeasures is the result of EvaluateExternal: the intrinsic scores
// of a reference partition read from an external CNL file, computed against
// this run's own graph rather than any hierarchy this run produced. Fields
// not requested by the caller are left at zero.
type ExternalMeasures struct {
	Conductance float64
	Modularity  float64
	ExpectedG   float64
}

// EvaluateExternal scores reference -- an externally supplied clustering,
// e.g. a ground-truth partition -- against nodes/totalWeight, independent
// of any hierarchy built from the same graph. gamma is only used by the
// modularity measure.
func EvaluateExternal(nodes []*graph.Node, totalWeight, gamma float64, reference []cnl.Cluster, wantConductance, wantModularity, wantExpectedG bool) ExternalMeasures {
	p := newExternalPartition(nodes, reference)
	var m ExternalMeasures
	if wantConductance {
		m.Conductance = p.meanConductance()
	}
	if wantModularity {
		m.Modularity = p.modularity(totalWeight, gamma)
	}
	if wantExpectedG {
		m.ExpectedG = p.expectedGamma(totalWeight)
	}
	return m
}

// externalPartition indexes a reference CNL's clusters against a run's
// nodes for the measures above. A node absent from the reference file
// becomes its own singleton cluster, so every node still contributes to the
// degree/volume sums even when the reference only covers part of the graph.
// A node listed under more than one reference cluster (a fuzzy reference)
// keeps only its first-listed membership: conductance, modularity, and
// expected γ are all defined here over a crisp partition.
type externalPartition struct {
	byID      map[graph.ID]*graph.Node
	clusterOf map[graph.ID]int
	members   [][]graph.ID
}

func newExternalPartition(nodes []*graph.Node, clusters []cnl.Cluster) *externalPartition {
	p := &externalPartition{
		byID:      make(map[graph.ID]*graph.Node, len(nodes)),
		clusterOf: make(map[graph.ID]int),
	}
	for _, n := range nodes {
		p.byID[n.ID] = n
	}
	for _, c := range clusters {
		idx := len(p.members)
		var mem []graph.ID
		for _, mm := range c.Members {
			id := graph.ID(mm.NodeID)
			if _, seen := p.clusterOf[id]; seen {
				continue
			}
			p.clusterOf[id] = idx
			mem = append(mem, id)
		}
		p.members = append(p.members, mem)
	}
	for _, n := range nodes {
		if _, ok := p.clusterOf[n.ID]; !ok {
			p.clusterOf[n.ID] = len(p.members)
			p.members = append(p.members, []graph.ID{n.ID})
		}
	}
	return p
}

// clusterTotals returns internal(c) -- self-weight plus intra-cluster link
// weight -- and full(c) -- every member's self-weight plus its full weighted
// degree, cross-cluster links included -- for one cluster's member list,
// the same accounting buildLevel's finalizeGroup uses to fold a merge's
// intra-group links into a single self-weight (pkg/cluster/level.go).
func (p *externalPartition) clusterTotals(idx int, members []graph.ID) (internal, full float64) {
	for _, id := range members {
		n := p.byID[id]
		if n == nil {
			continue
		}
		internal += n.SelfWeight
		full += n.SelfWeight + n.Degree()
		for _, l := range n.Links {
			if p.clusterOf[l.Target] == idx {
				internal += l.Weight
			}
		}
	}
	return internal, full
}

// modularity computes Q(gamma) of the reference partition using the same
// per-cluster formula as modularityQ (hierarchy.go), just gathered from
// graph.Node totals instead of an item level.
func (p *externalPartition) modularity(totalWeight, gamma float64) float64 {
	if totalWeight <= 0 {
		return 0
	}
	m2 := 2 * totalWeight
	var q float64
	for idx, members := range p.members {
		internal, full := p.clusterTotals(idx, members)
		q += internal/m2 - gamma*(full/m2)*(full/m2)
	}
	return q
}

// expectedGamma solves Q(gamma)=0 for gamma: the resolution at which this
// partition's aggregate modularity is exactly zero, i.e. no better and no
// worse than the null model at that resolution. Setting the per-cluster sum
// from modularity to zero and solving for gamma gives
// gamma* = 2W * Σinternal(c) / Σfull(c)^2.
func (p *externalPartition) expectedGamma(totalWeight float64) float64 {
	var internalSum, fullSqSum float64
	for idx, members := range p.members {
		internal, full := p.clusterTotals(idx, members)
		internalSum += internal
		fullSqSum += full * full
	}
	if fullSqSum <= 0 {
		return 0
	}
	return 2 * totalWeight * internalSum / fullSqSum
}

// meanConductance averages phi(S) = cut(S, V\S) / min(vol(S), vol(V\S))
// over the reference clusters, using each node's
// Degree() (which already excludes self-weight) for volume: each undirected
// edge is stored as two full-weight directed links, so summing cut edges
// from one side of the partition already yields the true cut weight, and
// summing Degree() over one side already yields the true (self-weight
// excluded) volume -- no additional doubling needed. A cluster whose
// min(vol(S), vol(V\S)) is not positive, such as one spanning the whole
// graph, contributes no term; a cluster with no external edges contributes
// a zero term.
func (p *externalPartition) meanConductance() float64 {
	totalDegree := 0.0
	for _, n := range p.byID {
		totalDegree += n.Degree()
	}

	var sum float64
	var count int
	for idx, members := range p.members {
		if len(members) == 0 {
			continue
		}
		var volS, cut float64
		for _, id := range members {
			n := p.byID[id]
			if n == nil {
				continue
			}
			volS += n.Degree()
			for _, l := range n.Links {
				if p.clusterOf[l.Target] != idx {
					cut += l.Weight
				}
			}
		}
		volRest := totalDegree - volS
		denom := volS
		if volRest < denom {
			denom = volRest
		}
		if denom <= 0 {
			continue
		}
		sum += cut / denom
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
