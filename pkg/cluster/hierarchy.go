package cluster

import (
	"sort"

	"github.com/daoc-go/daoc/pkg/graph"
)

// Hierarchy is the bottom-up sequence of levels produced by Run. It
// exclusively owns every level, cluster (item), and moved-in node, matching
// ownership contract: once built it is immutable and consumed
// only by output selectors.
type Hierarchy struct {
	levels      []*Level
	totalWeight float64 // W, the total bidirectional link weight
}

// Levels returns the hierarchy's levels bottom-up; level 0 is the input
// nodes, the last entry is the root.
func (h *Hierarchy) Levels() []*Level { return h.levels }

// NumLevels returns len(Levels()).
func (h *Hierarchy) NumLevels() int { return len(h.levels) }

// Level returns the level at index i (0 = bottom), or nil if out of range.
func (h *Hierarchy) Level(i int) *Level {
	if i < 0 || i >= len(h.levels) {
		return nil
	}
	return h.levels[i]
}

// Root returns the top-level clusters, i.e. the items of the last level.
func (h *Hierarchy) Root() *Level {
	if len(h.levels) == 0 {
		return nil
	}
	return h.levels[len(h.levels)-1]
}

// TotalWeight returns W, the total bidirectional link weight used to
// compute modularity throughout the hierarchy.
func (h *Hierarchy) TotalWeight() float64 { return h.totalWeight }

// Score is the hierarchy score triple of GLOSSARY: cluster
// count (of the root level), modularity (of the root level), and total
// bidirectional link weight.
type Score struct {
	Clusters   int
	Modularity float64
	TotalWeight float64
}

// Score returns the hierarchy's score triple, computed at the root level.
func (h *Hierarchy) Score() Score {
	root := h.Root()
	if root == nil {
		return Score{TotalWeight: h.totalWeight}
	}
	return Score{
		Clusters:    root.Size(),
		Modularity:  root.Modularity(),
		TotalWeight: h.totalWeight,
	}
}

// Unwrap maps every node reachable (through any chain of descendants) from
// cluster down to its contributed share of cluster, summing contributions
// along every descendant path.
// When maxShare is true, only the single owner-path contributing the
// largest share to each node is retained (used for fuzzy-overlap
// simplification), and that retained share is renormalized to 1.
func (h *Hierarchy) Unwrap(levelIdx, clusterIdx int, maxShare bool) map[graph.ID]float64 {
	lvl := h.Level(levelIdx)
	if lvl == nil || clusterIdx < 0 || clusterIdx >= len(lvl.items) {
		return nil
	}
	acc := make(map[graph.ID]float64)
	h.unwrapInto(levelIdx, lvl.items[clusterIdx], 1.0, acc)
	if maxShare {
		return collapseToMax(levelIdx, lvl.items[clusterIdx], h)
	}
	return acc
}

// unwrapInto accumulates node->share contributions by walking descendants
// down to level 0, multiplying shares along the path.
func (h *Hierarchy) unwrapInto(levelIdx int, it *item, share float64, acc map[graph.ID]float64) {
	if levelIdx == 0 {
		acc[it.nodeID] += share
		return
	}
	below := h.levels[levelIdx-1]
	for _, d := range it.descendants {
		desc := below.items[d]
		descShare := 1.0
		for _, o := range desc.owners {
			if o.Index == it.id {
				descShare = o.Share
				break
			}
		}
		h.unwrapInto(levelIdx-1, desc, share*descShare, acc)
	}
}

// collapseToMax recomputes Unwrap's result keeping, per node, only the
// largest single contribution (not the sum across multiple owner paths),
// then renormalizes it to 1 -- the "maxShare" simplification of fuzzy
// overlaps into a crisp partition for consumers that need one.
func collapseToMax(levelIdx int, it *item, h *Hierarchy) map[graph.ID]float64 {
	best := make(map[graph.ID]float64)
	var walk func(int, *item, float64)
	walk = func(li int, cur *item, share float64) {
		if li == 0 {
			if share > best[cur.nodeID] {
				best[cur.nodeID] = share
			}
			return
		}
		below := h.levels[li-1]
		for _, d := range cur.descendants {
			desc := below.items[d]
			descShare := 1.0
			for _, o := range desc.owners {
				if o.Index == cur.id {
					descShare = o.Share
					break
				}
			}
			walk(li-1, desc, share*descShare)
		}
	}
	walk(levelIdx, it, 1.0)
	for k := range best {
		best[k] = 1.0
	}
	return best
}

// NodeOwner names one cluster by (level, clusterIdx), with a share where one
// applies; SignificantClusters and PerLevel return lists of them.
type NodeOwner struct {
	Level      int
	ClusterIdx int
	Share      float64
}

// DirectOwners returns node's immediate (level-1) owners.
func (h *Hierarchy) DirectOwners(nodeID graph.ID) []NodeOwner {
	if len(h.levels) == 0 {
		return nil
	}
	base := h.levels[0]
	for _, it := range base.items {
		if it.nodeID != nodeID {
			continue
		}
		out := make([]NodeOwner, 0, len(it.owners))
		for _, o := range it.owners {
			out = append(out, NodeOwner{Level: 1, ClusterIdx: o.Index, Share: o.Share})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ClusterIdx < out[j].ClusterIdx })
		return out
	}
	return nil
}

// modularityQ computes the weighted, resolution-γ modularity of a complete
// level's partition: Q(γ) = Σ_c [ internal(c)/2W - γ(weight(c)/2W)² ], the
// standard Σ_c[in_c/2m - γ(tot_c/2m)²] form. Self-weight plus intra-cluster
// links (each already counted from both endpoints under the graph's
// full-weight undirected link storage, i.e. already the doubled "in_c") form
// internal(c); weight(c) is the cluster's full degree contribution
// (self-weight plus link degree). This mirrors the selector's per-pair ΔQ,
// summed here over a whole partition rather than a single merge.
func modularityQ(lvl *Level, totalWeight, gamma float64) float64 {
	if totalWeight <= 0 {
		return 0
	}
	var q float64
	m2 := 2 * totalWeight
	for _, it := range lvl.items {
		internal := it.selfWeight
		full := it.selfWeight + it.degree()
		q += internal/m2 - gamma*(full/m2)*(full/m2)
	}
	return q
}
