// Package cluster implements the deterministic agglomerative clustering
// engine: candidate selection (C3), merging with chain/overlap policy (C4),
// level aggregation (C5), the driving loop (C6), and the resulting hierarchy
// with its output selectors (C7, C8).
package cluster

import "github.com/daoc-go/daoc/pkg/graph"

// Owner is a back-reference from an item to a cluster at the next level that
// contains it, carrying the item's share of that cluster.
// Share is only meaningful when len(owners) > 1 or the overlap is fuzzy;
// crisp single-ownership implies Share == 1.
type Owner struct {
	Index int // index of the owning cluster within the next level
	Share float64
}

// itemLink is an aggregated link to a sibling item at the same level, kept
// sorted by Target and unique, mirroring graph.Link's invariants one level up.
type itemLink struct {
	Target int // index of the destination item within the same level
	Weight float64
}

// item is the sum type collapsing Node and Cluster into one representation
// per re-architecture guidance: level 0 items wrap graph nodes
// by value (NodeID/SelfWeight copied in, Descendants empty); items at level
// ℓ≥1 instead carry Descendants (indices into level ℓ-1) and no NodeID.
type item struct {
	id          int // identity within its level; stable once assigned
	nodeID      graph.ID
	isNode      bool // true at level 0: nodeID is meaningful, Descendants is not
	selfWeight  float64
	links       []itemLink
	owners      []Owner
	descendants []int
	propagated  bool // true if this item is a singleton wrapper, not a real merge
}

// degree returns the item's weighted degree: the sum of its link weights,
// excluding self-weight (graph.Node.Degree's one-level-up analogue).
func (it *item) degree() float64 {
	var sum float64
	for _, l := range it.links {
		sum += l.Weight
	}
	return sum
}

// weight returns the quantity used as "ki" in the modularity gain formula:
// self-weight plus degree, i.e. the item's full contribution to the graph
// total.
func (it *item) weight() float64 {
	return it.selfWeight + it.degree()
}

func (it *item) linkIndex(target int) (int, bool) {
	lo, hi := 0, len(it.links)
	for lo < hi {
		mid := (lo + hi) / 2
		if it.links[mid].Target < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, lo < len(it.links) && it.links[lo].Target == target
}

// addShare installs (or updates) an owner reference with the given share.
func (it *item) addShare(ownerIdx int, share float64) {
	for i := range it.owners {
		if it.owners[i].Index == ownerIdx {
			it.owners[i].Share = share
			return
		}
	}
	it.owners = append(it.owners, Owner{Index: ownerIdx, Share: share})
}

// Level is an ordered collection of items at one depth of the hierarchy.
// Level 0 holds the input nodes; the last level is the root.
type Level struct {
	items    []*item
	fullSize int // count including propagated wrappers
	gamma    float64
	modularity float64
}

// Size returns the number of items in the level, propagated singleton
// wrappers included.
func (lv *Level) Size() int { return len(lv.items) }

// FullSize returns the count including propagated wrappers.
func (lv *Level) FullSize() int { return lv.fullSize }

// Gamma returns the resolution used to build this level from its predecessor
// (0 for level 0, which has no predecessor).
func (lv *Level) Gamma() float64 { return lv.gamma }

// Modularity returns the level's intrinsic modularity Qℓ, computed during
// the agglomeration loop.
func (lv *Level) Modularity() float64 { return lv.modularity }

// ItemOwners returns the owner references of the item at index i within lv,
// letting external printers (pkg/rhb) walk owner relations without reaching
// into the unexported item type.
func (lv *Level) ItemOwners(i int) []Owner {
	if i < 0 || i >= len(lv.items) {
		return nil
	}
	return lv.items[i].owners
}

// ItemNodeID returns the graph.ID of the level-0 item at index i. Only
// meaningful at level 0 (IsNode(i) == true); zero otherwise.
func (lv *Level) ItemNodeID(i int) graph.ID {
	if i < 0 || i >= len(lv.items) {
		return 0
	}
	return lv.items[i].nodeID
}

// IsNode reports whether the item at index i is a level-0 node wrapper
// rather than a merged cluster.
func (lv *Level) IsNode(i int) bool {
	if i < 0 || i >= len(lv.items) {
		return false
	}
	return lv.items[i].isNode
}

// IsPropagated reports whether the item at index i is a propagated
// singleton wrapper rather than a real merge.
func (lv *Level) IsPropagated(i int) bool {
	if i < 0 || i >= len(lv.items) {
		return false
	}
	return lv.items[i].propagated
}

// Descendants returns the level-(ℓ-1) indices merged into the item at
// index i.
func (lv *Level) Descendants(i int) []int {
	if i < 0 || i >= len(lv.items) {
		return nil
	}
	return lv.items[i].descendants
}
