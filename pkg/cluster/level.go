package cluster

import "sort"

// buildLevel materializes level ℓ+1 from level ℓ's items and a merge plan.
// directed selects whether intra-group link weight is
// counted once (directed) or doubled (undirected, each direction already
// stores the full original edge weight, so summing both members' entries
// naturally yields the doubled in-community weight the modularity formula
// expects).
func buildLevel(items []*item, p plan, directed bool) *Level {
	oldToNew := make([]int, len(items))
	for i := range oldToNew {
		oldToNew[i] = -1
	}

	next := make([]*item, 0, len(p.groups)+len(p.singletons))

	for _, g := range p.groups {
		idx := len(next)
		for _, m := range g.members {
			oldToNew[m] = idx
		}
		next = append(next, &item{id: idx})
	}
	for _, s := range p.singletons {
		idx := len(next)
		oldToNew[s] = idx
		next = append(next, &item{id: idx, propagated: true})
	}

	// Pass 2: fill in self-weight, descendants, owners, and remapped links
	// now that every old index has a destination.
	for _, g := range p.groups {
		ni := next[groupNewIndex(g, oldToNew)]
		finalizeGroup(ni, g, items, oldToNew)
	}
	for _, s := range p.singletons {
		ni := next[oldToNew[s]]
		finalizeSingleton(ni, items[s], oldToNew)
	}

	fullSize := len(p.groups) + len(p.singletons)
	return &Level{items: next, fullSize: fullSize}
}

func groupNewIndex(g mergeGroup, oldToNew []int) int {
	return oldToNew[g.members[0]]
}

func finalizeGroup(ni *item, g mergeGroup, items []*item, oldToNew []int) {
	ni.descendants = append([]int(nil), g.members...)
	members := make(map[int]bool, len(g.members))
	for _, m := range g.members {
		members[m] = true
	}

	var selfWeight float64
	linkAcc := make(map[int]float64)

	for _, m := range g.members {
		it := items[m]

		share := 1.0
		if g.shares != nil {
			if s, ok := g.shares[m]; ok {
				share = s
			}
		}
		it.addShare(ni.id, share)

		// A member split across multiple owning clusters (fuzzy overlap)
		// contributes only its share of its own mass to each owner, so
		// every accumulation below is scaled by share -- at share==1.0
		// (crisp, or a non-overlapping member) this is exactly the
		// unscaled accounting.
		selfWeight += it.selfWeight * share

		for _, l := range it.links {
			if members[l.Target] {
				// Intra-group: for undirected graphs each direction already
				// stores the full original edge weight, so summing both
				// members' entries yields the doubled in-community weight;
				// for directed graphs each arc is a distinct stored entry
				// counted once at its source.
				selfWeight += l.Weight * share
				continue
			}
			dst := oldToNew[l.Target]
			linkAcc[dst] += l.Weight * share
		}
	}

	ni.selfWeight = selfWeight
	ni.links = flattenLinks(linkAcc)
}

func finalizeSingleton(ni *item, old *item, oldToNew []int) {
	ni.descendants = []int{old.id}
	ni.selfWeight = old.selfWeight
	old.addShare(ni.id, 1.0)

	linkAcc := make(map[int]float64, len(old.links))
	for _, l := range old.links {
		dst := oldToNew[l.Target]
		linkAcc[dst] += l.Weight
	}
	ni.links = flattenLinks(linkAcc)
}

func flattenLinks(acc map[int]float64) []itemLink {
	out := make([]itemLink, 0, len(acc))
	for target, w := range acc {
		out = append(out, itemLink{Target: target, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}
