package cluster

import "sort"

// mergeGroup is a set of same-level item indices destined to become one
// next-level cluster.
type mergeGroup struct {
	members []int // sorted ascending; members[0] is the representative (smallest id)
	// shares holds explicit per-member shares: 1/|groups| for every member
	// placed in more than one group.
	shares map[int]float64
}

func (g *mergeGroup) representative() int { return g.members[0] }

// merger turns a mutual-best graph into a conflict-free merge plan.
type merger struct {
	chainsExtra bool
	fuzzy       bool
}

// plan is the merger's output: non-overlapping (modulo fuzzy shares) groups
// ready for level aggregation, plus the items left out of any group.
type plan struct {
	groups     []mergeGroup
	singletons []int // items with no accepted merge; become propagated wrappers
}

func (m *merger) run(n int, mg mutualGraph) plan {
	components := connectedComponents(n, mg)

	// membership[i] lists the indices (into rawGroups) of every group i was
	// tentatively placed into, before overlap resolution.
	var rawGroups [][]int
	membership := make(map[int][]int)

	for _, comp := range components {
		if len(comp) < 2 {
			continue
		}
		if m.chainsExtra {
			g := append([]int(nil), comp...)
			sort.Ints(g)
			idx := len(rawGroups)
			rawGroups = append(rawGroups, g)
			for _, i := range g {
				membership[i] = append(membership[i], idx)
			}
			continue
		}
		for _, clique := range maximalCliques(comp, mg) {
			if len(clique) < 2 {
				continue
			}
			idx := len(rawGroups)
			rawGroups = append(rawGroups, clique)
			for _, i := range clique {
				membership[i] = append(membership[i], idx)
			}
		}
	}

	return m.resolveOverlap(n, rawGroups, membership)
}

// resolveOverlap applies the crisp/fuzzy overlap-admission rule to items
// that were tentatively placed in more than one raw group.
func (m *merger) resolveOverlap(n int, rawGroups [][]int, membership map[int][]int) plan {
	keep := make([]map[int]bool, len(rawGroups))
	for i := range keep {
		keep[i] = make(map[int]bool)
		for _, member := range rawGroups[i] {
			keep[i][member] = true
		}
	}
	shares := make([]map[int]float64, len(rawGroups))

	for item, groupIdxs := range membership {
		if len(groupIdxs) <= 1 {
			continue
		}
		if m.fuzzy {
			share := 1.0 / float64(len(groupIdxs))
			for _, gi := range groupIdxs {
				if shares[gi] == nil {
					shares[gi] = make(map[int]float64)
				}
				shares[gi][item] = share
			}
			continue
		}
		// Crisp: keep the item only in the group whose representative has
		// the smallest id among the conflicting groups.
		winner := groupIdxs[0]
		winnerRep := rawGroups[winner][0]
		for _, gi := range groupIdxs[1:] {
			rep := rawGroups[gi][0]
			if rep < winnerRep {
				winner, winnerRep = gi, rep
			}
		}
		for _, gi := range groupIdxs {
			if gi != winner {
				delete(keep[gi], item)
			}
		}
	}

	assigned := make([]bool, n)
	var out plan
	for gi, group := range rawGroups {
		var members []int
		for _, m := range group {
			if keep[gi][m] {
				members = append(members, m)
			}
		}
		if len(members) < 2 {
			// Pruned down to a singleton by crisp exclusivity; its sole
			// remaining member (if any) falls through to the propagated path.
			continue
		}
		sort.Ints(members)
		for _, mm := range members {
			assigned[mm] = true
		}
		out.groups = append(out.groups, mergeGroup{members: members, shares: shares[gi]})
	}
	for i := 0; i < n; i++ {
		if !assigned[i] {
			out.singletons = append(out.singletons, i)
		}
	}
	return out
}

// connectedComponents finds connected components of the undirected mutual
// best graph restricted to items 0..n-1.
func connectedComponents(n int, mg mutualGraph) [][]int {
	visited := make([]bool, n)
	var comps [][]int
	for i := 0; i < n; i++ {
		if visited[i] || len(mg[i]) == 0 {
			continue
		}
		var comp []int
		stack := []int{i}
		visited[i] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, cur)
			for _, nb := range mg[cur] {
				if !visited[nb] {
					visited[nb] = true
					stack = append(stack, nb)
				}
			}
		}
		sort.Ints(comp)
		comps = append(comps, comp)
	}
	return comps
}

// maximalCliques partitions a connected component of the mutual-best graph
// into a conflict-free set of maximal cliques, preserving the "every pair is
// mutual-best" invariant per group. Members not claimed by any accepted
// clique are left out entirely, for the caller to fall through to the
// singleton path.
//
// Bron-Kerbosch enumerates every maximal clique in the component; a
// deterministic greedy set cover then accepts them largest-first (ties
// broken by ascending member tuple), skipping any clique that shares a
// member with one already accepted. A single ascending-seed growth pass
// cannot do this: on a 4-cycle mutual-best graph it always consumes 0 and 1
// into the first clique it grows and then never revisits the now-disjoint
// {2,3} edge, even though both are equally valid maximal cliques.
func maximalCliques(comp []int, mg mutualGraph) [][]int {
	adj := make(map[int]map[int]bool, len(comp))
	for _, i := range comp {
		set := make(map[int]bool, len(mg[i]))
		for _, j := range mg[i] {
			set[j] = true
		}
		adj[i] = set
	}

	sorted := append([]int(nil), comp...)
	sort.Ints(sorted)

	var all [][]int
	bronKerbosch(nil, sorted, nil, adj, &all)

	sort.Slice(all, func(i, j int) bool {
		if len(all[i]) != len(all[j]) {
			return len(all[i]) > len(all[j])
		}
		return lessTuple(all[i], all[j])
	})

	used := make(map[int]bool, len(comp))
	var cliques [][]int
	for _, c := range all {
		if len(c) < 2 {
			continue
		}
		claimed := false
		for _, m := range c {
			if used[m] {
				claimed = true
				break
			}
		}
		if claimed {
			continue
		}
		for _, m := range c {
			used[m] = true
		}
		cliques = append(cliques, c)
	}
	return cliques
}

// bronKerbosch enumerates every maximal clique of adj reachable by extending
// r with candidates from p, excluding vertices already ruled out in x
// (standard Bron-Kerbosch without pivoting; components here are small).
func bronKerbosch(r, p, x []int, adj map[int]map[int]bool, out *[][]int) {
	if len(p) == 0 && len(x) == 0 {
		if len(r) > 0 {
			clique := append([]int(nil), r...)
			sort.Ints(clique)
			*out = append(*out, clique)
		}
		return
	}
	pRemaining := append([]int(nil), p...)
	for _, v := range pRemaining {
		neighbors := adj[v]
		bronKerbosch(append(append([]int(nil), r...), v), intersect(p, neighbors), intersect(x, neighbors), adj, out)
		p = removeValue(p, v)
		x = append(x, v)
	}
}

func intersect(a []int, set map[int]bool) []int {
	var out []int
	for _, v := range a {
		if set[v] {
			out = append(out, v)
		}
	}
	return out
}

func removeValue(a []int, v int) []int {
	out := make([]int, 0, len(a))
	for _, e := range a {
		if e != v {
			out = append(out, e)
		}
	}
	return out
}

func lessTuple(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
