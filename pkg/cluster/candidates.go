package cluster

import (
	"math"
	"sort"

	"github.com/daoc-go/daoc/pkg/aoh"
	"gonum.org/v1/gonum/floats"
)

// candidateResult is the per-item outcome of candidate selection: its best
// achievable gain and the set of items tied for that gain (within
// filterMargin), before the mutual-best and gain-margin filters are applied.
type candidateResult struct {
	best     float64
	partners []int // item indices tied for best, sorted ascending
}

// selector computes, for every item at a level, its mutual-best merge
// candidates M(i).
type selector struct {
	items                 []*item
	totalWeight           float64
	gamma                 float64
	filterMargin          float64
	gainMargin            float64
	gainMarginBySqrtLinks bool
	usePrefilter          bool
	useAOH                bool
	// rejectNegativeGain implements RootBoundPolicy.NonNegative: only accept
	// merges with ΔQ ≥ 0 during bounded-up shrinking. When set, an item whose
	// best gain is negative is treated as having no candidates at all, the
	// same as failing gainMargin.
	rejectNegativeGain bool
	// bypassGainMargin disables gainBelowMargin filtering entirely: set when
	// RootBound.Up is forcing further shrinking (level size still above
	// RootMax), since the gain-margin cutoff would otherwise stall the loop
	// before it reaches RootMax.
	bypassGainMargin bool

	// globalBestLB is a cheap, provably-safe lower bound on the level's true
	// best achievable ΔQ, computed once per run() from a single witness pair.
	// Populated by run(); read by prefiltered.
	globalBestLB float64
	// globalBest is the true maximum bestᵢ seen across every scored item
	// this level, used by the agglomeration loop's root-bound "up" policy
	// instead of a placeholder constant.
	globalBest float64
	// gainSum is the Kahan-compensated sum of every per-link ΔQ evaluated
	// this level, exposed only for the informative trace -- individual
	// scores are still compared directly (not summed) for tie-breaking.
	gainSum   float64
	allScores []float64
}

// mutualGraph maps an item index to its sorted, deduplicated set of
// mutual-best partner indices: M(i).
type mutualGraph map[int][]int

// deltaQ computes the modularity gain (resolution γ) of merging items i and
// j, given their mutual link weight wij (0 if not linked). This is the
// standard pairwise join-gain used by greedy modularity optimizers: the
// change in Q from moving j's mass entirely into i's community, expressed
// against the graph's total weight W. The equivalent whole-partition form,
// in/m2 - (tot/m2)^2, is specialized here to a single pairwise merge.
func (s *selector) deltaQ(wij float64, ki, kj float64) float64 {
	m2 := 2 * s.totalWeight
	if m2 <= 0 {
		return 0
	}
	return wij/s.totalWeight - s.gamma*(ki*kj)/(m2*s.totalWeight)
}

// run computes the mutual-best graph for the current level.
func (s *selector) run() mutualGraph {
	n := len(s.items)
	results := make([]candidateResult, n)

	if s.usePrefilter {
		s.globalBestLB = s.computeGlobalBestLB()
	}

	groups := s.aohGroups()
	computed := make([]bool, n)
	for _, group := range groups {
		rep := group[0]
		r := s.scoreItem(rep)
		for _, idx := range group {
			results[idx] = r
			computed[idx] = true
		}
	}
	for i := 0; i < n; i++ {
		if !computed[i] {
			results[i] = s.scoreItem(i)
		}
	}

	s.globalBest = math.Inf(-1)
	for i := 0; i < n; i++ {
		if len(results[i].partners) > 0 && results[i].best > s.globalBest {
			s.globalBest = results[i].best
		}
	}
	s.gainSum = floats.SumCompensated(s.allScores)

	m := make(mutualGraph, n)
	for i := 0; i < n; i++ {
		if len(results[i].partners) == 0 {
			continue
		}
		if s.gainBelowMargin(results[i].best, len(s.items[i].links)) {
			continue
		}
		if s.rejectNegativeGain && results[i].best < 0 {
			continue
		}
		var mutual []int
		for _, j := range results[i].partners {
			if containsSorted(results[j].partners, i) {
				mutual = append(mutual, j)
			}
		}
		if len(mutual) > 0 {
			sort.Ints(mutual)
			m[i] = mutual
		}
	}
	return m
}

// computeGlobalBestLB derives a cheap, provably-valid lower bound on the
// level's true best ΔQ: the single link of maximum weight anywhere in the
// level is an actual, achievable candidate pair, so the exact ΔQ computed
// for it is a real value the true global best must be at least as large as.
// Unlike an upper-bound estimate, a witness lower bound keeps the
// prefilter's threshold at or below the true filterMargin×globalBest
// cutoff, which is what makes dropping an item below it a strictly
// dominated pruning rather than a risky guess.
func (s *selector) computeGlobalBestLB() float64 {
	bestW := -1.0
	var bi, bj int
	for i, it := range s.items {
		for _, l := range it.links {
			if l.Weight > bestW {
				bestW, bi, bj = l.Weight, i, l.Target
			}
		}
	}
	if bestW < 0 {
		return 0
	}
	return s.deltaQ(bestW, s.items[bi].weight(), s.items[bj].weight())
}

func (s *selector) gainBelowMargin(best float64, numLinks int) bool {
	if s.bypassGainMargin {
		return false
	}
	if s.gainMargin <= 0 {
		return false
	}
	margin := s.gainMargin
	if s.gainMarginBySqrtLinks && numLinks > 0 {
		margin /= sqrtInt(numLinks)
	}
	return best < margin
}

// scoreItem computes item i's best gain and its tied-partner set.
func (s *selector) scoreItem(i int) candidateResult {
	it := s.items[i]
	if len(it.links) == 0 {
		return candidateResult{}
	}
	if s.usePrefilter && s.prefiltered(i) {
		return candidateResult{}
	}

	ki := it.weight()
	scores := make([]float64, len(it.links))
	for li, l := range it.links {
		kj := s.items[l.Target].weight()
		scores[li] = s.deltaQ(l.Weight, ki, kj)
	}
	// Individual scores are compared directly for tie-breaking: the
	// determinism rule needs exact per-pair values. Only the level-wide
	// aggregate fed to the informative trace uses the Kahan-compensated sum,
	// which better tolerates accumulating many small link-weight terms.
	s.allScores = append(s.allScores, scores...)

	best := scores[0]
	for _, sc := range scores[1:] {
		if sc > best {
			best = sc
		}
	}

	var partners []int
	threshold := best - absF(best)*s.filterMargin
	for li, l := range it.links {
		if scores[li] >= threshold {
			partners = append(partners, l.Target)
		}
	}
	sort.Ints(partners)
	return candidateResult{best: best, partners: partners}
}

// prefiltered reports whether item i can be safely dropped before the full
// scan: its own maximum possible ΔQ toward any partner is
// bounded above by maxLinkWeight(i)/W, since the subtracted degree term in
// deltaQ is never negative for γ≥0; that bound is symmetric in the pair, so
// it also bounds every partner's score with i. If that bound falls below
// filterMargin×globalBestLB -- a real, achievable lower bound on the
// level's true best gain -- then i's true best score is provably below the
// margin too, and i can be excluded from the whole candidate scan without
// risk of changing the final mutual-best graph. Called only from scoreItem,
// which has already ruled out len(it.links)==0.
func (s *selector) prefiltered(i int) bool {
	if s.globalBestLB <= 0 {
		return false
	}
	it := s.items[i]
	maxW := 0.0
	for _, l := range it.links {
		if l.Weight > maxW {
			maxW = l.Weight
		}
	}
	ub := maxW / s.totalWeight
	return ub < s.filterMargin*s.globalBestLB
}

// aohGroups partitions item indices into equivalence classes sharing the
// exact same neighbor-target multiset, verified by AOH digest then by
// content comparison, so their candidate computation can be shared.
func (s *selector) aohGroups() [][]int {
	if !s.useAOH {
		return nil
	}
	byDigest := make(map[uint64][]int)
	hashes := make([]aoh.Hash, len(s.items))
	for i, it := range s.items {
		var h aoh.Hash
		for _, l := range it.links {
			h.Add(uint32(l.Target))
		}
		hashes[i] = h
		d := h.Digest()
		byDigest[d] = append(byDigest[d], i)
	}

	var groups [][]int
	for _, bucket := range byDigest {
		if len(bucket) < 2 {
			continue
		}
		used := make(map[int]bool)
		for _, i := range bucket {
			if used[i] {
				continue
			}
			group := []int{i}
			used[i] = true
			for _, j := range bucket {
				if used[j] || j == i {
					continue
				}
				if hashes[i].Equal(hashes[j]) && sameNeighborSet(s.items[i], s.items[j]) {
					group = append(group, j)
					used[j] = true
				}
			}
			if len(group) > 1 {
				groups = append(groups, group)
			}
		}
	}
	return groups
}

func sameNeighborSet(a, b *item) bool {
	if len(a.links) != len(b.links) {
		return false
	}
	for i := range a.links {
		if a.links[i].Target != b.links[i].Target {
			return false
		}
	}
	return true
}

func containsSorted(xs []int, v int) bool {
	i := sort.SearchInts(xs, v)
	return i < len(xs) && xs[i] == v
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func sqrtInt(n int) float64 {
	return math.Sqrt(float64(n))
}
