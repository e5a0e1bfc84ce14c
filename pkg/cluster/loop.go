package cluster

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/daoc-go/daoc/internal/trace"
	"github.com/daoc-go/daoc/pkg/graph"
)

// RootBoundPolicy controls how the loop behaves once RootMax is set.
type RootBoundPolicy struct {
	RootMax     int // 0 = unbounded
	Up          bool
	Down        bool
	Standalone  bool
	NonNegative bool
}

// Options configures a single clustering run.
type Options struct {
	Directed bool

	Gamma         float64
	GammaRatio    float64 // 0 = static gamma
	GammaRatioMax float64
	GammaMin      float64 // -1 = auto-derive
	GammaMax      float64 // -1 = auto-derive

	RootBound RootBoundPolicy

	GainMargin            float64
	GainMarginBySqrtLinks bool
	FilterMargin          float64

	ChainsExtra  bool
	FuzzyOverlap bool
	Prefilter    bool
	UseAOH       bool

	MaxLevels int // 0 = unbounded

	Logger      zerolog.Logger
	Timings     bool
	Informative bool
}

// Run drives the agglomeration loop from a released graph's nodes to a
// completed Hierarchy. nodes must not be referenced by the
// caller afterwards: the hierarchy takes ownership.
func Run(nodes []*graph.Node, totalWeight float64, opts Options) (*Hierarchy, error) {
	base := nodesToLevel(nodes)
	h := &Hierarchy{totalWeight: totalWeight, levels: []*Level{base}}

	gammaMin, gammaMax := resolveGammaRange(opts, totalWeight)
	gamma := opts.Gamma

	for levelIdx := 0; ; levelIdx++ {
		if opts.MaxLevels > 0 && levelIdx >= opts.MaxLevels {
			break
		}
		cur := h.levels[len(h.levels)-1]
		if len(cur.items) <= 1 {
			break
		}

		gamma = nextGamma(gamma, opts, gammaMin, gammaMax, levelIdx)

		timer := trace.StartLevel(opts.Logger, levelIdx, opts.Timings)
		bypassGainMargin := opts.RootBound.Up && opts.RootBound.RootMax > 0 && len(cur.items) > opts.RootBound.RootMax
		next, bestGain, gainSum, err := stepLevel(cur, totalWeight, gamma, opts, bypassGainMargin)
		timer.Stop()
		if err != nil {
			return nil, err
		}

		if len(next.items) == len(cur.items) {
			// No merges were produced.
			break
		}

		next.gamma = gamma
		next.modularity = modularityQ(next, totalWeight, gamma)
		trace.Progress(opts.Logger, opts.Informative, levelIdx+1, len(next.items), next.modularity, gainSum)

		if opts.Informative {
			tracked, independent := VerifyModularity(next, gamma)
			trace.VerifyModularity(opts.Logger, opts.Informative, levelIdx+1, tracked, independent)
		}

		h.levels = append(h.levels, next)

		if shouldStopRootBound(opts.RootBound, len(next.items), bestGain) {
			break
		}
	}

	if opts.RootBound.Standalone && len(h.levels[len(h.levels)-1].items) > 1 {
		foldStandaloneRoot(h)
	}

	return h, nil
}

// stepLevel runs one C3 → C4 → C5 pass over cur, returning the built level,
// the level's true global best gain,
// and the Kahan-compensated sum of every candidate ΔQ scored (informative
// trace only). bypassGainMargin disables the gain-margin filter for this
// level: RootBound.Up forcing further shrinking towards RootMax must not be
// stalled by a margin cutoff that would otherwise leave every item without
// candidates.
func stepLevel(cur *Level, totalWeight, gamma float64, opts Options, bypassGainMargin bool) (*Level, float64, float64, error) {
	sel := &selector{
		items:                 cur.items,
		totalWeight:           totalWeight,
		gamma:                 gamma,
		filterMargin:          opts.FilterMargin,
		gainMargin:            opts.GainMargin,
		gainMarginBySqrtLinks: opts.GainMarginBySqrtLinks,
		usePrefilter:          opts.Prefilter,
		useAOH:                opts.UseAOH,
		rejectNegativeGain:    opts.RootBound.Up && opts.RootBound.NonNegative,
		bypassGainMargin:      bypassGainMargin,
	}
	m := sel.run()

	mg := &merger{chainsExtra: opts.ChainsExtra, fuzzy: opts.FuzzyOverlap}
	p := mg.run(len(cur.items), m)

	next := buildLevel(cur.items, p, opts.Directed)
	return next, sel.globalBest, sel.gainSum, nil
}

func shouldStopRootBound(policy RootBoundPolicy, size int, bestGain float64) bool {
	if policy.RootMax <= 0 {
		return false
	}
	switch {
	case policy.Down:
		return size <= policy.RootMax
	case policy.Up:
		return size <= policy.RootMax && bestGain < 0
	default:
		return size <= policy.RootMax
	}
}

// foldStandaloneRoot merges disconnected root-level clusters pairwise by
// heaviest remaining pseudo-weight until a single root remains, per
// RootBoundPolicy.Standalone.
func foldStandaloneRoot(h *Hierarchy) {
	cur := h.levels[len(h.levels)-1]
	items := append([]*item(nil), cur.items...)

	for len(items) > 1 {
		sortItemsByWeightDesc(items)
		a, b := items[0], items[1]
		merged := &item{
			id:          0,
			selfWeight:  a.selfWeight + b.selfWeight,
			descendants: []int{a.id, b.id},
		}
		a.addShare(0, 1.0)
		b.addShare(0, 1.0)
		items = append([]*item{merged}, items[2:]...)
		for i, it := range items {
			it.id = i
		}
	}
	h.levels = append(h.levels, &Level{items: items, fullSize: len(items)})
}

func sortItemsByWeightDesc(items []*item) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].weight() > items[j-1].weight(); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

// resolveGammaRange derives (gammaMin, gammaMax) from the total graph weight
// when either bound is left at its -1 "auto" sentinel: gammaMin = 1/sqrt(2W),
// gammaMax = sqrt(2W), the standard Newman-resolution auto-range.
func resolveGammaRange(opts Options, totalWeight float64) (float64, float64) {
	gammaMin, gammaMax := opts.GammaMin, opts.GammaMax
	if totalWeight <= 0 {
		totalWeight = 1
	}
	autoMax := math.Sqrt(2 * totalWeight)
	autoMin := 1 / autoMax
	if gammaMin < 0 {
		gammaMin = autoMin
	}
	if gammaMax < 0 {
		gammaMax = autoMax
	}
	return gammaMin, gammaMax
}

func nextGamma(prev float64, opts Options, gammaMin, gammaMax float64, levelIdx int) float64 {
	if opts.GammaRatio <= 0 {
		return opts.Gamma
	}
	if levelIdx == 0 {
		return opts.Gamma
	}
	g := prev * opts.GammaRatio
	if g < gammaMin {
		g = gammaMin
	}
	ratioMax := opts.GammaRatioMax
	if ratioMax > 0 {
		upper := prev * ratioMax
		if upper > gammaMax {
			upper = gammaMax
		}
		if g < upper {
			g = upper
		}
	}
	return g
}

// nodesToLevel builds level 0 from nodes, first sorting them by graph.ID so
// that item index 0..n-1 is a stable identity-keyed order independent of
// graph.Options.Shuffle's randomized insertion order. Every later level's
// tie-breaks (candidate partner ordering, clique/component seed order,
// crisp-overlap winner selection) key off this same index, so establishing
// it here is what makes clustering a shuffled graph produce the same
// clusters as the unshuffled original, not merely the same level sizes.
func nodesToLevel(nodes []*graph.Node) *Level {
	nodes = append([]*graph.Node(nil), nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	items := make([]*item, len(nodes))
	for i, n := range nodes {
		items[i] = &item{
			id:         i,
			nodeID:     n.ID,
			isNode:     true,
			selfWeight: n.SelfWeight,
		}
	}
	// Build an id -> index map once so links can be remapped from graph.ID
	// space into this level's dense 0..n-1 index space.
	idx := make(map[graph.ID]int, len(nodes))
	for i, n := range nodes {
		idx[n.ID] = i
	}
	for i, n := range nodes {
		links := make([]itemLink, len(n.Links))
		for j, l := range n.Links {
			links[j] = itemLink{Target: idx[l.Target], Weight: l.Weight}
		}
		items[i].links = links
	}
	return &Level{items: items, fullSize: len(items)}
}
