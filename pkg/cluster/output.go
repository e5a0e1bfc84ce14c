package cluster

import (
	"math"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

// SignificantMode selects how a descendant cluster's owner constraints are
// evaluated when choosing significant (representative) clusters.
type SignificantMode int

const (
	// ModeSomeDirect ("s*d") requires at least one direct owner satisfied.
	ModeSomeDirect SignificantMode = iota
	// ModeSomeHier ("s*h") requires at least one owner in the whole
	// transitive owner chain satisfied.
	ModeSomeHier
	// ModeAllDirect ("a*d") requires every direct owner satisfied.
	ModeAllDirect
	// ModeAllHier ("a*h") requires every transitive owner satisfied.
	ModeAllHier
)

// SignificantOptions configures the representative-cluster traversal.
type SignificantOptions struct {
	DensityDrop float64 // own density >= DensityDrop * owner density
	WeightStep  float64 // own weight >= WeightStep * owner weight
	Mode        SignificantMode
	MinSize     int // 0 = derive from SzMinRule
	SzMinRule   string // "log2" | "ln" | "phi" | "sqrt" | "mean" | "" (explicit MinSize)
}

// clusterStat captures the per-cluster quantities the significance test
// compares against an owner's: density = internal weight / base-node
// count, and weight = full weighted degree contribution.
type clusterStat struct {
	density float64
	weight  float64
	size    int
}

// statOf computes cluster stats for the item at index it.id within level
// levelIdx: density = internal weight / base-node count, and weight = full
// weighted degree contribution. The node count comes from Unwrap's
// transitive descendant walk, not len(it.descendants) -- above level 0 an
// item's immediate descendants are themselves clusters, not base nodes, so
// counting them directly would undercount every non-bottom level.
func (h *Hierarchy) statOf(levelIdx int, it *item) clusterStat {
	size := len(h.Unwrap(levelIdx, it.id, false))
	if size == 0 {
		size = 1
	}
	return clusterStat{
		density: it.selfWeight / float64(size),
		weight:  it.selfWeight + it.degree(),
		size:    size,
	}
}

// SignificantClusters performs a top-down traversal of the hierarchy,
// returning the (level, index) of every cluster that is a "concise
// representative subset" of the full hierarchy under opts.
func (h *Hierarchy) SignificantClusters(opts SignificantOptions) []NodeOwner {
	minSize := opts.MinSize
	if minSize <= 0 {
		minSize = h.deriveMinSize(opts.SzMinRule)
	}

	var out []NodeOwner
	root := h.Root()
	if root == nil {
		return out
	}
	topLevel := len(h.levels) - 1
	for _, it := range root.items {
		if it.propagated {
			continue
		}
		h.walkSignificant(topLevel, it, nil, opts, minSize, &out)
	}
	return out
}

// walkSignificant recurses from owner cur (at level lvl) down into its
// descendants, testing each descendant against the chain of owner stats
// seen so far (direct = chain[len(chain)-1], hierarchical = all of chain).
func (h *Hierarchy) walkSignificant(lvl int, cur *item, chain []clusterStat, opts SignificantOptions, minSize int, out *[]NodeOwner) {
	curStat := h.statOf(lvl, cur)
	newChain := append(append([]clusterStat(nil), chain...), curStat)

	if lvl == 0 {
		return
	}
	below := h.levels[lvl-1]
	for _, d := range cur.descendants {
		desc := below.items[d]
		if desc.propagated {
			// Propagated wrappers are skipped entirely from "distinct
			// clusters" output selection.
			h.walkSignificant(lvl-1, desc, newChain, opts, minSize, out)
			continue
		}
		ds := h.statOf(lvl-1, desc)
		if ds.size >= minSize && h.satisfiesConstraints(ds, newChain, opts) {
			*out = append(*out, NodeOwner{Level: lvl - 1, ClusterIdx: d})
		}
		h.walkSignificant(lvl-1, desc, newChain, opts, minSize, out)
	}
}

func (h *Hierarchy) satisfiesConstraints(ds clusterStat, chain []clusterStat, opts SignificantOptions) bool {
	if len(chain) == 0 {
		return true
	}
	check := func(owner clusterStat) bool {
		return ds.density >= opts.DensityDrop*owner.density && ds.weight >= opts.WeightStep*owner.weight
	}
	switch opts.Mode {
	case ModeSomeDirect:
		return check(chain[len(chain)-1])
	case ModeAllDirect:
		return check(chain[len(chain)-1])
	case ModeSomeHier:
		for _, owner := range chain {
			if check(owner) {
				return true
			}
		}
		return false
	case ModeAllHier:
		for _, owner := range chain {
			if !check(owner) {
				return false
			}
		}
		return true
	default:
		return check(chain[len(chain)-1])
	}
}

// deriveMinSize computes szmin per auto-derivation variants.
// The closed-form rules (log2/ln/phi/sqrt) apply against the total node
// count (level 0 size); "mean" instead derives szmin from the observed
// distribution of root-level cluster sizes via meanStdDev, one standard
// deviation below the mean, falling back to log2 if the root has no
// non-propagated clusters to measure. A positive integer rule is used as
// szmin directly; any other unrecognized rule falls back to log2.
func (h *Hierarchy) deriveMinSize(rule string) int {
	n := 0
	if len(h.levels) > 0 {
		n = h.levels[0].Size()
	}
	if n <= 1 {
		return 1
	}
	switch rule {
	case "ln":
		return maxInt(1, int(math.Log(float64(n))))
	case "phi":
		phi := (1 + math.Sqrt(5)) / 2
		return maxInt(1, int(math.Pow(phi, -1)*float64(n)))
	case "sqrt":
		return maxInt(1, int(math.Sqrt(float64(n))))
	case "log2", "":
		return maxInt(1, int(math.Log2(float64(n))))
	case "mean":
		sizes := h.rootClusterSizes()
		if len(sizes) == 0 {
			return maxInt(1, int(math.Log2(float64(n))))
		}
		mean, std := meanStdDev(sizes)
		return maxInt(1, int(mean-std))
	default:
		if v, err := strconv.Atoi(rule); err == nil && v > 0 {
			return v
		}
		return maxInt(1, int(math.Log2(float64(n))))
	}
}

// rootClusterSizes collects each root-level cluster's base-node count, the
// distribution meanStdDev sizes the "mean" szmin rule from.
func (h *Hierarchy) rootClusterSizes() []float64 {
	root := h.Root()
	if root == nil {
		return nil
	}
	topLevel := len(h.levels) - 1
	sizes := make([]float64, 0, len(root.items))
	for _, it := range root.items {
		if it.propagated {
			continue
		}
		sizes = append(sizes, float64(h.statOf(topLevel, it).size))
	}
	return sizes
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ClusterStat exposes the same density/weight/base-node-count figures
// statOf computes internally, for external formatters (pkg/vec's dimension
// footer) that need to report the same ratios the significance check
// itself compares against.
func (h *Hierarchy) ClusterStat(levelIdx, clusterIdx int) (density, weight float64, size int) {
	lvl := h.Level(levelIdx)
	if lvl == nil || clusterIdx < 0 || clusterIdx >= len(lvl.items) {
		return 0, 0, 0
	}
	st := h.statOf(levelIdx, lvl.items[clusterIdx])
	return st.density, st.weight, st.size
}

// PerLevel returns every (level, clusterIdx) for level levelIdx, skipping
// propagated wrappers when distinctOnly is set.
func (h *Hierarchy) PerLevel(levelIdx int, distinctOnly bool) []NodeOwner {
	lvl := h.Level(levelIdx)
	if lvl == nil {
		return nil
	}
	var out []NodeOwner
	for i, it := range lvl.items {
		if distinctOnly && it.propagated {
			continue
		}
		out = append(out, NodeOwner{Level: levelIdx, ClusterIdx: i})
	}
	return out
}

// CustomLevels selects levels whose cluster count, scanned bottom-up,
// crosses a multiplicative step ratio levStepRatio, bounded between margmin
// and margmax cluster counts ("Per-level and custom-level
// outputs"). margmax<=0 means unbounded.
func (h *Hierarchy) CustomLevels(levStepRatio float64, margmin, margmax int) []int {
	var out []int
	if len(h.levels) == 0 {
		return out
	}
	nextThreshold := math.Inf(1)
	if levStepRatio > 0 {
		nextThreshold = float64(h.levels[0].Size())
	}
	for i, lvl := range h.levels {
		size := lvl.Size()
		if margmax > 0 && size > margmax {
			continue
		}
		if margmin > 0 && size < margmin {
			break
		}
		if levStepRatio <= 0 {
			out = append(out, i)
			continue
		}
		if float64(size) <= nextThreshold {
			out = append(out, i)
			nextThreshold = float64(size) / levStepRatio
		}
	}
	return out
}

// meanStdDev computes the mean and standard deviation of sizes, backing the
// "mean" szmin rule (deriveMinSize) with a distribution-aware threshold
// instead of the closed-form log2/ln/phi/sqrt variants.
func meanStdDev(sizes []float64) (mean, std float64) {
	if len(sizes) == 0 {
		return 0, 0
	}
	mean = stat.Mean(sizes, nil)
	std = stat.StdDev(sizes, nil)
	return
}
