package graph

import (
	"fmt"
	"math/rand"
	"sort"
)

// ValidationLevel controls how aggressively Graph repairs or rejects
// inconsistent input, matching the CLI's -l=0..2 option.
type ValidationLevel int

const (
	// ValidationNone performs no consistency repair at all.
	ValidationNone ValidationLevel = iota
	// ValidationStandard fixes unsorted/duplicated links with a warning.
	ValidationStandard
	// ValidationSevere turns any fixable inconsistency into a fatal error.
	ValidationSevere
)

// Options configures a Graph's construction-time behavior.
type Options struct {
	Weighted      bool
	Directed      bool
	SumDuplicates bool // accumulate weight of duplicated links instead of dropping (-a)
	Shuffle       bool // randomize node/link insertion order; must not affect clustering output
	Validation    ValidationLevel
}

// Graph owns a set of Nodes under construction. Once Release is called the
// graph is emptied and the caller (the hierarchy) exclusively owns the
// nodes.
type Graph struct {
	opts  Options
	nodes []*Node
	index map[ID]int // node id -> position in nodes

	totalWeight float64 // sum of edge weights: each arc, undirected edge and self-loop counted once
	rng         *rand.Rand

	Errors ErrorCollector
}

// New creates an empty graph with the given construction options.
func New(opts Options) *Graph {
	g := &Graph{
		opts:  opts,
		index: make(map[ID]int),
	}
	if opts.Shuffle {
		g.rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return g
}

// NumNodes returns the number of nodes currently owned by the graph.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// TotalWeight returns the sum of original edge/arc/self-loop weights added to
// the graph (m, in the usual Newman-modularity sense; 2m = Degree+SelfWeight
// summed over all nodes). Undirected edges are counted once regardless of
// being materialized as two full-weight directed links (each direction
// carries the complete original weight, so a node's own degree already
// counts every incident edge in full).
func (g *Graph) TotalWeight() float64 { return g.totalWeight }

// Node returns the node at position i in insertion order, or nil if out of
// range. Iteration order is the graph's internal order, which callers must
// not rely on for determinism beyond "contains the same nodes" -- clustering
// results are independent of it.
func (g *Graph) Node(i int) *Node {
	if i < 0 || i >= len(g.nodes) {
		return nil
	}
	return g.nodes[i]
}

// Nodes returns a snapshot slice of all owned nodes in internal order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// ByID returns the node with the given id, if present.
func (g *Graph) ByID(id ID) (*Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.nodes[i], true
}

// AddNodes preallocates nodes for every id in ids. Duplicate ids are reported
// via Errors, not treated as fatal.
func (g *Graph) AddNodes(ids []ID) {
	order := make([]int, len(ids))
	for i := range order {
		order[i] = i
	}
	if g.rng != nil {
		g.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	for _, i := range order {
		g.addNode(ids[i])
	}
}

// AddNodesRange preallocates count nodes with consecutive ids starting at id0.
func (g *Graph) AddNodesRange(count int, id0 ID) {
	ids := make([]ID, count)
	for i := 0; i < count; i++ {
		ids[i] = id0 + ID(i)
	}
	g.AddNodes(ids)
}

func (g *Graph) addNode(id ID) *Node {
	if i, ok := g.index[id]; ok {
		g.Errors.addNode(id, "duplicate node id, existing node reused")
		return g.nodes[i]
	}
	n := &Node{ID: id}
	g.index[id] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	return n
}

// ensureNode returns the node for id, creating it (and reporting nothing) if
// it did not already exist. Used by the "AndLinks" variants which auto-add
// missing endpoints.
func (g *Graph) ensureNode(id ID) *Node {
	if i, ok := g.index[id]; ok {
		return g.nodes[i]
	}
	return g.addNode(id)
}

// AddNodeLinks appends ordered, unique links from src to the destinations in
// links. Every endpoint must already exist; missing endpoints are fatal.
func (g *Graph) AddNodeLinks(src ID, links []Link) error {
	return g.addLinks(src, links, false, g.opts.Directed)
}

// AddNodeAndLinks is like AddNodeLinks but auto-creates missing endpoints
// instead of failing.
func (g *Graph) AddNodeAndLinks(src ID, links []Link) error {
	return g.addLinks(src, links, true, g.opts.Directed)
}

// AddNodeLinksAs is AddNodeLinks with an explicit per-call directed override,
// for formats that mix directed (arcs) and undirected (edges) sections
// within the same graph -- the graph-wide Options.Directed then only sets
// the default section semantics, not the whole graph's.
func (g *Graph) AddNodeLinksAs(src ID, links []Link, directed bool) error {
	return g.addLinks(src, links, false, directed)
}

// AddNodeAndLinksAs is AddNodeAndLinks with an explicit per-call directed
// override; see AddNodeLinksAs.
func (g *Graph) AddNodeAndLinksAs(src ID, links []Link, directed bool) error {
	return g.addLinks(src, links, true, directed)
}

func (g *Graph) addLinks(src ID, links []Link, autoAdd, directed bool) error {
	var sn *Node
	if autoAdd {
		sn = g.ensureNode(src)
	} else {
		var ok bool
		if sn, ok = g.ByID(src); !ok {
			return fmt.Errorf("addLinks: source node %d does not exist", src)
		}
	}

	order := make([]int, len(links))
	for i := range order {
		order[i] = i
	}
	if g.rng != nil {
		g.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	for _, i := range order {
		l := links[i]
		weight := l.Weight
		if !g.opts.Weighted {
			weight = 1
		}
		if weight < 0 {
			g.Errors.addLink(src, l.Target, "negative weight %v rejected", weight)
			continue
		}

		if l.Target == src {
			// Self-loop: doubled into self-weight regardless of edge/arc origin,
			// but contributes its declared weight once to the graph total, same
			// as any other edge.
			sn.SelfWeight += 2 * weight
			g.totalWeight += weight
			continue
		}

		var dn *Node
		if autoAdd {
			dn = g.ensureNode(l.Target)
		} else {
			var ok bool
			if dn, ok = g.ByID(l.Target); !ok {
				return fmt.Errorf("addLinks: destination node %d does not exist", l.Target)
			}
		}

		if directed {
			g.storeLink(sn, l.Target, weight)
			g.totalWeight += weight
		} else {
			// Undirected: materialize both directions, each carrying the
			// full original weight, so each node's own degree already
			// counts every incident edge at full weight -- consistent with
			// a self-loop's weight landing in self-weight doubled. The edge
			// itself still contributes once to totalWeight, same as a
			// self-loop.
			g.storeLink(sn, l.Target, weight)
			g.storeLink(dn, src, weight)
			g.totalWeight += weight
		}
	}
	return nil
}

// storeLink inserts or merges a single directed link into n's sorted link
// list, honoring SumDuplicates.
func (g *Graph) storeLink(n *Node, dst ID, weight float64) {
	idx, found := n.linkIndex(dst)
	if found {
		if g.opts.SumDuplicates {
			n.Links[idx].Weight += weight
		} else {
			g.Errors.addLink(n.ID, dst, "duplicate link dropped (weight %v)", weight)
		}
		return
	}
	n.Links = append(n.Links, Link{})
	copy(n.Links[idx+1:], n.Links[idx:len(n.Links)-1])
	n.Links[idx] = Link{Target: dst, Weight: weight}
}

// Validate checks link-list invariants (sorted, unique, non-negative weight,
// existing endpoints) and repairs or rejects according to opts.Validation.
func (g *Graph) Validate() error {
	if g.opts.Validation == ValidationNone {
		return nil
	}
	for _, n := range g.nodes {
		if n.SelfWeight < 0 {
			return InvariantError{Invariant: "non-negative self-weight", Detail: fmt.Sprintf("node %d has self-weight %v", n.ID, n.SelfWeight)}
		}
		sorted := sort.SliceIsSorted(n.Links, func(i, j int) bool { return n.Links[i].Target < n.Links[j].Target })
		if !sorted {
			if g.opts.Validation == ValidationSevere {
				return fmt.Errorf("node %d: links are not sorted", n.ID)
			}
			sort.Slice(n.Links, func(i, j int) bool { return n.Links[i].Target < n.Links[j].Target })
			g.Errors.addNode(n.ID, "links were unsorted, fixed")
		}
		for i, l := range n.Links {
			if l.Weight < 0 {
				return fmt.Errorf("node %d: link to %d has negative weight %v", n.ID, l.Target, l.Weight)
			}
			if i > 0 && n.Links[i-1].Target == l.Target {
				if g.opts.Validation == ValidationSevere {
					return fmt.Errorf("node %d: duplicate link to %d", n.ID, l.Target)
				}
			}
			if _, ok := g.ByID(l.Target); !ok {
				return fmt.Errorf("node %d: link to nonexistent node %d", n.ID, l.Target)
			}
		}
	}
	return nil
}

// Release hands over all owned nodes to the caller and empties the graph:
// once released, the source graph becomes empty and ownership of every node
// passes to the caller.
func (g *Graph) Release() []*Node {
	out := g.nodes
	g.nodes = nil
	g.index = make(map[ID]int)
	g.totalWeight = 0
	return out
}
