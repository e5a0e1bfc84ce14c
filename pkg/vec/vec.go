// Package vec implements the optional node-vectorization output: each node
// is projected onto one dimension per significant cluster it belongs to,
// encoded by a configurable scheme, with a header describing the encoding
// and a footer describing each dimension's source cluster.
package vec

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/daoc-go/daoc/pkg/cluster"
	"github.com/daoc-go/daoc/pkg/graph"
)

// Encoding selects how a node's projection value onto a dimension is
// rendered.
type Encoding int

const (
	EncodingBit Encoding = iota
	EncodingUint8
	EncodingUint16
	EncodingFloat32
)

func (e Encoding) String() string {
	switch e {
	case EncodingBit:
		return "bit"
	case EncodingUint8:
		return "uint8"
	case EncodingUint16:
		return "uint16"
	case EncodingFloat32:
		return "float32"
	default:
		return "float32"
	}
}

// Compression selects whether zero/below-minimum projections are omitted
// from a node's line (sparse) or always printed (dense).
type Compression int

const (
	CompressionNone Compression = iota
	CompressionSparse
)

// Options configures the node-vectorization output.
type Options struct {
	Encoding Encoding
	Compress Compression
	MinValue float64 // projections below this are treated as absent
	Numbered bool    // print cluster ids alongside dimension indices
}

// Dimension describes one output column: the (level, clusterIdx) it is
// sourced from, the cluster's relative density/weight against its owner,
// and the footer's wsim/wdis figures, where WeightSim holds the cluster's
// base-node count and WeightDis is always 0 (footer
// "id#level%rdens/rweight:wsim-wdis[!root]").
type Dimension struct {
	ID          int
	Level       int
	ClusterIdx  int
	RelDensity  float64
	RelWeight   float64
	WeightSim   float64
	WeightDis   float64
	IsRoot      bool
}

// Write emits the node-vectorization output for the given clusters (one
// dimension per cluster, in the order given) over h.
func Write(w io.Writer, h *cluster.Hierarchy, clusters []cluster.NodeOwner, opts Options) error {
	bw := bufio.NewWriter(w)

	base := h.Level(0)
	nodeCount := 0
	if base != nil {
		nodeCount = base.Size()
	}

	if _, err := fmt.Fprintf(bw, "# Nodes: %d, Dimensions: %d, Encoding: %s, Compression: %s, MinValue: %g, Numbered: %d\n",
		nodeCount, len(clusters), opts.Encoding, compressionString(opts.Compress), opts.MinValue, boolInt(opts.Numbered)); err != nil {
		return err
	}

	// projections[node] -> dimension index -> value
	projections := make(map[graph.ID]map[int]float64, nodeCount)
	dims := make([]Dimension, len(clusters))
	for di, co := range clusters {
		dims[di] = buildDimension(h, di, co)
		members := h.Unwrap(co.Level, co.ClusterIdx, false)
		for nodeID, share := range members {
			if share < opts.MinValue {
				continue
			}
			if projections[nodeID] == nil {
				projections[nodeID] = make(map[int]float64)
			}
			projections[nodeID][di] = share
		}
	}

	if base != nil {
		for i := 0; i < base.Size(); i++ {
			nodeID := base.ItemNodeID(i)
			if err := writeNodeLine(bw, nodeID, projections[nodeID], len(dims), opts); err != nil {
				return err
			}
		}
	}

	for _, d := range dims {
		if err := writeDimensionFooter(bw, d, opts.Numbered); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// buildDimension computes the footer figures for one node-vectorization
// dimension: rdens/rweight are the cluster's own density/weight against its
// primary (largest-share) direct owner, 1 for a root dimension with no
// owner to compare against.
func buildDimension(h *cluster.Hierarchy, id int, co cluster.NodeOwner) Dimension {
	lvl := h.Level(co.Level)
	d := Dimension{ID: id, Level: co.Level, ClusterIdx: co.ClusterIdx}
	if lvl == nil {
		return d
	}
	d.IsRoot = co.Level == h.NumLevels()-1

	density, weight, size := h.ClusterStat(co.Level, co.ClusterIdx)
	d.WeightSim = float64(size)
	d.WeightDis = 0
	d.RelDensity = 1.0
	d.RelWeight = 1.0
	if d.IsRoot {
		return d
	}

	owners := lvl.ItemOwners(co.ClusterIdx)
	if len(owners) == 0 {
		return d
	}
	primary := owners[0]
	for _, o := range owners[1:] {
		if o.Share > primary.Share {
			primary = o
		}
	}
	ownerDensity, ownerWeight, _ := h.ClusterStat(co.Level+1, primary.Index)
	if ownerDensity > 0 {
		d.RelDensity = density / ownerDensity
	}
	if ownerWeight > 0 {
		d.RelWeight = weight / ownerWeight
	}
	return d
}

func writeNodeLine(bw *bufio.Writer, nodeID graph.ID, proj map[int]float64, numDims int, opts Options) error {
	if opts.Numbered {
		if _, err := fmt.Fprintf(bw, "%d>", nodeID); err != nil {
			return err
		}
	}
	if opts.Compress == CompressionSparse {
		for di := 0; di < numDims; di++ {
			v, ok := proj[di]
			if !ok {
				continue
			}
			if _, err := fmt.Fprintf(bw, " %d:%s", di, encodeValue(v, opts.Encoding)); err != nil {
				return err
			}
		}
	} else {
		for di := 0; di < numDims; di++ {
			v := proj[di]
			if _, err := fmt.Fprintf(bw, " %s", encodeValue(v, opts.Encoding)); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(bw)
	return err
}

func encodeValue(v float64, enc Encoding) string {
	switch enc {
	case EncodingBit:
		if v > 0 {
			return "1"
		}
		return "0"
	case EncodingUint8:
		return fmt.Sprintf("%d", quantize(v, math.MaxUint8))
	case EncodingUint16:
		return fmt.Sprintf("%d", quantize(v, math.MaxUint16))
	default:
		return fmt.Sprintf("%g", v)
	}
}

func quantize(v float64, max int) int {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return max
	}
	return int(v * float64(max))
}

func writeDimensionFooter(bw *bufio.Writer, d Dimension, numbered bool) error {
	root := ""
	if d.IsRoot {
		root = "!root"
	}
	if numbered {
		_, err := fmt.Fprintf(bw, "%d#%d(%d)%%%.4g/%.4g:%.4g-%.4g%s\n",
			d.ID, d.Level, d.ClusterIdx, d.RelDensity, d.RelWeight, d.WeightSim, d.WeightDis, root)
		return err
	}
	_, err := fmt.Fprintf(bw, "%d#%d%%%.4g/%.4g:%.4g-%.4g%s\n",
		d.ID, d.Level, d.RelDensity, d.RelWeight, d.WeightSim, d.WeightDis, root)
	return err
}

func compressionString(c Compression) string {
	if c == CompressionSparse {
		return "sparse"
	}
	return "none"
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
