package vec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daoc-go/daoc/pkg/cluster"
	"github.com/daoc-go/daoc/pkg/graph"
)

func buildTriangle(t *testing.T) *cluster.Hierarchy {
	t.Helper()
	g := graph.New(graph.Options{Weighted: true, Directed: false, Validation: graph.ValidationStandard})
	g.AddNodes([]graph.ID{0, 1, 2})
	require.NoError(t, g.AddNodeLinks(0, []graph.Link{{Target: 1, Weight: 1}, {Target: 2, Weight: 1}}))
	require.NoError(t, g.AddNodeLinks(1, []graph.Link{{Target: 2, Weight: 1}}))
	require.NoError(t, g.Validate())

	h, err := cluster.Run(g.Release(), g.TotalWeight(), cluster.Options{
		Gamma: 1.0, GammaMin: -1, GammaMax: -1, FilterMargin: 1e-6, UseAOH: true, Prefilter: true,
	})
	require.NoError(t, err)
	return h
}

func TestWriteHeaderAndFooter(t *testing.T) {
	h := buildTriangle(t)
	root := h.NumLevels() - 1
	clusters := []cluster.NodeOwner{{Level: root, ClusterIdx: 0}}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, h, clusters, Options{Encoding: EncodingFloat32, Numbered: true}))

	out := buf.String()
	assert.Contains(t, out, "# Nodes: 3, Dimensions: 1")
	assert.Contains(t, out, "!root")
}

func TestSparseCompressionOmitsZero(t *testing.T) {
	h := buildTriangle(t)
	root := h.NumLevels() - 1
	clusters := []cluster.NodeOwner{{Level: root, ClusterIdx: 0}}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, h, clusters, Options{
		Encoding: EncodingBit, Compress: CompressionSparse, Numbered: true, MinValue: 0.5,
	}))

	out := buf.String()
	// Every node belongs to the single root cluster with share 1, so each
	// of the three node lines must carry dimension 0 at value 1.
	lines := 0
	for _, r := range out {
		if r == '\n' {
			lines++
		}
	}
	assert.Equal(t, 5, lines) // header + 3 node lines + footer
	for _, id := range []string{"0>", "1>", "2>"} {
		assert.Contains(t, out, id+" 0:1\n")
	}
}
