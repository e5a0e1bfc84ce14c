package rhb

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daoc-go/daoc/pkg/cluster"
	"github.com/daoc-go/daoc/pkg/graph"
)

func triangleHierarchy(t *testing.T) *cluster.Hierarchy {
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

func TestWriteRHBHeaderAndSections(t *testing.T) {
	h := triangleHierarchy(t)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, h))

	out := buf.String()
	assert.Contains(t, out, "/Hierarchy levels:2 clusters:1")
	assert.Contains(t, out, "/Nodes 3")
	assert.Contains(t, out, "/Level 0 pure:3")
	assert.Contains(t, out, "/Level 1 pure:1")
}

func TestRHBRoundTrip(t *testing.T) {
	h := triangleHierarchy(t)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, h))
	first := buf.String()

	parsed, err := Read(&buf)
	require.NoError(t, err)

	assert.Equal(t, h.NumLevels(), parsed.Levels)
	assert.Equal(t, h.Score().Clusters, parsed.Clusters)
	assert.Len(t, parsed.Nodes, 3)
	assert.Len(t, parsed.LevelSections, h.NumLevels())

	// Re-emitting the hierarchy must reproduce the same text, and re-parsing
	// it the same header counts.
	var buf2 bytes.Buffer
	require.NoError(t, Write(&buf2, h))
	assert.Equal(t, first, buf2.String()) // both writes produce identical text
	reparsed, err := Read(&buf2)
	require.NoError(t, err)
	assert.Equal(t, parsed.Levels, reparsed.Levels)
	assert.Equal(t, parsed.Clusters, reparsed.Clusters)
}

func TestOwnersOnlyPrintShareWhenUnequal(t *testing.T) {
	h := triangleHierarchy(t)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, h))
	// Each triangle node has one owner (share implied 1), so no ":share"
	// token should appear on any owner line of the /Nodes section.
	out := buf.String()
	start := strings.Index(out, "/Nodes")
	end := strings.Index(out, "/Level")
	require.True(t, start >= 0 && end > start)
	for _, line := range strings.Split(out[start:end], "\n") {
		if strings.HasPrefix(line, "/") || strings.HasPrefix(line, "#") {
			continue
		}
		assert.NotContains(t, line, ":")
	}
}
