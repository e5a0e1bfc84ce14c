package rcg

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daoc-go/daoc/pkg/graph"
)

func TestParseEdgesSectionBuildsUndirectedGraph(t *testing.T) {
	in := "/nodes 3 id0=1\n/edges\n1> 2:2 3:1\n"
	g, hdr, err := Parse(strings.NewReader(in), false, false, graph.ValidationStandard)
	require.NoError(t, err)
	require.NoError(t, g.Validate())

	assert.Equal(t, 3, hdr.Count)
	assert.True(t, hdr.HasStart)
	assert.Equal(t, graph.ID(1), hdr.IDStart)
	assert.Equal(t, 3, g.NumNodes())

	n1, ok := g.ByID(1)
	require.True(t, ok)
	require.Len(t, n1.Links, 2)
}

func TestParseArcsSectionIsDirected(t *testing.T) {
	in := "/nodes 2 id0=0\n/arcs\n0> 1:5\n"
	g, _, err := Parse(strings.NewReader(in), false, false, graph.ValidationStandard)
	require.NoError(t, err)

	n0, ok := g.ByID(0)
	require.True(t, ok)
	require.Len(t, n0.Links, 1)
	assert.Equal(t, 5.0, n0.Links[0].Weight)

	n1, ok := g.ByID(1)
	require.True(t, ok)
	assert.Len(t, n1.Links, 0)
}

func TestParseMixedEdgesAndArcsSections(t *testing.T) {
	in := "/nodes 4 id0=0\n/edges\n0> 1:2\n/arcs\n2> 3:5\n"
	g, _, err := Parse(strings.NewReader(in), false, false, graph.ValidationStandard)
	require.NoError(t, err)
	require.NoError(t, g.Validate())

	n0, ok := g.ByID(0)
	require.True(t, ok)
	require.Len(t, n0.Links, 1)
	assert.Equal(t, 2.0, n0.Links[0].Weight)

	n1, ok := g.ByID(1)
	require.True(t, ok)
	require.Len(t, n1.Links, 1, "edges section must materialize both directions even when a later section is directed")
	assert.Equal(t, 2.0, n1.Links[0].Weight)

	n2, ok := g.ByID(2)
	require.True(t, ok)
	require.Len(t, n2.Links, 1)
	assert.Equal(t, 5.0, n2.Links[0].Weight)

	n3, ok := g.ByID(3)
	require.True(t, ok)
	assert.Len(t, n3.Links, 0, "arcs section must stay one-directional even when an earlier section is undirected")
}

func TestParseMissingNodesHeaderFails(t *testing.T) {
	_, _, err := Parse(strings.NewReader("/edges\n1> 2\n"), false, false, graph.ValidationStandard)
	assert.Error(t, err)
}

func TestParseUnknownSectionFails(t *testing.T) {
	_, _, err := Parse(strings.NewReader("/nodes 1\n/bogus\n"), false, false, graph.ValidationStandard)
	assert.Error(t, err)
}

func TestParseWithoutID0AutoCreatesEndpoints(t *testing.T) {
	in := "/nodes 2\n/edges\n5> 9:1\n"
	g, _, err := Parse(strings.NewReader(in), false, false, graph.ValidationStandard)
	require.NoError(t, err)
	assert.Equal(t, 2, g.NumNodes())
	_, ok := g.ByID(9)
	assert.True(t, ok)
}

func TestWriteRoundTrip(t *testing.T) {
	g := graph.New(graph.Options{Weighted: true, Directed: true, Validation: graph.ValidationStandard})
	g.AddNodes([]graph.ID{1, 2})
	require.NoError(t, g.AddNodeLinks(1, []graph.Link{{Target: 2, Weight: 3}}))

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, g, true))

	back, _, err := Parse(&buf, false, false, graph.ValidationStandard)
	require.NoError(t, err)
	n1, ok := back.ByID(1)
	require.True(t, ok)
	require.Len(t, n1.Links, 1)
	assert.Equal(t, 3.0, n1.Links[0].Weight)
}
