package nsl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daoc-go/daoc/pkg/graph"
)

func TestParseEdgesAutoCreatesNodes(t *testing.T) {
	in := "1 2\n2 3\n"
	g, hdr, err := Parse(strings.NewReader(in), false, false, false, false, graph.ValidationStandard)
	require.NoError(t, err)
	assert.False(t, hdr.HasNodes)
	assert.Equal(t, 3, g.NumNodes())
}

func TestParseHonorsWeightColumn(t *testing.T) {
	in := "1 2 4.5\n"
	g, _, err := Parse(strings.NewReader(in), false, true, false, false, graph.ValidationStandard)
	require.NoError(t, err)
	n1, ok := g.ByID(1)
	require.True(t, ok)
	require.Len(t, n1.Links, 1)
	assert.Equal(t, 2.25, n1.Links[0].Weight)
}

func TestParseHeaderCommentOverridesNodeCountAndWeighted(t *testing.T) {
	in := "# Nodes: 5 Weighted: 1\n0 1 2\n"
	g, hdr, err := Parse(strings.NewReader(in), false, false, false, false, graph.ValidationStandard)
	require.NoError(t, err)
	assert.True(t, hdr.HasNodes)
	assert.Equal(t, 5, hdr.Nodes)
	assert.True(t, hdr.Weighted)
	assert.Equal(t, 5, g.NumNodes())
}

func TestParseArcsIsDirected(t *testing.T) {
	in := "1 2\n"
	g, _, err := Parse(strings.NewReader(in), true, false, false, false, graph.ValidationStandard)
	require.NoError(t, err)
	n2, ok := g.ByID(2)
	require.True(t, ok)
	assert.Len(t, n2.Links, 0)
}

func TestParseRejectsMalformedLine(t *testing.T) {
	_, _, err := Parse(strings.NewReader("1\n"), false, false, false, false, graph.ValidationStandard)
	assert.Error(t, err)
}

func TestParseEmptyInputYieldsEmptyGraph(t *testing.T) {
	g, _, err := Parse(strings.NewReader(""), false, false, false, false, graph.ValidationStandard)
	require.NoError(t, err)
	assert.Equal(t, 0, g.NumNodes())
}
