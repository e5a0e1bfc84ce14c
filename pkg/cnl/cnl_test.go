package cnl

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadParsesIDAndShares(t *testing.T) {
	in := "# Clusters: 1, Nodes: 2, Fuzzy: 1, Numbered: 1\n0> 1:0.5 2:0.5\n"
	clusters, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, clusters, 1)

	c := clusters[0]
	assert.True(t, c.HasID)
	assert.Equal(t, 0, c.ID)
	require.Len(t, c.Members, 2)
	assert.Equal(t, uint32(1), c.Members[0].NodeID)
	assert.True(t, c.Members[0].HasShare)
	assert.Equal(t, 0.5, c.Members[0].Share)
}

func TestReadPlainMembersWithoutShareOrID(t *testing.T) {
	in := "1 2 3\n"
	clusters, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.False(t, clusters[0].HasID)
	assert.Len(t, clusters[0].Members, 3)
	for _, m := range clusters[0].Members {
		assert.False(t, m.HasShare)
	}
}

func TestReadSkipsCommentsAndBlankLines(t *testing.T) {
	in := "# header\n\n1 2\n"
	clusters, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, clusters, 1)
}

func TestReadRejectsInvalidNodeID(t *testing.T) {
	_, err := Read(strings.NewReader("0> x y\n"))
	assert.Error(t, err)
}

func TestWritePureOmitsHeader(t *testing.T) {
	var buf bytes.Buffer
	clusters := []Cluster{{ID: 0, HasID: true, Members: []Member{{NodeID: 1}, {NodeID: 2}}}}
	require.NoError(t, Write(&buf, clusters, FormatPure, false, false))
	assert.NotContains(t, buf.String(), "# Clusters")
}

func TestWriteSharedOmitsEqualShares(t *testing.T) {
	var buf bytes.Buffer
	clusters := []Cluster{{
		ID: 0, HasID: true,
		Members: []Member{
			{NodeID: 1, Share: 0.5, HasShare: true},
			{NodeID: 2},
		},
	}}
	require.NoError(t, Write(&buf, clusters, FormatShared, true, true))
	out := buf.String()
	assert.Contains(t, out, "1:0.5")
	assert.Contains(t, out, " 2\n")
}

func TestWriteExtendedAlwaysPrintsIDAndShare(t *testing.T) {
	var buf bytes.Buffer
	clusters := []Cluster{{ID: 3, Members: []Member{{NodeID: 7}}}}
	require.NoError(t, Write(&buf, clusters, FormatExtended, false, false))
	out := buf.String()
	assert.Contains(t, out, "3>")
	assert.Contains(t, out, "7:0")
}

func TestWriteReadRoundTrip(t *testing.T) {
	clusters := []Cluster{
		{ID: 0, HasID: true, Members: []Member{{NodeID: 1, Share: 0.25, HasShare: true}, {NodeID: 2, Share: 0.75, HasShare: true}}},
		{ID: 1, HasID: true, Members: []Member{{NodeID: 3, Share: 1.0, HasShare: true}}},
	}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, clusters, FormatExtended, true, true))

	back, err := Read(&buf)
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.Equal(t, uint32(1), back[0].Members[0].NodeID)
	assert.Equal(t, 0.25, back[0].Members[0].Share)
}
