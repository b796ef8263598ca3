package export

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OFFIS-RIT/netunion/pkg/graph"
	"github.com/OFFIS-RIT/netunion/pkg/loader"
)

func TestLinkWeight(t *testing.T) {
	tests := []struct {
		stamp   int
		maxSize int
		want    string
	}{
		{stamp: 1, maxSize: 3, want: "0.4"},
		{stamp: 2, maxSize: 3, want: "4.2"},
		{stamp: 3, maxSize: 3, want: "8.0"},
		{stamp: 2, maxSize: 4, want: "2.933333333333333"},
		{stamp: 3, maxSize: 4, want: "5.466666666666667"},
		{stamp: 4, maxSize: 4, want: "7.999999999999999"},
		{stamp: 2, maxSize: 5, want: "2.3"},
		{stamp: 5, maxSize: 9, want: "4.2"},
		{stamp: 1, maxSize: 1, want: "0.4"},
		{stamp: 1, maxSize: 0, want: "0.4"},
	}

	for _, tt := range tests {
		got := formatWeight(LinkWeight(tt.stamp, tt.maxSize))
		if got != tt.want {
			t.Fatalf("weight(%d, %d) = %s, want %s", tt.stamp, tt.maxSize, got, tt.want)
		}
	}
}

func TestFormatWeight(t *testing.T) {
	tests := map[float64]string{
		0:      "0.0",
		1:      "1.0",
		0.1:    "0.1",
		12.5:   "12.5",
		1e-05:  "1e-05",
		1e16:   "1e+16",
		123456: "123456.0",
	}
	for v, want := range tests {
		assert.Equal(t, want, formatWeight(v), "%v", v)
	}
}

func selectFixture(t *testing.T) *graph.Result {
	t.Helper()
	recs := []loader.Record{
		{Size: 3, SourceRef: "A", Text: []byte("% score [0.3 1 1]\nn1;n2;pp;directed;1;0\nn2;n3;pp;directed;1;1\n")},
		{Size: 2, SourceRef: "B", Text: []byte("% score [0.5 1 0]\nn2;n4;pp;directed;1;0\n")},
		{Size: 2, SourceRef: "C", Text: []byte("% score [0.5 1 0]\nn5;n6;pp;directed;1;0\n")},
	}
	cat, errs := graph.Ingest(recs)
	require.Empty(t, errs)
	sel, err := graph.NewSelector(graph.NewSelectorParams{})
	require.NoError(t, err)
	res, err := sel.Select(context.Background(), cat)
	require.NoError(t, err)
	return res
}

func TestWriteRankedNodes(t *testing.T) {
	res := selectFixture(t)

	var buf bytes.Buffer
	require.NoError(t, WriteRankedNodes(&buf, res.Union.Nodes))
	assert.Equal(t, "2 n2\n2 n4\n3 n1\n3 n3\n", buf.String())

	assert.Equal(t, []RankedNode{
		{Stamp: 2, Node: "n2"},
		{Stamp: 2, Node: "n4"},
		{Stamp: 3, Node: "n1"},
		{Stamp: 3, Node: "n3"},
	}, RankNodes(res.Union.Nodes))
}

func TestWriteGraphDescription(t *testing.T) {
	res := selectFixture(t)

	var buf bytes.Buffer
	require.NoError(t, WriteGraphDescription(&buf, res.Union, res.MaxSize))

	want := `graph = {
nodes: [
{id: "n1", genesOfInterest: []},
{id: "n2", genesOfInterest: []},
{id: "n3", genesOfInterest: []},
{id: "n4", genesOfInterest: []},
],
links: [
{source: "n1", target: "n2", type: "pp", direction: "directed", max_cost: 8.0, evidence: ""},
{source: "n2", target: "n3", type: "pp", direction: "directed", max_cost: 8.0, evidence: ""},
{source: "n2", target: "n4", type: "pp", direction: "directed", max_cost: 4.2, evidence: ""},
],
conditions: [],
};`
	assert.Equal(t, want, buf.String())
}

func TestWriteGraphDescriptionEmptyUnion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGraphDescription(&buf, graph.NewUnionState(), 1))
	assert.Equal(t, "graph = {\nnodes: [\n],\nlinks: [\n],\nconditions: [],\n};", buf.String())
}

func TestBuildSummary(t *testing.T) {
	res := selectFixture(t)

	s := BuildSummary("run-1", graph.SeedSecondary, res)
	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, "nodes", s.Dimension)
	assert.Equal(t, "secondary", s.SeedCriterion)
	assert.Equal(t, 3, s.MaxSize)
	assert.Equal(t, SummaryNetwork{Size: 3, Source: "A", MainScore: 1, Nodes: 3, Edges: 2}, s.Seed)
	assert.Equal(t, []int{}, s.Skipped)
	assert.Equal(t, 4, s.NodeUnion)
	assert.Equal(t, 3, s.EdgeUnion)
	assert.Equal(t, 1, s.Growth.Steps)
	require.Len(t, s.Steps, 2)
	assert.Equal(t, "B", s.Steps[1].Source)

	data, err := MarshalSummary(s)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Contains(t, decoded, "growth")
}

func TestSummarySchema(t *testing.T) {
	schema := SummarySchema()
	require.NotNil(t, schema)

	data, err := json.Marshal(schema)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"run_id", "dimension", "seed", "steps", "skipped", "growth"} {
		assert.Contains(t, props, key)
	}
	assert.Equal(t, false, doc["additionalProperties"])
}

func TestWriteToDirSink(t *testing.T) {
	res := selectFixture(t)
	dir := filepath.Join(t.TempDir(), "out")

	err := Write(context.Background(), DirSink{Dir: dir}, BuildSummary("r", graph.SeedSecondary, res), res)
	require.NoError(t, err)

	for _, name := range []string{RankedNodesFile, GraphDescriptionFile, SummaryFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	ranked, err := os.ReadFile(filepath.Join(dir, RankedNodesFile))
	require.NoError(t, err)
	assert.Equal(t, "2 n2\n2 n4\n3 n1\n3 n3\n", string(ranked))
}

type failingSink struct {
	calls int
}

func (f *failingSink) Put(ctx context.Context, name string, data []byte) error {
	f.calls++
	return os.ErrPermission
}

func TestWriteFailsLoudly(t *testing.T) {
	res := selectFixture(t)
	sink := &failingSink{}

	err := Write(context.Background(), sink, BuildSummary("r", graph.SeedSecondary, res), res)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Equal(t, 1, sink.calls)
}

func TestDirSinkUnwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	err := DirSink{Dir: filepath.Join(blocker, "sub")}.Put(context.Background(), "a.txt", []byte("data"))
	assert.Error(t, err)
}
