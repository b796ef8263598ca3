package export

import (
	"bufio"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/OFFIS-RIT/netunion/pkg/common"
	"github.com/OFFIS-RIT/netunion/pkg/graph"
)

const (
	minLinkWeight = 0.4
	maxLinkWeight = 8.0
)

// RankedNode is one line of the ranked node report.
type RankedNode struct {
	Stamp int           `json:"stamp"`
	Node  common.NodeID `json:"node"`
}

// RankNodes orders the union's nodes by ascending stamp. Nodes with the
// same stamp keep union insertion order.
func RankNodes(nodes *graph.Union[common.NodeID]) []RankedNode {
	ranked := make([]RankedNode, 0, nodes.Len())
	for _, n := range nodes.Keys() {
		stamp, _ := nodes.Stamp(n)
		ranked = append(ranked, RankedNode{Stamp: stamp, Node: n})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Stamp < ranked[j].Stamp
	})
	return ranked
}

// WriteRankedNodes writes one "<stamp> <node>" line per union node, ordered
// as RankNodes.
func WriteRankedNodes(w io.Writer, nodes *graph.Union[common.NodeID]) error {
	bw := bufio.NewWriter(w)
	for _, r := range RankNodes(nodes) {
		bw.WriteString(strconv.Itoa(r.Stamp))
		bw.WriteByte(' ')
		bw.WriteString(string(r.Node))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// LinkWeight rescales a stamp from [1, maxSize] to the link width range
// [0.4, 8.0]. A maxSize of 1 or less maps every stamp to 0.4.
func LinkWeight(stamp, maxSize int) float64 {
	lo, hi := minLinkWeight, maxLinkWeight
	if maxSize <= 1 {
		return lo
	}
	// explicit conversions keep each step rounded, no fused multiply-add
	scaled := float64(float64(stamp-1) * (hi - lo))
	return float64(scaled/float64(maxSize-1)) + lo
}

// formatWeight prints v as its shortest round-trip decimal, always with a
// fractional part or an exponent ("0.4", "8.0", "1e-05").
func formatWeight(v float64) string {
	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".nN") {
		s += ".0"
	}
	return s
}

// WriteGraphDescription writes the union as a d3js graph data file: every
// union node, and every union edge with its stamp rescaled by LinkWeight as
// max_cost.
func WriteGraphDescription(w io.Writer, union *graph.UnionState, maxSize int) error {
	bw := bufio.NewWriter(w)

	bw.WriteString("graph = {\n")
	bw.WriteString("nodes: [\n")
	for _, n := range union.Nodes.Keys() {
		bw.WriteString(`{id: "`)
		bw.WriteString(string(n))
		bw.WriteString(`", genesOfInterest: []},` + "\n")
	}
	bw.WriteString("],\n")

	bw.WriteString("links: [\n")
	for _, e := range union.Edges.Keys() {
		stamp, _ := union.Edges.Stamp(e)
		bw.WriteString(`{source: "`)
		bw.WriteString(string(e.Source))
		bw.WriteString(`", target: "`)
		bw.WriteString(string(e.Sink))
		bw.WriteString(`", type: "pp", direction: "directed", max_cost: `)
		bw.WriteString(formatWeight(LinkWeight(stamp, maxSize)))
		bw.WriteString(`, evidence: ""},` + "\n")
	}
	bw.WriteString("],\n")

	bw.WriteString("conditions: [],\n")
	bw.WriteString("};")
	return bw.Flush()
}
