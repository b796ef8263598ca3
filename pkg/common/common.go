package common

// NodeID identifies a node (gene, protein, ...) inside a candidate network.
type NodeID string

// EdgeKey is the identity of an edge for union and dedupe purposes.
// Only the endpoints take part in it; edge attributes are descriptive.
type EdgeKey struct {
	Source NodeID `json:"source"`
	Sink   NodeID `json:"sink"`
}

// Edge represents one interaction line of a network file. It carries the
// full record, but two edges are the same element of a union whenever
// their Key is equal.
type Edge struct {
	Source   NodeID  `json:"source"`
	Sink     NodeID  `json:"sink"`
	Type     string  `json:"type"`
	Directed bool    `json:"directed"`
	Weight   float64 `json:"weight"`
	ID       int64   `json:"id"`
}

// Key returns the identity of the edge.
func (e Edge) Key() EdgeKey {
	return EdgeKey{Source: e.Source, Sink: e.Sink}
}

// ScoreVector holds the objective scores written in a network's header.
//
// Size is the size-normalization score, Main the primary quality score of
// the run that produced the network (eQTL score in the eQTL setting,
// mutation score in the QTL setting). Secondary and Tertiary are 0 when the
// header does not carry them.
type ScoreVector struct {
	Size      float64 `json:"size_score"`
	Main      float64 `json:"main_score"`
	Secondary float64 `json:"secondary_score"`
	Tertiary  float64 `json:"tertiary_score"`
}

// Network is a candidate subnetwork of a given size class.
//
// A Network is immutable once built. ID is assigned by the catalogue that
// accepted it and is stable for the lifetime of that catalogue.
type Network struct {
	ID        int         `json:"id"`
	Size      int         `json:"size"`
	SourceRef string      `json:"source_ref"`
	Edges     []Edge      `json:"edges"`
	Nodes     []NodeID    `json:"nodes"`
	Scores    ScoreVector `json:"scores"`
}

// EdgeKeys returns the identities of the network's edges in file order,
// without repetitions.
func (n *Network) EdgeKeys() []EdgeKey {
	seen := make(map[EdgeKey]struct{}, len(n.Edges))
	keys := make([]EdgeKey, 0, len(n.Edges))
	for _, e := range n.Edges {
		k := e.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// NodesOf derives the node set of the given edges: every source and sink,
// in order of first appearance.
func NodesOf(edges []Edge) []NodeID {
	seen := make(map[NodeID]struct{}, len(edges)*2)
	nodes := make([]NodeID, 0, len(edges)*2)
	for _, e := range edges {
		for _, n := range [2]NodeID{e.Source, e.Sink} {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			nodes = append(nodes, n)
		}
	}
	return nodes
}
