package export

import (
	"encoding/json"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/OFFIS-RIT/netunion/pkg/graph"
)

// SummaryNetwork identifies a selected network in the summary.
type SummaryNetwork struct {
	Size      int     `json:"size" jsonschema:"minimum=1"`
	Source    string  `json:"source"`
	MainScore float64 `json:"main_score"`
	Nodes     int     `json:"nodes"`
	Edges     int     `json:"edges"`
}

// Summary is the machine readable report of one selection run.
type Summary struct {
	RunID         string            `json:"run_id"`
	CreatedAt     time.Time         `json:"created_at"`
	Dimension     string            `json:"dimension" jsonschema:"enum=nodes,enum=edges"`
	SeedCriterion string            `json:"seed_criterion" jsonschema:"enum=secondary,enum=main,enum=size-main"`
	MaxSize       int               `json:"max_size"`
	Seed          SummaryNetwork    `json:"seed"`
	Steps         []graph.Step      `json:"steps"`
	Skipped       []int             `json:"skipped" jsonschema_description:"Size classes without a remaining candidate"`
	NodeUnion     int               `json:"node_union"`
	EdgeUnion     int               `json:"edge_union"`
	Growth        graph.GrowthStats `json:"growth"`
}

// BuildSummary assembles the summary of res.
func BuildSummary(runID string, seedCriterion graph.SeedCriterion, res *graph.Result) Summary {
	skipped := res.Skipped
	if skipped == nil {
		skipped = []int{}
	}

	return Summary{
		RunID:         runID,
		CreatedAt:     time.Now().UTC(),
		Dimension:     string(res.Dimension),
		SeedCriterion: string(seedCriterion),
		MaxSize:       res.MaxSize,
		Seed: SummaryNetwork{
			Size:      res.Seed.Size,
			Source:    res.Seed.SourceRef,
			MainScore: res.Seed.Scores.Main,
			Nodes:     len(res.Seed.Nodes),
			Edges:     len(res.Seed.EdgeKeys()),
		},
		Steps:     res.Steps,
		Skipped:   skipped,
		NodeUnion: res.Union.Nodes.Len(),
		EdgeUnion: res.Union.Edges.Len(),
		Growth:    res.Stats(graph.DefaultWorstSteps),
	}
}

// SummarySchema returns the JSON Schema of Summary.
func SummarySchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(&Summary{})
}

// MarshalSummary encodes s as indented JSON.
func MarshalSummary(s Summary) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
