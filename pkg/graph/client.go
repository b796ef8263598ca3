package graph

import (
	"fmt"
	"runtime"
)

// Dimension is the union over which marginal growth is minimized.
type Dimension string

const (
	DimensionNodes Dimension = "nodes"
	DimensionEdges Dimension = "edges"
)

// SeedCriterion decides which network of the largest size class starts the
// selection.
type SeedCriterion string

const (
	// SeedSecondary picks the network with the highest secondary score.
	SeedSecondary SeedCriterion = "secondary"
	// SeedMain picks the network with the highest main score.
	SeedMain SeedCriterion = "main"
	// SeedSizeMain compares the size class first and the main score second.
	SeedSizeMain SeedCriterion = "size-main"
)

// Selector runs the greedy minimum-union selection over a Catalogue.
//
// A Selector holds no per-run state and may be reused and shared.
// It should be created using NewSelector.
type Selector struct {
	dimension   Dimension
	seed        SeedCriterion
	parallelism int
}

// NewSelectorParams defines the configuration parameters for creating
// a new Selector.
//
// Dimension defaults to DimensionNodes and SeedCriterion to SeedSecondary.
// Parallelism bounds how many candidates are evaluated concurrently within
// one size class; 0 uses GOMAXPROCS and 1 evaluates sequentially.
type NewSelectorParams struct {
	Dimension     Dimension
	SeedCriterion SeedCriterion
	Parallelism   int
}

// NewSelector creates and returns a new Selector configured with the
// provided parameters.
//
// Example:
//
//	sel, err := graph.NewSelector(graph.NewSelectorParams{
//		Dimension:     graph.DimensionEdges,
//		SeedCriterion: graph.SeedMain,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	res, err := sel.Select(ctx, cat)
func NewSelector(params NewSelectorParams) (*Selector, error) {
	dim := params.Dimension
	switch dim {
	case "":
		dim = DimensionNodes
	case DimensionNodes, DimensionEdges:
	default:
		return nil, fmt.Errorf("unknown union dimension %q", dim)
	}

	seed := params.SeedCriterion
	switch seed {
	case "":
		seed = SeedSecondary
	case SeedSecondary, SeedMain, SeedSizeMain:
	default:
		return nil, fmt.Errorf("unknown seed criterion %q", seed)
	}

	if params.Parallelism < 0 {
		return nil, fmt.Errorf("parallelism must not be negative, got %d", params.Parallelism)
	}
	parallelism := params.Parallelism
	if parallelism == 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}

	return &Selector{
		dimension:   dim,
		seed:        seed,
		parallelism: parallelism,
	}, nil
}

// Dimension returns the configured union dimension.
func (s *Selector) Dimension() Dimension {
	return s.dimension
}

// SeedCriterion returns the configured seed criterion.
func (s *Selector) SeedCriterion() SeedCriterion {
	return s.seed
}
