package graph

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/netunion/pkg/common"
	"github.com/OFFIS-RIT/netunion/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// ErrEmptyCatalogue is returned when there is no network to seed from.
var ErrEmptyCatalogue = errors.New("catalogue has no networks")

// Step is one entry of the selection trajectory. The first step of a
// Result is the seed; its Increase is the size of the seeded union.
type Step struct {
	Network    *common.Network `json:"-"`
	Seed       bool            `json:"seed"`
	Size       int             `json:"size"`
	Source     string          `json:"source"`
	MainScore  float64         `json:"main_score"`
	Increase   int             `json:"increase"`
	NodeGrowth int             `json:"node_growth"`
	EdgeGrowth int             `json:"edge_growth"`
	NodeUnion  int             `json:"node_union"`
	EdgeUnion  int             `json:"edge_union"`
}

// Result is the outcome of a selection run.
//
// Skipped lists, in visiting order, the size classes for which no
// candidate was left. MaxSize is the size of the seed network.
type Result struct {
	Seed      *common.Network
	Steps     []Step
	Skipped   []int
	Union     *UnionState
	Dimension Dimension
	MaxSize   int
}

// Trajectory returns the selected networks in selection order, seed first.
func (r *Result) Trajectory() []*common.Network {
	networks := make([]*common.Network, len(r.Steps))
	for i, st := range r.Steps {
		networks[i] = st.Network
	}
	return networks
}

// Select runs the greedy selection over cat.
//
// The seed is taken from the largest size class. Then, for every size from
// seed size - 1 down to 2, the not yet selected candidate whose elements
// grow the union of the configured dimension the least is selected. Ties
// go to the larger main score, then to the smaller source ref, then to the
// lower catalogue ID. Size class 1 is never visited.
func (s *Selector) Select(ctx context.Context, cat *Catalogue) (*Result, error) {
	if cat == nil || cat.Len() == 0 {
		return nil, ErrEmptyCatalogue
	}

	seed := s.pickSeed(cat.Get(cat.MaxSize()))
	union := NewUnionState()
	nodeGrowth, edgeGrowth := union.Merge(seed, seed.Size)

	res := &Result{
		Seed:      seed,
		Union:     union,
		Dimension: s.dimension,
		MaxSize:   seed.Size,
	}
	res.Steps = append(res.Steps, Step{
		Network:    seed,
		Seed:       true,
		Size:       seed.Size,
		Source:     seed.SourceRef,
		MainScore:  seed.Scores.Main,
		Increase:   s.tagLen(union),
		NodeGrowth: nodeGrowth,
		EdgeGrowth: edgeGrowth,
		NodeUnion:  union.Nodes.Len(),
		EdgeUnion:  union.Edges.Len(),
	})

	logger.Info("[Select] Seeded union",
		"size", seed.Size,
		"union", s.tagLen(union),
		"main_score", seed.Scores.Main,
		"criterion", string(s.seed),
		"source", seed.SourceRef,
	)

	selected := map[*common.Network]struct{}{seed: {}}
	for size := seed.Size - 1; size >= 2; size-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidates := make([]*common.Network, 0, len(cat.Get(size)))
		for _, n := range cat.Get(size) {
			if _, ok := selected[n]; !ok {
				candidates = append(candidates, n)
			}
		}
		if len(candidates) == 0 {
			res.Skipped = append(res.Skipped, size)
			logger.Info("[Select] No candidate for size", "size", size)
			continue
		}

		increases, err := s.evaluate(ctx, union, candidates)
		if err != nil {
			return nil, err
		}

		best := 0
		for i := 1; i < len(candidates); i++ {
			if betterCandidate(candidates[i], increases[i], candidates[best], increases[best]) {
				best = i
			}
		}
		winner := candidates[best]

		selected[winner] = struct{}{}
		nodeGrowth, edgeGrowth := union.Merge(winner, size)
		res.Steps = append(res.Steps, Step{
			Network:    winner,
			Size:       size,
			Source:     winner.SourceRef,
			MainScore:  winner.Scores.Main,
			Increase:   increases[best],
			NodeGrowth: nodeGrowth,
			EdgeGrowth: edgeGrowth,
			NodeUnion:  union.Nodes.Len(),
			EdgeUnion:  union.Edges.Len(),
		})

		logger.Info("[Select] Selected network",
			"size", size,
			"increase", increases[best],
			"node_change", nodeGrowth,
			"edge_change", edgeGrowth,
			"main_score", winner.Scores.Main,
			"source", winner.SourceRef,
		)
	}

	logger.Info("[Select] Selection finished",
		"steps", len(res.Steps),
		"skipped", len(res.Skipped),
		"nodes", union.Nodes.Len(),
		"edges", union.Edges.Len(),
	)
	return res, nil
}

// evaluate computes the marginal increase of every candidate. The union is
// only read here; candidates are spread over at most s.parallelism
// goroutines.
func (s *Selector) evaluate(ctx context.Context, union *UnionState, candidates []*common.Network) ([]int, error) {
	increases := make([]int, len(candidates))
	if s.parallelism <= 1 || len(candidates) == 1 {
		for i, n := range candidates {
			increases[i] = s.increase(union, n)
		}
		return increases, nil
	}

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.parallelism)
	for i, n := range candidates {
		eg.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			increases[i] = s.increase(union, n)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return increases, nil
}

func (s *Selector) increase(union *UnionState, n *common.Network) int {
	if s.dimension == DimensionEdges {
		return union.Edges.Increase(n.EdgeKeys())
	}
	return union.Nodes.Increase(n.Nodes)
}

func (s *Selector) tagLen(union *UnionState) int {
	if s.dimension == DimensionEdges {
		return union.Edges.Len()
	}
	return union.Nodes.Len()
}

// pickSeed returns the best network of the largest size class under the
// configured criterion.
func (s *Selector) pickSeed(networks []*common.Network) *common.Network {
	best := networks[0]
	for _, n := range networks[1:] {
		if s.betterSeed(n, best) {
			best = n
		}
	}
	return best
}

func (s *Selector) betterSeed(a, b *common.Network) bool {
	switch s.seed {
	case SeedMain:
		if a.Scores.Main != b.Scores.Main {
			return a.Scores.Main > b.Scores.Main
		}
	case SeedSizeMain:
		if a.Size != b.Size {
			return a.Size > b.Size
		}
		if a.Scores.Main != b.Scores.Main {
			return a.Scores.Main > b.Scores.Main
		}
	default:
		if a.Scores.Secondary != b.Scores.Secondary {
			return a.Scores.Secondary > b.Scores.Secondary
		}
	}
	return lessRef(a, b)
}

// betterCandidate reports whether a (with increase ia) beats b.
func betterCandidate(a *common.Network, ia int, b *common.Network, ib int) bool {
	if ia != ib {
		return ia < ib
	}
	if a.Scores.Main != b.Scores.Main {
		return a.Scores.Main > b.Scores.Main
	}
	return lessRef(a, b)
}

func lessRef(a, b *common.Network) bool {
	if a.SourceRef != b.SourceRef {
		return a.SourceRef < b.SourceRef
	}
	return a.ID < b.ID
}
