package graph

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DefaultWorstSteps is how many steps GrowthStats lists as worst.
const DefaultWorstSteps = 3

// GrowthStats summarizes the per-step increases of a selection, the seed
// excluded.
type GrowthStats struct {
	Steps  int     `json:"steps"`
	Total  int     `json:"total"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Max    int     `json:"max"`
	// Worst holds the steps with the largest increase, largest first.
	// Equal increases keep trajectory order.
	Worst []Step `json:"worst"`
}

// Stats computes growth statistics over the non-seed steps of r, listing
// up to worst of the steps with the largest increase.
func (r *Result) Stats(worst int) GrowthStats {
	steps := make([]Step, 0, len(r.Steps))
	for _, st := range r.Steps {
		if !st.Seed {
			steps = append(steps, st)
		}
	}

	gs := GrowthStats{Steps: len(steps), Worst: []Step{}}
	if len(steps) == 0 {
		return gs
	}

	x := make([]float64, len(steps))
	for i, st := range steps {
		x[i] = float64(st.Increase)
		gs.Total += st.Increase
		if st.Increase > gs.Max {
			gs.Max = st.Increase
		}
	}

	if len(x) == 1 {
		gs.Mean = x[0]
	} else {
		gs.Mean, gs.StdDev = stat.MeanStdDev(x, nil)
	}

	ranked := make([]Step, len(steps))
	copy(ranked, steps)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Increase > ranked[j].Increase
	})
	if worst > len(ranked) {
		worst = len(ranked)
	}
	if worst > 0 {
		gs.Worst = ranked[:worst]
	}
	return gs
}
