package optim

import (
	"context"
	"fmt"
	"math"
)

// Objective scores one hyperparameter combination; lower is better. A
// returned error skips the combination without aborting the search.
type Objective func(ctx context.Context, params map[string]float64) (float64, error)

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("optim: %d parameter names but %d ranges", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("optim: empty range for %s", params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Search evaluates the objective on the full cartesian grid and returns
// the best combination. It stops early if ctx is cancelled.
func (g *GridSearch) Search(ctx context.Context, objective Objective) (map[string]float64, float64, error) {
	best := math.Inf(1)
	var bestParams map[string]float64

	err := g.searchRecursive(ctx, 0, make(map[string]float64), objective, &best, &bestParams)
	if err != nil {
		return nil, 0, err
	}
	if bestParams == nil {
		return nil, 0, fmt.Errorf("optim: no grid point produced a score")
	}
	return bestParams, best, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	objective Objective,
	best *float64,
	bestParams *map[string]float64,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if depth == len(g.paramNames) {
		val, err := objective(ctx, current)
		if err != nil || math.IsNaN(val) {
			return nil
		}
		if val < *best {
			*best = val
			*bestParams = make(map[string]float64, len(current))
			for k, v := range current {
				(*bestParams)[k] = v
			}
		}
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		next := make(map[string]float64, len(current)+1)
		for k, v := range current {
			next[k] = v
		}
		next[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, next, objective, best, bestParams); err != nil {
			return err
		}
	}
	return nil
}
