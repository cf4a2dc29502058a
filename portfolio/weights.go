// Copyright 2021-2023
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package portfolio

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

const (
	DefaultCleanTolerance = 1e-4

	// slack allowed when comparing sums of bounds against the budget
	budgetTolerance = 1e-9
)

// Bound limits the weight of a single asset; ±Inf disables a side
type Bound struct {
	Lower float64 `toml:"lower" json:"lower"`
	Upper float64 `toml:"upper" json:"upper"`
}

// LongOnly is the default bound: no short-selling and no leverage
func LongOnly() Bound {
	return Bound{Lower: 0, Upper: 1}
}

// resolveBounds expands the default bound and per-asset overrides into vectors aligned
// with assets and checks that a fully-invested portfolio exists
func resolveBounds(assets []string, def Bound, overrides map[string]Bound) (lower, upper []float64, err error) {
	index := make(map[string]int, len(assets))
	for idx, asset := range assets {
		index[asset] = idx
	}

	for asset := range overrides {
		if _, ok := index[asset]; !ok {
			return nil, nil, fmt.Errorf("%w: bound given for %s", ErrUnknownAsset, asset)
		}
	}

	lower = make([]float64, len(assets))
	upper = make([]float64, len(assets))
	for idx, asset := range assets {
		bound := def
		if override, ok := overrides[asset]; ok {
			bound = override
		}

		if math.IsNaN(bound.Lower) || math.IsNaN(bound.Upper) || bound.Lower > bound.Upper {
			return nil, nil, fmt.Errorf("%w: bound [%g, %g] for %s is empty", ErrInfeasibleProblem, bound.Lower, bound.Upper, asset)
		}

		lower[idx] = bound.Lower
		upper[idx] = bound.Upper
	}

	if sum := floats.Sum(lower); sum > 1+budgetTolerance {
		return nil, nil, fmt.Errorf("%w: lower bounds sum to %g", ErrInfeasibleProblem, sum)
	}

	if sum := floats.Sum(upper); sum < 1-budgetTolerance {
		return nil, nil, fmt.Errorf("%w: upper bounds sum to %g", ErrInfeasibleProblem, sum)
	}

	return lower, upper, nil
}

// achievable returns the smallest and largest value of cᵀw over fully-invested weights
// within the bounds. With an unbounded short side the range is unbounded.
func achievable(c, lower, upper []float64) (lo, hi float64) {
	for _, l := range lower {
		if math.IsInf(l, -1) {
			return math.Inf(-1), math.Inf(1)
		}
	}

	order := make([]int, len(c))
	for idx := range order {
		order[idx] = idx
	}
	sort.SliceStable(order, func(i, j int) bool {
		return c[order[i]] > c[order[j]]
	})

	fill := func(order []int) float64 {
		w := make([]float64, len(c))
		copy(w, lower)
		remaining := 1 - floats.Sum(lower)
		for _, idx := range order {
			add := math.Min(upper[idx]-lower[idx], remaining)
			w[idx] += add
			remaining -= add
			if remaining <= 0 {
				break
			}
		}
		return floats.Dot(c, w)
	}

	hi = fill(order)

	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	lo = fill(order)

	return lo, hi
}

// cleanWeights clamps weights to their bounds, rounds weights smaller than tol to zero
// and restores the budget by spreading the difference over the remaining positions in
// proportion to their size. If the budget cannot be restored without breaking a bound
// the clamped weights are returned without rounding.
func cleanWeights(weights, lower, upper []float64, tol float64) []float64 {
	clamped := make([]float64, len(weights))
	for idx, w := range weights {
		clamped[idx] = math.Min(math.Max(w, lower[idx]), upper[idx])
	}

	cleaned := make([]float64, len(weights))
	copy(cleaned, clamped)
	for idx, w := range cleaned {
		if math.Abs(w) < tol && lower[idx] <= 0 && upper[idx] >= 0 {
			cleaned[idx] = 0
		}
	}

	if rebalance(cleaned, lower, upper) {
		return cleaned
	}

	rebalance(clamped, lower, upper)
	return clamped
}

// rebalance scales the non-zero weights so they sum to one without leaving the bounds
func rebalance(weights, lower, upper []float64) bool {
	for round := 0; round <= len(weights); round++ {
		resid := 1 - floats.Sum(weights)
		if math.Abs(resid) <= 1e-15 {
			return true
		}

		base := 0.0
		for idx, w := range weights {
			if w != 0 && canMove(w, lower[idx], upper[idx], resid) {
				base += math.Abs(w)
			}
		}

		if base == 0 {
			return math.Abs(resid) <= budgetTolerance
		}

		for idx, w := range weights {
			if w != 0 && canMove(w, lower[idx], upper[idx], resid) {
				weights[idx] = math.Min(math.Max(w+resid*math.Abs(w)/base, lower[idx]), upper[idx])
			}
		}
	}

	return math.Abs(1-floats.Sum(weights)) <= budgetTolerance
}

func canMove(w, lower, upper, direction float64) bool {
	if direction > 0 {
		return w < upper
	}
	return w > lower
}
