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
	"runtime"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/penny-vault/pv-optimizer/qp"
)

// FrontierOptions configure the efficient-frontier optimizer
type FrontierOptions struct {
	// bound applied to assets without an entry in Bounds; nil means LongOnly
	DefaultBound *Bound

	// per-asset overrides keyed by asset name
	Bounds map[string]Bound

	RiskFreeRate float64

	// weights smaller than this are reported as zero; 0 means DefaultCleanTolerance
	CleanTolerance float64

	// solver used for every quadratic program; nil means the active-set solver
	Solver qp.Solver

	// maximum number of concurrent solves in a frontier sweep; 0 means GOMAXPROCS
	Workers int
}

// EfficientFrontier solves mean-variance problems over the fully-invested region
// {w : Σw = 1, lower ≤ w ≤ upper}. It holds no mutable state, so its methods may be
// called concurrently.
type EfficientFrontier struct {
	est          *Estimates
	lower        []float64
	upper        []float64
	riskFreeRate float64
	cleanTol     float64
	solver       qp.Solver
	workers      int
}

// NewEfficientFrontier validates the bounds against the universe of est
func NewEfficientFrontier(est *Estimates, opts FrontierOptions) (*EfficientFrontier, error) {
	if est == nil || est.NumAssets() == 0 {
		return nil, ErrEmptyUniverse
	}

	if len(est.ExpectedReturns) != est.NumAssets() {
		return nil, fmt.Errorf("%w: %d expected returns for %d assets", ErrDimensionMismatch, len(est.ExpectedReturns), est.NumAssets())
	}

	if n, _ := est.Covariance.Dims(); n != est.NumAssets() {
		return nil, fmt.Errorf("%w: covariance is %dx%d for %d assets", ErrDimensionMismatch, n, n, est.NumAssets())
	}

	def := LongOnly()
	if opts.DefaultBound != nil {
		def = *opts.DefaultBound
	}

	lower, upper, err := resolveBounds(est.Assets, def, opts.Bounds)
	if err != nil {
		return nil, err
	}

	ef := &EfficientFrontier{
		est:          est,
		lower:        lower,
		upper:        upper,
		riskFreeRate: opts.RiskFreeRate,
		cleanTol:     opts.CleanTolerance,
		solver:       opts.Solver,
		workers:      opts.Workers,
	}

	if ef.cleanTol <= 0 {
		ef.cleanTol = DefaultCleanTolerance
	}

	if ef.solver == nil {
		ef.solver = qp.NewActiveSet(qp.DefaultSettings())
	}

	if ef.workers <= 0 {
		ef.workers = runtime.GOMAXPROCS(0)
	}

	return ef, nil
}

// MinVolatility finds the fully-invested weights with the lowest variance
func (ef *EfficientFrontier) MinVolatility() (*Allocation, error) {
	n := ef.est.NumAssets()
	prob := &qp.Problem{
		P:     ef.est.Covariance,
		Aeq:   mat.NewDense(1, n, ones(n)),
		Beq:   []float64{1},
		Lower: ef.lower,
		Upper: ef.upper,
	}

	sol, err := ef.solver.Solve(prob)
	if err != nil {
		err = solverError(err)
		log.Error().Stack().Err(err).Str("Solver", ef.solver.Name()).Msg("minimum volatility solve failed")
		return nil, err
	}

	return ef.allocation(MinVolatilityMethod, sol.X)
}

// MaxSharpe finds the fully-invested weights with the highest Sharpe ratio. The ratio
// is not convex, so the problem is solved in the variables y = κw, κ = Σy > 0:
//
//	minimize    yᵀΣy
//	subject to  (μ - r_f)ᵀy = 1
//	            lower·Σy ≤ y ≤ upper·Σy
//
// and the weights are recovered as w = y / Σy.
func (ef *EfficientFrontier) MaxSharpe() (*Allocation, error) {
	n := ef.est.NumAssets()

	excess := make([]float64, n)
	for ii, mu := range ef.est.ExpectedReturns {
		excess[ii] = mu - ef.riskFreeRate
	}

	if _, best := achievable(excess, ef.lower, ef.upper); best <= 0 {
		err := fmt.Errorf("%w: no portfolio within the bounds earns more than the risk-free rate %.4f", ErrInfeasibleProblem, ef.riskFreeRate)
		log.Error().Stack().Err(err).Msg("maximum sharpe solve failed")
		return nil, err
	}

	shortable := false
	for _, l := range ef.lower {
		if l < 0 {
			shortable = true
		}
	}

	lowerY := make([]float64, n)
	var rows [][]float64
	for ii := 0; ii < n; ii++ {
		l := ef.lower[ii]
		switch {
		case l == 0:
			lowerY[ii] = 0
		case math.IsInf(l, -1):
			lowerY[ii] = math.Inf(-1)
		default:
			// y_i - l_i·Σy ≥ 0
			lowerY[ii] = math.Inf(-1)
			row := make([]float64, n)
			floats.AddConst(-l, row)
			row[ii] += 1
			rows = append(rows, row)
		}

		u := ef.upper[ii]
		if math.IsInf(u, 1) || (u >= 1 && !shortable) {
			// implied by y ≥ 0 and Σy = κ
			continue
		}

		// u_i·Σy - y_i ≥ 0
		row := make([]float64, n)
		floats.AddConst(u, row)
		row[ii] -= 1
		rows = append(rows, row)
	}

	if shortable {
		// κ ≥ 0
		rows = append(rows, ones(n))
	}

	prob := &qp.Problem{
		P:     ef.est.Covariance,
		Aeq:   mat.NewDense(1, n, excess),
		Beq:   []float64{1},
		Lower: lowerY,
	}

	if len(rows) > 0 {
		flat := make([]float64, 0, len(rows)*n)
		for _, row := range rows {
			flat = append(flat, row...)
		}
		prob.Aineq = mat.NewDense(len(rows), n, flat)
		prob.Bineq = make([]float64, len(rows))
	}

	sol, err := ef.solver.Solve(prob)
	if err != nil {
		err = solverError(err)
		log.Error().Stack().Err(err).Str("Solver", ef.solver.Name()).Msg("maximum sharpe solve failed")
		return nil, err
	}

	kappa := floats.Sum(sol.X)
	if kappa <= 0 || math.IsNaN(kappa) {
		err := fmt.Errorf("%w: scale of the sharpe problem is %g", ErrInfeasibleProblem, kappa)
		log.Error().Stack().Err(err).Msg("maximum sharpe solve failed")
		return nil, err
	}

	weights := make([]float64, n)
	floats.ScaleTo(weights, 1/kappa, sol.X)

	return ef.allocation(MaxSharpeMethod, weights)
}

// EfficientReturn finds the fully-invested weights with the lowest variance whose
// expected return equals target
func (ef *EfficientFrontier) EfficientReturn(target float64) (*Allocation, error) {
	n := ef.est.NumAssets()

	lo, hi := achievable(ef.est.ExpectedReturns, ef.lower, ef.upper)
	slack := budgetTolerance * (1 + math.Abs(target))
	if math.IsNaN(target) || target < lo-slack || target > hi+slack {
		return nil, fmt.Errorf("%w: target return %.6f is outside the achievable range [%.6f, %.6f]", ErrInfeasibleProblem, target, lo, hi)
	}

	aeq := make([]float64, 0, 2*n)
	aeq = append(aeq, ones(n)...)
	aeq = append(aeq, ef.est.ExpectedReturns...)

	prob := &qp.Problem{
		P:     ef.est.Covariance,
		Aeq:   mat.NewDense(2, n, aeq),
		Beq:   []float64{1, target},
		Lower: ef.lower,
		Upper: ef.upper,
	}

	sol, err := ef.solver.Solve(prob)
	if err != nil {
		return nil, solverError(err)
	}

	return ef.allocation(EfficientReturnMethod, sol.X)
}

// Estimates the optimizer was built from; the result is shared and must not be modified
func (ef *EfficientFrontier) Estimates() *Estimates {
	return ef.est
}

func (ef *EfficientFrontier) allocation(method string, raw []float64) (*Allocation, error) {
	weights := cleanWeights(raw, ef.lower, ef.upper, ef.cleanTol)
	alloc, err := newAllocation(method, weights, ef.est, ef.riskFreeRate)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("Solver", ef.solver.Name()).Object("Allocation", alloc).Msg("solved allocation")
	return alloc, nil
}

func ones(n int) []float64 {
	res := make([]float64, n)
	for ii := range res {
		res[ii] = 1
	}
	return res
}
