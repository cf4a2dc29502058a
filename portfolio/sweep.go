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
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Frontier traces nPoints target returns evenly spaced between the return of the
// minimum volatility portfolio and the return of the maximum Sharpe portfolio
// (inclusive). Targets that cannot be reached are reported with a NaN volatility.
func (ef *EfficientFrontier) Frontier(ctx context.Context, nPoints int) ([]FrontierPoint, error) {
	if nPoints < 1 {
		return nil, fmt.Errorf("%w: requested %d", ErrInvalidGridSize, nPoints)
	}

	minVol, err := ef.MinVolatility()
	if err != nil {
		return nil, err
	}

	if nPoints == 1 {
		return []FrontierPoint{{
			TargetReturn: minVol.Performance.Return,
			Volatility:   minVol.Performance.Volatility,
		}}, nil
	}

	maxSharpe, err := ef.MaxSharpe()
	if err != nil {
		return nil, err
	}

	lo := minVol.Performance.Return
	hi := math.Max(lo, maxSharpe.Performance.Return)

	targets := make([]float64, nPoints)
	step := (hi - lo) / float64(nPoints-1)
	for ii := range targets {
		targets[ii] = lo + float64(ii)*step
	}
	targets[nPoints-1] = hi

	points, err := ef.FrontierAt(ctx, targets)
	if err != nil {
		return nil, err
	}

	// the endpoints are the portfolios that defined the grid
	points[0].Volatility = minVol.Performance.Volatility
	if maxSharpe.Performance.Return >= lo {
		points[nPoints-1].Volatility = maxSharpe.Performance.Volatility
	}

	return points, nil
}

// FrontierAt solves for the minimum volatility at each target return. Solves run
// concurrently; the result is in the same order as targets. A target that is infeasible
// or on which the solver diverges gets a NaN volatility, any other error stops the sweep.
func (ef *EfficientFrontier) FrontierAt(ctx context.Context, targets []float64) ([]FrontierPoint, error) {
	points := make([]FrontierPoint, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ef.workers)

	for idx, target := range targets {
		idx, target := idx, target
		points[idx].TargetReturn = target

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			alloc, err := ef.EfficientReturn(target)
			switch {
			case err == nil:
				points[idx].Volatility = alloc.Performance.Volatility
			case errors.Is(err, ErrInfeasibleProblem), errors.Is(err, ErrSolverDivergence):
				log.Debug().Err(err).Float64("TargetReturn", target).Msg("target return not attainable")
				points[idx].Volatility = math.NaN()
			default:
				log.Error().Stack().Err(err).Float64("TargetReturn", target).Msg("efficient return solve failed")
				return err
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return points, nil
}
