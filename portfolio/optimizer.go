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
	"fmt"
	"strconv"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/penny-vault/pv-optimizer/common"
	"github.com/penny-vault/pv-optimizer/dataframe"
	"github.com/penny-vault/pv-optimizer/qp"
)

// EstimateCache stores encoded estimates between optimizer sessions
type EstimateCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte) error
}

// Option configures an Optimizer
type Option func(*Optimizer)

// Optimizer holds an immutable price history and exposes the allocation methods.
// Expected returns and covariance are estimated once, on first use, and shared by every
// method; all methods are safe to call concurrently.
type Optimizer struct {
	SessionID uuid.UUID

	prices         *dataframe.DataFrame
	returns        *dataframe.DataFrame
	estimatorOpts  EstimatorOptions
	frontierOpts   FrontierOptions
	solverKind     string
	solverSettings qp.Settings
	cache          EstimateCache
	logger         zerolog.Logger

	once      sync.Once
	estimates *Estimates
	estErr    error
}

// WithAnnualizationFactor sets the number of return periods per year (default 252)
func WithAnnualizationFactor(factor float64) Option {
	return func(opt *Optimizer) {
		opt.estimatorOpts.AnnualizationFactor = factor
	}
}

// WithReturnModel selects MeanReturn or CompoundedReturn
func WithReturnModel(model string) Option {
	return func(opt *Optimizer) {
		opt.estimatorOpts.ReturnModel = model
	}
}

// WithRiskFreeRate sets the annual risk-free rate used for Sharpe ratios (default 0)
func WithRiskFreeRate(rate float64) Option {
	return func(opt *Optimizer) {
		opt.frontierOpts.RiskFreeRate = rate
	}
}

// WithDefaultBound sets the bound of every asset without an override (default [0, 1])
func WithDefaultBound(bound Bound) Option {
	return func(opt *Optimizer) {
		b := bound
		opt.frontierOpts.DefaultBound = &b
	}
}

// WithBounds sets per-asset weight bounds
func WithBounds(bounds map[string]Bound) Option {
	return func(opt *Optimizer) {
		opt.frontierOpts.Bounds = make(map[string]Bound, len(bounds))
		for asset, bound := range bounds {
			opt.frontierOpts.Bounds[asset] = bound
		}
	}
}

// WithCleanTolerance sets the weight below which allocations are reported as zero
func WithCleanTolerance(tol float64) Option {
	return func(opt *Optimizer) {
		opt.frontierOpts.CleanTolerance = tol
	}
}

// WithSolver selects the quadratic program solver by name
func WithSolver(kind string, settings qp.Settings) Option {
	return func(opt *Optimizer) {
		opt.solverKind = kind
		opt.solverSettings = settings
	}
}

// WithWorkers limits the number of concurrent solves in a frontier sweep
func WithWorkers(workers int) Option {
	return func(opt *Optimizer) {
		opt.frontierOpts.Workers = workers
	}
}

// WithCache looks up and stores estimates in cache
func WithCache(cache EstimateCache) Option {
	return func(opt *Optimizer) {
		opt.cache = cache
	}
}

// NewOptimizer validates prices and prepares an optimization session. The price table
// is copied so later changes by the caller have no effect.
func NewOptimizer(prices *dataframe.DataFrame, opts ...Option) (*Optimizer, error) {
	if err := ValidatePrices(prices); err != nil {
		log.Error().Stack().Err(err).Msg("price history rejected")
		return nil, err
	}

	opt := &Optimizer{
		SessionID:  uuid.New(),
		prices:     prices.Copy(),
		solverKind: qp.ActiveSetSolver,
	}

	for _, o := range opts {
		o(opt)
	}

	solver, err := qp.New(opt.solverKind, opt.solverSettings)
	if err != nil {
		return nil, solverError(err)
	}
	opt.frontierOpts.Solver = solver

	opt.returns = opt.prices.PctChange()
	opt.logger = log.With().Str("SessionID", opt.SessionID.String()).Logger()

	opt.logger.Info().
		Strs("Assets", opt.prices.ColNames).
		Time("Start", opt.prices.Start()).
		Time("End", opt.prices.End()).
		Str("Solver", solver.Name()).
		Msg("created optimizer session")

	return opt, nil
}

// Assets in the order weight vectors are reported
func (opt *Optimizer) Assets() []string {
	assets := make([]string, opt.prices.ColCount())
	copy(assets, opt.prices.ColNames)
	return assets
}

// Estimates returns a copy of the expected returns and covariance of the session
func (opt *Optimizer) Estimates(ctx context.Context) (*Estimates, error) {
	est, err := opt.sharedEstimates(ctx)
	if err != nil {
		return nil, err
	}
	return est.Copy(), nil
}

// sharedEstimates returns the session's estimates; callers must not modify them
func (opt *Optimizer) sharedEstimates(ctx context.Context) (*Estimates, error) {
	opt.once.Do(func() {
		opt.estimates, opt.estErr = opt.loadEstimates(ctx)
	})
	return opt.estimates, opt.estErr
}

func (opt *Optimizer) loadEstimates(ctx context.Context) (*Estimates, error) {
	var key string
	if opt.cache != nil {
		settings := opt.estimatorOpts.withDefaults()
		key = "estimates:" + common.Fingerprint(opt.prices, settings.ReturnModel,
			strconv.FormatFloat(settings.AnnualizationFactor, 'g', -1, 64))

		if val, err := opt.cache.Get(ctx, key); err == nil {
			est := &Estimates{}
			if err := json.Unmarshal(val, est); err == nil {
				opt.logger.Debug().Str("Key", key).Msg("estimates loaded from cache")
				return est, nil
			}
			opt.logger.Warn().Str("Key", key).Msg("ignoring undecodable cache entry")
		}
	}

	est, err := estimateFromReturns(opt.returns, opt.estimatorOpts)
	if err != nil {
		opt.logger.Error().Stack().Err(err).Msg("estimation failed")
		return nil, err
	}

	if opt.cache != nil {
		if val, err := json.Marshal(est); err != nil {
			opt.logger.Warn().Err(err).Msg("could not encode estimates for cache")
		} else if err := opt.cache.Set(ctx, key, val); err != nil {
			opt.logger.Warn().Err(err).Str("Key", key).Msg("could not store estimates in cache")
		}
	}

	return est, nil
}

func (opt *Optimizer) frontier(ctx context.Context) (*EfficientFrontier, error) {
	est, err := opt.sharedEstimates(ctx)
	if err != nil {
		return nil, err
	}
	return NewEfficientFrontier(est, opt.frontierOpts)
}

// EqualWeight allocates 1/N to every asset
func (opt *Optimizer) EqualWeight(ctx context.Context) (*Allocation, error) {
	est, err := opt.sharedEstimates(ctx)
	if err != nil {
		return nil, err
	}
	return EqualWeight(est, opt.frontierOpts.RiskFreeRate)
}

// MaxSharpe returns the allocation with the highest Sharpe ratio
func (opt *Optimizer) MaxSharpe(ctx context.Context) (*Allocation, error) {
	ef, err := opt.frontier(ctx)
	if err != nil {
		return nil, err
	}
	return ef.MaxSharpe()
}

// MinVolatility returns the allocation with the lowest volatility
func (opt *Optimizer) MinVolatility(ctx context.Context) (*Allocation, error) {
	ef, err := opt.frontier(ctx)
	if err != nil {
		return nil, err
	}
	return ef.MinVolatility()
}

// EfficientReturn returns the lowest volatility allocation with the target return
func (opt *Optimizer) EfficientReturn(ctx context.Context, target float64) (*Allocation, error) {
	ef, err := opt.frontier(ctx)
	if err != nil {
		return nil, err
	}
	return ef.EfficientReturn(target)
}

// EfficientFrontier traces nPoints of the efficient frontier
func (opt *Optimizer) EfficientFrontier(ctx context.Context, nPoints int) ([]FrontierPoint, error) {
	ef, err := opt.frontier(ctx)
	if err != nil {
		return nil, err
	}

	points, err := ef.Frontier(ctx, nPoints)
	if err != nil {
		return nil, err
	}

	missing := 0
	for _, pt := range points {
		if !pt.Attainable() {
			missing++
		}
	}
	opt.logger.Info().Int("NumPoints", len(points)).Int("Unattainable", missing).Msg("traced efficient frontier")

	return points, nil
}

// DiscreteAllocation converts alloc into whole shares using the last row of the price
// history
func (opt *Optimizer) DiscreteAllocation(alloc *Allocation, totalValue float64) (*DiscreteAllocation, error) {
	if alloc == nil {
		return nil, fmt.Errorf("%w: allocation is nil", ErrInvalidAllocationInput)
	}
	return GreedyAllocation(alloc.Weights, opt.prices.LastRow(), totalValue)
}
