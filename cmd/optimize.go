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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/penny-vault/pv-optimizer/portfolio"
)

var (
	ErrUnknownMethod = errors.New("unknown allocation method")
	ErrNoTarget      = errors.New("efficient-return needs --target")
	ErrNoAllocations = errors.New("every allocation method failed")
)

var optimizeMethods []string
var optimizeTarget float64
var optimizeTotalValue float64
var optimizeJSON bool

func init() {
	rootCmd.AddCommand(optimizeCmd)

	optimizeCmd.Flags().StringSliceVar(&optimizeMethods, "method", []string{portfolio.EqualWeightMethod, portfolio.MinVolatilityMethod, portfolio.MaxSharpeMethod},
		"Allocation methods to compute: equal-weight, min-volatility, max-sharpe, efficient-return")
	optimizeCmd.Flags().Float64Var(&optimizeTarget, "target", 0, "Annual target return used by efficient-return")
	optimizeCmd.Flags().Float64Var(&optimizeTotalValue, "total-value", 0, "Portfolio value to convert into whole shares, 0 skips the conversion")
	optimizeCmd.Flags().BoolVar(&optimizeJSON, "json", false, "Print results as JSON")
}

// optimizeResult is the --json output of the optimize command
type optimizeResult struct {
	Assets      []string                                 `json:"assets"`
	Allocations []*portfolio.Allocation                  `json:"allocations"`
	Discrete    map[string]*portfolio.DiscreteAllocation `json:"discrete,omitempty"`
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize [flags] [prices.csv]",
	Short: "Compute portfolio allocations from a price history",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runOptimize(context.Background(), os.Stdout, args, cmd.Flags().Changed("target")); err != nil {
			log.Fatal().Err(err).Msg("optimization failed")
		}
	},
}

// runOptimize computes the requested allocations and prints them to w. The optimizer
// is released before returning so callers may exit on error.
func runOptimize(ctx context.Context, w io.Writer, args []string, haveTarget bool) error {
	opt, job, cleanup, err := setupOptimizer(ctx, args)
	defer cleanup()
	if err != nil {
		return fmt.Errorf("could not initialize optimizer: %w", err)
	}

	allocs, err := computeAllocations(ctx, opt, optimizeMethods, optimizeTarget, haveTarget)
	if err != nil {
		return err
	}

	totalValue := optimizeTotalValue
	if totalValue == 0 && job != nil {
		totalValue = job.TotalValue
	}

	result := optimizeResult{
		Assets:      opt.Assets(),
		Allocations: allocs,
	}

	if totalValue > 0 {
		result.Discrete = make(map[string]*portfolio.DiscreteAllocation, len(allocs))
		for _, alloc := range allocs {
			da, err := opt.DiscreteAllocation(alloc, totalValue)
			if err != nil {
				return fmt.Errorf("could not convert %s allocation to shares: %w", alloc.Method, err)
			}
			result.Discrete[alloc.Method] = da
		}
	}

	if optimizeJSON {
		return writeJSON(w, result)
	}

	writeAllocationTable(w, result.Assets, result.Allocations)
	for _, alloc := range allocs {
		if da, ok := result.Discrete[alloc.Method]; ok {
			fmt.Fprintln(w)
			writeDiscreteTable(w, alloc.Method, da)
		}
	}

	return nil
}

// computeAllocations runs each requested method in order. A method that fails because
// the problem is infeasible is logged and skipped; any other failure stops the run.
func computeAllocations(ctx context.Context, opt *portfolio.Optimizer, methods []string, target float64, haveTarget bool) ([]*portfolio.Allocation, error) {
	allocs := make([]*portfolio.Allocation, 0, len(methods))
	for _, method := range methods {
		var alloc *portfolio.Allocation
		var err error

		switch strings.ToLower(strings.TrimSpace(method)) {
		case portfolio.EqualWeightMethod:
			alloc, err = opt.EqualWeight(ctx)
		case portfolio.MinVolatilityMethod:
			alloc, err = opt.MinVolatility(ctx)
		case portfolio.MaxSharpeMethod:
			alloc, err = opt.MaxSharpe(ctx)
		case portfolio.EfficientReturnMethod:
			if !haveTarget {
				return nil, ErrNoTarget
			}
			alloc, err = opt.EfficientReturn(ctx, target)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
		}

		if errors.Is(err, portfolio.ErrInfeasibleProblem) || errors.Is(err, portfolio.ErrSolverDivergence) {
			log.Warn().Err(err).Str("Method", method).Msg("skipping allocation")
			continue
		}
		if err != nil {
			return nil, err
		}

		allocs = append(allocs, alloc)
	}

	if len(allocs) == 0 {
		return nil, ErrNoAllocations
	}
	return allocs, nil
}
