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
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/penny-vault/pv-optimizer/portfolio"
)

var frontierPointsFlag int
var frontierPlot string
var frontierJSON bool

func init() {
	rootCmd.AddCommand(frontierCmd)

	frontierCmd.Flags().IntVarP(&frontierPointsFlag, "points", "n", 0, "Number of frontier points (default optimizer.frontier_points)")
	frontierCmd.Flags().StringVar(&frontierPlot, "plot", "", "Render the frontier to this PNG file")
	frontierCmd.Flags().BoolVar(&frontierJSON, "json", false, "Print the frontier as JSON")
}

var frontierCmd = &cobra.Command{
	Use:   "frontier [flags] [prices.csv]",
	Short: "Trace the efficient frontier of a price history",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runFrontier(context.Background(), os.Stdout, args); err != nil {
			log.Fatal().Err(err).Msg("could not trace efficient frontier")
		}
	},
}

// runFrontier traces the frontier, optionally plots it and prints it to w
func runFrontier(ctx context.Context, w io.Writer, args []string) error {
	opt, job, cleanup, err := setupOptimizer(ctx, args)
	defer cleanup()
	if err != nil {
		return fmt.Errorf("could not initialize optimizer: %w", err)
	}

	nPoints := frontierPoints(frontierPointsFlag, job)
	points, err := opt.EfficientFrontier(ctx, nPoints)
	if err != nil {
		return fmt.Errorf("could not compute %d frontier points: %w", nPoints, err)
	}

	if frontierPlot != "" {
		if err := plotFrontier(ctx, opt, points, frontierPlot); err != nil {
			return fmt.Errorf("could not plot efficient frontier to %s: %w", frontierPlot, err)
		}
		log.Info().Str("FileName", frontierPlot).Msg("wrote efficient frontier chart")
	}

	if frontierJSON {
		return writeJSON(w, points)
	}

	writeFrontierTable(w, points)
	return nil
}

// plotFrontier renders points with the min-volatility and max-Sharpe portfolios marked
func plotFrontier(ctx context.Context, opt *portfolio.Optimizer, points []portfolio.FrontierPoint, fn string) error {
	var highlights []*portfolio.Allocation
	if minVol, err := opt.MinVolatility(ctx); err == nil {
		highlights = append(highlights, minVol)
	}
	if maxSharpe, err := opt.MaxSharpe(ctx); err == nil {
		highlights = append(highlights, maxSharpe)
	}

	img, err := portfolio.RenderFrontierChart(points, highlights...)
	if err != nil {
		return err
	}

	return os.WriteFile(fn, img, 0o644)
}
