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
	"math"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/penny-vault/pv-optimizer/common"
	"github.com/penny-vault/pv-optimizer/data"
	"github.com/penny-vault/pv-optimizer/dataframe"
	"github.com/penny-vault/pv-optimizer/portfolio"
)

var (
	ErrInvalidWindow = errors.New("invalid price history window")
)

var setupCache = common.SetupCache

// setupOptimizer loads the job and price table and builds an optimizer from them. The
// returned cleanup func releases the estimate cache.
func setupOptimizer(ctx context.Context, args []string) (*portfolio.Optimizer, *Job, func(), error) {
	cleanup := func() {}

	job, err := loadJobFlag()
	if err != nil {
		return nil, nil, cleanup, err
	}

	path, err := priceFile(args, job)
	if err != nil {
		return nil, nil, cleanup, err
	}

	prices, err := loadPrices(ctx, path)
	if err != nil {
		return nil, nil, cleanup, err
	}

	opts, err := optimizerOptions(job)
	if err != nil {
		return nil, nil, cleanup, err
	}

	cache, err := setupCache()
	if err != nil {
		return nil, nil, cleanup, err
	}
	if cache != nil {
		opts = append(opts, portfolio.WithCache(cache))
		cleanup = func() {
			if err := cache.Close(); err != nil {
				log.Warn().Err(err).Msg("could not close estimate cache")
			}
		}
	}

	opt, err := portfolio.NewOptimizer(prices, opts...)
	if err != nil {
		cleanup()
		return nil, nil, func() {}, err
	}

	return opt, job, cleanup, nil
}

// historyWindow parses prices.start and prices.end; unset dates are zero
func historyWindow() (begin, end time.Time, err error) {
	tz := common.GetTimezone()
	if s := viper.GetString("prices.start"); s != "" {
		if begin, err = time.ParseInLocation("2006-01-02", s, tz); err != nil {
			return begin, end, fmt.Errorf("%w: start %q", ErrInvalidWindow, s)
		}
	}
	if s := viper.GetString("prices.end"); s != "" {
		if end, err = time.ParseInLocation("2006-01-02", s, tz); err != nil {
			return begin, end, fmt.Errorf("%w: end %q", ErrInvalidWindow, s)
		}
	}
	return begin, end, nil
}

// loadPrices reads the price table at path and trims it to the configured window
func loadPrices(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	prices, err := data.LoadPricesFile(ctx, path)
	if err != nil {
		return nil, err
	}

	begin, end, err := historyWindow()
	if err != nil {
		return nil, err
	}
	if begin.IsZero() && end.IsZero() {
		return prices, nil
	}
	if begin.IsZero() {
		begin = prices.Start()
	}
	if end.IsZero() {
		end = prices.End()
	}

	trimmed := prices.Trim(begin, end)
	if trimmed.Len() == 0 {
		return nil, fmt.Errorf("%w: no prices between %s and %s", ErrInvalidWindow, begin.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	log.Debug().Time("Start", trimmed.Start()).Time("End", trimmed.End()).Int("Rows", trimmed.Len()).Msg("trimmed price history")
	return trimmed, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// sharpe formats the Sharpe ratio of perf; riskless portfolios have none
func sharpe(perf portfolio.Performance) string {
	ratio, err := perf.SharpeRatio()
	if err != nil || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", ratio)
}

func percent(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", v*100)
}

// writeAllocationTable prints one column of weights per allocation followed by the
// performance of each
func writeAllocationTable(w io.Writer, assets []string, allocs []*portfolio.Allocation) {
	table := tablewriter.NewWriter(w)
	header := []string{"Asset"}
	for _, alloc := range allocs {
		header = append(header, alloc.Method)
	}
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for _, asset := range assets {
		row := []string{asset}
		for _, alloc := range allocs {
			row = append(row, percent(alloc.Weights[asset]))
		}
		table.Append(row)
	}

	ret := []string{"Expected Return"}
	vol := []string{"Volatility"}
	sharpeRow := []string{"Sharpe Ratio"}
	for _, alloc := range allocs {
		ret = append(ret, percent(alloc.Performance.Return))
		vol = append(vol, percent(alloc.Performance.Volatility))
		sharpeRow = append(sharpeRow, sharpe(alloc.Performance))
	}
	table.Append(ret)
	table.Append(vol)
	table.Append(sharpeRow)

	table.Render()
}

// writeDiscreteTable prints whole-share holdings for one allocation
func writeDiscreteTable(w io.Writer, method string, da *portfolio.DiscreteAllocation) {
	tickers := make([]string, 0, len(da.Shares))
	for ticker := range da.Shares {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Asset", "Shares"})
	table.SetFooter([]string{"Leftover", fmt.Sprintf("%.2f", da.Leftover)})
	table.SetCaption(true, method)
	table.SetBorder(false)

	for _, ticker := range tickers {
		table.Append([]string{ticker, fmt.Sprintf("%d", da.Shares[ticker])})
	}

	table.Render()
}

// writeFrontierTable prints the frontier curve
func writeFrontierTable(w io.Writer, points []portfolio.FrontierPoint) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Target Return", "Volatility"})
	table.SetBorder(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for _, pt := range points {
		table.Append([]string{percent(pt.TargetReturn), percent(pt.Volatility)})
	}

	table.Render()
}
