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
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/penny-vault/pv-optimizer/common"
	"github.com/penny-vault/pv-optimizer/portfolio"
	"github.com/penny-vault/pv-optimizer/qp"
)

var (
	ErrNoPriceFile = errors.New("no price file given; pass one as an argument or set prices in the job file")
)

// Job describes an optimization run. Fields left out fall back to the configuration.
//
//	prices = "prices.csv"
//	risk_free_rate = 0.02
//	frontier_points = 50
//	total_value = 10000
//
//	[[asset]]
//	ticker = "VTI"
//	upper = 0.6
type Job struct {
	Prices         string     `toml:"prices"`
	RiskFreeRate   *float64   `toml:"risk_free_rate"`
	FrontierPoints int        `toml:"frontier_points"`
	TotalValue     float64    `toml:"total_value"`
	Assets         []JobAsset `toml:"asset"`
}

// JobAsset overrides the weight bounds of a single ticker
type JobAsset struct {
	Ticker string   `toml:"ticker"`
	Lower  *float64 `toml:"lower"`
	Upper  *float64 `toml:"upper"`
}

// jobRecord is the on-disk form of a Job; numbers may be written as toml integers
// or floats so they are decoded loosely and converted afterwards
type jobRecord struct {
	Prices         string           `toml:"prices"`
	RiskFreeRate   interface{}      `toml:"risk_free_rate"`
	FrontierPoints int              `toml:"frontier_points"`
	TotalValue     interface{}      `toml:"total_value"`
	Assets         []jobAssetRecord `toml:"asset"`
}

type jobAssetRecord struct {
	Ticker string      `toml:"ticker"`
	Lower  interface{} `toml:"lower"`
	Upper  interface{} `toml:"upper"`
}

// optionalFloat converts a decoded toml number; nil when the key was absent
func optionalFloat(val interface{}, key string) (*float64, error) {
	if val == nil {
		return nil, nil
	}
	switch val.(type) {
	case string, bool:
		return nil, fmt.Errorf("%s must be a number, got %v", key, val)
	}
	res, err := cast.ToFloat64E(val)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &res, nil
}

func (rec *jobRecord) job() (*Job, error) {
	job := &Job{
		Prices:         rec.Prices,
		FrontierPoints: rec.FrontierPoints,
		Assets:         make([]JobAsset, len(rec.Assets)),
	}

	var err error
	if job.RiskFreeRate, err = optionalFloat(rec.RiskFreeRate, "risk_free_rate"); err != nil {
		return nil, err
	}
	totalValue, err := optionalFloat(rec.TotalValue, "total_value")
	if err != nil {
		return nil, err
	}
	if totalValue != nil {
		job.TotalValue = *totalValue
	}

	for idx, asset := range rec.Assets {
		job.Assets[idx].Ticker = asset.Ticker
		if job.Assets[idx].Lower, err = optionalFloat(asset.Lower, fmt.Sprintf("asset[%d].lower", idx)); err != nil {
			return nil, err
		}
		if job.Assets[idx].Upper, err = optionalFloat(asset.Upper, fmt.Sprintf("asset[%d].upper", idx)); err != nil {
			return nil, err
		}
	}

	return job, nil
}

// LoadJob parses a job file. A relative prices path is resolved against the directory
// of the job file.
func LoadJob(path string) (*Job, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	rec := &jobRecord{}
	if err := toml.Unmarshal(body, rec); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	job, err := rec.job()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if job.Prices != "" && !filepath.IsAbs(job.Prices) {
		job.Prices = filepath.Join(filepath.Dir(path), job.Prices)
	}

	tickers := make([]string, len(job.Assets))
	for idx := range job.Assets {
		tickers[idx] = job.Assets[idx].Ticker
	}
	common.ArrToUpper(tickers)
	for idx := range job.Assets {
		job.Assets[idx].Ticker = tickers[idx]
	}

	log.Debug().Str("Job", path).Str("Prices", job.Prices).Int("NumBounds", len(job.Assets)).Msg("loaded job")
	return job, nil
}

// loadJobFlag loads the file named by --job; nil when the flag is unset
func loadJobFlag() (*Job, error) {
	if jobFile == "" {
		return nil, nil
	}
	return LoadJob(jobFile)
}

// priceFile picks the price table: a command argument wins over the job file
func priceFile(args []string, job *Job) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if job != nil && job.Prices != "" {
		return job.Prices, nil
	}
	return "", ErrNoPriceFile
}

// defaultBound is the bound applied to assets the job does not mention
func defaultBound() portfolio.Bound {
	return portfolio.Bound{
		Lower: viper.GetFloat64("optimizer.lower_bound"),
		Upper: viper.GetFloat64("optimizer.upper_bound"),
	}
}

// Bounds merges the per-asset overrides over def
func (job *Job) Bounds(def portfolio.Bound) (map[string]portfolio.Bound, error) {
	bounds := make(map[string]portfolio.Bound, len(job.Assets))
	for _, asset := range job.Assets {
		if _, ok := bounds[asset.Ticker]; ok {
			return nil, fmt.Errorf("%w: %s is listed twice in the job", portfolio.ErrDuplicateAsset, asset.Ticker)
		}
		bound := def
		if asset.Lower != nil {
			bound.Lower = *asset.Lower
		}
		if asset.Upper != nil {
			bound.Upper = *asset.Upper
		}
		bounds[asset.Ticker] = bound
	}
	return bounds, nil
}

// optimizerOptions translates the configuration and job into optimizer options
func optimizerOptions(job *Job) ([]portfolio.Option, error) {
	def := defaultBound()
	opts := []portfolio.Option{
		portfolio.WithAnnualizationFactor(viper.GetFloat64("optimizer.annualization_factor")),
		portfolio.WithReturnModel(viper.GetString("optimizer.return_model")),
		portfolio.WithRiskFreeRate(viper.GetFloat64("optimizer.risk_free_rate")),
		portfolio.WithDefaultBound(def),
		portfolio.WithCleanTolerance(viper.GetFloat64("optimizer.clean_tolerance")),
		portfolio.WithWorkers(viper.GetInt("optimizer.workers")),
		portfolio.WithSolver(viper.GetString("optimizer.solver"), qp.Settings{
			MaxIterations: viper.GetInt("solver.max_iterations"),
			Tolerance:     viper.GetFloat64("solver.tolerance"),
		}),
	}

	if job == nil {
		return opts, nil
	}

	if job.RiskFreeRate != nil {
		opts = append(opts, portfolio.WithRiskFreeRate(*job.RiskFreeRate))
	}

	bounds, err := job.Bounds(def)
	if err != nil {
		return nil, err
	}
	if len(bounds) > 0 {
		opts = append(opts, portfolio.WithBounds(bounds))
	}

	return opts, nil
}

// frontierPoints returns the grid size: flag, then job, then configuration
func frontierPoints(flagValue int, job *Job) int {
	if flagValue > 0 {
		return flagValue
	}
	if job != nil && job.FrontierPoints > 0 {
		return job.FrontierPoints
	}
	return viper.GetInt("optimizer.frontier_points")
}
