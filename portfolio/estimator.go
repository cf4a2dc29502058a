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
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"github.com/penny-vault/pv-optimizer/dataframe"
)

const (
	MeanReturn       = "mean"
	CompoundedReturn = "compounded"

	DefaultAnnualizationFactor = 252.0
)

// EstimatorOptions control how expected returns and covariance are derived from prices
type EstimatorOptions struct {
	// number of return periods per year; 0 means 252 trading days
	AnnualizationFactor float64

	// MeanReturn (arithmetic mean) or CompoundedReturn (geometric mean); empty means MeanReturn
	ReturnModel string
}

// Estimates holds the annualized expected returns and covariance of an asset universe.
// The optimizers never modify Estimates, so they may be shared between goroutines
// as long as callers treat them as read-only. Use Copy before making changes.
type Estimates struct {
	Assets          []string
	ExpectedReturns []float64
	Covariance      *mat.SymDense
	Periods         int
}

type estimatesRecord struct {
	Assets          []string    `json:"assets"`
	ExpectedReturns []float64   `json:"expectedReturns"`
	Covariance      [][]float64 `json:"covariance"`
	Periods         int         `json:"periods"`
}

func (opts EstimatorOptions) withDefaults() EstimatorOptions {
	if opts.AnnualizationFactor <= 0 {
		opts.AnnualizationFactor = DefaultAnnualizationFactor
	}
	if opts.ReturnModel == "" {
		opts.ReturnModel = MeanReturn
	}
	opts.ReturnModel = strings.ToLower(opts.ReturnModel)
	return opts
}

// ValidatePrices checks that a price history can be used for estimation: at least one
// asset, distinct column names, strictly increasing dates, at least two rows and no
// missing values
func ValidatePrices(prices *dataframe.DataFrame) error {
	if prices == nil || prices.ColCount() == 0 {
		return ErrEmptyUniverse
	}

	if err := prices.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrDimensionMismatch, err)
	}

	seen := make(map[string]bool, prices.ColCount())
	for _, name := range prices.ColNames {
		if seen[name] {
			return fmt.Errorf("%w: %s", ErrDuplicateAsset, name)
		}
		seen[name] = true
	}

	for idx := 1; idx < len(prices.Dates); idx++ {
		if !prices.Dates[idx].After(prices.Dates[idx-1]) {
			return fmt.Errorf("%w: %s follows %s", ErrDatesNotIncreasing,
				prices.Dates[idx].Format("2006-01-02"), prices.Dates[idx-1].Format("2006-01-02"))
		}
	}

	if prices.Len() < 2 {
		return fmt.Errorf("%w: have %d rows, need at least 2", ErrInsufficientData, prices.Len())
	}

	for colIdx, col := range prices.Vals {
		for _, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: column %s", ErrMissingValues, prices.ColNames[colIdx])
			}
		}
	}

	return nil
}

// Estimate computes annualized expected returns and the annualized sample covariance
// matrix of the periodic returns of prices
func Estimate(prices *dataframe.DataFrame, opts EstimatorOptions) (*Estimates, error) {
	if err := ValidatePrices(prices); err != nil {
		return nil, err
	}
	return estimateFromReturns(prices.PctChange(), opts)
}

func estimateFromReturns(returns *dataframe.DataFrame, opts EstimatorOptions) (*Estimates, error) {
	opts = opts.withDefaults()

	if returns.ColCount() == 0 {
		return nil, ErrEmptyUniverse
	}

	// the sample covariance needs n-1 > 0
	periods := returns.Len()
	if periods < 2 {
		return nil, fmt.Errorf("%w: have %d return periods, need at least 2", ErrInsufficientData, periods)
	}

	if returns.HasNaN() {
		return nil, fmt.Errorf("%w: returns are undefined where a price is zero", ErrMissingValues)
	}

	factor := opts.AnnualizationFactor
	var mu []float64

	switch opts.ReturnModel {
	case MeanReturn:
		mu = returns.ColMeans()
		for ii := range mu {
			mu[ii] *= factor
		}
	case CompoundedReturn:
		mu = make([]float64, returns.ColCount())
		for ii, col := range returns.Vals {
			growth := 1.0
			for _, r := range col {
				growth *= 1.0 + r
			}
			mu[ii] = math.Pow(growth, factor/float64(periods)) - 1.0
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownReturnModel, opts.ReturnModel)
	}

	sample := returns.CovarianceMatrix()
	n := returns.ColCount()
	cov := mat.NewSymDense(n, nil)
	for ii := 0; ii < n; ii++ {
		for jj := ii; jj < n; jj++ {
			cov.SetSym(ii, jj, 0.5*(sample.At(ii, jj)+sample.At(jj, ii))*factor)
		}
	}

	assets := make([]string, n)
	copy(assets, returns.ColNames)

	log.Debug().Int("NumAssets", n).Int("Periods", periods).Str("ReturnModel", opts.ReturnModel).Float64("AnnualizationFactor", factor).Msg("estimated returns and covariance")

	return &Estimates{
		Assets:          assets,
		ExpectedReturns: mu,
		Covariance:      cov,
		Periods:         periods,
	}, nil
}

// Copy returns a deep copy of the estimates
func (est *Estimates) Copy() *Estimates {
	res := &Estimates{
		Assets:          make([]string, len(est.Assets)),
		ExpectedReturns: make([]float64, len(est.ExpectedReturns)),
		Periods:         est.Periods,
	}
	copy(res.Assets, est.Assets)
	copy(res.ExpectedReturns, est.ExpectedReturns)
	if est.Covariance != nil {
		res.Covariance = mat.NewSymDense(est.Covariance.SymmetricDim(), nil)
		res.Covariance.CopySym(est.Covariance)
	}
	return res
}

// NumAssets returns the size of the asset universe
func (est *Estimates) NumAssets() int {
	return len(est.Assets)
}

// MarshalJSON encodes the estimates with the covariance as a nested array
func (est *Estimates) MarshalJSON() ([]byte, error) {
	n := est.NumAssets()
	rec := estimatesRecord{
		Assets:          est.Assets,
		ExpectedReturns: est.ExpectedReturns,
		Covariance:      make([][]float64, n),
		Periods:         est.Periods,
	}
	for ii := 0; ii < n; ii++ {
		rec.Covariance[ii] = make([]float64, n)
		for jj := 0; jj < n; jj++ {
			rec.Covariance[ii][jj] = est.Covariance.At(ii, jj)
		}
	}
	return json.Marshal(rec)
}

// UnmarshalJSON decodes estimates written by MarshalJSON
func (est *Estimates) UnmarshalJSON(b []byte) error {
	var rec estimatesRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return err
	}

	n := len(rec.Assets)
	if len(rec.ExpectedReturns) != n || len(rec.Covariance) != n {
		return fmt.Errorf("%w: estimates have %d assets, %d returns and %d covariance rows",
			ErrDimensionMismatch, n, len(rec.ExpectedReturns), len(rec.Covariance))
	}

	var cov *mat.SymDense
	if n > 0 {
		cov = mat.NewSymDense(n, nil)
	}
	for ii, row := range rec.Covariance {
		if len(row) != n {
			return fmt.Errorf("%w: covariance row %d has %d values", ErrDimensionMismatch, ii, len(row))
		}
		for jj := ii; jj < n; jj++ {
			cov.SetSym(ii, jj, row[jj])
		}
	}

	est.Assets = rec.Assets
	est.ExpectedReturns = rec.ExpectedReturns
	est.Covariance = cov
	est.Periods = rec.Periods
	return nil
}
