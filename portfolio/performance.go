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

	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// variance below -varianceTolerance means the covariance matrix is not positive semi-definite
const varianceTolerance = 1e-10

// Performance of a weight vector: annualized expected return, annualized volatility and
// Sharpe ratio. Always computed from the weights it is reported with. A riskless portfolio
// has a Sharpe ratio of +Inf, -Inf or NaN depending on the sign of its excess return.
type Performance struct {
	Return     float64 `json:"expectedReturn"`
	Volatility float64 `json:"volatility"`
	Sharpe     float64 `json:"sharpe"`
}

type performanceRecord struct {
	Return     float64  `json:"expectedReturn"`
	Volatility float64  `json:"volatility"`
	Sharpe     *float64 `json:"sharpe"`
}

// MarshalJSON writes a Sharpe ratio that is not finite as null
func (perf Performance) MarshalJSON() ([]byte, error) {
	rec := performanceRecord{
		Return:     perf.Return,
		Volatility: perf.Volatility,
	}
	if !math.IsNaN(perf.Sharpe) && !math.IsInf(perf.Sharpe, 0) {
		sharpe := perf.Sharpe
		rec.Sharpe = &sharpe
	}
	return json.Marshal(rec)
}

// SharpeRatio returns the Sharpe ratio, or ErrDivisionByZero for a riskless portfolio
func (perf Performance) SharpeRatio() (float64, error) {
	if perf.Riskless() {
		return 0, fmt.Errorf("%w: return %.6f", ErrDivisionByZero, perf.Return)
	}
	return perf.Sharpe, nil
}

// Riskless reports whether the portfolio has zero volatility
func (perf Performance) Riskless() bool {
	return perf.Volatility == 0
}

// Evaluate computes the performance of weights under the estimates
func Evaluate(weights []float64, est *Estimates, riskFreeRate float64) (Performance, error) {
	if est == nil || est.NumAssets() == 0 {
		return Performance{}, ErrEmptyUniverse
	}

	if len(weights) != est.NumAssets() {
		return Performance{}, fmt.Errorf("%w: %d weights for %d assets", ErrDimensionMismatch, len(weights), est.NumAssets())
	}

	ret := floats.Dot(weights, est.ExpectedReturns)

	w := mat.NewVecDense(len(weights), weights)
	variance := mat.Inner(w, est.Covariance, w)
	if variance < -varianceTolerance {
		return Performance{}, fmt.Errorf("%w: %.6g", ErrNegativeVariance, variance)
	}
	variance = math.Max(variance, 0)

	vol := math.Sqrt(variance)

	return Performance{
		Return:     ret,
		Volatility: vol,
		Sharpe:     sharpeRatio(ret-riskFreeRate, vol),
	}, nil
}

func sharpeRatio(excess, vol float64) float64 {
	if vol > 0 {
		return excess / vol
	}
	switch {
	case excess > 0:
		return math.Inf(1)
	case excess < 0:
		return math.Inf(-1)
	default:
		return math.NaN()
	}
}
