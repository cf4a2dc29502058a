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
	"math"

	"github.com/goccy/go-json"
)

const (
	EqualWeightMethod     = "equal-weight"
	MaxSharpeMethod       = "max-sharpe"
	MinVolatilityMethod   = "min-volatility"
	EfficientReturnMethod = "efficient-return"
)

// Allocation is a fully-invested weight vector and its performance
type Allocation struct {
	Method      string             `json:"method"`
	Weights     map[string]float64 `json:"weights"`
	Vector      []float64          `json:"-"`
	Performance Performance        `json:"performance"`
}

// FrontierPoint is the minimum volatility achieved for a target return; Volatility is
// NaN when no portfolio reaches the target
type FrontierPoint struct {
	TargetReturn float64
	Volatility   float64
}

type frontierPointRecord struct {
	TargetReturn float64  `json:"targetReturn"`
	Volatility   *float64 `json:"volatility"`
}

// MarshalJSON writes unattainable points with a null volatility
func (fp FrontierPoint) MarshalJSON() ([]byte, error) {
	rec := frontierPointRecord{TargetReturn: fp.TargetReturn}
	if !math.IsNaN(fp.Volatility) {
		vol := fp.Volatility
		rec.Volatility = &vol
	}
	return json.Marshal(rec)
}

// Attainable reports whether a portfolio reaching the target return was found
func (fp FrontierPoint) Attainable() bool {
	return !math.IsNaN(fp.Volatility)
}

func newAllocation(method string, weights []float64, est *Estimates, riskFreeRate float64) (*Allocation, error) {
	perf, err := Evaluate(weights, est, riskFreeRate)
	if err != nil {
		return nil, err
	}

	named := make(map[string]float64, len(weights))
	for idx, asset := range est.Assets {
		named[asset] = weights[idx]
	}

	return &Allocation{
		Method:      method,
		Weights:     named,
		Vector:      weights,
		Performance: perf,
	}, nil
}

// EqualWeight allocates 1/N to every asset
func EqualWeight(est *Estimates, riskFreeRate float64) (*Allocation, error) {
	if est == nil || est.NumAssets() == 0 {
		return nil, ErrEmptyUniverse
	}

	n := est.NumAssets()
	weights := make([]float64, n)
	for ii := range weights {
		weights[ii] = 1.0 / float64(n)
	}

	return newAllocation(EqualWeightMethod, weights, est, riskFreeRate)
}
