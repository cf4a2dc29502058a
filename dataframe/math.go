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

package dataframe

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ColMeans returns the arithmetic mean of each column, in column order
func (df *DataFrame) ColMeans() []float64 {
	means := make([]float64, len(df.Vals))
	for colIdx, col := range df.Vals {
		means[colIdx] = stat.Mean(col, nil)
	}
	return means
}

// CovarianceMatrix computes the sample covariance (n-1 denominator) between all columns.
// The result is symmetric with dimension ColCount() x ColCount().
func (df *DataFrame) CovarianceMatrix() *mat.SymDense {
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, df.Matrix(), nil)
	return &cov
}

// Matrix returns the values as a dense matrix with one row per date and one column per
// dataframe column
func (df *DataFrame) Matrix() *mat.Dense {
	rows := df.Len()
	cols := df.ColCount()
	m := mat.NewDense(rows, cols, nil)
	for colIdx, col := range df.Vals {
		m.SetCol(colIdx, col)
	}
	return m
}

// PctChange computes the simple period-over-period fractional change of every column,
// (x[t] / x[t-1]) - 1. The first row has no prior period and is not included in the result,
// so the returned dataframe has one fewer row than df.
func (df *DataFrame) PctChange() *DataFrame {
	res := &DataFrame{
		ColNames: make([]string, len(df.ColNames)),
		Dates:    []time.Time{},
		Vals:     make([][]float64, len(df.Vals)),
	}
	copy(res.ColNames, df.ColNames)

	if df.Len() < 2 {
		for colIdx := range res.Vals {
			res.Vals[colIdx] = []float64{}
		}
		return res
	}

	res.Dates = make([]time.Time, df.Len()-1)
	copy(res.Dates, df.Dates[1:])

	for colIdx, col := range df.Vals {
		pct := make([]float64, len(col)-1)
		for rowIdx := 1; rowIdx < len(col); rowIdx++ {
			prev := col[rowIdx-1]
			if prev == 0 {
				pct[rowIdx-1] = math.NaN()
				continue
			}
			pct[rowIdx-1] = col[rowIdx]/prev - 1.0
		}
		res.Vals[colIdx] = pct
	}

	return res
}
