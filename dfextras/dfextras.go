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

package dfextras

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rocketlaunchr/dataframe-go"

	pvdf "github.com/penny-vault/pv-optimizer/dataframe"
)

// Collection of helpers make it easier to work on dataframes

var (
	ErrNotSeriesOrDataFrame = errors.New("sdf must be a Series or DataFrame")
	ErrNoTimeAxis           = errors.New("dataframe does not contain the time axis")
	ErrNotFloat             = errors.New("column is not numeric")
)

// DropNA remove rows in the series or dataframe that have NA's
func DropNA(ctx context.Context, sdf interface{}, opts ...dataframe.FilterOptions) (interface{}, error) {
	switch sdf.(type) {
	case dataframe.Series:
		filterFn := dataframe.FilterSeriesFn(func(val interface{}, row, nRows int) (dataframe.FilterAction, error) {
			if isNA(val) {
				return dataframe.DROP, nil
			}
			return dataframe.KEEP, nil
		})
		return dataframe.Filter(ctx, sdf, filterFn, opts...)
	case *dataframe.DataFrame:
		filterFn := dataframe.FilterDataFrameFn(func(vals map[interface{}]interface{}, row, nRows int) (dataframe.FilterAction, error) {
			for _, val := range vals {
				if isNA(val) {
					return dataframe.DROP, nil
				}
			}
			return dataframe.KEEP, nil
		})
		return dataframe.Filter(ctx, sdf, filterFn, opts...)
	default:
		return nil, ErrNotSeriesOrDataFrame
	}
}

func isNA(val interface{}) bool {
	if val == nil {
		return true
	}
	if v, ok := val.(float64); ok {
		return math.IsNaN(v) || math.IsInf(v, 0)
	}
	return false
}

// ToDataFrame converts a dataframe-go frame with a time axis and float64 columns into a
// column-major pv dataframe. Columns keep their order, excluding the time axis.
func ToDataFrame(ctx context.Context, df *dataframe.DataFrame, timeAxisName string) (*pvdf.DataFrame, error) {
	df.Lock()
	defer df.Unlock()

	dontLock := dataframe.Options{DontLock: true}

	timeIdx, err := df.NameToColumn(timeAxisName, dontLock)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoTimeAxis, timeAxisName)
	}

	nRows := df.NRows(dontLock)
	res := &pvdf.DataFrame{
		Dates:    make([]time.Time, nRows),
		ColNames: make([]string, 0, len(df.Series)-1),
		Vals:     make([][]float64, 0, len(df.Series)-1),
	}

	timeAxis := df.Series[timeIdx]
	for row := 0; row < nRows; row++ {
		switch v := timeAxis.Value(row, dontLock).(type) {
		case time.Time:
			res.Dates[row] = v
		case *time.Time:
			res.Dates[row] = *v
		default:
			return nil, fmt.Errorf("%w: row %d of %s is %T", ErrNoTimeAxis, row, timeAxisName, v)
		}
	}

	for colIdx, series := range df.Series {
		if colIdx == timeIdx {
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := series.Name(dontLock)
		vals := make([]float64, nRows)
		for row := 0; row < nRows; row++ {
			switch v := series.Value(row, dontLock).(type) {
			case float64:
				vals[row] = v
			case nil:
				vals[row] = math.NaN()
			default:
				return nil, fmt.Errorf("%w: %s holds %T", ErrNotFloat, name, v)
			}
		}

		res.ColNames = append(res.ColNames, name)
		res.Vals = append(res.Vals, vals)
	}

	return res, nil
}
