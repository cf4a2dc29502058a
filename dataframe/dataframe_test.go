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

package dataframe_test

import (
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pv-optimizer/dataframe"
)

var _ = Describe("DataFrame", func() {
	Context("with no values", func() {
		var (
			df *dataframe.DataFrame
		)

		BeforeEach(func() {
			df = &dataframe.DataFrame{}
		})

		It("has zero length", func() {
			Expect(df.Len()).To(Equal(0))
		})

		It("has zero columns", func() {
			Expect(df.ColCount()).To(Equal(0))
		})

		It("does not error on drop", func() {
			df = df.Drop(math.NaN())
			Expect(df.Len()).To(Equal(0))
		})

		It("does not error on trim", func() {
			df = df.Trim(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC))
			Expect(df.Len()).To(Equal(0))
		})

		It("has an empty pct change", func() {
			Expect(df.PctChange().Len()).To(Equal(0))
		})

		It("prints no data", func() {
			Expect(df.Table()).To(Equal("<NO DATA>"))
		})
	})

	Context("with two price columns", func() {
		var (
			df *dataframe.DataFrame
		)

		BeforeEach(func() {
			df = &dataframe.DataFrame{
				Dates: []time.Time{
					time.Date(2021, time.January, 4, 0, 0, 0, 0, time.UTC),
					time.Date(2021, time.January, 5, 0, 0, 0, 0, time.UTC),
					time.Date(2021, time.January, 6, 0, 0, 0, 0, time.UTC),
					time.Date(2021, time.January, 7, 0, 0, 0, 0, time.UTC),
					time.Date(2021, time.January, 8, 0, 0, 0, 0, time.UTC),
				},
				ColNames: []string{"A", "B"},
				Vals: [][]float64{
					{100, 101, 102, 101, 103},
					{50, 50, 51, 52, 52},
				},
			}
		})

		It("validates", func() {
			Expect(df.Validate()).To(BeNil())
			Expect(df.IsSorted()).To(BeTrue())
			Expect(df.HasNaN()).To(BeFalse())
		})

		It("computes simple returns with one fewer row", func() {
			ret := df.PctChange()
			Expect(ret.Len()).To(Equal(4))
			Expect(ret.Dates[0]).To(Equal(time.Date(2021, time.January, 5, 0, 0, 0, 0, time.UTC)))
			Expect(ret.ColNames).To(Equal([]string{"A", "B"}))
			Expect(ret.Vals[0][0]).To(BeNumerically("~", 0.01, 1e-12))
			Expect(ret.Vals[0][2]).To(BeNumerically("~", 101.0/102.0-1.0, 1e-12))
			Expect(ret.Vals[1][0]).To(BeNumerically("~", 0.0, 1e-12))
			Expect(ret.Vals[1][1]).To(BeNumerically("~", 0.02, 1e-12))
		})

		It("does not modify the source when computing returns", func() {
			df.PctChange()
			Expect(df.Vals[0][0]).To(Equal(100.0))
			Expect(df.Len()).To(Equal(5))
		})

		It("computes column means", func() {
			means := df.ColMeans()
			Expect(means[0]).To(BeNumerically("~", 101.4, 1e-12))
			Expect(means[1]).To(BeNumerically("~", 51.0, 1e-12))
		})

		It("computes a symmetric sample covariance", func() {
			cov := df.CovarianceMatrix()
			r, c := cov.Dims()
			Expect(r).To(Equal(2))
			Expect(c).To(Equal(2))
			// var(A) with n-1 denominator
			Expect(cov.At(0, 0)).To(BeNumerically("~", 1.3, 1e-12))
			Expect(cov.At(0, 1)).To(Equal(cov.At(1, 0)))
		})

		It("returns the last row as a map", func() {
			Expect(df.LastRow()).To(Equal(map[string]float64{"A": 103, "B": 52}))
		})

		It("trims to an inclusive date range", func() {
			trimmed := df.Trim(time.Date(2021, time.January, 5, 0, 0, 0, 0, time.UTC), time.Date(2021, time.January, 7, 0, 0, 0, 0, time.UTC))
			Expect(trimmed.Len()).To(Equal(3))
			Expect(trimmed.Vals[0]).To(Equal([]float64{101, 102, 101}))
		})

		It("renders a table", func() {
			Expect(df.Table()).To(ContainSubstring("2021-01-08"))
		})
	})

	Context("with missing values", func() {
		var (
			df *dataframe.DataFrame
		)

		BeforeEach(func() {
			df = &dataframe.DataFrame{
				Dates: []time.Time{
					time.Date(2021, time.January, 4, 0, 0, 0, 0, time.UTC),
					time.Date(2021, time.January, 5, 0, 0, 0, 0, time.UTC),
					time.Date(2021, time.January, 6, 0, 0, 0, 0, time.UTC),
				},
				ColNames: []string{"A", "B"},
				Vals: [][]float64{
					{1, math.NaN(), 3},
					{4, 5, 6},
				},
			}
		})

		It("drops every row with a NaN", func() {
			Expect(df.HasNaN()).To(BeTrue())
			df.Drop(math.NaN())
			Expect(df.Len()).To(Equal(2))
			Expect(df.Vals[0]).To(Equal([]float64{1, 3}))
			Expect(df.Vals[1]).To(Equal([]float64{4, 6}))
			Expect(df.HasNaN()).To(BeFalse())
		})
	})

	Context("with unsorted dates", func() {
		It("sorts rows by date", func() {
			df := &dataframe.DataFrame{
				Dates: []time.Time{
					time.Date(2021, time.January, 6, 0, 0, 0, 0, time.UTC),
					time.Date(2021, time.January, 4, 0, 0, 0, 0, time.UTC),
					time.Date(2021, time.January, 5, 0, 0, 0, 0, time.UTC),
				},
				ColNames: []string{"A"},
				Vals:     [][]float64{{3, 1, 2}},
			}
			Expect(df.IsSorted()).To(BeFalse())
			df.SortByDate()
			Expect(df.IsSorted()).To(BeTrue())
			Expect(df.Vals[0]).To(Equal([]float64{1, 2, 3}))
		})
	})
})
