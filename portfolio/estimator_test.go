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

package portfolio_test

import (
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pv-optimizer/dataframe"
	"github.com/penny-vault/pv-optimizer/portfolio"
)

var _ = Describe("Estimator", func() {
	var (
		prices *dataframe.DataFrame
	)

	BeforeEach(func() {
		prices = twoAssetPrices()
	})

	Context("with the mean return model", func() {
		It("annualizes the arithmetic mean of daily returns", func() {
			est, err := portfolio.Estimate(prices, portfolio.EstimatorOptions{})
			Expect(err).To(BeNil())
			Expect(est.Assets).To(Equal([]string{"A", "B"}))
			Expect(est.Periods).To(Equal(4))
			Expect(est.ExpectedReturns[0]).To(BeNumerically("~", 1.88364007, 1e-6))
			Expect(est.ExpectedReturns[1]).To(BeNumerically("~", 2.49529412, 1e-6))
		})

		It("annualizes the sample covariance", func() {
			est, err := portfolio.Estimate(prices, portfolio.EstimatorOptions{})
			Expect(err).To(BeNil())
			Expect(est.Covariance.At(0, 0)).To(BeNumerically("~", 0.03887324, 1e-7))
			Expect(est.Covariance.At(0, 1)).To(BeNumerically("~", -0.02438295, 1e-7))
			Expect(est.Covariance.At(1, 1)).To(BeNumerically("~", 0.03295087, 1e-7))
			Expect(est.Covariance.At(1, 0)).To(Equal(est.Covariance.At(0, 1)))
		})

		It("scales by a custom annualization factor", func() {
			daily, err := portfolio.Estimate(prices, portfolio.EstimatorOptions{AnnualizationFactor: 1})
			Expect(err).To(BeNil())
			annual, err := portfolio.Estimate(prices, portfolio.EstimatorOptions{AnnualizationFactor: 252})
			Expect(err).To(BeNil())
			Expect(annual.ExpectedReturns[0]).To(BeNumerically("~", daily.ExpectedReturns[0]*252, 1e-9))
			Expect(annual.Covariance.At(1, 1)).To(BeNumerically("~", daily.Covariance.At(1, 1)*252, 1e-9))
		})
	})

	Context("with the compounded return model", func() {
		It("annualizes the geometric growth", func() {
			est, err := portfolio.Estimate(prices, portfolio.EstimatorOptions{ReturnModel: portfolio.CompoundedReturn})
			Expect(err).To(BeNil())
			Expect(est.ExpectedReturns[0]).To(BeNumerically("~", math.Pow(1.03, 63)-1, 1e-6))
			Expect(est.ExpectedReturns[1]).To(BeNumerically("~", math.Pow(1.04, 63)-1, 1e-6))
		})

		It("rejects unknown models", func() {
			_, err := portfolio.Estimate(prices, portfolio.EstimatorOptions{ReturnModel: "median"})
			Expect(err).To(MatchError(portfolio.ErrUnknownReturnModel))
		})
	})

	Context("with invalid prices", func() {
		It("fails on a single observation", func() {
			prices = prices.Trim(prices.Dates[0], prices.Dates[0])
			_, err := portfolio.Estimate(prices, portfolio.EstimatorOptions{})
			Expect(err).To(MatchError(portfolio.ErrInsufficientData))
		})

		It("fails when only one return can be computed", func() {
			prices = prices.Trim(prices.Dates[0], prices.Dates[1])
			_, err := portfolio.Estimate(prices, portfolio.EstimatorOptions{})
			Expect(err).To(MatchError(portfolio.ErrInsufficientData))
		})

		It("fails on an empty universe", func() {
			_, err := portfolio.Estimate(&dataframe.DataFrame{}, portfolio.EstimatorOptions{})
			Expect(err).To(MatchError(portfolio.ErrEmptyUniverse))
		})

		It("fails on duplicate assets", func() {
			prices.ColNames[1] = "A"
			_, err := portfolio.Estimate(prices, portfolio.EstimatorOptions{})
			Expect(err).To(MatchError(portfolio.ErrDuplicateAsset))
		})

		It("fails when dates repeat", func() {
			prices.Dates[2] = prices.Dates[1]
			_, err := portfolio.Estimate(prices, portfolio.EstimatorOptions{})
			Expect(err).To(MatchError(portfolio.ErrDatesNotIncreasing))
		})

		It("fails when dates go backwards", func() {
			prices.Dates[4] = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
			_, err := portfolio.Estimate(prices, portfolio.EstimatorOptions{})
			Expect(err).To(MatchError(portfolio.ErrDatesNotIncreasing))
		})

		It("fails on missing values", func() {
			prices.Vals[0][2] = math.NaN()
			_, err := portfolio.Estimate(prices, portfolio.EstimatorOptions{})
			Expect(err).To(MatchError(portfolio.ErrMissingValues))
		})

		It("fails when a price is zero", func() {
			prices.Vals[1][2] = 0
			_, err := portfolio.Estimate(prices, portfolio.EstimatorOptions{})
			Expect(err).To(MatchError(portfolio.ErrMissingValues))
		})

		It("fails when columns are ragged", func() {
			prices.Vals[1] = prices.Vals[1][:3]
			_, err := portfolio.Estimate(prices, portfolio.EstimatorOptions{})
			Expect(err).To(MatchError(portfolio.ErrDimensionMismatch))
		})
	})
})
