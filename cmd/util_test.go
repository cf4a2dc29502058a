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
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"

	"github.com/penny-vault/pv-optimizer/dataframe"
	"github.com/penny-vault/pv-optimizer/portfolio"
)

func pricesFrame(a, b []float64) *dataframe.DataFrame {
	dates := make([]time.Time, len(a))
	for idx := range dates {
		dates[idx] = time.Date(2021, time.January, 4+idx, 0, 0, 0, 0, time.UTC)
	}
	return &dataframe.DataFrame{
		Dates:    dates,
		ColNames: []string{"A", "B"},
		Vals:     [][]float64{a, b},
	}
}

var _ = Describe("Commands", func() {
	var (
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("computing allocations", func() {
		var (
			opt *portfolio.Optimizer
		)

		BeforeEach(func() {
			var err error
			opt, err = portfolio.NewOptimizer(pricesFrame(
				[]float64{100, 101, 102, 101, 103},
				[]float64{50, 50, 51, 52, 52},
			))
			Expect(err).To(BeNil())
		})

		It("runs the requested methods in order", func() {
			allocs, err := computeAllocations(ctx, opt, []string{"equal-weight", "Min-Volatility", "max-sharpe"}, 0, false)
			Expect(err).To(BeNil())
			Expect(allocs).To(HaveLen(3))
			Expect(allocs[0].Method).To(Equal(portfolio.EqualWeightMethod))
			Expect(allocs[1].Method).To(Equal(portfolio.MinVolatilityMethod))
			Expect(allocs[2].Method).To(Equal(portfolio.MaxSharpeMethod))
		})

		It("needs a target for efficient-return", func() {
			_, err := computeAllocations(ctx, opt, []string{"efficient-return"}, 0, false)
			Expect(err).To(MatchError(ErrNoTarget))

			allocs, err := computeAllocations(ctx, opt, []string{"efficient-return"}, 2.3, true)
			Expect(err).To(BeNil())
			Expect(allocs[0].Performance.Return).To(BeNumerically("~", 2.3, 1e-6))
		})

		It("rejects unknown methods", func() {
			_, err := computeAllocations(ctx, opt, []string{"risk-parity"}, 0, false)
			Expect(err).To(MatchError(ErrUnknownMethod))
		})

		It("skips infeasible methods", func() {
			falling, err := portfolio.NewOptimizer(pricesFrame(
				[]float64{100, 99, 98.5, 97, 96},
				[]float64{50, 49.5, 49, 48.7, 48},
			))
			Expect(err).To(BeNil())

			allocs, err := computeAllocations(ctx, falling, []string{"equal-weight", "max-sharpe"}, 0, false)
			Expect(err).To(BeNil())
			Expect(allocs).To(HaveLen(1))
			Expect(allocs[0].Method).To(Equal(portfolio.EqualWeightMethod))

			_, err = computeAllocations(ctx, falling, []string{"max-sharpe"}, 0, false)
			Expect(err).To(MatchError(ErrNoAllocations))
		})

		It("prints an allocation table", func() {
			allocs, err := computeAllocations(ctx, opt, []string{"equal-weight"}, 0, false)
			Expect(err).To(BeNil())

			buf := &bytes.Buffer{}
			writeAllocationTable(buf, opt.Assets(), allocs)
			Expect(buf.String()).To(ContainSubstring("50.00%"))
			Expect(buf.String()).To(ContainSubstring("Sharpe Ratio"))
		})

		It("prints whole share holdings", func() {
			buf := &bytes.Buffer{}
			writeDiscreteTable(buf, "max-sharpe", &portfolio.DiscreteAllocation{
				Shares:   map[string]int{"A": 5, "B": 9},
				Leftover: 17,
			})
			Expect(buf.String()).To(ContainSubstring("17.00"))
			Expect(buf.String()).To(ContainSubstring("max-sharpe"))
		})
	})

	It("prints n/a for the sharpe ratio of a riskless allocation", func() {
		buf := &bytes.Buffer{}
		writeAllocationTable(buf, []string{"CASH"}, []*portfolio.Allocation{
			{
				Method:      portfolio.MinVolatilityMethod,
				Weights:     map[string]float64{"CASH": 1},
				Performance: portfolio.Performance{Return: 0, Volatility: 0, Sharpe: math.NaN()},
			},
			{
				Method:      portfolio.EqualWeightMethod,
				Weights:     map[string]float64{"CASH": 1},
				Performance: portfolio.Performance{Return: 0.01, Volatility: 0, Sharpe: math.Inf(1)},
			},
		})
		Expect(buf.String()).To(ContainSubstring("n/a"))
		Expect(buf.String()).ToNot(ContainSubstring("NaN"))
		Expect(buf.String()).ToNot(ContainSubstring("Inf"))
	})

	It("prints unattainable frontier points as n/a", func() {
		buf := &bytes.Buffer{}
		writeFrontierTable(buf, []portfolio.FrontierPoint{
			{TargetReturn: 0.1, Volatility: 0.2},
			{TargetReturn: 0.3, Volatility: math.NaN()},
		})
		Expect(buf.String()).To(ContainSubstring("20.00%"))
		Expect(buf.String()).To(ContainSubstring("n/a"))
	})

	It("writes indented json", func() {
		buf := &bytes.Buffer{}
		Expect(writeJSON(buf, []portfolio.FrontierPoint{{TargetReturn: 0.1, Volatility: math.NaN()}})).To(Succeed())
		Expect(buf.String()).To(ContainSubstring("null"))
		Expect(buf.String()).To(ContainSubstring("\n  "))
	})

	Describe("setting up from a job", func() {
		AfterEach(func() {
			jobFile = ""
		})

		It("loads the job's price table and bounds", func() {
			dir := GinkgoT().TempDir()
			csv := "date,A,B\n2021-01-04,100,50\n2021-01-05,101,50\n2021-01-06,102,51\n2021-01-07,101,52\n2021-01-08,103,52\n"
			Expect(os.WriteFile(filepath.Join(dir, "prices.csv"), []byte(csv), 0o600)).To(Succeed())
			jobFile = filepath.Join(dir, "job.toml")
			Expect(os.WriteFile(jobFile, []byte("prices = \"prices.csv\"\n\n[[asset]]\nticker = \"a\"\nupper = 0.3\n"), 0o600)).To(Succeed())

			viper.Set("optimizer.annualization_factor", 252.0)
			viper.Set("optimizer.return_model", "mean")
			viper.Set("optimizer.lower_bound", 0.0)
			viper.Set("optimizer.upper_bound", 1.0)
			viper.Set("optimizer.solver", "active-set")
			viper.Set("cache.enabled", false)

			opt, job, cleanup, err := setupOptimizer(ctx, nil)
			defer cleanup()
			Expect(err).To(BeNil())
			Expect(job.Assets).To(HaveLen(1))
			Expect(opt.Assets()).To(Equal([]string{"A", "B"}))

			alloc, err := opt.MinVolatility(ctx)
			Expect(err).To(BeNil())
			Expect(alloc.Weights["A"]).To(BeNumerically("<=", 0.3+1e-9))
		})

		It("fails without a price table", func() {
			_, _, cleanup, err := setupOptimizer(ctx, nil)
			defer cleanup()
			Expect(err).To(MatchError(ErrNoPriceFile))
		})
	})
})
