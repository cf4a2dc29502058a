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
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"

	"github.com/penny-vault/pv-optimizer/common"
	"github.com/penny-vault/pv-optimizer/portfolio"
)

var _ = Describe("Running commands", func() {
	var (
		ctx       context.Context
		pricesCSV string
	)

	BeforeEach(func() {
		ctx = context.Background()

		dir := GinkgoT().TempDir()
		pricesCSV = filepath.Join(dir, "prices.csv")
		csv := "date,SPY,CASH\n" +
			"2021-01-04,100,1\n" +
			"2021-01-05,101,1\n" +
			"2021-01-06,100.5,1\n" +
			"2021-01-07,102,1\n" +
			"2021-01-08,103,1\n" +
			"2021-01-11,102.5,1\n"
		Expect(os.WriteFile(pricesCSV, []byte(csv), 0o600)).To(Succeed())

		viper.Set("optimizer.annualization_factor", 252.0)
		viper.Set("optimizer.return_model", "mean")
		viper.Set("optimizer.risk_free_rate", 0.0)
		viper.Set("optimizer.lower_bound", 0.0)
		viper.Set("optimizer.upper_bound", 1.0)
		viper.Set("optimizer.clean_tolerance", 1e-4)
		viper.Set("optimizer.frontier_points", 5)
		viper.Set("optimizer.solver", "active-set")
		viper.Set("cache.enabled", false)

		optimizeMethods = []string{portfolio.MinVolatilityMethod}
		optimizeTarget = 0
		optimizeTotalValue = 0
		optimizeJSON = false
		frontierPointsFlag = 0
		frontierPlot = ""
		frontierJSON = false
	})

	AfterEach(func() {
		viper.Set("prices.start", "")
		viper.Set("prices.end", "")
		setupCache = common.SetupCache
	})

	Describe("prices", func() {
		It("prints the whole price table", func() {
			buf := &bytes.Buffer{}
			Expect(runPrices(ctx, buf, []string{pricesCSV})).To(Succeed())
			Expect(buf.String()).To(ContainSubstring("2021-01-04"))
			Expect(buf.String()).To(ContainSubstring("2021-01-11"))
			Expect(buf.String()).To(ContainSubstring("102.5000"))
			Expect(buf.String()).To(ContainSubstring("NUM ROWS"))
		})

		It("trims the table to the configured window", func() {
			viper.Set("prices.start", "2021-01-05")
			viper.Set("prices.end", "2021-01-07")

			buf := &bytes.Buffer{}
			Expect(runPrices(ctx, buf, []string{pricesCSV})).To(Succeed())
			Expect(buf.String()).ToNot(ContainSubstring("2021-01-04"))
			Expect(buf.String()).To(ContainSubstring("2021-01-05"))
			Expect(buf.String()).To(ContainSubstring("2021-01-07"))
			Expect(buf.String()).ToNot(ContainSubstring("2021-01-08"))
		})

		It("rejects a malformed window", func() {
			viper.Set("prices.start", "last week")
			Expect(runPrices(ctx, &bytes.Buffer{}, []string{pricesCSV})).To(MatchError(ErrInvalidWindow))
		})

		It("rejects a window without prices", func() {
			viper.Set("prices.start", "2022-01-01")
			Expect(runPrices(ctx, &bytes.Buffer{}, []string{pricesCSV})).To(MatchError(ErrInvalidWindow))
		})

		It("needs a price file", func() {
			Expect(runPrices(ctx, &bytes.Buffer{}, nil)).To(MatchError(ErrNoPriceFile))
		})
	})

	Describe("historyWindow", func() {
		It("reads dates in the exchange timezone", func() {
			viper.Set("prices.start", "2021-01-05")
			begin, end, err := historyWindow()
			Expect(err).To(BeNil())
			Expect(begin).To(Equal(time.Date(2021, 1, 5, 0, 0, 0, 0, common.GetTimezone())))
			Expect(end.IsZero()).To(BeTrue())
		})
	})

	Describe("optimize", func() {
		It("allocates a universe holding cash", func() {
			buf := &bytes.Buffer{}
			Expect(runOptimize(ctx, buf, []string{pricesCSV}, false)).To(Succeed())
			Expect(buf.String()).To(ContainSubstring("CASH"))
			Expect(buf.String()).To(ContainSubstring("100.00%"))
			Expect(buf.String()).To(ContainSubstring("n/a"))
		})

		It("writes json with a null sharpe ratio for cash", func() {
			optimizeJSON = true
			buf := &bytes.Buffer{}
			Expect(runOptimize(ctx, buf, []string{pricesCSV}, false)).To(Succeed())
			Expect(buf.String()).To(ContainSubstring(`"sharpe"`))
			Expect(buf.String()).To(ContainSubstring("null"))
			Expect(buf.String()).ToNot(ContainSubstring("NaN"))
		})

		It("closes the estimate cache when a run fails", func() {
			cache, err := common.NewCache(8, "redis://localhost:1/0", time.Minute)
			Expect(err).To(BeNil())
			setupCache = func() (*common.Cache, error) { return cache, nil }

			optimizeMethods = []string{"risk-parity"}
			Expect(runOptimize(ctx, &bytes.Buffer{}, []string{pricesCSV}, false)).To(MatchError(ErrUnknownMethod))

			// the run already closed the redis client
			Expect(cache.Close()).ToNot(Succeed())
		})

		It("returns setup failures instead of exiting", func() {
			Expect(runOptimize(ctx, &bytes.Buffer{}, nil, false)).To(MatchError(ErrNoPriceFile))
		})
	})

	Describe("frontier", func() {
		It("prints every frontier point", func() {
			buf := &bytes.Buffer{}
			Expect(runFrontier(ctx, buf, []string{pricesCSV})).To(Succeed())
			Expect(buf.String()).To(ContainSubstring("TARGET RETURN"))
		})

		It("closes the estimate cache when a run fails", func() {
			cache, err := common.NewCache(8, "redis://localhost:1/0", time.Minute)
			Expect(err).To(BeNil())
			setupCache = func() (*common.Cache, error) { return cache, nil }

			viper.Set("optimizer.frontier_points", 0)
			Expect(runFrontier(ctx, &bytes.Buffer{}, []string{pricesCSV})).ToNot(Succeed())
			Expect(cache.Close()).ToNot(Succeed())
		})
	})
})
