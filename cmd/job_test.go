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
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"

	"github.com/penny-vault/pv-optimizer/portfolio"
)

var _ = Describe("Job", func() {
	var (
		dir string
	)

	writeJob := func(body string) string {
		path := filepath.Join(dir, "job.toml")
		Expect(os.WriteFile(path, []byte(body), 0o600)).To(Succeed())
		return path
	}

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("parses bounds, targets and the price file", func() {
		job, err := LoadJob(writeJob(`
prices = "prices.csv"
risk_free_rate = 0.02
frontier_points = 30
total_value = 10000

[[asset]]
ticker = "vti"
upper = 0.6

[[asset]]
ticker = "BND"
lower = 0.1
`))
		Expect(err).To(BeNil())
		Expect(job.Prices).To(Equal(filepath.Join(dir, "prices.csv")))
		Expect(*job.RiskFreeRate).To(Equal(0.02))
		Expect(job.FrontierPoints).To(Equal(30))
		Expect(job.TotalValue).To(Equal(10000.0))
		Expect(job.Assets).To(HaveLen(2))
		Expect(job.Assets[0].Ticker).To(Equal("VTI"))
		Expect(job.Assets[0].Lower).To(BeNil())

		bounds, err := job.Bounds(portfolio.LongOnly())
		Expect(err).To(BeNil())
		Expect(bounds).To(Equal(map[string]portfolio.Bound{
			"VTI": {Lower: 0, Upper: 0.6},
			"BND": {Lower: 0.1, Upper: 1},
		}))
	})

	It("accepts whole numbers for bounds, rates and values", func() {
		job, err := LoadJob(writeJob(`
risk_free_rate = 0
total_value = 25000

[[asset]]
ticker = "VTI"
lower = 0
upper = 1
`))
		Expect(err).To(BeNil())
		Expect(*job.RiskFreeRate).To(Equal(0.0))
		Expect(job.TotalValue).To(Equal(25000.0))
		Expect(*job.Assets[0].Lower).To(Equal(0.0))
		Expect(*job.Assets[0].Upper).To(Equal(1.0))
	})

	It("rejects a bound that is not a number", func() {
		_, err := LoadJob(writeJob(`
[[asset]]
ticker = "VTI"
lower = "x"
`))
		Expect(err).ToNot(BeNil())
		Expect(err.Error()).To(ContainSubstring("asset[0].lower"))
	})

	It("keeps absolute price paths", func() {
		job, err := LoadJob(writeJob(`prices = "/data/prices.csv"`))
		Expect(err).To(BeNil())
		Expect(job.Prices).To(Equal("/data/prices.csv"))
	})

	It("rejects a ticker listed twice", func() {
		job, err := LoadJob(writeJob(`
[[asset]]
ticker = "vti"
upper = 0.5

[[asset]]
ticker = "VTI"
upper = 0.6
`))
		Expect(err).To(BeNil())
		_, err = job.Bounds(portfolio.LongOnly())
		Expect(err).To(MatchError(portfolio.ErrDuplicateAsset))
	})

	It("reports malformed toml", func() {
		_, err := LoadJob(writeJob(`prices = `))
		Expect(err).ToNot(BeNil())
	})

	It("reports a missing job file", func() {
		_, err := LoadJob(filepath.Join(dir, "missing.toml"))
		Expect(err).To(MatchError(os.ErrNotExist))
	})

	Describe("price file selection", func() {
		It("prefers the command argument", func() {
			path, err := priceFile([]string{"a.csv"}, &Job{Prices: "b.csv"})
			Expect(err).To(BeNil())
			Expect(path).To(Equal("a.csv"))
		})

		It("falls back to the job", func() {
			path, err := priceFile(nil, &Job{Prices: "b.csv"})
			Expect(err).To(BeNil())
			Expect(path).To(Equal("b.csv"))
		})

		It("errors when neither is set", func() {
			_, err := priceFile(nil, nil)
			Expect(err).To(MatchError(ErrNoPriceFile))
		})
	})

	Describe("frontier points", func() {
		BeforeEach(func() {
			viper.Set("optimizer.frontier_points", 100)
		})

		It("uses the flag first", func() {
			Expect(frontierPoints(10, &Job{FrontierPoints: 20})).To(Equal(10))
		})

		It("uses the job second", func() {
			Expect(frontierPoints(0, &Job{FrontierPoints: 20})).To(Equal(20))
		})

		It("uses the configuration last", func() {
			Expect(frontierPoints(0, nil)).To(Equal(100))
		})
	})

	Describe("optimizer options", func() {
		BeforeEach(func() {
			viper.Set("optimizer.lower_bound", 0.0)
			viper.Set("optimizer.upper_bound", 1.0)
			viper.Set("optimizer.solver", "active-set")
		})

		It("builds options without a job", func() {
			opts, err := optimizerOptions(nil)
			Expect(err).To(BeNil())
			Expect(opts).To(HaveLen(7))
		})

		It("adds the job's risk-free rate and bounds", func() {
			rf := 0.01
			upper := 0.5
			opts, err := optimizerOptions(&Job{RiskFreeRate: &rf, Assets: []JobAsset{{Ticker: "A", Upper: &upper}}})
			Expect(err).To(BeNil())
			Expect(opts).To(HaveLen(9))
		})
	})
})
