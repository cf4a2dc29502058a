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

package data_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pv-optimizer/common"
	"github.com/penny-vault/pv-optimizer/data"
)

var _ = Describe("Prices", func() {
	var (
		ctx context.Context
		tz  *time.Location
	)

	BeforeEach(func() {
		ctx = context.Background()
		tz = common.GetTimezone()
	})

	Context("with a well formed price table", func() {
		csv := "date,vti,BND\n" +
			"2021-01-04,100,50\n" +
			"2021-01-05,101,50.5\n" +
			"2021-01-06,102,51\n"

		It("loads every row", func() {
			df, err := data.LoadPricesCSV(ctx, strings.NewReader(csv))
			Expect(err).To(BeNil())
			Expect(df.Len()).To(Equal(3))
			Expect(df.ColNames).To(Equal([]string{"VTI", "BND"}))
			Expect(df.Column("VTI")).To(Equal([]float64{100, 101, 102}))
			Expect(df.Column("BND")).To(Equal([]float64{50, 50.5, 51}))
		})

		It("interprets dates in the exchange timezone", func() {
			df, err := data.LoadPricesCSV(ctx, strings.NewReader(csv))
			Expect(err).To(BeNil())
			Expect(df.Start()).To(Equal(time.Date(2021, 1, 4, 0, 0, 0, 0, tz)))
			Expect(df.End()).To(Equal(time.Date(2021, 1, 6, 0, 0, 0, 0, tz)))
		})

		It("loads from a file", func() {
			path := filepath.Join(GinkgoT().TempDir(), "prices.csv")
			Expect(os.WriteFile(path, []byte(csv), 0o600)).To(Succeed())

			df, err := data.LoadPricesFile(ctx, path)
			Expect(err).To(BeNil())
			Expect(df.Len()).To(Equal(3))
		})

		It("errors on a missing file", func() {
			_, err := data.LoadPricesFile(ctx, filepath.Join(GinkgoT().TempDir(), "missing.csv"))
			Expect(err).To(MatchError(os.ErrNotExist))
		})
	})

	It("sorts descending tables by date", func() {
		df, err := data.LoadPricesCSV(ctx, strings.NewReader("date,A\n2021-01-06,3\n2021-01-05,2\n2021-01-04,1\n"))
		Expect(err).To(BeNil())
		Expect(df.IsSorted()).To(BeTrue())
		Expect(df.Column("A")).To(Equal([]float64{1, 2, 3}))
	})

	It("drops rows with missing prices", func() {
		df, err := data.LoadPricesCSV(ctx, strings.NewReader("date,A,B\n2021-01-04,1,10\n2021-01-05,,11\n2021-01-06,3,NA\n2021-01-07,4,13\n"))
		Expect(err).To(BeNil())
		Expect(df.Len()).To(Equal(2))
		Expect(df.Column("A")).To(Equal([]float64{1, 4}))
		Expect(df.HasNaN()).To(BeFalse())
		Expect(math.IsNaN(df.Column("B")[1])).To(BeFalse())
		Expect(df.Dates).To(Equal([]time.Time{
			time.Date(2021, 1, 4, 0, 0, 0, 0, tz),
			time.Date(2021, 1, 7, 0, 0, 0, 0, tz),
		}))
	})

	It("keeps dates aligned with prices when rows are dropped from a wide table", func() {
		csv := "date,A,B,C\n" +
			"2021-01-04,1,10,100\n" +
			"2021-01-05,2,nan,101\n" +
			"2021-01-06,3,12,102\n" +
			"2021-01-07,4,13,null\n" +
			"2021-01-08,5,14,104\n"
		df, err := data.LoadPricesCSV(ctx, strings.NewReader(csv))
		Expect(err).To(BeNil())
		Expect(df.ColNames).To(Equal([]string{"A", "B", "C"}))
		Expect(df.Len()).To(Equal(3))
		Expect(df.Start()).To(Equal(time.Date(2021, 1, 4, 0, 0, 0, 0, tz)))
		Expect(df.End()).To(Equal(time.Date(2021, 1, 8, 0, 0, 0, 0, tz)))
		Expect(df.Column("A")).To(Equal([]float64{1, 3, 5}))
		Expect(df.Column("C")).To(Equal([]float64{100, 102, 104}))
	})

	It("rejects repeated dates", func() {
		_, err := data.LoadPricesCSV(ctx, strings.NewReader("date,A\n2021-01-05,2\n2021-01-04,1\n2021-01-05,3\n"))
		Expect(err).To(MatchError(data.ErrDatesNotIncreasing))
	})

	It("rejects invalid dates", func() {
		_, err := data.LoadPricesCSV(ctx, strings.NewReader("date,A\nyesterday,1\n2021-01-05,2\n"))
		Expect(err).To(MatchError(data.ErrInvalidDate))
	})

	It("rejects invalid prices", func() {
		_, err := data.LoadPricesCSV(ctx, strings.NewReader("date,A\n2021-01-04,1\n2021-01-05,abc\n"))
		Expect(err).To(MatchError(data.ErrInvalidPrice))
	})

	It("requires at least one asset column", func() {
		_, err := data.LoadPricesCSV(ctx, strings.NewReader("date\n2021-01-04\n"))
		Expect(err).To(MatchError(data.ErrNoPriceColumns))
	})

	It("requires at least one row", func() {
		_, err := data.LoadPricesCSV(ctx, strings.NewReader("date,A,B\n"))
		Expect(err).To(MatchError(data.ErrNoRows))

		_, err = data.LoadPricesCSV(ctx, strings.NewReader(""))
		Expect(err).To(MatchError(data.ErrNoRows))
	})

	It("rejects duplicate tickers", func() {
		_, err := data.LoadPricesCSV(ctx, strings.NewReader("date,A,B,A\n2021-01-04,1,2,3\n"))
		Expect(err).To(MatchError(data.ErrDuplicateColumn))

		_, err = data.LoadPricesCSV(ctx, strings.NewReader("date,spy,SPY\n2021-01-04,1,2\n"))
		Expect(err).To(MatchError(data.ErrDuplicateColumn))
	})
})
