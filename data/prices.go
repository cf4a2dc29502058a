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

package data

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/imports"
	"github.com/rs/zerolog/log"

	"github.com/penny-vault/pv-optimizer/common"
	pvdf "github.com/penny-vault/pv-optimizer/dataframe"
	"github.com/penny-vault/pv-optimizer/dfextras"
)

var dateLayouts = []string{"2006-01-02", time.RFC3339, "01/02/2006"}

// LoadPricesFile opens path and parses it with LoadPricesCSV
func LoadPricesFile(ctx context.Context, path string) (*pvdf.DataFrame, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	df, err := LoadPricesCSV(ctx, fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return df, nil
}

// LoadPricesCSV parses a price table of the form `date,<ticker>,<ticker>...`. The first
// column is the date axis; every other column is the price history of one asset. Rows
// with a missing price are dropped, rows are sorted by date, and tickers are upper-cased.
func LoadPricesCSV(ctx context.Context, r io.Reader) (*pvdf.DataFrame, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	header, err := readHeader(body)
	if err != nil {
		return nil, err
	}
	dateCol := header[0]
	tickers := header[1:]

	tz := common.GetTimezone()

	// the converters record the first failure themselves so the error survives
	// whatever wrapping the csv importer applies
	var convErr error
	fail := func(err error) {
		if convErr == nil {
			convErr = err
		}
	}

	dictate := map[string]interface{}{
		dateCol: imports.Converter{
			ConcreteType: time.Time{},
			ConverterFunc: func(in interface{}) (interface{}, error) {
				s := strings.TrimSpace(fmt.Sprint(in))
				for _, layout := range dateLayouts {
					if dt, err := time.ParseInLocation(layout, s, tz); err == nil {
						return dt, nil
					}
				}
				fail(fmt.Errorf("%w: %q", ErrInvalidDate, s))
				return time.Time{}, nil
			},
		},
	}

	for _, ticker := range tickers {
		ticker := ticker
		dictate[ticker] = imports.Converter{
			ConcreteType: float64(0),
			ConverterFunc: func(in interface{}) (interface{}, error) {
				s := strings.TrimSpace(fmt.Sprint(in))
				switch strings.ToLower(s) {
				case "", "na", "nan", "null", ".":
					return math.NaN(), nil
				}
				val, err := strconv.ParseFloat(s, 64)
				if err != nil {
					fail(fmt.Errorf("%w: %q in column %s", ErrInvalidPrice, s, ticker))
					return math.NaN(), nil
				}
				return val, nil
			},
		}
	}

	rawDf, err := imports.LoadFromCSV(ctx, bytes.NewReader(body), imports.CSVLoadOptions{
		DictateDataType: dictate,
	})
	if convErr != nil {
		return nil, convErr
	}
	if err != nil {
		log.Error().Err(err).Msg("could not parse price csv")
		return nil, err
	}

	// the date column is a generic series, which only supports in place filtering
	rawRows := rawDf.NRows()
	if _, err := dfextras.DropNA(ctx, rawDf, dataframe.FilterOptions{InPlace: true}); err != nil {
		return nil, err
	}

	converted, err := dfextras.ToDataFrame(ctx, rawDf, dateCol)
	if err != nil {
		return nil, err
	}

	df := inHeaderOrder(converted, tickers)
	df.Drop(math.NaN())
	if dropped := rawRows - df.Len(); dropped > 0 {
		log.Warn().Int("Dropped", dropped).Int("Rows", rawRows).Msg("dropped price rows with missing values")
	}
	common.ArrToUpper(df.ColNames)
	if err := checkDuplicates(df.ColNames); err != nil {
		return nil, err
	}

	if df.Len() == 0 {
		return nil, ErrNoRows
	}

	if !df.IsSorted() {
		df.SortByDate()
		if !df.IsSorted() {
			return nil, fmt.Errorf("%w: repeated date in price table", ErrDatesNotIncreasing)
		}
	}

	log.Debug().Int("Rows", df.Len()).Strs("Assets", df.ColNames).Time("Start", df.Start()).Time("End", df.End()).Msg("loaded price table")

	return df, nil
}

// readHeader returns the column names and checks the table has at least one data row
func readHeader(body []byte) ([]string, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, err
	}

	for idx := range header {
		header[idx] = strings.TrimSpace(header[idx])
	}
	if len(header) < 2 {
		return nil, ErrNoPriceColumns
	}
	if err := checkDuplicates(header); err != nil {
		return nil, err
	}

	if _, err := reader.Read(); errors.Is(err, io.EOF) {
		return nil, ErrNoRows
	}

	return header, nil
}

func checkDuplicates(names []string) error {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return fmt.Errorf("%w: %s", ErrDuplicateColumn, name)
		}
		seen[name] = true
	}
	return nil
}

// inHeaderOrder arranges the columns of df to match the csv header
func inHeaderOrder(df *pvdf.DataFrame, tickers []string) *pvdf.DataFrame {
	res := &pvdf.DataFrame{
		Dates:    df.Dates,
		ColNames: make([]string, 0, len(tickers)),
		Vals:     make([][]float64, 0, len(tickers)),
	}
	for _, ticker := range tickers {
		if col := df.Column(ticker); col != nil {
			res.ColNames = append(res.ColNames, ticker)
			res.Vals = append(res.Vals, col)
		}
	}
	return res
}
