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
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(pricesCmd)
}

var pricesCmd = &cobra.Command{
	Use:   "prices [flags] [prices.csv]",
	Short: "Print the price history the optimizer would use",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runPrices(context.Background(), os.Stdout, args); err != nil {
			log.Fatal().Err(err).Msg("could not load price history")
		}
	},
}

// runPrices prints the cleaned and trimmed price table to w
func runPrices(ctx context.Context, w io.Writer, args []string) error {
	job, err := loadJobFlag()
	if err != nil {
		return err
	}

	path, err := priceFile(args, job)
	if err != nil {
		return err
	}

	prices, err := loadPrices(ctx, path)
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(w, prices.Table())
	return err
}
