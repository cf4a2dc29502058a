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

package portfolio

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/penny-vault/pv-optimizer/common"
)

// DiscreteAllocation is a whole number of shares per asset plus the cash left over
type DiscreteAllocation struct {
	Shares   map[string]int `json:"shares"`
	Leftover float64        `json:"leftover"`
}

// GreedyAllocation converts weights into whole shares for a portfolio worth totalValue.
// First every asset gets as many shares as fit inside its target value (largest weight
// first), then single shares are bought for whichever affordable asset is furthest below
// its target until nothing more can be bought. Assets with non-positive weight get no
// shares.
func GreedyAllocation(weights map[string]float64, latestPrices map[string]float64, totalValue float64) (*DiscreteAllocation, error) {
	if totalValue <= 0 || math.IsNaN(totalValue) || math.IsInf(totalValue, 0) {
		return nil, fmt.Errorf("%w: total value %g must be positive", ErrInvalidAllocationInput, totalValue)
	}

	pairs := make(common.PairList, 0, len(weights))
	for asset, w := range weights {
		if w <= 0 {
			continue
		}
		price, ok := latestPrices[asset]
		if !ok || price <= 0 || math.IsNaN(price) {
			return nil, fmt.Errorf("%w: no usable price for %s", ErrInvalidAllocationInput, asset)
		}
		pairs = append(pairs, common.Pair{Key: asset, Value: w})
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
	sort.Stable(sort.Reverse(pairs))

	alloc := &DiscreteAllocation{
		Shares: make(map[string]int, len(pairs)),
	}
	available := totalValue

	for _, pair := range pairs {
		price := latestPrices[pair.Key]
		shares := int(math.Floor(pair.Value * totalValue / price))
		if cost := float64(shares) * price; cost > available {
			shares = int(math.Floor(available / price))
		}
		alloc.Shares[pair.Key] = shares
		available -= float64(shares) * price
	}

	for {
		best := -1
		bestDeficit := 0.0
		for idx, pair := range pairs {
			price := latestPrices[pair.Key]
			if price > available {
				continue
			}
			deficit := pair.Value - float64(alloc.Shares[pair.Key])*price/totalValue
			if deficit > bestDeficit {
				best = idx
				bestDeficit = deficit
			}
		}

		if best == -1 {
			break
		}

		asset := pairs[best].Key
		alloc.Shares[asset]++
		available -= latestPrices[asset]
	}

	for asset, n := range alloc.Shares {
		if n == 0 {
			delete(alloc.Shares, asset)
		}
	}
	alloc.Leftover = available

	log.Debug().Object("DiscreteAllocation", alloc).Float64("TotalValue", totalValue).Msg("computed discrete allocation")
	return alloc, nil
}
