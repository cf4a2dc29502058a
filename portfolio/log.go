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
	"github.com/rs/zerolog"
)

func (perf Performance) MarshalZerologObject(e *zerolog.Event) {
	e.Float64("Return", perf.Return).Float64("Volatility", perf.Volatility).Float64("Sharpe", perf.Sharpe)
}

func (alloc *Allocation) MarshalZerologObject(e *zerolog.Event) {
	weights := zerolog.Dict()
	for asset, w := range alloc.Weights {
		weights.Float64(asset, w)
	}
	e.Str("Method", alloc.Method).
		Dict("Weights", weights).
		Object("Performance", alloc.Performance)
}

func (fp FrontierPoint) MarshalZerologObject(e *zerolog.Event) {
	e.Float64("TargetReturn", fp.TargetReturn).Float64("Volatility", fp.Volatility)
}

func (da *DiscreteAllocation) MarshalZerologObject(e *zerolog.Event) {
	shares := zerolog.Dict()
	for asset, n := range da.Shares {
		shares.Int(asset, n)
	}
	e.Dict("Shares", shares).Float64("Leftover", da.Leftover)
}
