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
	"errors"
	"fmt"

	"github.com/penny-vault/pv-optimizer/qp"
)

var (
	ErrInsufficientData       = errors.New("not enough price observations to estimate returns")
	ErrEmptyUniverse          = errors.New("asset universe is empty")
	ErrDivisionByZero         = errors.New("portfolio volatility is zero")
	ErrNegativeVariance       = errors.New("portfolio variance is negative")
	ErrInfeasibleProblem      = errors.New("optimization problem is infeasible")
	ErrSolverDivergence       = errors.New("solver did not converge")
	ErrDimensionMismatch      = errors.New("dimension mismatch")
	ErrDuplicateAsset         = errors.New("asset appears more than once in universe")
	ErrUnknownAsset           = errors.New("asset is not part of the universe")
	ErrDatesNotIncreasing     = errors.New("price dates are not strictly increasing")
	ErrMissingValues          = errors.New("price history contains missing values")
	ErrInvalidGridSize        = errors.New("frontier must have at least one point")
	ErrInvalidAllocationInput = errors.New("invalid discrete allocation input")
	ErrUnknownReturnModel     = errors.New("unknown return model")
	ErrUnknownSolver          = errors.New("unknown solver")
)

// solverError maps errors returned by the qp package onto the portfolio error taxonomy
func solverError(err error) error {
	switch {
	case errors.Is(err, qp.ErrInfeasible), errors.Is(err, qp.ErrNotPositiveDefinite):
		return fmt.Errorf("%w: %w", ErrInfeasibleProblem, err)
	case errors.Is(err, qp.ErrDidNotConverge):
		return fmt.Errorf("%w: %w", ErrSolverDivergence, err)
	case errors.Is(err, qp.ErrDimensionMismatch):
		return fmt.Errorf("%w: %w", ErrDimensionMismatch, err)
	case errors.Is(err, qp.ErrUnknownSolver):
		return fmt.Errorf("%w: %w", ErrUnknownSolver, err)
	default:
		return err
	}
}
