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

// Package qp solves small dense convex quadratic programs of the form
//
//	minimize    ½ xᵀPx + qᵀx
//	subject to  Aeq·x  = beq
//	            Aineq·x ≥ bineq
//	            lower ≤ x ≤ upper
//
// Two interchangeable solvers are provided: an exact dual active-set method and an
// iterative projected-gradient method. Both are stateless between calls, so one Solver
// may be shared by concurrent callers.
package qp

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

const (
	ActiveSetSolver         = "active-set"
	ProjectedGradientSolver = "projected-gradient"
)

// Problem is a convex quadratic program. Aeq / Aineq may be nil when there are no
// constraints of that kind. Lower / Upper may be nil (unbounded) or contain ±Inf.
type Problem struct {
	P     *mat.SymDense
	Q     []float64
	Aeq   *mat.Dense
	Beq   []float64
	Aineq *mat.Dense
	Bineq []float64
	Lower []float64
	Upper []float64
}

// Solution of a quadratic program
type Solution struct {
	X          []float64
	Objective  float64
	Iterations int
}

// Settings shared by all solvers; zero values are replaced by defaults
type Settings struct {
	MaxIterations int
	Tolerance     float64
}

// Solver minimizes a quadratic program
type Solver interface {
	Name() string
	Solve(prob *Problem) (*Solution, error)
}

// DefaultSettings returns the settings used when a field is left at zero
func DefaultSettings() Settings {
	return Settings{
		MaxIterations: 1000,
		Tolerance:     1e-10,
	}
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.MaxIterations <= 0 {
		s.MaxIterations = def.MaxIterations
	}
	if s.Tolerance <= 0 {
		s.Tolerance = def.Tolerance
	}
	return s
}

// New creates the solver registered under kind
func New(kind string, settings Settings) (Solver, error) {
	switch strings.ToLower(kind) {
	case "", ActiveSetSolver:
		return NewActiveSet(settings), nil
	case ProjectedGradientSolver:
		return NewProjectedGradient(settings), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSolver, kind)
	}
}

// Dim returns the number of variables in the problem
func (prob *Problem) Dim() int {
	if prob.P == nil {
		return 0
	}
	n, _ := prob.P.Dims()
	return n
}

// Objective evaluates ½ xᵀPx + qᵀx
func (prob *Problem) Objective(x []float64) float64 {
	n := prob.Dim()
	val := 0.0
	for ii := 0; ii < n; ii++ {
		row := 0.0
		for jj := 0; jj < n; jj++ {
			row += prob.P.At(ii, jj) * x[jj]
		}
		val += 0.5 * x[ii] * row
		if prob.Q != nil {
			val += prob.Q[ii] * x[ii]
		}
	}
	return val
}

// Validate checks that every part of the problem has matching dimensions and that the
// box is not empty
func (prob *Problem) Validate() error {
	n := prob.Dim()
	if n == 0 {
		return fmt.Errorf("%w: problem has no variables", ErrDimensionMismatch)
	}

	if prob.Q != nil && len(prob.Q) != n {
		return fmt.Errorf("%w: q has length %d, expected %d", ErrDimensionMismatch, len(prob.Q), n)
	}

	if prob.Aeq != nil {
		r, c := prob.Aeq.Dims()
		if c != n || r != len(prob.Beq) {
			return fmt.Errorf("%w: Aeq is %dx%d with %d rhs values, expected %d columns", ErrDimensionMismatch, r, c, len(prob.Beq), n)
		}
	}

	if prob.Aineq != nil {
		r, c := prob.Aineq.Dims()
		if c != n || r != len(prob.Bineq) {
			return fmt.Errorf("%w: Aineq is %dx%d with %d rhs values, expected %d columns", ErrDimensionMismatch, r, c, len(prob.Bineq), n)
		}
	}

	if prob.Lower != nil && len(prob.Lower) != n {
		return fmt.Errorf("%w: lower has length %d, expected %d", ErrDimensionMismatch, len(prob.Lower), n)
	}

	if prob.Upper != nil && len(prob.Upper) != n {
		return fmt.Errorf("%w: upper has length %d, expected %d", ErrDimensionMismatch, len(prob.Upper), n)
	}

	for ii := 0; ii < n; ii++ {
		if prob.lower(ii) > prob.upper(ii) {
			return fmt.Errorf("%w: lower bound %.6f exceeds upper bound %.6f for variable %d", ErrInfeasible, prob.lower(ii), prob.upper(ii), ii)
		}
	}

	return nil
}

func (prob *Problem) lower(ii int) float64 {
	if prob.Lower == nil {
		return math.Inf(-1)
	}
	return prob.Lower[ii]
}

func (prob *Problem) upper(ii int) float64 {
	if prob.Upper == nil {
		return math.Inf(1)
	}
	return prob.Upper[ii]
}

func (prob *Problem) q(ii int) float64 {
	if prob.Q == nil {
		return 0
	}
	return prob.Q[ii]
}
