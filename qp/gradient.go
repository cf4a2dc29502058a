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

package qp

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	innerIterations = 20000
	maxPenalty      = 1e6
)

// ProjectedGradient minimizes the quadratic program with accelerated projected gradient
// steps. The box and the first equality row are enforced exactly by projection; any
// remaining rows are handled with an augmented Lagrangian whose multipliers are
// updated between inner solves.
type ProjectedGradient struct {
	settings Settings
}

// hyperplane is the set aᵀx = b
type hyperplane struct {
	normal []float64
	rhs    float64
}

// penaltyRow is a constraint handled by the augmented Lagrangian
type penaltyRow struct {
	normal   []float64
	rhs      float64
	equality bool
}

// NewProjectedGradient creates an iterative projected-gradient solver
func NewProjectedGradient(settings Settings) *ProjectedGradient {
	return &ProjectedGradient{
		settings: settings.withDefaults(),
	}
}

// Name of the solver
func (pg *ProjectedGradient) Name() string {
	return ProjectedGradientSolver
}

// Solve the quadratic program
func (pg *ProjectedGradient) Solve(prob *Problem) (*Solution, error) {
	if err := prob.Validate(); err != nil {
		return nil, err
	}

	n := prob.Dim()
	lower := make([]float64, n)
	upper := make([]float64, n)
	for ii := 0; ii < n; ii++ {
		lower[ii] = prob.lower(ii)
		upper[ii] = prob.upper(ii)
	}

	var plane *hyperplane
	var rows []penaltyRow

	// bounds come last and are enforced by the projection
	for _, c := range buildConstraints(prob)[:numRows(prob.Aeq)+numRows(prob.Aineq)] {
		switch {
		case c.equality && plane == nil:
			plane = &hyperplane{normal: c.normal, rhs: c.rhs}
		default:
			rows = append(rows, penaltyRow{normal: c.normal, rhs: c.rhs, equality: c.equality})
		}
	}

	project := func(v []float64) ([]float64, error) {
		if plane == nil {
			return clip(v, lower, upper), nil
		}
		return plane.project(v, lower, upper, pg.settings.Tolerance)
	}

	x, err := project(make([]float64, n))
	if err != nil {
		return nil, err
	}

	curvature := mat.Norm(prob.P, 2)
	rowNorm := 0.0
	for _, row := range rows {
		rowNorm += floats.Dot(row.normal, row.normal)
	}

	tol := pg.settings.Tolerance
	mult := make([]float64, len(rows))
	rho := math.Max(1.0, curvature)
	prevViolation := math.Inf(1)
	iterations := 0

	for outer := 0; outer < pg.settings.MaxIterations; outer++ {
		lipschitz := curvature + rho*rowNorm
		if lipschitz == 0 {
			lipschitz = 1
		}

		grad := func(y []float64) []float64 {
			g := make([]float64, n)
			for ii := 0; ii < n; ii++ {
				val := prob.q(ii)
				for jj := 0; jj < n; jj++ {
					val += prob.P.At(ii, jj) * y[jj]
				}
				g[ii] = val
			}
			for kk, row := range rows {
				resid := floats.Dot(row.normal, y) - row.rhs
				var coef float64
				if row.equality {
					coef = mult[kk] + rho*resid
				} else {
					coef = -math.Max(0, mult[kk]-rho*resid)
				}
				floats.AddScaled(g, coef, row.normal)
			}
			return g
		}

		var converged bool
		var inner int
		x, inner, converged, err = accelerate(x, grad, project, lipschitz, tol)
		iterations += inner
		if err != nil {
			return nil, err
		}

		violation := 0.0
		for kk, row := range rows {
			resid := floats.Dot(row.normal, x) - row.rhs
			if row.equality {
				mult[kk] += rho * resid
				violation = math.Max(violation, math.Abs(resid))
			} else {
				mult[kk] = math.Max(0, mult[kk]-rho*resid)
				violation = math.Max(violation, -resid)
			}
		}

		if converged && violation <= tol*(1.0+maxAbs(x)) {
			return &Solution{
				X:          x,
				Objective:  prob.Objective(x),
				Iterations: iterations,
			}, nil
		}

		if len(rows) == 0 {
			break
		}

		if violation > 0.25*prevViolation {
			rho = math.Min(rho*4, maxPenalty)
		}
		prevViolation = violation
	}

	log.Debug().Int("Iterations", iterations).Float64("Penalty", rho).Msg("projected gradient did not converge")
	return nil, fmt.Errorf("%w: projected gradient exceeded %d iterations", ErrDidNotConverge, iterations)
}

// accelerate runs FISTA with gradient-based restarts from x until the gradient mapping
// is below tol
func accelerate(x []float64, grad func([]float64) []float64, project func([]float64) ([]float64, error), lipschitz, tol float64) ([]float64, int, bool, error) {
	n := len(x)
	prev := x
	y := make([]float64, n)
	copy(y, x)
	momentum := 1.0
	step := make([]float64, n)

	for iter := 1; iter <= innerIterations; iter++ {
		g := grad(y)
		floats.AddScaledTo(step, y, -1.0/lipschitz, g)
		next, err := project(step)
		if err != nil {
			return prev, iter, false, err
		}

		diff := 0.0
		for ii := range next {
			diff = math.Max(diff, math.Abs(next[ii]-y[ii]))
		}
		if diff <= tol*(1.0+maxAbs(next)) {
			return next, iter, true, nil
		}

		nextMomentum := (1.0 + math.Sqrt(1.0+4.0*momentum*momentum)) / 2.0

		// restart when the momentum direction opposes the last step
		restart := 0.0
		for ii := range next {
			restart += (y[ii] - next[ii]) * (next[ii] - prev[ii])
		}

		if restart > 0 {
			copy(y, next)
			nextMomentum = 1.0
		} else {
			beta := (momentum - 1.0) / nextMomentum
			for ii := range next {
				y[ii] = next[ii] + beta*(next[ii]-prev[ii])
			}
		}

		prev = next
		momentum = nextMomentum
	}

	return prev, innerIterations, false, nil
}

// project v onto {x : aᵀx = b, lower ≤ x ≤ upper}. The projection has the form
// x(τ) = clip(v - τa) where τ is the root of the non-increasing function aᵀx(τ) - b.
func (h *hyperplane) project(v, lower, upper []float64, tol float64) ([]float64, error) {
	at := func(tau float64) []float64 {
		shifted := make([]float64, len(v))
		floats.AddScaledTo(shifted, v, -tau, h.normal)
		return clip(shifted, lower, upper)
	}

	phi := func(tau float64) float64 {
		return floats.Dot(h.normal, at(tau)) - h.rhs
	}

	if floats.Norm(h.normal, math.Inf(1)) == 0 {
		if math.Abs(h.rhs) > tol {
			return nil, fmt.Errorf("%w: equality row is zero with non-zero rhs", ErrInfeasible)
		}
		return clip(v, lower, upper), nil
	}

	lo, hi := -1.0, 1.0
	for ii := 0; ii < 200 && phi(lo) < 0; ii++ {
		lo *= 2
	}
	for ii := 0; ii < 200 && phi(hi) > 0; ii++ {
		hi *= 2
	}

	if phi(lo) < -tol || phi(hi) > tol {
		return nil, fmt.Errorf("%w: no point inside the bounds satisfies the equality constraint", ErrInfeasible)
	}

	tau, err := fsolve(phi, lo, hi, 1e-15*math.Max(1.0, hi-lo))
	if err != nil {
		return nil, err
	}

	x := at(tau)

	// polish the residual on the coordinates that are not at a bound
	for round := 0; round < 3; round++ {
		resid := floats.Dot(h.normal, x) - h.rhs
		if resid == 0 {
			break
		}

		free := 0.0
		for ii := range x {
			if x[ii] > lower[ii] && x[ii] < upper[ii] {
				free += h.normal[ii] * h.normal[ii]
			}
		}
		if free == 0 {
			break
		}

		tau += resid / free
		x = at(tau)
	}

	return x, nil
}

func clip(v, lower, upper []float64) []float64 {
	res := make([]float64, len(v))
	for ii := range v {
		res[ii] = math.Min(math.Max(v[ii], lower[ii]), upper[ii])
	}
	return res
}

func maxAbs(x []float64) float64 {
	val := 0.0
	for _, xx := range x {
		val = math.Max(val, math.Abs(xx))
	}
	return val
}

func numRows(m *mat.Dense) int {
	if m == nil {
		return 0
	}
	r, _ := m.Dims()
	return r
}
