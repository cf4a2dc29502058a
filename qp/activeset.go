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
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// relative size of the diagonal shift tried when P is only positive semi-definite
	ridgeScale = 1e-10

	// z'n below this fraction of n'G⁻¹n means n is spanned by the active normals
	dependenceTol = 1e-12
)

// constraint is a single linear constraint normalᵀx ≥ rhs (or = rhs for equalities)
type constraint struct {
	normal   []float64
	rhs      float64
	equality bool
}

// ActiveSet is the dual active-set method of Goldfarb and Idnani. It starts from the
// unconstrained minimum and adds violated constraints one at a time while keeping the
// multipliers dual feasible, so no feasible starting point is required and an empty
// feasible region is detected exactly. P must be positive definite; a positive
// semi-definite P is shifted by a tiny ridge.
type ActiveSet struct {
	settings Settings
}

// NewActiveSet creates an exact dual active-set solver
func NewActiveSet(settings Settings) *ActiveSet {
	return &ActiveSet{
		settings: settings.withDefaults(),
	}
}

// Name of the solver
func (as *ActiveSet) Name() string {
	return ActiveSetSolver
}

// Solve the quadratic program
func (as *ActiveSet) Solve(prob *Problem) (*Solution, error) {
	if err := prob.Validate(); err != nil {
		return nil, err
	}

	n := prob.Dim()
	chol, err := factorize(prob.P)
	if err != nil {
		return nil, err
	}

	constraints := buildConstraints(prob)
	tol := as.settings.Tolerance

	// unconstrained minimum x = -P⁻¹q
	negQ := make([]float64, n)
	for ii := range negQ {
		negQ[ii] = -prob.q(ii)
	}
	x, err := cholSolve(chol, negQ)
	if err != nil {
		return nil, err
	}

	var (
		active   []int       // indices of active constraints
		normals  [][]float64 // normals of active constraints (equalities may be flipped)
		mult     []float64   // multipliers of active constraints
		isActive = make([]bool, len(constraints))
		skipped  = make([]bool, len(constraints))
		iter     int
	)

	drop := func(k int) {
		isActive[active[k]] = false
		active = append(active[:k], active[k+1:]...)
		normals = append(normals[:k], normals[k+1:]...)
		mult = append(mult[:k], mult[k+1:]...)
	}

	for {
		// Step 1: pick a constraint to add. Equalities go first, then the most violated inequality.
		p := -1
		for idx, c := range constraints {
			if c.equality && !isActive[idx] && !skipped[idx] {
				p = idx
				break
			}
		}

		if p == -1 {
			worst := 0.0
			for idx, c := range constraints {
				if c.equality || isActive[idx] {
					continue
				}
				s := (floats.Dot(c.normal, x) - c.rhs) / (1.0 + math.Abs(c.rhs))
				if s < -tol && s < worst {
					worst = s
					p = idx
				}
			}
		}

		if p == -1 {
			break
		}

		np := constraints[p].normal
		bp := constraints[p].rhs
		if constraints[p].equality && floats.Dot(np, x)-bp > 0 {
			np = make([]float64, n)
			floats.ScaleTo(np, -1, constraints[p].normal)
			bp = -bp
		}

		// Step 2: move towards satisfying constraint p
		multP := 0.0
		for {
			iter++
			if iter > as.settings.MaxIterations {
				log.Debug().Int("Iterations", iter).Int("NumActive", len(active)).Msg("active-set iteration budget exhausted")
				return nil, fmt.Errorf("%w: active-set exceeded %d iterations", ErrDidNotConverge, as.settings.MaxIterations)
			}

			z, r, gnp, err := direction(chol, normals, np)
			if err != nil {
				return nil, err
			}

			sp := floats.Dot(np, x) - bp
			zn := floats.Dot(z, np)
			dependent := zn <= dependenceTol*gnp

			if dependent && constraints[p].equality && math.Abs(sp) <= tol*(1.0+math.Abs(bp)) {
				// redundant equality that is already satisfied
				skipped[p] = true
				break
			}

			// partial (dual) step length: largest step keeping inequality multipliers non-negative
			t1 := math.Inf(1)
			k := -1
			for jj := range active {
				if constraints[active[jj]].equality {
					continue
				}
				if r[jj] > 0 {
					if t := mult[jj] / r[jj]; t < t1 {
						t1 = t
						k = jj
					}
				}
			}

			// full (primal) step length
			t2 := math.Inf(1)
			if !dependent {
				t2 = -sp / zn
			}

			if math.IsInf(t1, 1) && math.IsInf(t2, 1) {
				return nil, fmt.Errorf("%w: constraint %d cannot be satisfied", ErrInfeasible, p)
			}

			if math.IsInf(t2, 1) {
				// dual step only
				for jj := range mult {
					mult[jj] -= t1 * r[jj]
				}
				multP += t1
				drop(k)
				continue
			}

			t := math.Min(t1, t2)
			floats.AddScaled(x, t, z)
			for jj := range mult {
				mult[jj] -= t * r[jj]
			}
			multP += t

			if t2 <= t1 {
				active = append(active, p)
				normals = append(normals, np)
				mult = append(mult, multP)
				isActive[p] = true
				break
			}

			drop(k)
		}
	}

	return &Solution{
		X:          x,
		Objective:  prob.Objective(x),
		Iterations: iter,
	}, nil
}

// direction computes the primal step z = H n and the dual step r = N* n for the current
// active normals N, where H = G⁻¹ - G⁻¹N(NᵀG⁻¹N)⁻¹NᵀG⁻¹ and N* = (NᵀG⁻¹N)⁻¹NᵀG⁻¹. It also
// returns nᵀG⁻¹n which is used to scale the linear dependence test.
func direction(chol *mat.Cholesky, normals [][]float64, np []float64) (z, r []float64, gnp float64, err error) {
	z, err = cholSolve(chol, np)
	if err != nil {
		return nil, nil, 0, err
	}
	gnp = floats.Dot(z, np)

	m := len(normals)
	if m == 0 {
		return z, nil, gnp, nil
	}

	gin := make([][]float64, m)
	for jj, nj := range normals {
		if gin[jj], err = cholSolve(chol, nj); err != nil {
			return nil, nil, 0, err
		}
	}

	lhs := mat.NewDense(m, m, nil)
	rhs := mat.NewVecDense(m, nil)
	for ii := 0; ii < m; ii++ {
		for jj := 0; jj < m; jj++ {
			lhs.Set(ii, jj, floats.Dot(normals[ii], gin[jj]))
		}
		rhs.SetVec(ii, floats.Dot(gin[ii], np))
	}

	sol := mat.NewVecDense(m, nil)
	if err := sol.SolveVec(lhs, rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, nil, 0, fmt.Errorf("%w: active constraint normals are dependent: %s", ErrDidNotConverge, err.Error())
		}
	}

	r = make([]float64, m)
	for jj := range r {
		r[jj] = sol.AtVec(jj)
		floats.AddScaled(z, -r[jj], gin[jj])
	}

	return z, r, gnp, nil
}

// factorize computes the Cholesky decomposition of p, shifting the diagonal by a tiny
// ridge when p is only positive semi-definite
func factorize(p *mat.SymDense) (*mat.Cholesky, error) {
	var chol mat.Cholesky
	if chol.Factorize(p) {
		return &chol, nil
	}

	n, _ := p.Dims()
	maxDiag := 0.0
	for ii := 0; ii < n; ii++ {
		maxDiag = math.Max(maxDiag, math.Abs(p.At(ii, ii)))
	}
	ridge := ridgeScale * math.Max(maxDiag, 1e-12)

	shifted := mat.NewSymDense(n, nil)
	for ii := 0; ii < n; ii++ {
		for jj := ii; jj < n; jj++ {
			shifted.SetSym(ii, jj, p.At(ii, jj))
		}
		shifted.SetSym(ii, ii, p.At(ii, ii)+ridge)
	}

	if chol.Factorize(shifted) {
		log.Debug().Float64("Ridge", ridge).Msg("quadratic term is singular; solving with diagonal ridge")
		return &chol, nil
	}

	return nil, ErrNotPositiveDefinite
}

func cholSolve(chol *mat.Cholesky, b []float64) ([]float64, error) {
	dst := mat.NewVecDense(len(b), nil)
	if err := chol.SolveVecTo(dst, mat.NewVecDense(len(b), b)); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, fmt.Errorf("%w: %s", ErrNotPositiveDefinite, err.Error())
		}
	}
	return dst.RawVector().Data, nil
}

// buildConstraints converts equality rows, inequality rows and finite bounds into a
// single list of constraints of the form nᵀx ≥ b (or = b)
func buildConstraints(prob *Problem) []constraint {
	n := prob.Dim()
	constraints := make([]constraint, 0, 2*n+2)

	if prob.Aeq != nil {
		rows, _ := prob.Aeq.Dims()
		for ii := 0; ii < rows; ii++ {
			normal := make([]float64, n)
			mat.Row(normal, ii, prob.Aeq)
			constraints = append(constraints, constraint{normal: normal, rhs: prob.Beq[ii], equality: true})
		}
	}

	if prob.Aineq != nil {
		rows, _ := prob.Aineq.Dims()
		for ii := 0; ii < rows; ii++ {
			normal := make([]float64, n)
			mat.Row(normal, ii, prob.Aineq)
			constraints = append(constraints, constraint{normal: normal, rhs: prob.Bineq[ii]})
		}
	}

	for ii := 0; ii < n; ii++ {
		if lower := prob.lower(ii); !math.IsInf(lower, -1) {
			normal := make([]float64, n)
			normal[ii] = 1
			constraints = append(constraints, constraint{normal: normal, rhs: lower})
		}
		if upper := prob.upper(ii); !math.IsInf(upper, 1) {
			normal := make([]float64, n)
			normal[ii] = -1
			constraints = append(constraints, constraint{normal: normal, rhs: -upper})
		}
	}

	return constraints
}
