package solver

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	defaultNodeLimit = 100000

	// intTol decides when a relaxed value counts as integral.
	intTol = 1e-6
	// boundTol guards incumbent comparisons against LP round-off.
	boundTol = 1e-9
)

const free = int8(-1)

// BranchBound solves 0/1 problems exactly by branching on fractional
// variables of the LP relaxation. Selection problems of this shape almost
// always relax to an integral vertex, so the tree rarely grows beyond the
// root, but branching keeps the optimality guarantee unconditional.
type BranchBound struct {
	// NodeLimit caps the number of search nodes. Zero means the default.
	NodeLimit int
}

func NewBranchBound() *BranchBound {
	return &BranchBound{NodeLimit: defaultNodeLimit}
}

// Maximize returns a proven-optimal assignment for p, ErrInfeasible when no
// assignment satisfies the constraints, or ErrNodeLimit if the search budget
// runs out.
func (bb *BranchBound) Maximize(p *Problem) (*Solution, error) {
	n := len(p.costs)
	limit := bb.NodeLimit
	if limit <= 0 {
		limit = defaultNodeLimit
	}

	root := make([]int8, n)
	for i := range root {
		root[i] = free
	}
	stack := [][]int8{root}

	var best []bool
	bestObj := math.Inf(-1)
	nodes := 0

	for len(stack) > 0 {
		fixed := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		nodes++
		if nodes > limit {
			return nil, ErrNodeLimit
		}

		relax, feasible, err := bb.relax(p, fixed)
		if err != nil {
			return nil, err
		}
		if !feasible {
			continue
		}
		if best != nil && relax.objective <= bestObj+boundTol {
			// The relaxation bounds every completion of this branch.
			continue
		}

		branch := fractionalVariable(relax.x, fixed)
		if branch < 0 {
			if relax.objective > bestObj {
				bestObj = relax.objective
				best = roundedCopy(relax.x)
			}
			continue
		}

		zero := append([]int8(nil), fixed...)
		one := append([]int8(nil), fixed...)
		zero[branch] = 0
		one[branch] = 1
		// Explore the side the relaxation leans toward first.
		if relax.x[branch] >= 0.5 {
			stack = append(stack, zero, one)
		} else {
			stack = append(stack, one, zero)
		}
	}

	if best == nil {
		return nil, ErrInfeasible
	}
	return &Solution{Objective: bestObj, Nodes: nodes, x: best}, nil
}

type relaxation struct {
	objective float64
	x         []float64 // per problem variable, fixed variables carry their value
}

type reducedRow struct {
	vars   []int // local column indices
	coeffs []float64
	sense  Sense
	rhs    float64
}

// relax solves the LP relaxation of p with the given variables fixed. The
// second return value is false when the node is infeasible.
func (bb *BranchBound) relax(p *Problem, fixed []int8) (relaxation, bool, error) {
	n := len(p.costs)

	freeVars := make([]int, 0, n)
	local := make([]int, n)
	fixedObj := 0.0
	for i := 0; i < n; i++ {
		local[i] = -1
		switch fixed[i] {
		case free:
			local[i] = len(freeVars)
			freeVars = append(freeVars, i)
		case 1:
			fixedObj += p.costs[i]
		}
	}

	// Substitute fixed variables into each constraint. Rows left with no
	// free variables are decided here; contradicted rows kill the node.
	rows := make([]reducedRow, 0, len(p.cons))
	for _, con := range p.cons {
		r := reducedRow{sense: con.sense, rhs: con.rhs}
		for k, v := range con.vars {
			switch fixed[v] {
			case free:
				r.vars = append(r.vars, local[v])
				r.coeffs = append(r.coeffs, con.coeffs[k])
			case 1:
				r.rhs -= con.coeffs[k]
			}
		}
		if len(r.vars) == 0 {
			if r.sense == Equal && math.Abs(r.rhs) > intTol {
				return relaxation{}, false, nil
			}
			if r.sense == AtMost && r.rhs < -intTol {
				return relaxation{}, false, nil
			}
			continue
		}
		rows = append(rows, r)
	}

	nf := len(freeVars)
	if nf == 0 {
		x := make([]float64, n)
		for i := 0; i < n; i++ {
			if fixed[i] == 1 {
				x[i] = 1
			}
		}
		return relaxation{objective: fixedObj, x: x}, true, nil
	}

	nLE := 0
	for _, r := range rows {
		if r.sense == AtMost {
			nLE++
		}
	}

	// Standard form layout: free variable columns, then one slack per x<=1
	// bound, then one slack per remaining AtMost row.
	cols := 2*nf + nLE
	nRows := len(rows) + nf

	c := make([]float64, cols)
	for j, v := range freeVars {
		c[j] = -p.costs[v] // the simplex minimizes
	}

	a := mat.NewDense(nRows, cols, nil)
	b := make([]float64, nRows)

	le := 0
	for ri, r := range rows {
		for k, j := range r.vars {
			a.Set(ri, j, r.coeffs[k])
		}
		if r.sense == AtMost {
			a.Set(ri, 2*nf+le, 1)
			le++
		}
		b[ri] = r.rhs
	}
	for j := 0; j < nf; j++ {
		a.Set(len(rows)+j, j, 1)
		a.Set(len(rows)+j, nf+j, 1)
		b[len(rows)+j] = 1
	}

	optF, optX, err := lp.Simplex(c, a, b, 0, nil)
	if err != nil {
		if errors.Is(err, lp.ErrInfeasible) {
			return relaxation{}, false, nil
		}
		return relaxation{}, false, fmt.Errorf("lp relaxation failed: %w", err)
	}

	x := make([]float64, n)
	for i := 0; i < n; i++ {
		if fixed[i] == 1 {
			x[i] = 1
		}
	}
	for j, v := range freeVars {
		x[v] = clamp01(optX[j])
	}
	return relaxation{objective: fixedObj - optF, x: x}, true, nil
}

// fractionalVariable picks the most fractional free variable, lowest index
// on ties, or -1 when the assignment is integral.
func fractionalVariable(x []float64, fixed []int8) int {
	branch := -1
	worst := intTol
	for i, v := range x {
		if fixed[i] != free {
			continue
		}
		frac := math.Abs(v - math.Round(v))
		if frac > worst {
			worst = frac
			branch = i
		}
	}
	return branch
}

func roundedCopy(x []float64) []bool {
	out := make([]bool, len(x))
	for i, v := range x {
		out[i] = v > 0.5
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
