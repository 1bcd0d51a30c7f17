// Package solver provides an exact 0/1 integer linear programming backend.
// Problems are built incrementally (binary variables plus equality and
// upper-bound constraints) and solved to proven optimality by branch and
// bound over an LP relaxation. Callers see only Problem and Solution; the
// underlying LP machinery stays inside this package.
package solver

import (
	"errors"
	"fmt"
)

var (
	// ErrInfeasible reports that no assignment satisfies all constraints.
	ErrInfeasible = errors.New("no feasible assignment exists")
	// ErrNodeLimit reports that the search exceeded its node budget.
	ErrNodeLimit = errors.New("branch and bound node limit exceeded")
)

// Sense is the direction of a linear constraint.
type Sense int

const (
	Equal Sense = iota
	AtMost
)

type constraint struct {
	vars   []int
	coeffs []float64
	sense  Sense
	rhs    float64
}

// Problem is a 0/1 maximization problem under construction. The zero value
// is ready to use.
type Problem struct {
	costs []float64
	cons  []constraint
}

func NewProblem() *Problem {
	return &Problem{}
}

// AddBinary adds a binary decision variable with the given objective
// coefficient and returns its index.
func (p *Problem) AddBinary(cost float64) int {
	p.costs = append(p.costs, cost)
	return len(p.costs) - 1
}

// NumVariables returns the number of decision variables added so far.
func (p *Problem) NumVariables() int {
	return len(p.costs)
}

// AddConstraint adds a linear constraint over the given variable indices.
// Indices and coefficients must be the same length and indices must refer to
// variables already added.
func (p *Problem) AddConstraint(vars []int, coeffs []float64, sense Sense, rhs float64) error {
	if len(vars) != len(coeffs) {
		return fmt.Errorf("constraint has %d variables but %d coefficients", len(vars), len(coeffs))
	}
	for _, v := range vars {
		if v < 0 || v >= len(p.costs) {
			return fmt.Errorf("constraint references unknown variable %d", v)
		}
	}
	vs := make([]int, len(vars))
	cs := make([]float64, len(coeffs))
	copy(vs, vars)
	copy(cs, coeffs)
	p.cons = append(p.cons, constraint{vars: vs, coeffs: cs, sense: sense, rhs: rhs})
	return nil
}

// Solution is a proven-optimal assignment of the problem's binary variables.
type Solution struct {
	Objective float64
	Nodes     int // search nodes explored

	x []bool
}

// Selected reports whether variable i takes value 1.
func (s *Solution) Selected(i int) bool {
	return s.x[i]
}
