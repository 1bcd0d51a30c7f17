package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaximize_PicksBestUnderEquality(t *testing.T) {
	p := NewProblem()
	costs := []float64{5, 4, 3, 1}
	for _, cost := range costs {
		p.AddBinary(cost)
	}

	// Exactly two variables must be selected.
	err := p.AddConstraint([]int{0, 1, 2, 3}, []float64{1, 1, 1, 1}, Equal, 2)
	require.NoError(t, err)

	sol, err := NewBranchBound().Maximize(p)
	require.NoError(t, err)

	assert.InDelta(t, 9.0, sol.Objective, 1e-6)
	assert.True(t, sol.Selected(0))
	assert.True(t, sol.Selected(1))
	assert.False(t, sol.Selected(2))
	assert.False(t, sol.Selected(3))
}

func TestMaximize_AtMostBindsSelection(t *testing.T) {
	p := NewProblem()
	for _, cost := range []float64{10, 8, 6} {
		p.AddBinary(cost)
	}

	err := p.AddConstraint([]int{0, 1, 2}, []float64{1, 1, 1}, AtMost, 2)
	require.NoError(t, err)

	sol, err := NewBranchBound().Maximize(p)
	require.NoError(t, err)

	assert.InDelta(t, 18.0, sol.Objective, 1e-6)
	assert.True(t, sol.Selected(0))
	assert.True(t, sol.Selected(1))
	assert.False(t, sol.Selected(2))
}

func TestMaximize_DisjointGroups(t *testing.T) {
	// Two groups of three, exactly one from each, with an overall cap that
	// never binds. Mirrors a small quota problem.
	p := NewProblem()
	costs := []float64{3, 7, 5, 2, 9, 4}
	for _, cost := range costs {
		p.AddBinary(cost)
	}

	require.NoError(t, p.AddConstraint([]int{0, 1, 2}, []float64{1, 1, 1}, Equal, 1))
	require.NoError(t, p.AddConstraint([]int{3, 4, 5}, []float64{1, 1, 1}, Equal, 1))
	require.NoError(t, p.AddConstraint([]int{0, 1, 2, 3, 4, 5}, []float64{1, 1, 1, 1, 1, 1}, AtMost, 4))

	sol, err := NewBranchBound().Maximize(p)
	require.NoError(t, err)

	assert.InDelta(t, 16.0, sol.Objective, 1e-6)
	assert.True(t, sol.Selected(1), "highest scorer of the first group")
	assert.True(t, sol.Selected(4), "highest scorer of the second group")
}

func TestMaximize_BranchesOnFractionalRelaxation(t *testing.T) {
	// Odd-cycle packing: the LP relaxation sits at x=(0.5,0.5,0.5) with
	// value 1.5, so the search must branch to prove the integral optimum 1.
	p := NewProblem()
	for i := 0; i < 3; i++ {
		p.AddBinary(1)
	}

	require.NoError(t, p.AddConstraint([]int{0, 1}, []float64{1, 1}, AtMost, 1))
	require.NoError(t, p.AddConstraint([]int{1, 2}, []float64{1, 1}, AtMost, 1))
	require.NoError(t, p.AddConstraint([]int{0, 2}, []float64{1, 1}, AtMost, 1))

	sol, err := NewBranchBound().Maximize(p)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, sol.Objective, 1e-6)
	assert.Greater(t, sol.Nodes, 1, "fractional root must force branching")

	selected := 0
	for i := 0; i < 3; i++ {
		if sol.Selected(i) {
			selected++
		}
	}
	assert.Equal(t, 1, selected)
}

func TestMaximize_Infeasible(t *testing.T) {
	p := NewProblem()
	p.AddBinary(1)

	// A single binary variable cannot sum to 2.
	require.NoError(t, p.AddConstraint([]int{0}, []float64{1}, Equal, 2))

	sol, err := NewBranchBound().Maximize(p)
	assert.Nil(t, sol)
	assert.ErrorIs(t, err, ErrInfeasible)
}

func TestMaximize_NodeLimit(t *testing.T) {
	p := NewProblem()
	for i := 0; i < 3; i++ {
		p.AddBinary(1)
	}
	require.NoError(t, p.AddConstraint([]int{0, 1}, []float64{1, 1}, AtMost, 1))
	require.NoError(t, p.AddConstraint([]int{1, 2}, []float64{1, 1}, AtMost, 1))
	require.NoError(t, p.AddConstraint([]int{0, 2}, []float64{1, 1}, AtMost, 1))

	bb := &BranchBound{NodeLimit: 1}
	_, err := bb.Maximize(p)
	assert.ErrorIs(t, err, ErrNodeLimit)
}

func TestAddConstraint_Validation(t *testing.T) {
	p := NewProblem()
	p.AddBinary(1)

	err := p.AddConstraint([]int{0}, []float64{1, 1}, Equal, 1)
	assert.Error(t, err, "coefficient count must match variable count")

	err = p.AddConstraint([]int{5}, []float64{1}, Equal, 1)
	assert.Error(t, err, "unknown variable index must be rejected")
}

func TestMaximize_DeterministicAcrossRuns(t *testing.T) {
	build := func() *Problem {
		p := NewProblem()
		for _, cost := range []float64{4, 4, 4, 2} {
			p.AddBinary(cost)
		}
		// Three equally good selections exist; one process must settle on one.
		_ = p.AddConstraint([]int{0, 1, 2, 3}, []float64{1, 1, 1, 1}, Equal, 2)
		return p
	}

	first, err := NewBranchBound().Maximize(build())
	require.NoError(t, err)
	second, err := NewBranchBound().Maximize(build())
	require.NoError(t, err)

	assert.Equal(t, first.Objective, second.Objective)
	for i := 0; i < 4; i++ {
		assert.Equal(t, first.Selected(i), second.Selected(i), "variable %d", i)
	}
}
