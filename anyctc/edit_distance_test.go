package anyctc

import (
	"math"
	"testing"
)

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b     []int
		expected int
	}{
		{nil, nil, 0},
		{[]int{1, 2, 3}, nil, 3},
		{nil, []int{4}, 1},
		{[]int{1, 2, 3}, []int{1, 2, 3}, 0},
		{[]int{1, 2, 3}, []int{1, 3}, 1},
		{[]int{1, 3}, []int{1, 2, 3}, 1},
		{[]int{1, 2, 3}, []int{1, 4, 3}, 1},
		{[]int{5, 1, 2}, []int{1, 2, 6}, 2},
		{[]int{1, 2, 3, 4}, []int{4, 3, 2, 1}, 4},
	}
	for _, test := range tests {
		if actual := EditDistance(test.a, test.b); actual != test.expected {
			t.Errorf("%v vs %v: expected %d but got %d", test.a, test.b, test.expected, actual)
		}
	}
}

func TestErrorRate(t *testing.T) {
	hyps := [][]int{{1, 2, 3}, {7, 4}}
	refs := [][]int{{1, 3}, {4, 5, 6}}
	// One edit for the first pair and three for the second,
	// over five reference symbols.
	if rate := ErrorRate(hyps, refs); math.Abs(rate-4.0/5) > 1e-8 {
		t.Errorf("expected 0.8 but got %f", rate)
	}

	// Ignoring 7 removes one of the errors.
	if rate := ErrorRate(hyps, refs, 7); math.Abs(rate-3.0/5) > 1e-8 {
		t.Errorf("expected 0.6 but got %f", rate)
	}

	if rate := ErrorRate([][]int{{}}, [][]int{{}}); rate != 0 {
		t.Errorf("expected 0 but got %f", rate)
	}
	if rate := ErrorRate([][]int{{1}}, [][]int{{}}); rate != 1 {
		t.Errorf("expected 1 but got %f", rate)
	}
}
