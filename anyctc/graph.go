package anyctc

import "fmt"

// A Graph is the alignment lattice for a label.
//
// The nodes are the label with a blank inserted at the
// start, at the end, and between every pair of entries:
//
//	blank, l[0], blank, l[1], ..., l[n-1], blank
//
// A path through the graph stays on a node, moves to the
// next node, or skips a blank between two different
// labels.
// Every path from a start node to a final node collapses
// to the label.
type Graph struct {
	Label []int
	Blank int
}

// LabelsToGraph builds the alignment graph for a label.
//
// The label is copied, so the caller may reuse it.
func LabelsToGraph(label []int, blank int) (*Graph, error) {
	if blank < 0 {
		return nil, fmt.Errorf("labels to graph: invalid blank index %d", blank)
	}
	for i, x := range label {
		if x < 0 || x == blank {
			return nil, fmt.Errorf("labels to graph: invalid symbol %d at position %d", x, i)
		}
	}
	return &Graph{
		Label: append([]int{}, label...),
		Blank: blank,
	}, nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.Label)*2 + 1
}

// Symbol returns the symbol emitted by node s.
func (g *Graph) Symbol(s int) int {
	if s%2 == 0 {
		return g.Blank
	}
	return g.Label[s/2]
}

// IsBlank checks if node s is a blank node.
func (g *Graph) IsBlank(s int) bool {
	return s%2 == 0
}

// Skippable checks if node s may be entered directly from
// node s-2, skipping the blank in between.
func (g *Graph) Skippable(s int) bool {
	if g.IsBlank(s) || s < 2 {
		return false
	}
	return g.Label[s/2] != g.Label[s/2-1]
}

// IsStart checks if a path may begin at node s.
func (g *Graph) IsStart(s int) bool {
	return s == 0 || (s == 1 && len(g.Label) > 0)
}

// IsFinal checks if a path may end at node s.
func (g *Graph) IsFinal(s int) bool {
	n := g.Len()
	return s == n-1 || (s == n-2 && len(g.Label) > 0)
}

// MinFrames returns the fewest frames over which the label
// can be aligned.
// Adjacent repeated labels need a blank between them.
func (g *Graph) MinFrames() int {
	res := len(g.Label)
	for i := 1; i < len(g.Label); i++ {
		if g.Label[i] == g.Label[i-1] {
			res++
		}
	}
	return res
}

// MaxSymbol returns the largest symbol in the graph,
// including the blank.
func (g *Graph) MaxSymbol() int {
	res := g.Blank
	for _, x := range g.Label {
		if x > res {
			res = x
		}
	}
	return res
}
