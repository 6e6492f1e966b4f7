package anyctc

// EditDistance computes the Levenshtein distance between
// two labelings, counting insertions, deletions, and
// substitutions as one edit each.
func EditDistance(a, b []int) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(a); i++ {
		diag := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			next := diag
			if a[i-1] != b[j-1] {
				next = 1 + minInt(diag, minInt(row[j], row[j-1]))
			}
			diag = row[j]
			row[j] = next
		}
	}
	return row[len(b)]
}

// ErrorRate computes the label error rate of hypotheses
// against references: the total edit distance divided by
// the total reference length.
//
// Symbols listed in ignore are removed from both sides
// before scoring.
// If the references are all empty, the result is 0 when
// the hypotheses are also empty and 1 otherwise.
func ErrorRate(hyps, refs [][]int, ignore ...int) float64 {
	if len(hyps) != len(refs) {
		panic("hypothesis and reference counts differ")
	}
	var edits, total int
	for i, ref := range refs {
		ref = removeSymbols(ref, ignore)
		hyp := removeSymbols(hyps[i], ignore)
		edits += EditDistance(hyp, ref)
		total += len(ref)
	}
	if total == 0 {
		if edits == 0 {
			return 0
		}
		return 1
	}
	return float64(edits) / float64(total)
}

func removeSymbols(label, ignore []int) []int {
	if len(ignore) == 0 {
		return label
	}
	res := make([]int, 0, len(label))
	for _, x := range label {
		if !containsInt(ignore, x) {
			res = append(res, x)
		}
	}
	return res
}

func containsInt(list []int, x int) bool {
	for _, y := range list {
		if y == x {
			return true
		}
	}
	return false
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
