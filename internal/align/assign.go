package align

import (
	"math"
	"sort"
)

// Pair is one row/column assignment from a bipartite matching. Rows index
// predicted elements, columns index gold elements.
type Pair struct {
	Row int
	Col int
}

// MaxWeight solves the assignment problem exactly on a rectangular weight
// matrix, maximizing total weight. Every row (or every column, whichever
// side is smaller) receives an assignment; callers filter out pairs whose
// weight does not qualify as a match. Pairs are returned in row order.
func MaxWeight(w [][]float64) []Pair {
	n := len(w)
	if n == 0 {
		return nil
	}
	m := len(w[0])
	if m == 0 {
		return nil
	}
	maxW := w[0][0]
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			if w[i][j] > maxW {
				maxW = w[i][j]
			}
		}
	}
	cost := make([][]float64, n)
	for i := 0; i < n; i++ {
		cost[i] = make([]float64, m)
		for j := 0; j < m; j++ {
			cost[i][j] = maxW - w[i][j]
		}
	}
	return minCost(cost)
}

// minCost is the Hungarian algorithm (potentials formulation) for a
// rectangular min-cost assignment. The inner routine assumes at least as
// many columns as rows; taller matrices are transposed first.
func minCost(cost [][]float64) []Pair {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	if m == 0 {
		return nil
	}
	transposed := false
	if n > m {
		t := make([][]float64, m)
		for j := 0; j < m; j++ {
			t[j] = make([]float64, n)
			for i := 0; i < n; i++ {
				t[j][i] = cost[i][j]
			}
		}
		cost = t
		n, m = m, n
		transposed = true
	}

	// 1-indexed potentials; p[j] is the row matched to column j.
	u := make([]float64, n+1)
	v := make([]float64, m+1)
	p := make([]int, m+1)
	way := make([]int, m+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, m+1)
		used := make([]bool, m+1)
		for j := range minv {
			minv[j] = math.Inf(1)
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := math.Inf(1)
			j1 := 0
			for j := 1; j <= m; j++ {
				if used[j] {
					continue
				}
				cur := cost[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= m; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		for {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
			if j0 == 0 {
				break
			}
		}
	}

	var pairs []Pair
	for j := 1; j <= m; j++ {
		if p[j] == 0 {
			continue
		}
		if transposed {
			pairs = append(pairs, Pair{Row: j - 1, Col: p[j] - 1})
		} else {
			pairs = append(pairs, Pair{Row: p[j] - 1, Col: j - 1})
		}
	}
	sort.Slice(pairs, func(a, b int) bool { return pairs[a].Row < pairs[b].Row })
	return pairs
}

// Greedy repeatedly picks the highest-weight unmatched pair at or above
// threshold until no pair qualifies. Ties break to the lower column (gold)
// index, then the lower row (predicted) index, so the matching is fully
// deterministic.
func Greedy(w [][]float64, threshold float64) []Pair {
	n := len(w)
	if n == 0 {
		return nil
	}
	m := len(w[0])
	if m == 0 {
		return nil
	}
	rowDone := make([]bool, n)
	colDone := make([]bool, m)
	var pairs []Pair
	for {
		best := -1.0
		bi, bj := -1, -1
		for j := 0; j < m; j++ {
			if colDone[j] {
				continue
			}
			for i := 0; i < n; i++ {
				if rowDone[i] {
					continue
				}
				if w[i][j] > best {
					best = w[i][j]
					bi, bj = i, j
				}
			}
		}
		if bi < 0 || best < threshold {
			break
		}
		rowDone[bi] = true
		colDone[bj] = true
		pairs = append(pairs, Pair{Row: bi, Col: bj})
	}
	sort.Slice(pairs, func(a, b int) bool { return pairs[a].Row < pairs[b].Row })
	return pairs
}
