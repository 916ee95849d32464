package tracking

import "math"

// Forbidden marks a cost matrix cell the solver must never select. NaN and
// infinite cells are treated the same way.
const Forbidden float32 = 1e18

func allowed(cost float32) bool {
	return cost < Forbidden && !math.IsInf(float64(cost), -1)
}

// HungarianAssign solves the rectangular assignment problem for an n×m cost
// matrix with the Kuhn-Munkres algorithm (potentials form, O(n³)).
//
// Arguments:
//   - cost: Row-major cost matrix; cells ≥ Forbidden are never assigned.
//
// The result uses as many allowed cells as possible and, among those
// assignments, has the lowest total cost.
//
// Returns:
//   - assignment[i] = column assigned to row i, or -1 if row i is unassigned.
func HungarianAssign(cost [][]float32) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	result := make([]int, n)
	for i := range result {
		result[i] = -1
	}
	if m == 0 {
		return result
	}

	dim := n
	if m > dim {
		dim = m
	}

	// Forbidden cells cost more than any full assignment of allowed cells, so
	// the solver only takes one when nothing else is left. Padding is free.
	lo, hi := 0.0, 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			if !allowed(cost[i][j]) {
				continue
			}
			lo = math.Min(lo, float64(cost[i][j]))
			hi = math.Max(hi, float64(cost[i][j]))
		}
	}
	blocked := (hi-lo)*float64(dim) + 1

	c := make([][]float64, dim)
	for i := range c {
		c[i] = make([]float64, dim)
		for j := range c[i] {
			switch {
			case i >= n || j >= m:
				c[i][j] = 0
			case allowed(cost[i][j]):
				c[i][j] = float64(cost[i][j]) - lo
			default:
				c[i][j] = blocked
			}
		}
	}

	const inf = math.MaxFloat64 / 2
	// 1-indexed; column 0 is virtual.
	u := make([]float64, dim+1)
	v := make([]float64, dim+1)
	p := make([]int, dim+1)
	way := make([]int, dim+1)
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		p[0] = i
		j0 := 0
		for j := range minv {
			minv[j] = inf
			used[j] = false
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1

			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				cur := c[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			if j1 < 0 {
				break
			}

			for j := 0; j <= dim; j++ {
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

		for j0 != 0 {
			p[j0] = p[way[j0]]
			j0 = way[j0]
		}
	}

	for j := 1; j <= dim; j++ {
		row, col := p[j]-1, j-1
		if row < 0 || row >= n || col >= m {
			continue
		}
		if !allowed(cost[row][col]) {
			continue
		}
		result[row] = col
	}
	return result
}
