package tracking

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHungarianAssign(t *testing.T) {
	tests := []struct {
		name string
		cost [][]float32
		want []int
	}{
		{
			name: "empty",
			cost: nil,
			want: nil,
		},
		{
			name: "no columns",
			cost: [][]float32{{}, {}},
			want: []int{-1, -1},
		},
		{
			name: "greedy would be wrong",
			cost: [][]float32{
				{1, 2},
				{2, 100},
			},
			want: []int{1, 0},
		},
		{
			name: "more rows than columns",
			cost: [][]float32{
				{5},
				{1},
				{3},
			},
			want: []int{-1, 0, -1},
		},
		{
			name: "more columns than rows",
			cost: [][]float32{
				{9, 2, 7},
			},
			want: []int{1},
		},
		{
			name: "forbidden cells stay unassigned",
			cost: [][]float32{
				{Forbidden, 3},
				{Forbidden, Forbidden},
			},
			want: []int{1, -1},
		},
		{
			name: "small costs separate with a forbidden column",
			cost: [][]float32{
				{60, Forbidden},
				{2, Forbidden},
				{90, Forbidden},
			},
			want: []int{-1, 0, -1},
		},
		{
			name: "non-finite cells stay unassigned",
			cost: [][]float32{
				{float32(math.NaN()), float32(math.Inf(1))},
				{4, 1},
			},
			want: []int{-1, 1},
		},
		{
			name: "prefers more matches over lower cost",
			cost: [][]float32{
				{1, 2},
				{Forbidden, 50},
			},
			want: []int{0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HungarianAssign(tt.cost))
		})
	}
}

// exhaustive returns the largest number of allowed matches and the lowest
// total cost reaching it.
func exhaustive(cost [][]float32) (int, float64) {
	n, m := len(cost), len(cost[0])
	best, bestCost := -1, 0.0
	used := make([]bool, m)

	var walk func(row, count int, sum float64)
	walk = func(row, count int, sum float64) {
		if row == n {
			if count > best || (count == best && sum < bestCost) {
				best, bestCost = count, sum
			}
			return
		}
		walk(row+1, count, sum)
		for j := 0; j < m; j++ {
			if used[j] || cost[row][j] >= Forbidden {
				continue
			}
			used[j] = true
			walk(row+1, count+1, sum+float64(cost[row][j]))
			used[j] = false
		}
	}
	walk(0, 0, 0)
	return best, bestCost
}

func TestHungarianAssignMatchesExhaustiveSearch(t *testing.T) {
	r := rand.New(rand.NewSource(7))

	for _, forbiddenRate := range []float32{0, 0.3, 0.6} {
		for k := 0; k < 1000; k++ {
			n, m := 1+r.Intn(5), 1+r.Intn(5)
			cost := make([][]float32, n)
			for i := range cost {
				cost[i] = make([]float32, m)
				for j := range cost[i] {
					if r.Float32() < forbiddenRate {
						cost[i][j] = Forbidden
					} else {
						cost[i][j] = float32(r.Intn(120))
					}
				}
			}

			got := HungarianAssign(cost)
			count, sum := 0, 0.0
			seen := make(map[int]bool)
			for i, j := range got {
				if j < 0 {
					continue
				}
				require.Less(t, cost[i][j], Forbidden, "cost=%v got=%v", cost, got)
				require.False(t, seen[j], "column %d assigned twice: %v", j, got)
				seen[j] = true
				count++
				sum += float64(cost[i][j])
			}

			wantCount, wantSum := exhaustive(cost)
			require.Equal(t, wantCount, count, "cost=%v got=%v", cost, got)
			require.InDelta(t, wantSum, sum, 1e-3, "cost=%v got=%v", cost, got)
		}
	}
}
