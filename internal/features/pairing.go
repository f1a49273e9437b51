package features

import "math"

// pairRows returns, for every row, the original index of the other
// participant in the same game, or -1 when the game does not have exactly
// two rows. Pairing never depends on input ordering.
func pairRows(n int, gameID func(i int) string) []int {
	members := make(map[string][]int)
	for i := 0; i < n; i++ {
		id := gameID(i)
		members[id] = append(members[id], i)
	}
	partner := make([]int, n)
	for i := range partner {
		partner[i] = -1
	}
	for _, idx := range members {
		if len(idx) != 2 {
			continue
		}
		partner[idx[0]], partner[idx[1]] = idx[1], idx[0]
	}
	return partner
}

// opponentView copies each row's partner value into the row's slot.
func opponentView(partner []int, vals []float64) []float64 {
	out := make([]float64, len(vals))
	for i, p := range partner {
		if p < 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = vals[p]
	}
	return out
}
