package features

import (
	"math"
	"sort"
	"time"
)

const (
	defaultRestDays = 3
	maxRestDays     = 7
	cvEpsilon       = 1e-6
	maxCV           = 10
)

// groups holds per-entity row indices in chronological order. Ties on date
// keep original row order.
type groups [][]int

// groupBy partitions row indices by entity and orders each partition by date.
func groupBy(n int, entity func(i int) string, date func(i int) time.Time) groups {
	pos := make(map[string]int)
	var out groups
	for i := 0; i < n; i++ {
		k := entity(i)
		g, ok := pos[k]
		if !ok {
			g = len(out)
			pos[k] = g
			out = append(out, nil)
		}
		out[g] = append(out[g], i)
	}
	for _, idx := range out {
		sort.SliceStable(idx, func(a, b int) bool {
			return date(idx[a]).Before(date(idx[b]))
		})
	}
	return out
}

// trailing applies agg to the defined values among the previous `window`
// observations of each row's entity. Rows whose window holds fewer than
// minPeriods defined values are NaN.
func (g groups) trailing(vals []float64, window, minPeriods int, agg func([]float64) float64) []float64 {
	out := make([]float64, len(vals))
	buf := make([]float64, 0, window)
	for _, idx := range g {
		for p, i := range idx {
			buf = buf[:0]
			for q := max(0, p-window); q < p; q++ {
				if v := vals[idx[q]]; !math.IsNaN(v) {
					buf = append(buf, v)
				}
			}
			if len(buf) < minPeriods || len(buf) == 0 {
				out[i] = math.NaN()
				continue
			}
			out[i] = agg(buf)
		}
	}
	return out
}

// mean returns the trailing average.
func (g groups) mean(vals []float64, window, minPeriods int) []float64 {
	return g.trailing(vals, window, minPeriods, avg)
}

// std returns the trailing sample standard deviation.
func (g groups) std(vals []float64, window, minPeriods int) []float64 {
	return g.trailing(vals, window, minPeriods, sampleStd)
}

// expanding returns the mean of every prior defined observation.
func (g groups) expanding(vals []float64, minPeriods int) []float64 {
	out := make([]float64, len(vals))
	for _, idx := range g {
		sum, count := 0.0, 0
		for _, i := range idx {
			if count < minPeriods || count == 0 {
				out[i] = math.NaN()
			} else {
				out[i] = sum / float64(count)
			}
			if v := vals[i]; !math.IsNaN(v) {
				sum += v
				count++
			}
		}
	}
	return out
}

// prior returns each row's entity's previous value, NaN for the first row.
func (g groups) prior(vals []float64) []float64 {
	out := make([]float64, len(vals))
	for _, idx := range g {
		for p, i := range idx {
			if p == 0 {
				out[i] = math.NaN()
				continue
			}
			out[i] = vals[idx[p-1]]
		}
	}
	return out
}

// streak returns the signed run length entering each game. wins holds 1 for
// a win, 0 for a loss and NaN for an unknown result. An unknown prior result
// reports 0 and leaves the running counter untouched.
func (g groups) streak(wins []float64) []float64 {
	out := make([]float64, len(wins))
	for _, idx := range g {
		cur := 0
		for p, i := range idx {
			if p == 0 {
				out[i] = 0
				continue
			}
			prev := wins[idx[p-1]]
			switch {
			case math.IsNaN(prev):
				out[i] = 0
				continue
			case prev == 1:
				cur = max(cur, 0) + 1
			default:
				cur = min(cur, 0) - 1
			}
			out[i] = float64(cur)
		}
	}
	return out
}

// restDays returns the whole-day gap since the entity's preceding game.
func (g groups) restDays(dates []time.Time) []float64 {
	out := make([]float64, len(dates))
	for _, idx := range g {
		for p, i := range idx {
			if p == 0 {
				out[i] = defaultRestDays
				continue
			}
			days := math.Floor(dates[i].Sub(dates[idx[p-1]]).Hours() / 24)
			out[i] = clipValue(days, 0, maxRestDays)
		}
	}
	return out
}

// coefficientOfVariation is std/(|mean|+eps) clipped to [0, maxCV].
func coefficientOfVariation(std, mean []float64) []float64 {
	out := make([]float64, len(std))
	for i := range std {
		out[i] = clipValue(std[i]/(math.Abs(mean[i])+cvEpsilon), 0, maxCV)
	}
	return out
}

func avg(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	m := avg(xs)
	ss := 0.0
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
