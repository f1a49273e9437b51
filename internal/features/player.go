package features

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/hoopcast/forecast-api/internal/models"
)

// PlayerStats are the per-game stats rolled for player features, in
// column order.
var PlayerStats = []string{"pts", "min", "fga", "fg_pct", "fg3a", "fg3_pct", "fta", "ft_pct", "reb", "ast", "stl", "blk", "tov"}

func playerStat(r *models.PlayerGameRow, stat string) float64 {
	switch stat {
	case "pts":
		return float64(r.Points)
	case "min":
		return float64(r.Minutes)
	case "fga":
		return float64(r.FGA)
	case "fg_pct":
		return float64(r.FGPct)
	case "fg3a":
		return float64(r.FG3A)
	case "fg3_pct":
		return float64(r.FG3Pct)
	case "fta":
		return float64(r.FTA)
	case "ft_pct":
		return float64(r.FTPct)
	case "reb":
		return float64(r.Rebounds)
	case "ast":
		return float64(r.Assists)
	case "stl":
		return float64(r.Steals)
	case "blk":
		return float64(r.Blocks)
	case "tov":
		return float64(r.Turnovers)
	}
	panic("features: unknown player stat " + stat)
}

// PlayerOptions selects the optional player feature groups.
type PlayerOptions struct {
	// WithTeamContext adds team_pts_avg_5.
	WithTeamContext bool
	// WithOpponentDefense adds opp_def_rating.
	WithOpponentDefense bool
}

// PlayerAssembler builds the player-level feature matrix.
type PlayerAssembler struct {
	opts PlayerOptions
}

// NewPlayerAssembler fixes the active feature groups for the assembler's lifetime.
func NewPlayerAssembler(opts PlayerOptions) *PlayerAssembler {
	return &PlayerAssembler{opts: opts}
}

// OptionsFor enables exactly the optional groups a model's feature list uses.
func OptionsFor(featureNames []string) PlayerOptions {
	var opts PlayerOptions
	for _, name := range featureNames {
		switch name {
		case "team_pts_avg_5":
			opts.WithTeamContext = true
		case "opp_def_rating":
			opts.WithOpponentDefense = true
		}
	}
	return opts
}

// Options returns the active feature groups.
func (a *PlayerAssembler) Options() PlayerOptions { return a.opts }

// Build returns one feature row per input row, keyed by (game, player).
// league is the log the optional context groups are computed over; when nil
// rows is used.
func (a *PlayerAssembler) Build(rows, league []models.PlayerGameRow) *Matrix {
	n := len(rows)
	f := newFrame(n)
	if league == nil {
		league = rows
	}

	keys := make([]RowKey, n)
	dates := make([]time.Time, n)
	for i := range rows {
		keys[i] = RowKey{GameID: rows[i].GameID, PlayerID: rows[i].PlayerID}
		dates[i] = rows[i].GameDate
	}
	byPlayer := groupBy(n,
		func(i int) string { return strconv.Itoa(rows[i].PlayerID) },
		func(i int) time.Time { return rows[i].GameDate })

	series := func(stat string) []float64 {
		out := make([]float64, n)
		for i := range rows {
			out[i] = playerStat(&rows[i], stat)
		}
		return out
	}

	for _, stat := range PlayerStats {
		vals := series(stat)
		f.set(stat+"_avg_5", byPlayer.mean(vals, 5, 3))
		f.set(stat+"_trend", sub(byPlayer.mean(vals, 3, 2), byPlayer.mean(vals, 10, 5)))
	}
	minutes := series("min")
	f.set("min_consistency", byPlayer.std(minutes, 5, 3))

	usage := make([]float64, n)
	fga := series("fga")
	for i := range usage {
		usage[i] = fga[i] / (minutes[i] + 1)
	}
	f.set("usage_avg_5", byPlayer.mean(usage, 5, 3))
	f.set("rest_days", byPlayer.restDays(dates))

	home := make([]float64, n)
	for i := range rows {
		if rows[i].IsHome() {
			home[i] = 1
		}
	}
	f.set("is_home", home)

	if a.opts.WithTeamContext {
		team := newDailySeries(league,
			func(r *models.PlayerGameRow) int { return r.TeamID }, sumOf)
		out := make([]float64, n)
		for i := range rows {
			out[i] = team.trailingMean(rows[i].TeamID, rows[i].GameDate, 5, 3)
		}
		f.set("team_pts_avg_5", out)
	}
	if a.opts.WithOpponentDefense {
		allowed := newDailySeries(league,
			func(r *models.PlayerGameRow) int { return r.OpponentTeamID }, avg)
		out := make([]float64, n)
		for i := range rows {
			out[i] = allowed.trailingMean(rows[i].OpponentTeamID, rows[i].GameDate, 5, 3)
		}
		f.set("opp_def_rating", out)
	}

	return f.matrix(keys, dates)
}

// dailySeries aggregates player points per (team, date) and answers
// trailing queries as of a date.
type dailySeries struct {
	byTeam map[int][]dailyPoint
}

type dailyPoint struct {
	date  time.Time
	value float64
}

func newDailySeries(rows []models.PlayerGameRow, team func(*models.PlayerGameRow) int, agg func([]float64) float64) *dailySeries {
	type bucket struct {
		team int
		date time.Time
	}
	values := make(map[bucket][]float64)
	for i := range rows {
		r := &rows[i]
		t := team(r)
		if t == 0 {
			continue
		}
		b := bucket{team: t, date: r.GameDate}
		if v := float64(r.Points); !math.IsNaN(v) {
			values[b] = append(values[b], v)
		} else if _, ok := values[b]; !ok {
			values[b] = nil
		}
	}
	s := &dailySeries{byTeam: make(map[int][]dailyPoint)}
	for b, vals := range values {
		v := math.NaN()
		if len(vals) > 0 {
			v = agg(vals)
		}
		s.byTeam[b.team] = append(s.byTeam[b.team], dailyPoint{date: b.date, value: v})
	}
	for _, pts := range s.byTeam {
		sort.Slice(pts, func(a, b int) bool { return pts[a].date.Before(pts[b].date) })
	}
	return s
}

// trailingMean averages the defined values of the last `window` dates
// strictly before date.
func (s *dailySeries) trailingMean(team int, date time.Time, window, minPeriods int) float64 {
	pts := s.byTeam[team]
	end := sort.Search(len(pts), func(i int) bool { return !pts[i].date.Before(date) })
	var buf []float64
	for q := max(0, end-window); q < end; q++ {
		if v := pts[q].value; !math.IsNaN(v) {
			buf = append(buf, v)
		}
	}
	if len(buf) < minPeriods || len(buf) == 0 {
		return math.NaN()
	}
	return avg(buf)
}

func sumOf(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum
}
