package features

import (
	"fmt"
	"strconv"
	"time"

	"github.com/hoopcast/forecast-api/internal/models"
)

// TeamWindows are the rolling window sizes for team features.
var TeamWindows = []int{3, 5, 10}

// TeamStats are the box-score stats rolled per window, in column order.
var TeamStats = []string{"pts", "fg_pct", "fg3_pct", "ft_pct", "reb", "ast", "stl", "blk", "tov"}

func teamStat(r *models.GameRow, stat string) float64 {
	switch stat {
	case "pts":
		return float64(r.Points)
	case "fg_pct":
		return float64(r.FGPct)
	case "fg3_pct":
		return float64(r.FG3Pct)
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
	panic("features: unknown team stat " + stat)
}

// Injuries supplies injury impact per (game, team) row. Games wins over
// Teams, which broadcasts one record to every row of a team. Rows found in
// neither get zero impact.
type Injuries struct {
	Games map[RowKey]models.InjuryImpact
	Teams map[int]models.InjuryImpact
}

func (inj *Injuries) lookup(gameID string, teamID int) models.InjuryImpact {
	if inj == nil {
		return models.InjuryImpact{}
	}
	if v, ok := inj.Games[RowKey{GameID: gameID, TeamID: teamID}]; ok {
		return v
	}
	return inj.Teams[teamID]
}

// TeamAssembler builds the game-level feature matrix.
type TeamAssembler struct {
	Elo EloConfig
}

// NewTeamAssembler returns an assembler with default Elo parameters.
func NewTeamAssembler() *TeamAssembler {
	return &TeamAssembler{Elo: DefaultElo()}
}

// Build returns one feature row per input row, keyed by (game, team).
// Injuries may be nil.
func (a *TeamAssembler) Build(rows []models.GameRow, inj *Injuries) *Matrix {
	n := len(rows)
	f := newFrame(n)

	keys := make([]RowKey, n)
	dates := make([]time.Time, n)
	for i := range rows {
		keys[i] = RowKey{GameID: rows[i].GameID, TeamID: rows[i].TeamID}
		dates[i] = rows[i].GameDate
	}

	byTeam := groupBy(n,
		func(i int) string { return strconv.Itoa(rows[i].TeamID) },
		func(i int) time.Time { return rows[i].GameDate })
	byTeamSeason := groupBy(n,
		func(i int) string { return strconv.Itoa(rows[i].TeamID) + "|" + rows[i].Season },
		func(i int) time.Time { return rows[i].GameDate })
	partner := pairRows(n, func(i int) string { return rows[i].GameID })

	series := func(get func(r *models.GameRow) float64) []float64 {
		out := make([]float64, n)
		for i := range rows {
			out[i] = get(&rows[i])
		}
		return out
	}
	pts := series(func(r *models.GameRow) float64 { return float64(r.Points) })
	wins := series(func(r *models.GameRow) float64 { return r.Outcome.Score() })
	oppPts := opponentView(partner, pts)
	pointDiff := sub(pts, oppPts)

	// Injuries.
	injPts, injMin, injOut, injScore := make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)
	for i := range rows {
		v := inj.lookup(rows[i].GameID, rows[i].TeamID)
		injPts[i], injMin[i], injOut[i], injScore[i] = v.PointsLost, v.MinutesLost, float64(v.NumPlayersOut), v.ImpactScore
	}
	f.set("injury_pts_lost", injPts)
	f.set("injury_min_lost", injMin)
	f.set("num_players_out", injOut)
	f.set("injury_impact_score", injScore)

	f.set("elo", ComputeElo(rows, a.Elo))

	for _, w := range TeamWindows {
		for _, stat := range TeamStats {
			s := stat
			f.set(fmt.Sprintf("%s_avg_%d", s, w), byTeam.mean(series(func(r *models.GameRow) float64 { return teamStat(r, s) }), w, 2))
		}
	}
	for _, w := range TeamWindows {
		f.set(fmt.Sprintf("point_diff_avg_%d", w), byTeam.mean(pointDiff, w, 2))
		f.set(fmt.Sprintf("pts_allowed_avg_%d", w), byTeam.mean(oppPts, w, 2))
	}

	for _, stat := range TeamStats {
		f.set(stat+"_trend", sub(f.col(stat+"_avg_3"), f.col(stat+"_avg_10")))
	}
	f.set("net_rating_trend", sub(f.col("point_diff_avg_3"), f.col("point_diff_avg_10")))

	for _, stat := range []string{"pts", "fg_pct", "ft_pct"} {
		s := stat
		f.set(s+"_std_5", byTeam.std(series(func(r *models.GameRow) float64 { return teamStat(r, s) }), 5, 3))
	}
	f.set("point_diff_std_5", byTeam.std(pointDiff, 5, 3))

	for _, w := range TeamWindows {
		f.set(fmt.Sprintf("win_pct_%d", w), byTeam.mean(wins, w, 2))
	}
	f.set("season_win_pct", byTeamSeason.expanding(wins, 1))
	f.set("win_streak", byTeam.streak(wins))

	rest := byTeam.restDays(dates)
	f.set("rest_days", rest)
	f.set("is_back_to_back", indicator(rest, func(v float64) bool { return v == 1 }))
	f.set("well_rested", indicator(rest, func(v float64) bool { return v >= 3 }))
	f.set("is_home", series(func(r *models.GameRow) float64 {
		if r.IsHome() {
			return 1
		}
		return 0
	}))

	for _, stat := range []string{"pts", "fg_pct"} {
		f.set(stat+"_cv_5", coefficientOfVariation(f.col(stat+"_std_5"), f.col(stat+"_avg_5")))
	}

	opp := f.snapshot(partner)

	for _, w := range TeamWindows {
		for _, stat := range TeamStats {
			col := fmt.Sprintf("%s_avg_%d", stat, w)
			f.set(fmt.Sprintf("%s_diff_%d", stat, w), sub(f.col(col), opp.col(col)))
		}
		winPct := fmt.Sprintf("win_pct_%d", w)
		f.set(fmt.Sprintf("win_pct_diff_%d", w), sub(f.col(winPct), opp.col(winPct)))
		diff := fmt.Sprintf("point_diff_avg_%d", w)
		f.set(fmt.Sprintf("point_diff_diff_%d", w), sub(f.col(diff), opp.col(diff)))
		allowed := fmt.Sprintf("pts_allowed_avg_%d", w)
		f.set(fmt.Sprintf("def_matchup_%d", w), sub(opp.col(allowed), f.col(allowed)))
	}

	f.set("opp_elo", opp.col("elo"))
	f.set("elo_diff", sub(f.col("elo"), f.col("opp_elo")))
	f.set("opp_win_pct_5", opp.col("win_pct_5"))
	f.set("opp_pts_avg_5", opp.col("pts_avg_5"))
	f.set("opp_point_diff_avg_5", opp.col("point_diff_avg_5"))

	home := f.col("is_home")
	f.set("home_strength", mul(home, f.col("pts_avg_5")))
	f.set("rest_advantage", sub(rest, opp.col("rest_days")))
	f.set("home_rest_interaction", mul(home, f.col("well_rested")))
	f.set("elo_home_interaction", mul(home, f.col("elo_diff")))

	f.set("momentum", sub(f.col("win_pct_3"), f.col("win_pct_10")))
	f.set("scoring_momentum", sub(f.col("pts_avg_3"), f.col("pts_avg_10")))
	f.set("net_momentum", sub(f.col("point_diff_avg_3"), f.col("point_diff_avg_10")))

	f.set("opp_injury_pts_lost", opp.col("injury_pts_lost"))
	f.set("opp_injury_min_lost", opp.col("injury_min_lost"))
	f.set("opp_num_players_out", opp.col("num_players_out"))
	f.set("opp_injury_impact_score", opp.col("injury_impact_score"))
	f.set("injury_pts_diff", sub(injPts, f.col("opp_injury_pts_lost")))
	f.set("injury_rest_interaction", mul(injMin, rest))
	f.set("home_injury_advantage", mul(home, f.col("injury_pts_diff")))

	scoring := make([]float64, n)
	ptsAvg5 := f.col("pts_avg_5")
	for i := range scoring {
		scoring[i] = clipValue(injPts[i]/(ptsAvg5[i]+1), 0, 5)
	}
	f.set("injury_scoring_impact", scoring)
	f.set("injury_age", mul(injScore, rest))
	f.set("opp_injury_pts_diff", sub(f.col("opp_injury_pts_lost"), injPts))
	f.set("key_injury_penalty", mul(indicator(injOut, func(v float64) bool { return v > 1 }), injScore))
	f.set("health_advantage", sub(f.col("opp_injury_impact_score"), injScore))

	return f.matrix(keys, dates)
}
