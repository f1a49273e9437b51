package features

import (
	"math"
	"sort"

	"github.com/hoopcast/forecast-api/internal/models"
)

// EloConfig holds rating engine parameters.
type EloConfig struct {
	K             float64
	HomeAdvantage float64
	Initial       float64
	// Carry is the share of a rating kept across a season boundary; the
	// rest regresses toward Initial.
	Carry float64
}

// DefaultElo returns K=20, home advantage 100, initial 1500 and 75% carry.
func DefaultElo() EloConfig {
	return EloConfig{K: 20, HomeAdvantage: 100, Initial: 1500, Carry: 0.75}
}

// ComputeElo returns each row's pre-game rating, aligned with rows. Games
// are processed in (date, game id) order. Rows of games without exactly two
// participants get the initial rating and never move any rating. Games whose
// result is unknown record ratings without updating them.
func ComputeElo(rows []models.GameRow, cfg EloConfig) []float64 {
	out := constant(len(rows), cfg.Initial)

	type game struct {
		id   string
		rows []int
	}
	byID := make(map[string]*game)
	var games []*game
	for i := range rows {
		g, ok := byID[rows[i].GameID]
		if !ok {
			g = &game{id: rows[i].GameID}
			byID[g.id] = g
			games = append(games, g)
		}
		g.rows = append(g.rows, i)
	}
	sort.SliceStable(games, func(a, b int) bool {
		da, db := rows[games[a].rows[0]].GameDate, rows[games[b].rows[0]].GameDate
		if !da.Equal(db) {
			return da.Before(db)
		}
		return games[a].id < games[b].id
	})

	ratings := make(map[int]float64)
	rating := func(team int) float64 {
		if r, ok := ratings[team]; ok {
			return r
		}
		return cfg.Initial
	}

	prevSeason := ""
	for _, g := range games {
		if len(g.rows) != 2 {
			continue
		}
		r0, r1 := &rows[g.rows[0]], &rows[g.rows[1]]

		season := r0.Season
		if prevSeason != "" && season != "" && season != prevSeason {
			for team, r := range ratings {
				ratings[team] = r*cfg.Carry + cfg.Initial*(1-cfg.Carry)
			}
		}
		if season != "" {
			prevSeason = season
		}

		e0, e1 := rating(r0.TeamID), rating(r1.TeamID)
		out[g.rows[0]], out[g.rows[1]] = e0, e1

		if !r0.Outcome.Known() || !r1.Outcome.Known() {
			continue
		}

		adj0, adj1 := e0, e1
		if r0.IsHome() {
			adj0 += cfg.HomeAdvantage
		} else {
			adj1 += cfg.HomeAdvantage
		}
		exp0 := expectedScore(adj0, adj1)
		exp1 := expectedScore(adj1, adj0)
		ratings[r0.TeamID] = e0 + cfg.K*(r0.Outcome.Score()-exp0)
		ratings[r1.TeamID] = e1 + cfg.K*(r1.Outcome.Score()-exp1)
	}
	return out
}

func expectedScore(self, other float64) float64 {
	return 1 / (1 + math.Pow(10, (other-self)/400))
}
