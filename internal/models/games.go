package models

import (
	"strings"
	"time"
)

// HomeToken marks a home game in a matchup string ("LAL vs. BOS").
// Away games use "@" ("BOS @ LAL").
const HomeToken = "vs."

// Outcome is a team's result in one game.
type Outcome string

const (
	OutcomeUnknown Outcome = ""
	OutcomeWin     Outcome = "W"
	OutcomeLoss    Outcome = "L"
)

// Score returns 1 for a win, 0 for a loss and NaN when the game has not been played.
func (o Outcome) Score() float64 {
	switch o {
	case OutcomeWin:
		return 1
	case OutcomeLoss:
		return 0
	default:
		return NaN()
	}
}

// Known reports whether the game has a final result.
func (o Outcome) Known() bool {
	return o == OutcomeWin || o == OutcomeLoss
}

// GameRow is one team's participation in one game.
type GameRow struct {
	GameID           string    `json:"game_id" nba:"GAME_ID"`
	TeamID           int       `json:"team_id" nba:"TEAM_ID"`
	TeamAbbreviation string    `json:"team_abbreviation" nba:"TEAM_ABBREVIATION"`
	TeamName         string    `json:"team_name" nba:"TEAM_NAME"`
	GameDate         time.Time `json:"game_date" nba:"GAME_DATE"`
	Season           string    `json:"season,omitempty"`
	Matchup          string    `json:"matchup" nba:"MATCHUP"`
	Outcome          Outcome   `json:"wl" nba:"WL"`

	Points    Stat `json:"pts" nba:"PTS"`
	FGPct     Stat `json:"fg_pct" nba:"FG_PCT"`
	FG3Pct    Stat `json:"fg3_pct" nba:"FG3_PCT"`
	FTPct     Stat `json:"ft_pct" nba:"FT_PCT"`
	Rebounds  Stat `json:"reb" nba:"REB"`
	Assists   Stat `json:"ast" nba:"AST"`
	Steals    Stat `json:"stl" nba:"STL"`
	Blocks    Stat `json:"blk" nba:"BLK"`
	Turnovers Stat `json:"tov" nba:"TOV"`
}

// IsHome reports whether the row's team played at home.
func (r *GameRow) IsHome() bool {
	return IsHomeMatchup(r.Matchup)
}

// PlayerGameRow is one player's participation in one game.
type PlayerGameRow struct {
	PlayerID         int       `json:"player_id" nba:"PLAYER_ID"`
	PlayerName       string    `json:"player_name" nba:"PLAYER_NAME"`
	GameID           string    `json:"game_id" nba:"GAME_ID"`
	GameDate         time.Time `json:"game_date" nba:"GAME_DATE"`
	Season           string    `json:"season,omitempty"`
	TeamID           int       `json:"team_id" nba:"TEAM_ID"`
	TeamAbbreviation string    `json:"team_abbreviation" nba:"TEAM_ABBREVIATION"`
	OpponentTeamID   int       `json:"opponent_team_id"`
	Matchup          string    `json:"matchup" nba:"MATCHUP"`

	Points    Stat `json:"pts" nba:"PTS"`
	Minutes   Stat `json:"min" nba:"MIN"`
	FGA       Stat `json:"fga" nba:"FGA"`
	FGPct     Stat `json:"fg_pct" nba:"FG_PCT"`
	FG3A      Stat `json:"fg3a" nba:"FG3A"`
	FG3Pct    Stat `json:"fg3_pct" nba:"FG3_PCT"`
	FTA       Stat `json:"fta" nba:"FTA"`
	FTPct     Stat `json:"ft_pct" nba:"FT_PCT"`
	Rebounds  Stat `json:"reb" nba:"REB"`
	Assists   Stat `json:"ast" nba:"AST"`
	Steals    Stat `json:"stl" nba:"STL"`
	Blocks    Stat `json:"blk" nba:"BLK"`
	Turnovers Stat `json:"tov" nba:"TOV"`
}

// IsHome reports whether the player's team played at home.
func (r *PlayerGameRow) IsHome() bool {
	return IsHomeMatchup(r.Matchup)
}

// IsHomeMatchup reports whether a matchup string carries the home token.
func IsHomeMatchup(matchup string) bool {
	return strings.Contains(matchup, HomeToken)
}

// OpponentAbbreviation returns the opponent tricode of a matchup string,
// which is always its last token.
func OpponentAbbreviation(matchup string) string {
	fields := strings.Fields(matchup)
	if len(fields) < 3 {
		return ""
	}
	return fields[len(fields)-1]
}

// HomeMatchup and AwayMatchup build matchup strings the way the stats API does.
func HomeMatchup(team, opponent string) string { return team + " " + HomeToken + " " + opponent }
func AwayMatchup(team, opponent string) string { return team + " @ " + opponent }

// ScheduledTeam is one side of a scheduled game from the live scoreboard.
type ScheduledTeam struct {
	TeamID   int    `json:"team_id"`
	TeamName string `json:"team_name"`
	TeamCity string `json:"team_city,omitempty"`
	Tricode  string `json:"tricode"`
}

// ScheduledGame is a game on today's slate.
type ScheduledGame struct {
	GameID     string        `json:"game_id"`
	Status     string        `json:"status,omitempty"`
	HomeTeam   ScheduledTeam `json:"home_team"`
	AwayTeam   ScheduledTeam `json:"away_team"`
	GameTimeET time.Time     `json:"game_time_et,omitempty"`
}

// Scoreboard is the day's schedule.
type Scoreboard struct {
	GameDate time.Time       `json:"game_date"`
	Games    []ScheduledGame `json:"games"`
}

// Game returns the scheduled game with the given id.
func (s *Scoreboard) Game(gameID string) (ScheduledGame, bool) {
	for _, g := range s.Games {
		if g.GameID == gameID {
			return g, true
		}
	}
	return ScheduledGame{}, false
}

// Rows flattens the slate into two GameRows per game, home first. Outcome
// and box-score stats are undefined since the games have not been played.
func (s *Scoreboard) Rows(season string) []GameRow {
	rows := make([]GameRow, 0, len(s.Games)*2)
	for _, g := range s.Games {
		rows = append(rows,
			scheduledRow(g.GameID, s.GameDate, season, g.HomeTeam, HomeMatchup(g.HomeTeam.Tricode, g.AwayTeam.Tricode)),
			scheduledRow(g.GameID, s.GameDate, season, g.AwayTeam, AwayMatchup(g.AwayTeam.Tricode, g.HomeTeam.Tricode)),
		)
	}
	return rows
}

func scheduledRow(gameID string, date time.Time, season string, team ScheduledTeam, matchup string) GameRow {
	nan := Stat(NaN())
	return GameRow{
		GameID:           gameID,
		TeamID:           team.TeamID,
		TeamAbbreviation: team.Tricode,
		TeamName:         team.TeamName,
		GameDate:         date,
		Season:           season,
		Matchup:          matchup,
		Outcome:          OutcomeUnknown,
		Points:           nan,
		FGPct:            nan,
		FG3Pct:           nan,
		FTPct:            nan,
		Rebounds:         nan,
		Assists:          nan,
		Steals:           nan,
		Blocks:           nan,
		Turnovers:        nan,
	}
}

// ScheduledPlayerRow builds the pre-game row for a player whose team is on
// today's slate. The opponent comes from the scheduled game.
func ScheduledPlayerRow(last PlayerGameRow, game ScheduledGame, date time.Time, season string) PlayerGameRow {
	nan := Stat(NaN())
	row := PlayerGameRow{
		PlayerID:         last.PlayerID,
		PlayerName:       last.PlayerName,
		GameID:           game.GameID,
		GameDate:         date,
		Season:           season,
		TeamID:           last.TeamID,
		TeamAbbreviation: last.TeamAbbreviation,
		Points:           nan,
		Minutes:          nan,
		FGA:              nan,
		FGPct:            nan,
		FG3A:             nan,
		FG3Pct:           nan,
		FTA:              nan,
		FTPct:            nan,
		Rebounds:         nan,
		Assists:          nan,
		Steals:           nan,
		Blocks:           nan,
		Turnovers:        nan,
	}
	if game.HomeTeam.TeamID == last.TeamID {
		row.OpponentTeamID = game.AwayTeam.TeamID
		row.Matchup = HomeMatchup(game.HomeTeam.Tricode, game.AwayTeam.Tricode)
	} else {
		row.OpponentTeamID = game.HomeTeam.TeamID
		row.Matchup = AwayMatchup(game.AwayTeam.Tricode, game.HomeTeam.Tricode)
	}
	return row
}
