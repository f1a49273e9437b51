package source

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hoopcast/forecast-api/internal/models"
)

// PgPool defines the interface for PostgreSQL connection pool
type PgPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgCopier is a pool that also supports COPY, used for bulk loads.
type PgCopier interface {
	PgPool
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// PostgresHistory serves game logs from the local mirror populated by the seeder.
type PostgresHistory struct {
	pg      PgPool
	seasons []string
}

func NewPostgresHistory(pg PgPool, seasons []string) *PostgresHistory {
	return &PostgresHistory{pg: pg, seasons: seasons}
}

var teamLogColumns = []string{
	"season", "game_id", "team_id", "team_abbreviation", "team_name", "game_date", "matchup", "wl",
	"pts", "fg_pct", "fg3_pct", "ft_pct", "reb", "ast", "stl", "blk", "tov",
}

var playerLogColumns = []string{
	"season", "game_id", "player_id", "player_name", "team_id", "team_abbreviation", "opponent_team_id",
	"game_date", "matchup",
	"pts", "min", "fga", "fg_pct", "fg3a", "fg3_pct", "fta", "ft_pct", "reb", "ast", "stl", "blk", "tov",
}

func (p *PostgresHistory) TeamLogs(ctx context.Context) ([]models.GameRow, error) {
	rows, err := p.pg.Query(ctx, `
		SELECT season, game_id, team_id, team_abbreviation, team_name, game_date, matchup, wl,
		       pts, fg_pct, fg3_pct, ft_pct, reb, ast, stl, blk, tov
		FROM team_game_logs
		WHERE season = ANY($1)
		ORDER BY game_date, game_id, team_id
	`, p.seasons)
	if err != nil {
		return nil, fmt.Errorf("querying team game logs: %w", err)
	}
	defer rows.Close()

	var out []models.GameRow
	for rows.Next() {
		var r models.GameRow
		var wl string
		var stats [9]*float64
		if err := rows.Scan(
			&r.Season, &r.GameID, &r.TeamID, &r.TeamAbbreviation, &r.TeamName, &r.GameDate, &r.Matchup, &wl,
			&stats[0], &stats[1], &stats[2], &stats[3], &stats[4], &stats[5], &stats[6], &stats[7], &stats[8],
		); err != nil {
			return nil, err
		}
		r.Outcome = models.Outcome(wl)
		r.GameDate = calendarDate(r.GameDate)
		r.Points, r.FGPct, r.FG3Pct, r.FTPct = nullStat(stats[0]), nullStat(stats[1]), nullStat(stats[2]), nullStat(stats[3])
		r.Rebounds, r.Assists, r.Steals, r.Blocks, r.Turnovers = nullStat(stats[4]), nullStat(stats[5]), nullStat(stats[6]), nullStat(stats[7]), nullStat(stats[8])
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresHistory) PlayerLogs(ctx context.Context) ([]models.PlayerGameRow, error) {
	rows, err := p.pg.Query(ctx, `
		SELECT season, game_id, player_id, player_name, team_id, team_abbreviation, opponent_team_id,
		       game_date, matchup,
		       pts, min, fga, fg_pct, fg3a, fg3_pct, fta, ft_pct, reb, ast, stl, blk, tov
		FROM player_game_logs
		WHERE season = ANY($1)
		ORDER BY game_date, game_id, player_id
	`, p.seasons)
	if err != nil {
		return nil, fmt.Errorf("querying player game logs: %w", err)
	}
	defer rows.Close()

	var out []models.PlayerGameRow
	for rows.Next() {
		var r models.PlayerGameRow
		var s [13]*float64
		if err := rows.Scan(
			&r.Season, &r.GameID, &r.PlayerID, &r.PlayerName, &r.TeamID, &r.TeamAbbreviation, &r.OpponentTeamID,
			&r.GameDate, &r.Matchup,
			&s[0], &s[1], &s[2], &s[3], &s[4], &s[5], &s[6], &s[7], &s[8], &s[9], &s[10], &s[11], &s[12],
		); err != nil {
			return nil, err
		}
		r.GameDate = calendarDate(r.GameDate)
		r.Points, r.Minutes, r.FGA, r.FGPct = nullStat(s[0]), nullStat(s[1]), nullStat(s[2]), nullStat(s[3])
		r.FG3A, r.FG3Pct, r.FTA, r.FTPct = nullStat(s[4]), nullStat(s[5]), nullStat(s[6]), nullStat(s[7])
		r.Rebounds, r.Assists, r.Steals, r.Blocks, r.Turnovers = nullStat(s[8]), nullStat(s[9]), nullStat(s[10]), nullStat(s[11]), nullStat(s[12])
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplaceSeason deletes a season's rows and bulk loads the given logs with
// COPY. Either slice may be empty.
func ReplaceSeason(ctx context.Context, pg PgCopier, season string, teams []models.GameRow, players []models.PlayerGameRow) (int64, error) {
	if _, err := pg.Exec(ctx, `DELETE FROM team_game_logs WHERE season = $1`, season); err != nil {
		return 0, fmt.Errorf("clearing team logs for %s: %w", season, err)
	}
	if _, err := pg.Exec(ctx, `DELETE FROM player_game_logs WHERE season = $1`, season); err != nil {
		return 0, fmt.Errorf("clearing player logs for %s: %w", season, err)
	}

	teamRows := make([][]any, 0, len(teams))
	for _, r := range teams {
		teamRows = append(teamRows, []any{
			season, r.GameID, r.TeamID, r.TeamAbbreviation, r.TeamName, r.GameDate, r.Matchup, string(r.Outcome),
			statArg(r.Points), statArg(r.FGPct), statArg(r.FG3Pct), statArg(r.FTPct),
			statArg(r.Rebounds), statArg(r.Assists), statArg(r.Steals), statArg(r.Blocks), statArg(r.Turnovers),
		})
	}
	n, err := pg.CopyFrom(ctx, pgx.Identifier{"team_game_logs"}, teamLogColumns, pgx.CopyFromRows(teamRows))
	if err != nil {
		return 0, fmt.Errorf("copying team logs for %s: %w", season, err)
	}

	playerRows := make([][]any, 0, len(players))
	for _, r := range players {
		playerRows = append(playerRows, []any{
			season, r.GameID, r.PlayerID, r.PlayerName, r.TeamID, r.TeamAbbreviation, r.OpponentTeamID,
			r.GameDate, r.Matchup,
			statArg(r.Points), statArg(r.Minutes), statArg(r.FGA), statArg(r.FGPct),
			statArg(r.FG3A), statArg(r.FG3Pct), statArg(r.FTA), statArg(r.FTPct),
			statArg(r.Rebounds), statArg(r.Assists), statArg(r.Steals), statArg(r.Blocks), statArg(r.Turnovers),
		})
	}
	m, err := pg.CopyFrom(ctx, pgx.Identifier{"player_game_logs"}, playerLogColumns, pgx.CopyFromRows(playerRows))
	if err != nil {
		return n, fmt.Errorf("copying player logs for %s: %w", season, err)
	}
	return n + m, nil
}

func nullStat(v *float64) models.Stat {
	if v == nil {
		return models.Stat(math.NaN())
	}
	return models.Stat(*v)
}

func statArg(s models.Stat) any {
	if !s.Defined() {
		return nil
	}
	return float64(s)
}

func calendarDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
