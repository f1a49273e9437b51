// Package source fetches game logs and the day's schedule from upstream
// services or the local Postgres mirror.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hoopcast/forecast-api/internal/models"
)

const (
	DefaultStatsURL   = "https://stats.nba.com/stats"
	RegularSeason     = "Regular Season"
	leagueGameLogPath = "/leaguegamelog"
)

// StatsClient reads league-wide game logs from the stats API. Every row is
// tagged with the season label it was requested under.
type StatsClient struct {
	baseURL    string
	seasons    []string
	seasonType string
	http       *http.Client
	logger     *zap.SugaredLogger
}

// StatsConfig configures the stats API client
type StatsConfig struct {
	BaseURL    string
	Seasons    []string
	SeasonType string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

func NewStatsClient(cfg StatsConfig) *StatsClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultStatsURL
	}
	if cfg.SeasonType == "" {
		cfg.SeasonType = RegularSeason
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &StatsClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		seasons:    cfg.Seasons,
		seasonType: cfg.SeasonType,
		http:       cfg.HTTPClient,
		logger:     cfg.Logger.Sugar(),
	}
}

// Seasons returns the configured season labels, oldest first.
func (c *StatsClient) Seasons() []string { return c.seasons }

type resultSets struct {
	ResultSets []struct {
		Name    string   `json:"name"`
		Headers []string `json:"headers"`
		RowSet  [][]any  `json:"rowSet"`
	} `json:"resultSets"`
}

// TeamLogs returns one row per team per game across all configured seasons.
func (c *StatsClient) TeamLogs(ctx context.Context) ([]models.GameRow, error) {
	var out []models.GameRow
	for _, season := range c.seasons {
		set, err := c.leagueGameLog(ctx, "T", season)
		if err != nil {
			return nil, err
		}
		for i, raw := range set.RowSet {
			var row models.GameRow
			if err := models.DecodeRow(set.Headers, raw, &row); err != nil {
				return nil, fmt.Errorf("team log %s row %d: %w", season, i, err)
			}
			row.Season = season
			out = append(out, row)
		}
	}
	c.logger.Infow("Fetched team game logs", "seasons", c.seasons, "rows", len(out))
	return out, nil
}

// PlayerLogs returns one row per player per game across all configured
// seasons. OpponentTeamID is derived from the matchup string.
func (c *StatsClient) PlayerLogs(ctx context.Context) ([]models.PlayerGameRow, error) {
	var out []models.PlayerGameRow
	for _, season := range c.seasons {
		set, err := c.leagueGameLog(ctx, "P", season)
		if err != nil {
			return nil, err
		}
		for i, raw := range set.RowSet {
			var row models.PlayerGameRow
			if err := models.DecodeRow(set.Headers, raw, &row); err != nil {
				return nil, fmt.Errorf("player log %s row %d: %w", season, i, err)
			}
			row.Season = season
			row.OpponentTeamID = models.TeamIDByAbbreviation(models.OpponentAbbreviation(row.Matchup))
			out = append(out, row)
		}
	}
	c.logger.Infow("Fetched player game logs", "seasons", c.seasons, "rows", len(out))
	return out, nil
}

type rowSet struct {
	Headers []string
	RowSet  [][]any
}

func (c *StatsClient) leagueGameLog(ctx context.Context, playerOrTeam, season string) (*rowSet, error) {
	q := url.Values{}
	q.Set("Counter", "0")
	q.Set("Direction", "ASC")
	q.Set("LeagueID", "00")
	q.Set("PlayerOrTeam", playerOrTeam)
	q.Set("Season", season)
	q.Set("SeasonType", c.seasonType)
	q.Set("Sorter", "DATE")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+leagueGameLogPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building game log request: %w", err)
	}
	// The stats API rejects requests without browser-like headers.
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Referer", "https://www.nba.com/")
	req.Header.Set("Origin", "https://www.nba.com")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching game log %s/%s: %w", playerOrTeam, season, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("game log %s/%s returned %d: %s", playerOrTeam, season, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload resultSets
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding game log %s/%s: %w", playerOrTeam, season, err)
	}
	if len(payload.ResultSets) == 0 {
		return nil, fmt.Errorf("game log %s/%s: no result sets", playerOrTeam, season)
	}

	c.logger.Debugw("Game log fetched",
		"playerOrTeam", playerOrTeam,
		"season", season,
		"rows", len(payload.ResultSets[0].RowSet),
		"duration", time.Since(start),
	)
	set := payload.ResultSets[0]
	return &rowSet{Headers: set.Headers, RowSet: set.RowSet}, nil
}
