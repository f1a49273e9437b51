package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hoopcast/forecast-api/internal/models"
)

const DefaultScoreboardURL = "https://cdn.nba.com/static/json/liveData/scoreboard/todaysScoreboard_00.json"

// ScoreboardClient reads the live scoreboard for today's slate.
type ScoreboardClient struct {
	url    string
	http   *http.Client
	logger *zap.SugaredLogger
}

func NewScoreboardClient(url string, httpClient *http.Client, logger *zap.Logger) *ScoreboardClient {
	if url == "" {
		url = DefaultScoreboardURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScoreboardClient{url: url, http: httpClient, logger: logger.Sugar()}
}

type liveTeam struct {
	TeamID      int    `json:"teamId"`
	TeamName    string `json:"teamName"`
	TeamCity    string `json:"teamCity"`
	TeamTricode string `json:"teamTricode"`
}

func (t liveTeam) scheduled() models.ScheduledTeam {
	return models.ScheduledTeam{
		TeamID:   t.TeamID,
		TeamName: t.TeamName,
		TeamCity: t.TeamCity,
		Tricode:  t.TeamTricode,
	}
}

type liveScoreboard struct {
	Scoreboard struct {
		GameDate string `json:"gameDate"`
		Games    []struct {
			GameID         string   `json:"gameId"`
			GameStatusText string   `json:"gameStatusText"`
			GameEt         string   `json:"gameEt"`
			HomeTeam       liveTeam `json:"homeTeam"`
			AwayTeam       liveTeam `json:"awayTeam"`
		} `json:"games"`
	} `json:"scoreboard"`
}

// Today returns the current scoreboard slate.
func (c *ScoreboardClient) Today(ctx context.Context) (*models.Scoreboard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building scoreboard request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching scoreboard: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("scoreboard returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var live liveScoreboard
	if err := json.NewDecoder(resp.Body).Decode(&live); err != nil {
		return nil, fmt.Errorf("decoding scoreboard: %w", err)
	}

	date, err := models.ParseGameDate(live.Scoreboard.GameDate)
	if err != nil {
		return nil, fmt.Errorf("scoreboard: %w", err)
	}

	board := &models.Scoreboard{GameDate: date, Games: make([]models.ScheduledGame, 0, len(live.Scoreboard.Games))}
	for _, g := range live.Scoreboard.Games {
		sg := models.ScheduledGame{
			GameID:   g.GameID,
			Status:   strings.TrimSpace(g.GameStatusText),
			HomeTeam: g.HomeTeam.scheduled(),
			AwayTeam: g.AwayTeam.scheduled(),
		}
		// gameEt carries Eastern wall-clock time despite its "Z" suffix.
		if t, err := time.Parse("2006-01-02T15:04:05Z", g.GameEt); err == nil {
			sg.GameTimeET = t
		}
		board.Games = append(board.Games, sg)
	}
	return board, nil
}
