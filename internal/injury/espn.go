package injury

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

const DefaultESPNURL = "https://site.api.espn.com/apis/site/v2/sports/basketball/nba/injuries"

// ESPNClient reads the league injury feed. Entries come back with team ids
// resolved and player ids left for Resolve.
type ESPNClient struct {
	url    string
	http   *http.Client
	logger *zap.SugaredLogger
}

// NewESPNClient creates a feed client. An empty url uses DefaultESPNURL.
func NewESPNClient(url string, httpClient *http.Client, logger *zap.Logger) *ESPNClient {
	if url == "" {
		url = DefaultESPNURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &ESPNClient{url: url, http: httpClient, logger: logger.Sugar()}
}

type espnFeed struct {
	Injuries []struct {
		DisplayName  string `json:"displayName"`
		Abbreviation string `json:"abbreviation"`
		Injuries     []struct {
			Status       string `json:"status"`
			ShortComment string `json:"shortComment"`
			Athlete      struct {
				DisplayName string `json:"displayName"`
				Team        struct {
					Abbreviation string `json:"abbreviation"`
				} `json:"team"`
			} `json:"athlete"`
			Details struct {
				Type string `json:"type"`
			} `json:"details"`
		} `json:"injuries"`
	} `json:"injuries"`
}

// Report fetches the current injury report.
func (c *ESPNClient) Report(ctx context.Context) ([]models.InjuryReportEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building injury request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching injuries: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("injury feed returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var feed espnFeed
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decoding injury feed: %w", err)
	}

	var out []models.InjuryReportEntry
	skipped := 0
	for _, team := range feed.Injuries {
		for _, inj := range team.Injuries {
			abbr := inj.Athlete.Team.Abbreviation
			if abbr == "" {
				abbr = team.Abbreviation
			}
			teamID := models.TeamIDByAbbreviation(abbr)
			if teamID == 0 || inj.Athlete.DisplayName == "" {
				skipped++
				continue
			}
			reason := inj.Details.Type
			if reason == "" {
				reason = inj.ShortComment
			}
			out = append(out, models.InjuryReportEntry{
				TeamID:     teamID,
				PlayerName: inj.Athlete.DisplayName,
				Status:     inj.Status,
				Reason:     reason,
			})
		}
	}
	if skipped > 0 {
		c.logger.Warnw("Skipped unresolvable injury entries", "count", skipped)
	}
	return Dedupe(out), nil
}
