package logic

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hoopcast/forecast-api/internal/features"
	"github.com/hoopcast/forecast-api/internal/models"
)

func playerKey(day string, playerID int) string {
	return "predict_player:" + day + ":" + strconv.Itoa(playerID)
}

// PredictPlayer forecasts a player's points in their next game. Expected
// data problems come back as a cached structured status; history and
// feature contract failures are errors.
func (s *predictionService) PredictPlayer(ctx context.Context, playerID int) (*models.PlayerPrediction, error) {
	key := playerKey(s.day(), playerID)

	var cached models.PlayerPrediction
	if ok, err := s.cache.Get(playersNamespace, key, &cached); err != nil {
		s.logger.Warnw("Cached player prediction unreadable", "key", key, "error", err)
	} else if ok {
		predictionsServed.WithLabelValues("player", cached.Status, "cache").Inc()
		return &cached, nil
	}

	pred, err := s.computePlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	ttl := s.playerTTL
	if pred.Status != models.StatusOK {
		ttl = s.errorTTL
	}
	if err := s.cache.Set(playersNamespace, key, pred, ttl); err != nil {
		s.logger.Warnw("Failed to cache player prediction", "key", key, "error", err)
	}
	predictionsServed.WithLabelValues("player", pred.Status, "computed").Inc()
	if s.recorder != nil {
		s.recorder.Record(models.PredictionRecord{
			Kind:     "player",
			EntityID: strconv.Itoa(playerID),
			TeamID:   pred.TeamID,
			Value:    pred.PredictedPoints,
			Status:   pred.Status,
		})
	}
	return pred, nil
}

func (s *predictionService) computePlayer(ctx context.Context, playerID int) (*models.PlayerPrediction, error) {
	pred := &models.PlayerPrediction{PlayerID: playerID, GeneratedAt: s.now().UTC()}
	if s.playerModel == nil {
		pred.Status = models.StatusError
		pred.Error = "player points model is not loaded"
		return pred, nil
	}

	league, err := s.history.PlayerLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching player history: %w", err)
	}

	var rows []models.PlayerGameRow
	for _, r := range league {
		if r.PlayerID == playerID {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		pred.Status = models.StatusNotFound
		pred.Error = fmt.Sprintf("player %d not found in game logs", playerID)
		return pred, nil
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].GameDate.Before(rows[j].GameDate) })

	last := rows[len(rows)-1]
	pred.PlayerName = last.PlayerName
	pred.TeamID = last.TeamID
	pred.GamesPlayed = len(rows)
	fillAverages(pred, rows)

	if len(rows) < minPlayerGames {
		pred.Status = models.StatusInsufficientHistory
		pred.Error = fmt.Sprintf("only %d games played, need at least %d", len(rows), minPlayerGames)
		return pred, nil
	}

	if upcoming, ok := s.upcomingRow(ctx, last, rows); ok {
		rows = append(rows, upcoming)
	}

	err = s.run(ctx, func(ctx context.Context) error {
		m := s.players.Build(rows, league)
		proj, err := m.Project(s.playerModel.FeatureNames())
		if err != nil {
			return err
		}
		i, ok := m.LatestValid(func(k features.RowKey) bool { return k.PlayerID == playerID })
		if !ok {
			pred.Status = models.StatusInsufficientHistory
			pred.Error = "recent games do not yield a complete feature row"
			missing := m.MissingColumns(m.Len() - 1)
			if len(missing) > maxMissingShown {
				missing = missing[:maxMissingShown]
			}
			pred.MissingFeatures = missing
			return nil
		}
		pred.PredictedPoints = round(s.playerModel.Predict(proj.Row(i)), 1)
		pred.Status = models.StatusOK
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pred, nil
}

// upcomingRow returns the pre-game row for today's game when the player's
// team is on the slate and the game is not already in the log.
func (s *predictionService) upcomingRow(ctx context.Context, last models.PlayerGameRow, rows []models.PlayerGameRow) (models.PlayerGameRow, bool) {
	board, err := s.todaysBoard(ctx)
	if err != nil {
		s.logger.Warnw("Schedule unavailable, predicting from last game", "playerID", last.PlayerID, "error", err)
		return models.PlayerGameRow{}, false
	}
	for _, g := range board.Games {
		if g.HomeTeam.TeamID != last.TeamID && g.AwayTeam.TeamID != last.TeamID {
			continue
		}
		for _, r := range rows {
			if r.GameID == g.GameID {
				return models.PlayerGameRow{}, false
			}
		}
		return models.ScheduledPlayerRow(last, g, board.GameDate, s.season), true
	}
	return models.PlayerGameRow{}, false
}

// fillAverages sets the recent and season scoring context from played games.
func fillAverages(pred *models.PlayerPrediction, rows []models.PlayerGameRow) {
	season := rows[len(rows)-1].Season
	var seasonSum float64
	var seasonN int
	var played []float64
	for _, r := range rows {
		if !r.Points.Defined() {
			continue
		}
		played = append(played, float64(r.Points))
		if r.Season == season {
			seasonSum += float64(r.Points)
			seasonN++
		}
	}
	if len(played) > 5 {
		played = played[len(played)-5:]
	}
	pred.Last5Games = played
	if len(played) > 0 {
		var sum float64
		for _, p := range played {
			sum += p
		}
		pred.RecentAvg = round(sum/float64(len(played)), 1)
	}
	if seasonN > 0 {
		pred.SeasonAvg = round(seasonSum/float64(seasonN), 1)
	}
}

// PredictPlayers forecasts up to the batch limit of distinct players
// concurrently. One player's failure never affects another's entry.
func (s *predictionService) PredictPlayers(ctx context.Context, playerIDs []int) (map[string]models.BatchResult, error) {
	ids := s.capBatch(playerIDs)
	results := make(map[string]models.BatchResult, len(ids))
	var mu sync.Mutex

	s.fanOutPlayers(ctx, ids, func(id int, pred *models.PlayerPrediction, err error) {
		var res models.BatchResult
		switch {
		case err != nil:
			res.Error = err.Error()
		case pred.Status != models.StatusOK:
			res.Error = pred.Error
		default:
			points := pred.PredictedPoints
			res.Points = &points
		}
		mu.Lock()
		results[strconv.Itoa(id)] = res
		mu.Unlock()
	})
	return results, nil
}

// PlayerProps returns predictions at or above threshold with their spread
// against recent and season averages, highest first. With no ids it covers
// today's rotation players.
func (s *predictionService) PlayerProps(ctx context.Context, playerIDs []int, threshold float64) ([]models.PlayerProp, error) {
	var ids []int
	if len(playerIDs) == 0 {
		var err error
		if ids, err = s.todaysRotation(ctx); err != nil {
			return nil, err
		}
	} else {
		ids = s.capBatch(playerIDs)
	}

	var mu sync.Mutex
	props := []models.PlayerProp{}
	s.fanOutPlayers(ctx, ids, func(id int, pred *models.PlayerPrediction, err error) {
		if err != nil {
			s.logger.Warnw("Player prop skipped", "playerID", id, "error", err)
			return
		}
		if pred.Status != models.StatusOK || pred.PredictedPoints < threshold {
			return
		}
		vsRecent := pred.PredictedPoints - pred.RecentAvg
		confidence := "medium"
		if math.Abs(vsRecent) < 3 {
			confidence = "high"
		}
		prop := models.PlayerProp{
			PlayerPrediction: pred,
			VsRecentAvg:      round(vsRecent, 1),
			VsSeasonAvg:      round(pred.PredictedPoints-pred.SeasonAvg, 1),
			Confidence:       confidence,
		}
		mu.Lock()
		props = append(props, prop)
		mu.Unlock()
	})

	sort.Slice(props, func(i, j int) bool {
		if props[i].PredictedPoints != props[j].PredictedPoints {
			return props[i].PredictedPoints > props[j].PredictedPoints
		}
		return props[i].PlayerID < props[j].PlayerID
	})
	return props, nil
}

func (s *predictionService) fanOutPlayers(ctx context.Context, ids []int, each func(id int, pred *models.PlayerPrediction, err error)) {
	var g errgroup.Group
	g.SetLimit(s.fanOut)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			pred, err := s.PredictPlayer(ctx, id)
			each(id, pred, err)
			return nil
		})
	}
	g.Wait()
}

func (s *predictionService) capBatch(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		if len(out) == s.batchLimit {
			break
		}
	}
	return out
}

// todaysRotation lists players on today's teams whose last five games
// average at least the props minutes threshold.
func (s *predictionService) todaysRotation(ctx context.Context) ([]int, error) {
	board, err := s.todaysBoard(ctx)
	if err != nil {
		return nil, err
	}
	playing := make(map[int]bool, len(board.Games)*2)
	for _, g := range board.Games {
		playing[g.HomeTeam.TeamID] = true
		playing[g.AwayTeam.TeamID] = true
	}
	if len(playing) == 0 {
		return nil, nil
	}

	league, err := s.history.PlayerLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching player history: %w", err)
	}

	byPlayer := make(map[int][]models.PlayerGameRow)
	for _, r := range league {
		if playing[r.TeamID] {
			byPlayer[r.PlayerID] = append(byPlayer[r.PlayerID], r)
		}
	}

	var ids []int
	for id, rows := range byPlayer {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].GameDate.Before(rows[j].GameDate) })
		if len(rows) > 5 {
			rows = rows[len(rows)-5:]
		}
		var sum float64
		var n int
		for _, r := range rows {
			if r.Minutes.Defined() {
				sum += float64(r.Minutes)
				n++
			}
		}
		if n > 0 && sum/float64(n) >= s.propsMinMinutes {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}
