package logic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/hoopcast/forecast-api/internal/features"
	"github.com/hoopcast/forecast-api/internal/injury"
	"github.com/hoopcast/forecast-api/internal/models"
)

// ErrGameNotFound means the requested game is not on today's slate.
var ErrGameNotFound = errors.New("game not found on today's slate")

const (
	gamesNamespace   = "game_predictions"
	playersNamespace = "player_predictions"

	dayLayout       = "2006-01-02"
	scheduleMaxAge  = time.Minute
	minPlayerGames  = 3
	maxMissingShown = 5
)

var predictionsServed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "forecast_predictions_served_total",
	Help: "Predictions returned by kind, status and origin",
}, []string{"kind", "status", "origin"})

// PredictionConfig wires the prediction service
type PredictionConfig struct {
	History  HistorySource
	Schedule ScheduleSource
	Injuries InjurySource // optional; predictions proceed without injury context

	WinModel    WinModel
	PointsModel PointsModel // optional team points regressor
	PlayerModel PointsModel // optional player points regressor

	Teams   *features.TeamAssembler
	Players *features.PlayerAssembler

	Cache    Cache
	Runner   Runner   // optional; work runs inline when nil
	Recorder Recorder // optional

	Clock         func() time.Time
	Location      *time.Location
	CurrentSeason string

	GameTTL   time.Duration
	SlateTTL  time.Duration
	PlayerTTL time.Duration
	ErrorTTL  time.Duration

	BatchLimit         int
	FanOut             int
	RotationMinMinutes float64
	PropsMinMinutes    float64

	Logger *zap.Logger
}

type predictionService struct {
	history  HistorySource
	schedule ScheduleSource
	injuries InjurySource

	winModel    WinModel
	pointsModel PointsModel
	playerModel PointsModel

	teams   *features.TeamAssembler
	players *features.PlayerAssembler

	cache    Cache
	runner   Runner
	recorder Recorder

	now    func() time.Time
	loc    *time.Location
	season string

	gameTTL, slateTTL, playerTTL, errorTTL time.Duration

	batchLimit         int
	fanOut             int
	rotationMinMinutes float64
	propsMinMinutes    float64

	ready   atomic.Bool
	warmMu  sync.Mutex
	warmErr error

	boardMu sync.Mutex
	board   *models.Scoreboard
	boardAt time.Time

	logger *zap.SugaredLogger
}

func NewPredictionService(cfg PredictionConfig) PredictionService {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Teams == nil {
		cfg.Teams = features.NewTeamAssembler()
	}
	if cfg.Players == nil {
		var names []string
		if cfg.PlayerModel != nil {
			names = cfg.PlayerModel.FeatureNames()
		}
		cfg.Players = features.NewPlayerAssembler(features.OptionsFor(names))
	}
	if cfg.GameTTL <= 0 {
		cfg.GameTTL = 30 * time.Minute
	}
	if cfg.SlateTTL <= 0 {
		cfg.SlateTTL = 10 * time.Minute
	}
	if cfg.PlayerTTL <= 0 {
		cfg.PlayerTTL = 30 * time.Minute
	}
	if cfg.ErrorTTL <= 0 {
		cfg.ErrorTTL = 5 * time.Minute
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 25
	}
	if cfg.FanOut <= 0 {
		cfg.FanOut = 4
	}
	if cfg.PropsMinMinutes <= 0 {
		cfg.PropsMinMinutes = 20
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &predictionService{
		history:            cfg.History,
		schedule:           cfg.Schedule,
		injuries:           cfg.Injuries,
		winModel:           cfg.WinModel,
		pointsModel:        cfg.PointsModel,
		playerModel:        cfg.PlayerModel,
		teams:              cfg.Teams,
		players:            cfg.Players,
		cache:              cfg.Cache,
		runner:             cfg.Runner,
		recorder:           cfg.Recorder,
		now:                cfg.Clock,
		loc:                cfg.Location,
		season:             cfg.CurrentSeason,
		gameTTL:            cfg.GameTTL,
		slateTTL:           cfg.SlateTTL,
		playerTTL:          cfg.PlayerTTL,
		errorTTL:           cfg.ErrorTTL,
		batchLimit:         cfg.BatchLimit,
		fanOut:             cfg.FanOut,
		rotationMinMinutes: cfg.RotationMinMinutes,
		propsMinMinutes:    cfg.PropsMinMinutes,
		logger:             cfg.Logger.Sugar(),
	}
}

func (s *predictionService) day() string {
	return s.now().In(s.loc).Format(dayLayout)
}

func gameKey(day, gameID string) string { return "predict_game:" + day + ":" + gameID }
func slateKey(day string) string        { return "predict_slate:" + day }

func (s *predictionService) run(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.runner == nil {
		return fn(ctx)
	}
	return s.runner.Do(ctx, fn)
}

func (s *predictionService) Ready() bool { return s.ready.Load() }

func (s *predictionService) WarmError() error {
	s.warmMu.Lock()
	defer s.warmMu.Unlock()
	return s.warmErr
}

func (s *predictionService) Warm(ctx context.Context) error {
	start := time.Now()
	_, err := s.computeSlate(ctx, s.day())

	s.warmMu.Lock()
	s.warmErr = err
	s.warmMu.Unlock()
	s.ready.Store(true)

	if err != nil {
		s.logger.Errorw("Warm-up failed", "error", err, "duration", time.Since(start))
		return err
	}
	s.logger.Infow("Warm-up complete", "duration", time.Since(start))
	return nil
}

// TodaysGames returns the live slate.
func (s *predictionService) TodaysGames(ctx context.Context) (*models.Scoreboard, error) {
	return s.todaysBoard(ctx)
}

// todaysBoard memoizes the scoreboard briefly so fan-out requests share one fetch.
func (s *predictionService) todaysBoard(ctx context.Context) (*models.Scoreboard, error) {
	s.boardMu.Lock()
	if s.board != nil && s.now().Sub(s.boardAt) < scheduleMaxAge {
		b := s.board
		s.boardMu.Unlock()
		return b, nil
	}
	s.boardMu.Unlock()

	board, err := s.schedule.Today(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching today's schedule: %w", err)
	}

	s.boardMu.Lock()
	s.board, s.boardAt = board, s.now()
	s.boardMu.Unlock()
	return board, nil
}

func (s *predictionService) PredictGame(ctx context.Context, gameID string) (*models.GamePrediction, error) {
	day := s.day()
	key := gameKey(day, gameID)

	var cached models.GamePrediction
	if ok, err := s.cache.Get(gamesNamespace, key, &cached); err != nil {
		s.logger.Warnw("Cached game prediction unreadable", "key", key, "error", err)
	} else if ok {
		predictionsServed.WithLabelValues("game", cached.Status, "cache").Inc()
		return &cached, nil
	}

	if !s.Ready() {
		predictionsServed.WithLabelValues("game", models.StatusWarmingUp, "gate").Inc()
		return &models.GamePrediction{
			GameID:      gameID,
			Status:      models.StatusWarmingUp,
			Error:       "predictions are warming up, retry shortly",
			GeneratedAt: s.now().UTC(),
		}, nil
	}

	board, err := s.todaysBoard(ctx)
	if err != nil {
		return nil, err
	}
	game, ok := board.Game(gameID)
	if !ok {
		return nil, ErrGameNotFound
	}

	preds, err := s.predictGames(ctx, board, []models.ScheduledGame{game})
	if err != nil {
		return nil, err
	}
	pred := preds[0]
	if err := s.cache.Set(gamesNamespace, key, pred, s.predictionTTL(pred)); err != nil {
		s.logger.Warnw("Failed to cache game prediction", "key", key, "error", err)
	}
	predictionsServed.WithLabelValues("game", pred.Status, "computed").Inc()
	return pred, nil
}

func (s *predictionService) PredictSlate(ctx context.Context) (*models.SlatePrediction, error) {
	day := s.day()

	var cached models.SlatePrediction
	if ok, err := s.cache.Get(gamesNamespace, slateKey(day), &cached); err != nil {
		s.logger.Warnw("Cached slate unreadable", "day", day, "error", err)
	} else if ok {
		predictionsServed.WithLabelValues("slate", cached.Status, "cache").Inc()
		return &cached, nil
	}

	if !s.Ready() {
		predictionsServed.WithLabelValues("slate", models.StatusWarmingUp, "gate").Inc()
		return &models.SlatePrediction{
			GameDate:    day,
			Status:      models.StatusWarmingUp,
			Games:       []*models.GamePrediction{},
			Error:       "predictions are warming up, retry shortly",
			GeneratedAt: s.now().UTC(),
		}, nil
	}

	slate, err := s.computeSlate(ctx, day)
	if err != nil {
		return nil, err
	}
	predictionsServed.WithLabelValues("slate", slate.Status, "computed").Inc()
	return slate, nil
}

// predictionTTL keeps ok results for the game TTL and expected-error
// statuses for the short error TTL.
func (s *predictionService) predictionTTL(p *models.GamePrediction) time.Duration {
	if p.Status != models.StatusOK {
		return s.errorTTL
	}
	return s.gameTTL
}

// computeSlate predicts every game on the slate and caches the slate and
// each game under the day's keys.
func (s *predictionService) computeSlate(ctx context.Context, day string) (*models.SlatePrediction, error) {
	board, err := s.todaysBoard(ctx)
	if err != nil {
		return nil, err
	}
	preds, err := s.predictGames(ctx, board, board.Games)
	if err != nil {
		return nil, err
	}

	slate := &models.SlatePrediction{
		GameDate:    board.GameDate.Format(dayLayout),
		Status:      models.StatusOK,
		Games:       preds,
		GeneratedAt: s.now().UTC(),
	}
	for _, p := range preds {
		if err := s.cache.Set(gamesNamespace, gameKey(day, p.GameID), p, s.predictionTTL(p)); err != nil {
			s.logger.Warnw("Failed to cache game prediction", "gameID", p.GameID, "error", err)
		}
	}
	if err := s.cache.Set(gamesNamespace, slateKey(day), slate, s.slateTTL); err != nil {
		s.logger.Warnw("Failed to cache slate", "day", day, "error", err)
	}
	return slate, nil
}

// predictGames builds the team matrix over history plus today's scheduled
// rows and predicts the requested games from it.
func (s *predictionService) predictGames(ctx context.Context, board *models.Scoreboard, games []models.ScheduledGame) ([]*models.GamePrediction, error) {
	if len(games) == 0 {
		return []*models.GamePrediction{}, nil
	}

	history, err := s.history.TeamLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching team history: %w", err)
	}

	today := board.Rows(s.season)
	scheduled := make(map[string]bool, len(board.Games))
	for _, g := range board.Games {
		scheduled[g.GameID] = true
	}

	// Today's games may already appear in the log once tipped off; the
	// scheduled pair replaces them so each game keeps exactly two rows.
	rows := make([]models.GameRow, 0, len(history)+len(today))
	gamesFound := make(map[int]int)
	for _, r := range history {
		if scheduled[r.GameID] {
			continue
		}
		rows = append(rows, r)
		if r.Outcome.Known() {
			gamesFound[r.TeamID]++
		}
	}
	rows = append(rows, today...)

	inj := s.injuryImpacts(ctx, board)
	generated := s.now().UTC()

	var out []*models.GamePrediction
	err = s.run(ctx, func(ctx context.Context) error {
		m := s.teams.Build(rows, inj)
		win, err := m.Project(s.winModel.FeatureNames())
		if err != nil {
			return err
		}
		var pts *features.Projection
		if s.pointsModel != nil {
			if pts, err = m.Project(s.pointsModel.FeatureNames()); err != nil {
				return err
			}
		}

		out = make([]*models.GamePrediction, 0, len(games))
		for _, g := range games {
			pred, err := s.predictGame(m, win, pts, g, gamesFound)
			if err != nil {
				return fmt.Errorf("game %s: %w", g.GameID, err)
			}
			pred.GeneratedAt = generated
			out = append(out, pred)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, p := range out {
		s.recordGame(p)
	}
	return out, nil
}

func (s *predictionService) predictGame(m *features.Matrix, win, pts *features.Projection, g models.ScheduledGame, gamesFound map[int]int) (*models.GamePrediction, error) {
	side := func(team models.ScheduledTeam, home bool) (*models.TeamPrediction, float64, error) {
		tp := &models.TeamPrediction{
			TeamID:  team.TeamID,
			Team:    team.TeamName,
			Tricode: team.Tricode,
			IsHome:  home,
		}
		i, ok := m.Lookup(features.RowKey{GameID: g.GameID, TeamID: team.TeamID})
		if !ok || !m.Valid(i) {
			tp.Status = models.StatusInsufficientHistory
			tp.GamesFound = gamesFound[team.TeamID]
			tp.Error = fmt.Sprintf("not enough history to build features: %d games found", tp.GamesFound)
			return tp, math.NaN(), nil
		}
		p, err := s.winModel.PredictProba(win.Row(i))
		if err != nil {
			return nil, 0, err
		}
		tp.Status = models.StatusOK
		if pts != nil {
			tp.PredictedPoints = round(s.pointsModel.Predict(pts.Row(i)), 1)
		}
		return tp, p, nil
	}

	home, ph, err := side(g.HomeTeam, true)
	if err != nil {
		return nil, err
	}
	away, pa, err := side(g.AwayTeam, false)
	if err != nil {
		return nil, err
	}

	pred := &models.GamePrediction{GameID: g.GameID, Home: home, Away: away}
	if home.Status != models.StatusOK || away.Status != models.StatusOK {
		pred.Status = models.StatusInsufficientHistory
		pred.Error = "one or both teams lack enough history"
		return pred, nil
	}

	home.WinProbability, away.WinProbability = normalize(ph, pa)
	if pts != nil {
		pred.PredictedTotal = round(home.PredictedPoints+away.PredictedPoints, 1)
	}
	pred.Status = models.StatusOK
	return pred, nil
}

// normalize scales a pair of raw win probabilities to sum to one, rounded
// to three decimals.
func normalize(a, b float64) (float64, float64) {
	total := a + b
	if total <= 0 {
		return 0.5, 0.5
	}
	return round(a/total, 3), round(b/total, 3)
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// injuryImpacts scores the current report and attaches it to today's rows
// only. Any failure degrades to no injury context.
func (s *predictionService) injuryImpacts(ctx context.Context, board *models.Scoreboard) *features.Injuries {
	if s.injuries == nil || len(board.Games) == 0 {
		return nil
	}
	report, err := s.injuries.Report(ctx)
	if err != nil {
		s.logger.Warnw("Injury report unavailable, predicting without it", "error", err)
		return nil
	}

	// A nil rotation weighs every reported player at 1.0.
	var rotation injury.Rotation
	if logs, err := s.history.PlayerLogs(ctx); err != nil {
		s.logger.Warnw("Player logs unavailable for injury weighting", "error", err)
	} else {
		var season []models.PlayerGameRow
		for _, r := range logs {
			if s.season == "" || r.Season == s.season {
				season = append(season, r)
			}
		}
		if rot := injury.RotationFromLogs(season, s.rotationMinMinutes); len(rot) > 0 {
			rotation = rot
		}
	}
	zeroMinutes := injury.ZeroMinuteOuts(rotation)
	report = append(report[:len(report):len(report)], zeroMinutes...)
	resolved := injury.Resolve(report, rotation)
	impacts := injury.Score(resolved, rotation)

	inj := &features.Injuries{Games: make(map[features.RowKey]models.InjuryImpact, len(board.Games)*2)}
	for _, g := range board.Games {
		for _, t := range []models.ScheduledTeam{g.HomeTeam, g.AwayTeam} {
			inj.Games[features.RowKey{GameID: g.GameID, TeamID: t.TeamID}] = impacts.Impact(t.TeamID)
		}
	}
	s.logger.Infow("Injury impacts scored",
		"reportEntries", len(report),
		"zeroMinute", len(zeroMinutes),
		"resolved", len(resolved),
		"teamsAffected", len(impacts),
	)
	return inj
}

func (s *predictionService) recordGame(p *models.GamePrediction) {
	if s.recorder == nil {
		return
	}
	for _, side := range []*models.TeamPrediction{p.Home, p.Away} {
		if side == nil {
			continue
		}
		s.recorder.Record(models.PredictionRecord{
			Kind:     "game",
			EntityID: strconv.Itoa(side.TeamID),
			GameID:   p.GameID,
			TeamID:   side.TeamID,
			Value:    side.WinProbability,
			Status:   side.Status,
		})
	}
}
