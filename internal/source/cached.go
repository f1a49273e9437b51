package source

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hoopcast/forecast-api/internal/cache"
	"github.com/hoopcast/forecast-api/internal/models"
)

// HistorySource provides completed game logs for the configured seasons.
type HistorySource interface {
	TeamLogs(ctx context.Context) ([]models.GameRow, error)
	PlayerLogs(ctx context.Context) ([]models.PlayerGameRow, error)
}

const historyNamespace = "history"

// CachedHistory memoizes upstream logs per calendar day, in memory and in
// the prediction cache so a restart does not refetch the league. Concurrent
// misses for the same day share one upstream call.
type CachedHistory struct {
	upstream HistorySource
	cache    *cache.Service
	now      func() time.Time
	loc      *time.Location
	ttl      time.Duration
	logger   *zap.SugaredLogger

	group singleflight.Group

	mu        sync.Mutex
	teamDay   string
	team      []models.GameRow
	playerDay string
	players   []models.PlayerGameRow
}

// CachedHistoryConfig configures CachedHistory
type CachedHistoryConfig struct {
	Upstream HistorySource
	Cache    *cache.Service
	Now      func() time.Time
	Location *time.Location
	TTL      time.Duration
	Logger   *zap.Logger
}

func NewCachedHistory(cfg CachedHistoryConfig) *CachedHistory {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &CachedHistory{
		upstream: cfg.Upstream,
		cache:    cfg.Cache,
		now:      cfg.Now,
		loc:      cfg.Location,
		ttl:      cfg.TTL,
		logger:   cfg.Logger.Sugar(),
	}
}

func (c *CachedHistory) day() string {
	return c.now().In(c.loc).Format("2006-01-02")
}

// TeamLogs returns today's snapshot of team logs. The returned slice has no
// spare capacity, so appending to it never touches the shared snapshot.
func (c *CachedHistory) TeamLogs(ctx context.Context) ([]models.GameRow, error) {
	day := c.day()
	c.mu.Lock()
	if c.teamDay == day {
		rows := c.team
		c.mu.Unlock()
		return rows[:len(rows):len(rows)], nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("team:"+day, func() (any, error) {
		var rows []models.GameRow
		key := "team_logs:" + day
		if ok, err := c.cache.Get(historyNamespace, key, &rows); err != nil {
			c.logger.Warnw("Cached team logs unreadable", "day", day, "error", err)
		} else if ok {
			return rows, nil
		}
		rows, err := c.upstream.TeamLogs(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(historyNamespace, key, rows, c.ttl); err != nil {
			c.logger.Warnw("Failed to cache team logs", "day", day, "error", err)
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	rows := v.([]models.GameRow)

	c.mu.Lock()
	c.teamDay, c.team = day, rows
	c.mu.Unlock()
	return rows[:len(rows):len(rows)], nil
}

// PlayerLogs returns today's snapshot of the league player log.
func (c *CachedHistory) PlayerLogs(ctx context.Context) ([]models.PlayerGameRow, error) {
	day := c.day()
	c.mu.Lock()
	if c.playerDay == day {
		rows := c.players
		c.mu.Unlock()
		return rows[:len(rows):len(rows)], nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("player:"+day, func() (any, error) {
		var rows []models.PlayerGameRow
		key := "player_logs:" + day
		if ok, err := c.cache.Get(historyNamespace, key, &rows); err != nil {
			c.logger.Warnw("Cached player logs unreadable", "day", day, "error", err)
		} else if ok {
			return rows, nil
		}
		rows, err := c.upstream.PlayerLogs(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(historyNamespace, key, rows, c.ttl); err != nil {
			c.logger.Warnw("Failed to cache player logs", "day", day, "error", err)
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	rows := v.([]models.PlayerGameRow)

	c.mu.Lock()
	c.playerDay, c.players = day, rows
	c.mu.Unlock()
	return rows[:len(rows):len(rows)], nil
}
