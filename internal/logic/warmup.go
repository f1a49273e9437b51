package logic

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Warmer runs the startup warm-up pass in the background and re-warms the
// day's predictions on a cron schedule.
type Warmer struct {
	service  PredictionService
	schedule string
	loc      *time.Location
	timeout  time.Duration
	cron     *cron.Cron
	logger   *zap.SugaredLogger
	done     chan struct{}
}

// WarmerConfig configures the warmer. An empty Schedule disables re-warming.
type WarmerConfig struct {
	Service  PredictionService
	Schedule string
	Location *time.Location
	// Timeout bounds scheduled re-warms only; the startup pass runs to completion.
	Timeout time.Duration
	Logger  *zap.Logger
}

func NewWarmer(cfg WarmerConfig) *Warmer {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Warmer{
		service:  cfg.Service,
		schedule: cfg.Schedule,
		loc:      cfg.Location,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger.Sugar(),
		done:     make(chan struct{}),
	}
}

// Start launches the warm-up pass and the re-warm schedule. It returns an
// error only for an invalid cron expression.
func (w *Warmer) Start(ctx context.Context) error {
	if w.schedule != "" {
		w.cron = cron.New(cron.WithLocation(w.loc))
		if _, err := w.cron.AddFunc(w.schedule, func() {
			runCtx, cancel := context.WithTimeout(ctx, w.timeout)
			defer cancel()
			if err := w.service.Warm(runCtx); err != nil {
				w.logger.Errorw("Scheduled re-warm failed", "error", err)
			}
		}); err != nil {
			return err
		}
		w.cron.Start()
		w.logger.Infow("Re-warm scheduled", "schedule", w.schedule, "location", w.loc.String())
	}

	go func() {
		defer close(w.done)
		w.logger.Info("Starting prediction warm-up")
		// Errors are logged by Warm and reported through WarmError.
		_ = w.service.Warm(ctx)
	}()
	return nil
}

// Done is closed when the startup pass has finished.
func (w *Warmer) Done() <-chan struct{} { return w.done }

// Stop halts the schedule and waits for a running re-warm to finish.
func (w *Warmer) Stop() {
	if w.cron == nil {
		return
	}
	<-w.cron.Stop().Done()
}
