package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/hoopcast/forecast-api/internal/models"
)

var (
	recordsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forecast_prediction_records_written_total",
		Help: "Prediction audit rows written to ClickHouse",
	})

	recordsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forecast_prediction_records_failed_total",
		Help: "Prediction audit rows lost to failed batch inserts",
	})

	recordsShed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forecast_prediction_records_shed_total",
		Help: "Prediction audit rows dropped because the queue was full",
	})

	batchInsertDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "forecast_record_batch_insert_duration_seconds",
		Help:    "Duration of prediction audit batch inserts",
		Buckets: prometheus.DefBuckets,
	})
)

const insertPredictions = `
	INSERT INTO forecast.predictions (
		id, kind, entity_id, game_id, team_id, value, status, created_at
	)
`

// RecorderConfig configures the prediction audit writer
type RecorderConfig struct {
	Conn          driver.Conn
	BatchSize     int
	FlushInterval time.Duration
	QueueSize     int
	Logger        *zap.Logger
}

// Recorder batches prediction records into ClickHouse. Recording never
// blocks the caller; rows are shed when the queue is full.
type Recorder struct {
	config RecorderConfig
	queue  chan models.PredictionRecord
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewRecorder creates a recorder. Call Start before Record.
func NewRecorder(cfg RecorderConfig) *Recorder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10000
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Recorder{
		config: cfg,
		queue:  make(chan models.PredictionRecord, cfg.QueueSize),
		logger: cfg.Logger.Sugar(),
		now:    time.Now,
	}
}

// Start launches the flush loop
func (r *Recorder) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go r.loop()
	r.logger.Infow("Prediction recorder started",
		"batchSize", r.config.BatchSize,
		"flushInterval", r.config.FlushInterval,
	)
}

// Stop flushes whatever is queued and waits for the loop to exit
func (r *Recorder) Stop() {
	r.cancel()
	close(r.queue)
	r.wg.Wait()
	r.logger.Info("Prediction recorder stopped")
}

// Record queues a row. It fills in ID and CreatedAt when they are empty and
// reports false when the row was dropped.
func (r *Recorder) Record(rec models.PredictionRecord) (ok bool) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now().UTC()
	}

	defer func() {
		if rv := recover(); rv != nil {
			r.logger.Warnw("Failed to record prediction (recorder stopped)", "error", rv)
			recordsShed.Inc()
			ok = false
		}
	}()

	select {
	case r.queue <- rec:
		return true
	default:
		recordsShed.Inc()
		return false
	}
}

func (r *Recorder) loop() {
	defer r.wg.Done()

	batch := make([]models.PredictionRecord, 0, r.config.BatchSize)
	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := r.insert(batch); err != nil {
			r.logger.Errorw("Prediction batch insert failed", "batchSize", len(batch), "error", err)
			recordsFailed.Add(float64(len(batch)))
		} else {
			recordsWritten.Add(float64(len(batch)))
		}
		batchInsertDuration.Observe(time.Since(start).Seconds())
		batch = batch[:0]
	}

	for {
		select {
		case rec, ok := <-r.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= r.config.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.ctx.Done():
			// Drain what is already queued before the final insert.
			for rec := range r.queue {
				batch = append(batch, rec)
			}
			flush()
			return
		}
	}
}

func (r *Recorder) insert(batch []models.PredictionRecord) error {
	if r.config.Conn == nil {
		return nil
	}

	// Parent context may already be canceled during shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	chBatch, err := r.config.Conn.PrepareBatch(ctx, insertPredictions)
	if err != nil {
		return err
	}

	for _, rec := range batch {
		if err := chBatch.Append(
			rec.ID,
			rec.Kind,
			rec.EntityID,
			rec.GameID,
			int32(rec.TeamID),
			rec.Value,
			rec.Status,
			rec.CreatedAt,
		); err != nil {
			r.logger.Warnw("Failed to append prediction row", "id", rec.ID, "error", err)
			continue
		}
	}

	return chBatch.Send()
}
