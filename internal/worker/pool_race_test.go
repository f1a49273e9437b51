package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hoopcast/forecast-api/internal/models"
	"go.uber.org/zap"
)

func TestPool_RaceCondition(t *testing.T) {
	pool := NewPool(PoolConfig{
		WorkerCount: 4,
		QueueSize:   64,
		JobTimeout:  5 * time.Second,
		Logger:      zap.NewNop(),
	})
	pool.Start(context.Background())

	conn := &MockClickHouseConn{}
	rec := NewRecorder(RecorderConfig{
		Conn:          conn,
		BatchSize:     10,
		FlushInterval: 10 * time.Millisecond,
		QueueSize:     2000,
		Logger:        zap.NewNop(),
	})
	rec.Start(context.Background())

	var done atomic.Int64
	wg := sync.WaitGroup{}
	callers := 10
	jobsPerCaller := 100

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < jobsPerCaller; j++ {
				err := pool.Do(context.Background(), func(ctx context.Context) error {
					rec.Record(models.PredictionRecord{
						Kind:     "game",
						EntityID: fmt.Sprintf("%d-%d", i, j),
					})
					done.Add(1)
					return nil
				})
				if err != nil {
					t.Errorf("Do failed: %v", err)
					return
				}
			}
		}(i)
	}

	wg.Wait()
	pool.Stop()
	rec.Stop()

	if got := done.Load(); got != int64(callers*jobsPerCaller) {
		t.Errorf("ran %d jobs, want %d", got, callers*jobsPerCaller)
	}
	if got := len(conn.SentRows()); got != callers*jobsPerCaller {
		t.Errorf("recorded %d rows, want %d", got, callers*jobsPerCaller)
	}
}
