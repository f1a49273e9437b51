package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// MockClickHouseConn implements driver.Conn for testing. Only PrepareBatch
// is used by the recorder; everything else panics via the nil embedded Conn.
type MockClickHouseConn struct {
	driver.Conn

	mu         sync.Mutex
	Queries    []string
	Batches    []*MockBatch
	PrepareErr error
	SendErr    error
}

func (m *MockClickHouseConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PrepareErr != nil {
		return nil, m.PrepareErr
	}
	m.Queries = append(m.Queries, query)
	b := &MockBatch{mu: &m.mu, sendErr: m.SendErr}
	m.Batches = append(m.Batches, b)
	return b, nil
}

// SentRows returns every row from batches that were sent successfully.
func (m *MockClickHouseConn) SentRows() [][]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]interface{}
	for _, b := range m.Batches {
		if b.sent {
			out = append(out, b.rows...)
		}
	}
	return out
}

// MockBatch records appended rows
type MockBatch struct {
	mu      *sync.Mutex
	rows    [][]interface{}
	sent    bool
	sendErr error
}

func (m *MockBatch) IsSent() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

func (m *MockBatch) Rows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *MockBatch) Append(v ...interface{}) error {
	if len(v) != 8 {
		return errors.New("mock batch: wrong column count")
	}
	m.mu.Lock()
	m.rows = append(m.rows, v)
	m.mu.Unlock()
	return nil
}

func (m *MockBatch) AppendStruct(v interface{}) error {
	return nil
}

func (m *MockBatch) Column(int) driver.BatchColumn {
	return nil
}

func (m *MockBatch) Send() error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.mu.Lock()
	m.sent = true
	m.mu.Unlock()
	return nil
}

func (m *MockBatch) Flush() error {
	return nil
}

func (m *MockBatch) Abort() error {
	return nil
}
