package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

type mockPG struct{ sql []string }

func (m *mockPG) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.sql = append(m.sql, sql)
	return pgconn.CommandTag{}, nil
}

type mockCH struct {
	stmts  []string
	failOn string
}

func (m *mockCH) Exec(ctx context.Context, query string, args ...any) error {
	if m.failOn != "" && strings.Contains(query, m.failOn) {
		return errors.New("syntax error")
	}
	m.stmts = append(m.stmts, query)
	return nil
}

func TestSplitStatements(t *testing.T) {
	sql := `
-- header comment
CREATE DATABASE IF NOT EXISTS forecast;

-- table comment
CREATE TABLE forecast.predictions (
    id String
) ENGINE = MergeTree() ORDER BY id;
   ;
`
	got := splitStatements(sql)
	if len(got) != 2 {
		t.Fatalf("got %d statements: %q", len(got), got)
	}
	if got[0] != "CREATE DATABASE IF NOT EXISTS forecast" {
		t.Errorf("first = %q", got[0])
	}
	if !strings.HasPrefix(got[1], "CREATE TABLE forecast.predictions") {
		t.Errorf("second = %q", got[1])
	}
}

func TestExecuteSchemaFiles(t *testing.T) {
	logger := zap.NewNop().Sugar()
	ctx := context.Background()

	pg := &mockPG{}
	if err := executePostgresSQL(ctx, pg, filepath.Join("..", "..", "migrations", "postgres", "001_initial_schema.sql"), logger); err != nil {
		t.Fatalf("postgres schema: %v", err)
	}
	if len(pg.sql) != 1 || !strings.Contains(pg.sql[0], "team_game_logs") || !strings.Contains(pg.sql[0], "player_game_logs") {
		t.Errorf("postgres executed %d chunks", len(pg.sql))
	}

	ch := &mockCH{}
	if err := executeClickHouseSQL(ctx, ch, filepath.Join("..", "..", "migrations", "clickhouse", "001_initial_schema.sql"), logger); err != nil {
		t.Fatalf("clickhouse schema: %v", err)
	}
	if len(ch.stmts) != 2 || !strings.Contains(ch.stmts[1], "forecast.predictions") {
		t.Errorf("clickhouse statements = %q", ch.stmts)
	}
}

func TestExecuteClickHouseSQL_Errors(t *testing.T) {
	logger := zap.NewNop().Sugar()
	ctx := context.Background()

	if err := executeClickHouseSQL(ctx, &mockCH{}, "does-not-exist.sql", logger); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "schema.sql")
	os.WriteFile(path, []byte("CREATE DATABASE a; CREATE TABLE broken;"), 0o644)
	ch := &mockCH{failOn: "broken"}
	if err := executeClickHouseSQL(ctx, ch, path, logger); err == nil {
		t.Fatal("expected statement error")
	}
	if len(ch.stmts) != 1 {
		t.Errorf("statements before failure = %d", len(ch.stmts))
	}
}
