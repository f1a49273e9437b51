package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type chExecer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// executePostgresSQL reads a SQL file and executes it on Postgres in one call
func executePostgresSQL(ctx context.Context, pg pgExecer, path string, logger *zap.SugaredLogger) error {
	content, err := os.ReadFile(path)
	if err != nil {
		logger.Errorw("failed to read schema file", "db", "PostgreSQL", "path", path, "error", err)
		return err
	}

	if _, err := pg.Exec(ctx, string(content)); err != nil {
		logger.Errorw("failed to execute schema", "db", "PostgreSQL", "error", err)
		return err
	}

	logger.Infow("successfully installed schema", "db", "PostgreSQL", "path", path)
	return nil
}

// executeClickHouseSQL reads a SQL file and executes it statement by
// statement; the ClickHouse driver rejects multi-statement queries.
func executeClickHouseSQL(ctx context.Context, ch chExecer, path string, logger *zap.SugaredLogger) error {
	content, err := os.ReadFile(path)
	if err != nil {
		logger.Errorw("failed to read schema file", "db", "ClickHouse", "path", path, "error", err)
		return err
	}

	for _, stmt := range splitStatements(string(content)) {
		if err := ch.Exec(ctx, stmt); err != nil {
			logger.Warnw("statement execution failed", "db", "ClickHouse", "error", err, "statement", preview(stmt))
			return fmt.Errorf("executing %q: %w", preview(stmt), err)
		}
	}

	logger.Infow("successfully installed schema", "db", "ClickHouse", "path", path)
	return nil
}

// splitStatements splits on ";" and drops blank and comment-only chunks.
func splitStatements(sql string) []string {
	var out []string
	for _, stmt := range strings.Split(sql, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" && !strings.HasPrefix(trimmed, "--") {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			out = append(out, strings.TrimSpace(strings.Join(lines, "\n")))
		}
	}
	return out
}

func preview(stmt string) string {
	if len(stmt) > 50 {
		return stmt[:50] + "..."
	}
	return stmt
}
