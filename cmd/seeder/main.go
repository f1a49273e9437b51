// Command seeder mirrors stats API league game logs into Postgres so the
// server can run with HISTORY_SOURCE=postgres.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hoopcast/forecast-api/internal/config"
	"github.com/hoopcast/forecast-api/internal/source"
)

func main() {
	seasonsFlag := flag.String("seasons", "", "comma-separated seasons to load (default SEASONS)")
	schema := flag.Bool("schema", false, "install the database schema before loading")
	migrations := flag.String("migrations", "migrations", "directory holding postgres/ and clickhouse/ schema files")
	pause := flag.Duration("pause", 2*time.Second, "pause between seasons to respect stats API rate limits")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalw("Invalid configuration", "error", err)
	}
	if cfg.PostgresURL == "" {
		sugar.Fatal("POSTGRES_URL is required")
	}
	seasons := cfg.Seasons
	if *seasonsFlag != "" {
		seasons = nil
		for _, s := range strings.Split(*seasonsFlag, ",") {
			if s = strings.TrimSpace(s); s != "" {
				seasons = append(seasons, s)
			}
		}
	}

	ctx := context.Background()
	pg, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		sugar.Fatalw("Failed to connect to Postgres", "error", err)
	}
	defer pg.Close()

	if *schema {
		if err := installSchema(ctx, cfg, pg, *migrations, sugar); err != nil {
			sugar.Fatalw("Schema installation failed", "error", err)
		}
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}
	failed := 0
	for i, season := range seasons {
		if i > 0 {
			time.Sleep(*pause)
		}
		if err := seedSeason(ctx, pg, season, cfg.StatsBaseURL, httpClient, logger); err != nil {
			sugar.Errorw("Season failed", "season", season, "error", err)
			failed++
		}
	}
	if failed > 0 {
		sugar.Errorw("Seeding finished with failures", "failed", failed, "seasons", len(seasons))
		os.Exit(1)
	}
	sugar.Infow("Seeding complete", "seasons", seasons)
}

func installSchema(ctx context.Context, cfg *config.Config, pg *pgxpool.Pool, dir string, logger *zap.SugaredLogger) error {
	if err := executePostgresSQL(ctx, pg, filepath.Join(dir, "postgres", "001_initial_schema.sql"), logger); err != nil {
		return err
	}
	if cfg.ClickHouseURL == "" {
		logger.Info("CLICKHOUSE_URL not set, skipping prediction log schema")
		return nil
	}
	opts, err := clickhouse.ParseDSN(cfg.ClickHouseURL)
	if err != nil {
		return fmt.Errorf("parsing clickhouse dsn: %w", err)
	}
	ch, err := clickhouse.Open(opts)
	if err != nil {
		return fmt.Errorf("connecting to clickhouse: %w", err)
	}
	defer ch.Close()
	return executeClickHouseSQL(ctx, ch, filepath.Join(dir, "clickhouse", "001_initial_schema.sql"), logger)
}

// seedSeason fetches one season's team and player logs and swaps them in
// within a single transaction.
func seedSeason(ctx context.Context, pg *pgxpool.Pool, season, baseURL string, httpClient *http.Client, logger *zap.Logger) error {
	start := time.Now()
	client := source.NewStatsClient(source.StatsConfig{
		BaseURL:    baseURL,
		Seasons:    []string{season},
		HTTPClient: httpClient,
		Logger:     logger,
	})

	teams, err := client.TeamLogs(ctx)
	if err != nil {
		return err
	}
	players, err := client.PlayerLogs(ctx)
	if err != nil {
		return err
	}

	tx, err := pg.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	n, err := source.ReplaceSeason(ctx, tx, season, teams, players)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing %s: %w", season, err)
	}

	logger.Sugar().Infow("Season loaded",
		"season", season,
		"teamRows", len(teams),
		"playerRows", len(players),
		"copied", n,
		"duration", time.Since(start),
	)
	return nil
}
