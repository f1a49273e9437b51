package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 8080 || cfg.WorkerCount != 4 || cfg.BatchLimit != 25 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.CacheBackend != CacheBackendFile || cfg.HistorySource != HistorySourceStats {
		t.Errorf("backends = %s / %s", cfg.CacheBackend, cfg.HistorySource)
	}
	if cfg.GameTTL != 30*time.Minute || cfg.SlateTTL != 10*time.Minute || cfg.ErrorTTL != 5*time.Minute {
		t.Errorf("ttls = %v %v %v", cfg.GameTTL, cfg.SlateTTL, cfg.ErrorTTL)
	}
	if cfg.Timezone.String() != "America/New_York" {
		t.Errorf("timezone = %v", cfg.Timezone)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SEASONS", " 2022-23, 2023-24 ,2024-25")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("JOB_TIMEOUT", "45s")
	t.Setenv("ROTATION_MIN_MINUTES", "12.5")
	t.Setenv("WORKER_COUNT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if want := []string{"2022-23", "2023-24", "2024-25"}; !reflect.DeepEqual(cfg.Seasons, want) {
		t.Errorf("Seasons = %v", cfg.Seasons)
	}
	if cfg.CurrentSeason() != "2024-25" {
		t.Errorf("CurrentSeason = %s", cfg.CurrentSeason())
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.JobTimeout != 45*time.Second || cfg.RotationMinMinutes != 12.5 {
		t.Errorf("JobTimeout = %v, RotationMinMinutes = %v", cfg.JobTimeout, cfg.RotationMinMinutes)
	}
	if cfg.WorkerCount != 4 {
		t.Errorf("unparseable WORKER_COUNT should fall back, got %d", cfg.WorkerCount)
	}
}

func TestLoad_ConditionalRequirements(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{"Redis Without URL", map[string]string{"CACHE_BACKEND": "redis"}, true},
		{"Redis With URL", map[string]string{"CACHE_BACKEND": "redis", "REDIS_URL": "redis://localhost:6379/0"}, false},
		{"Postgres Without URL", map[string]string{"HISTORY_SOURCE": "postgres"}, true},
		{"Postgres With URL", map[string]string{"HISTORY_SOURCE": "postgres", "POSTGRES_URL": "postgres://localhost/nba"}, false},
		{"Unknown Backend", map[string]string{"CACHE_BACKEND": "memcached"}, true},
		{"Unknown Source", map[string]string{"HISTORY_SOURCE": "csv"}, true},
		{"Bad Timezone", map[string]string{"TIMEZONE": "Mars/Olympus"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
