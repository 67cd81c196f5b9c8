// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SyncConfig は同期キュー1本分のスケジュール設定。
type SyncConfig struct {
	Schedule  string        // cron式（標準5フィールド）
	BatchSize int           // 1サイクルで取り出す最大件数
	CallDelay time.Duration // 外部呼び出し間の待機時間
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Auth
	JWTSecret string

	// Server
	ServerPort         string
	CORSAllowedOrigins []string
	RateLimitGeneral   int // req/min/client

	// Logging
	LogLevel slog.Level

	// 外部サービス
	SolvedacBaseURL   string
	BojBaseURL        string
	RepoRootDir       string
	ExternalTimeout   time.Duration
	ExternalRateLimit float64 // req/sec（上流クライアントごと）

	// Sync
	SyncWarmUp   time.Duration
	ProblemSync  SyncConfig
	JudgeSync    SyncConfig
	GitSync      SyncConfig
	SeedSchedule string

	// 連携解除された作業コピーの削除
	RepoPruneSchedule string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数の未設定とcron式の不正はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGIN", []string{"http://localhost:3000"})
	cfg.RateLimitGeneral = getEnvPositiveInt("RATE_LIMIT_GENERAL", 120)
	cfg.LogLevel = getEnvLogLevel("LOG_LEVEL", slog.LevelInfo)

	cfg.SolvedacBaseURL = strings.TrimRight(getEnvString("SOLVEDAC_BASE_URL", "https://solved.ac/api/v3"), "/")
	cfg.BojBaseURL = strings.TrimRight(getEnvString("BOJ_BASE_URL", "https://www.acmicpc.net"), "/")
	cfg.RepoRootDir = getEnvString("REPO_ROOT_DIR", "./repos")
	cfg.ExternalTimeout = getEnvPositiveDuration("EXTERNAL_TIMEOUT", 10*time.Second)
	cfg.ExternalRateLimit = getEnvPositiveFloat("EXTERNAL_RATE_LIMIT", 1)

	cfg.SyncWarmUp = getEnvDuration("SYNC_WARMUP", 5*time.Second)
	cfg.ProblemSync = SyncConfig{
		Schedule:  getEnvString("PROBLEM_SYNC_SCHEDULE", "* * * * *"),
		BatchSize: getEnvPositiveInt("PROBLEM_SYNC_BATCH", 10),
		CallDelay: getEnvDuration("PROBLEM_SYNC_DELAY", 5*time.Second),
	}
	cfg.JudgeSync = SyncConfig{
		Schedule:  getEnvString("JUDGE_SYNC_SCHEDULE", "* * * * *"),
		BatchSize: getEnvPositiveInt("JUDGE_SYNC_BATCH", 5),
		CallDelay: getEnvDuration("JUDGE_SYNC_DELAY", 10*time.Second),
	}
	cfg.GitSync = SyncConfig{
		Schedule:  getEnvString("GIT_SYNC_SCHEDULE", "* * * * *"),
		BatchSize: getEnvPositiveInt("GIT_SYNC_BATCH", 5),
		CallDelay: getEnvDuration("GIT_SYNC_DELAY", 10*time.Second),
	}
	cfg.SeedSchedule = getEnvString("SEED_SCHEDULE", "*/15 * * * *")
	cfg.RepoPruneSchedule = getEnvString("REPO_PRUNE_SCHEDULE", "0 4 * * *")

	if err := cfg.validateSchedules(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSchedules はすべてのcron式を標準パーサーで検証する。
func (c *Config) validateSchedules() error {
	schedules := []struct {
		key  string
		expr string
	}{
		{"PROBLEM_SYNC_SCHEDULE", c.ProblemSync.Schedule},
		{"JUDGE_SYNC_SCHEDULE", c.JudgeSync.Schedule},
		{"GIT_SYNC_SCHEDULE", c.GitSync.Schedule},
		{"SEED_SCHEDULE", c.SeedSchedule},
		{"REPO_PRUNE_SCHEDULE", c.RepoPruneSchedule},
	}

	var errs []error
	for _, s := range schedules {
		if _, err := cron.ParseStandard(s.expr); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q is not a valid cron expression: %w", s.key, s.expr, err))
		}
	}
	return errors.Join(errs...)
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// getEnvList はカンマ区切りの値を空要素を除いて返す。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func getEnvPositiveInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvPositiveFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}

func getEnvPositiveDuration(key string, defaultVal time.Duration) time.Duration {
	d := getEnvDuration(key, defaultVal)
	if d == 0 {
		return defaultVal
	}
	return d
}

func getEnvLogLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return level
}
