// Package app はサブコマンドの解析と依存関係の組み立てを行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/algohaja/internal/boj"
	"github.com/hitoshi/algohaja/internal/config"
	"github.com/hitoshi/algohaja/internal/database"
	"github.com/hitoshi/algohaja/internal/gitrepo"
	"github.com/hitoshi/algohaja/internal/handler"
	"github.com/hitoshi/algohaja/internal/logger"
	"github.com/hitoshi/algohaja/internal/metrics"
	"github.com/hitoshi/algohaja/internal/middleware"
	"github.com/hitoshi/algohaja/internal/model"
	"github.com/hitoshi/algohaja/internal/problem"
	"github.com/hitoshi/algohaja/internal/queue"
	"github.com/hitoshi/algohaja/internal/repository"
	"github.com/hitoshi/algohaja/internal/security"
	"github.com/hitoshi/algohaja/internal/solvedac"
	"github.com/hitoshi/algohaja/internal/upstream"
	"github.com/hitoshi/algohaja/internal/user"
	"github.com/hitoshi/algohaja/internal/worker/cleanup"
	"github.com/hitoshi/algohaja/internal/worker/refresh"
)

const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数を読み込み、ログレベルを反映する。
func Init(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMで停止する。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// syncStack は同期スケジューラとリクエストトリガーが共有する部品。
type syncStack struct {
	users    *repository.PostgresUserRepo
	problems *repository.PostgresProblemRepo
	queues   *queue.Set
	triggers *refresh.Triggers
	runner   *refresh.Runner
	git      *gitrepo.Manager
	guard    security.SSRFGuardService
}

// buildSyncStack はリポジトリ、外部アダプタ、キュー、同期サイクルを組み立てる。
func buildSyncStack(cfg *config.Config, db *sql.DB, log *slog.Logger, m metrics.SyncMetrics) (*syncStack, error) {
	users := repository.NewPostgresUserRepo(db)
	problems := repository.NewPostgresProblemRepo(db)

	guard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// 上流ごとに独立したトークンバケットを持たせる
	solvedacHTTP := upstream.NewClient(guard.NewSafeClient(cfg.ExternalTimeout), upstream.NewLimiter(cfg.ExternalRateLimit))
	bojHTTP := upstream.NewClient(guard.NewSafeClient(cfg.ExternalTimeout), upstream.NewLimiter(cfg.ExternalRateLimit))

	solvedacClient := solvedac.NewClient(solvedacHTTP, sanitizer, log, cfg.SolvedacBaseURL)
	bojClient := boj.NewClient(bojHTTP, cfg.BojBaseURL)
	git := gitrepo.NewManager(cfg.RepoRootDir, nil, log)

	queues := queue.NewSet(time.Now)
	merger := refresh.NewMerger(problems, users, log)

	problemJob := refresh.NewJob[int, *model.ProblemInfo](
		queues.Problems,
		refresh.NewProblemProcessor(solvedacClient, merger, cfg.ExternalTimeout, m),
		jobConfig(cfg.SyncWarmUp, cfg.ProblemSync),
		nil, log, m,
	)
	judgeJob := refresh.NewJob[string, refresh.JudgeResult](
		queues.JudgeUsers,
		refresh.NewJudgeProcessor(bojClient, solvedacClient, merger, cfg.ExternalTimeout, m),
		jobConfig(cfg.SyncWarmUp, cfg.JudgeSync),
		nil, log, m,
	)
	gitJob := refresh.NewJob[string, struct{}](
		queues.GitUsers,
		refresh.NewGitProcessor(git, merger, cfg.ExternalTimeout, m),
		jobConfig(cfg.SyncWarmUp, cfg.GitSync),
		nil, log, m,
	)
	seeder := refresh.NewSeeder(users, problems, queues, log, m)
	prune := cleanup.NewRepoPruneJob(users, git, log)

	runner := refresh.NewRunner(log)
	registrations := []struct {
		spec    string
		cycle   refresh.Cycle
		startup bool
	}{
		{cfg.ProblemSync.Schedule, problemJob, false},
		{cfg.JudgeSync.Schedule, judgeJob, false},
		{cfg.GitSync.Schedule, gitJob, false},
		{cfg.SeedSchedule, seeder, true},
		{cfg.RepoPruneSchedule, prune, false},
	}
	for _, reg := range registrations {
		var err error
		if reg.startup {
			err = runner.RegisterWithStartup(reg.spec, reg.cycle)
		} else {
			err = runner.Register(reg.spec, reg.cycle)
		}
		if err != nil {
			return nil, fmt.Errorf("同期サイクル %s の登録に失敗しました: %w", reg.cycle.Name(), err)
		}
	}

	return &syncStack{
		users:    users,
		problems: problems,
		queues:   queues,
		triggers: refresh.NewTriggers(queues, log, m),
		runner:   runner,
		git:      git,
		guard:    guard,
	}, nil
}

func jobConfig(warmUp time.Duration, sc config.SyncConfig) refresh.JobConfig {
	return refresh.JobConfig{
		WarmUp:    warmUp,
		BatchSize: sc.BatchSize,
		CallDelay: sc.CallDelay,
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// runServe はAPIサーバーと同期スケジューラを同一プロセスで起動する。
// キューはプロセス内にあるため、リクエストトリガーとスケジューラは同じQueueSetを共有する。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	log := slog.Default()
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	stack, err := buildSyncStack(cfg, db, log, collector)
	if err != nil {
		return err
	}

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:         log,
		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),
		TokenVerifier:  middleware.NewTokenVerifier(cfg.JWTSecret),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:    rateLimiter,
		ProblemService: problem.NewService(stack.problems, stack.triggers),
		UserService:    user.NewService(stack.users, stack.triggers, stack.guard, stack.git, log),
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // PATCH /api/user/git はcloneを同期実行する
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return stack.runner.Start(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker は同期スケジューラのみを起動する。
// HTTPトリガーを受け付けないため、キューにはシーダーが投入した項目だけが入る。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	stack, err := buildSyncStack(cfg, db, slog.Default(), metrics.Nop{})
	if err != nil {
		return err
	}

	slog.Info("worker starting",
		slog.String("problem_schedule", cfg.ProblemSync.Schedule),
		slog.String("judge_schedule", cfg.JudgeSync.Schedule),
		slog.String("git_schedule", cfg.GitSync.Schedule),
		slog.String("seed_schedule", cfg.SeedSchedule),
		slog.String("repo_prune_schedule", cfg.RepoPruneSchedule),
	)

	if err := stack.runner.Start(ctx); err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はdistroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	return u.Redacted()
}
