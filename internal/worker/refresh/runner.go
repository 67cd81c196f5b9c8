package refresh

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Cycle はスケジュール実行される1サイクル分の処理。
type Cycle interface {
	Name() string
	RunOnce(ctx context.Context) error
}

type scheduledCycle struct {
	spec     string
	schedule cron.Schedule
	cycle    Cycle
	runFirst bool
}

// Runner はcron式に従ってサイクルを起動する。
// キューごとのサイクルは互いに独立して並行に動作する。
type Runner struct {
	logger *slog.Logger
	cycles []scheduledCycle
}

// NewRunner はRunnerの新しいインスタンスを生成する。
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// ParseSchedule は5フィールドの標準cron式（@every 等の記述子を含む）を検証する。
func ParseSchedule(spec string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("cron式が不正です %q: %w", spec, err)
	}
	return schedule, nil
}

// Register はサイクルをスケジュールに登録する。
func (r *Runner) Register(spec string, c Cycle) error {
	return r.register(spec, c, false)
}

// RegisterWithStartup はサイクルを登録し、Start時に1回即時実行する。
func (r *Runner) RegisterWithStartup(spec string, c Cycle) error {
	return r.register(spec, c, true)
}

func (r *Runner) register(spec string, c Cycle, runFirst bool) error {
	schedule, err := ParseSchedule(spec)
	if err != nil {
		return err
	}
	r.cycles = append(r.cycles, scheduledCycle{spec: spec, schedule: schedule, cycle: c, runFirst: runFirst})
	return nil
}

// Start は登録済みサイクルのスケジュール実行を開始する。
// コンテキストがキャンセルされるまでブロックし、実行中のサイクルの終了を待ってから戻る。
func (r *Runner) Start(ctx context.Context) error {
	c := cron.New(cron.WithLogger(cron.PrintfLogger(
		slog.NewLogLogger(r.logger.Handler(), slog.LevelError),
	)))

	for _, sc := range r.cycles {
		cycle := sc.cycle
		c.Schedule(sc.schedule, cron.FuncJob(func() {
			r.run(ctx, cycle)
		}))
		r.logger.Info("同期サイクルを登録しました",
			slog.String("cycle", cycle.Name()),
			slog.String("schedule", sc.spec),
		)
	}

	// 起動直後に1回実行
	for _, sc := range r.cycles {
		if sc.runFirst {
			r.run(ctx, sc.cycle)
		}
	}

	c.Start()
	r.logger.Info("同期スケジューラを開始しました", slog.Int("cycles", len(r.cycles)))

	<-ctx.Done()
	<-c.Stop().Done()
	r.logger.Info("同期スケジューラを停止しました")
	return nil
}

func (r *Runner) run(ctx context.Context, c Cycle) {
	if ctx.Err() != nil {
		return
	}
	if err := c.RunOnce(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("同期サイクルの実行に失敗しました",
			slog.String("cycle", c.Name()),
			slog.String("error", err.Error()),
		)
	}
}
