package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/hitoshi/algohaja/internal/metrics"
)

// shutdownMergeTimeout は停止時に取得済みの結果を反映するための猶予。
const shutdownMergeTimeout = 5 * time.Second

// Queue はドレインジョブが取り出し元とするキュー。queue.RefreshQueueが実装する。
type Queue[K comparable] interface {
	Name() string
	Drain(maxBatch int) []K
	Len() int
}

// Processor はキーごとの取得と反映を行う。
// Fetchの結果はエラーの有無にかかわらずMergeへ渡される。
type Processor[K comparable, R any] interface {
	Fetch(ctx context.Context, key K) (R, error)
	Merge(ctx context.Context, key K, result R, fetchErr error) error
}

// JobConfig はドレインサイクルの設定パラメータ。
type JobConfig struct {
	// WarmUp はサイクル開始からドレインまでの待機時間。
	WarmUp time.Duration
	// BatchSize は1サイクルで取り出す最大件数。
	BatchSize int
	// CallDelay は各項目の取得後、反映前に挟む待機時間。
	CallDelay time.Duration
}

// Job は1つのキューを定期的にドレインし、取り出した項目を1件ずつ直列に処理する。
// 同一ジョブのサイクルは重複実行せず、実行中に呼ばれたサイクルはスキップする。
type Job[K comparable, R any] struct {
	queue     Queue[K]
	processor Processor[K, R]
	config    JobConfig
	pacer     *Pacer
	sleep     SleepFunc
	logger    *slog.Logger
	metrics   metrics.SyncMetrics
	kind      string

	busy atomic.Bool
}

// NewJob はJobの新しいインスタンスを生成する。
// sleepがnilの場合は実時間で待機する。metricsがnilの場合は記録しない。
func NewJob[K comparable, R any](
	q Queue[K],
	processor Processor[K, R],
	config JobConfig,
	sleep SleepFunc,
	logger *slog.Logger,
	m metrics.SyncMetrics,
) *Job[K, R] {
	if sleep == nil {
		sleep = Sleep
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Job[K, R]{
		queue:     q,
		processor: processor,
		config:    config,
		pacer:     NewPacer(config.CallDelay, sleep),
		sleep:     sleep,
		logger:    logger.With(slog.String("queue", q.Name())),
		metrics:   m,
		kind:      q.Name(),
	}
}

// Name はジョブが処理するキューの名前を返す。
func (j *Job[K, R]) Name() string {
	return j.kind
}

// RunOnce は1回のドレインサイクルを実行する。
// 前回のサイクルが実行中の場合は何もせずに戻る。
func (j *Job[K, R]) RunOnce(ctx context.Context) error {
	if !j.busy.CompareAndSwap(false, true) {
		j.metrics.RecordCycleSkipped(j.kind)
		j.logger.Warn("前回のサイクルが実行中のためスキップします")
		return nil
	}
	defer j.busy.Store(false)

	start := time.Now()

	if err := j.sleep(ctx, j.config.WarmUp); err != nil {
		return err
	}

	keys := j.queue.Drain(j.config.BatchSize)
	j.metrics.RecordDrained(j.kind, len(keys))
	j.metrics.SetQueueDepth(j.kind, j.queue.Len())

	if len(keys) == 0 {
		j.logger.Debug("ドレイン対象の項目はありません")
		return nil
	}

	j.logger.Info("ドレインサイクルを開始します",
		slog.Int("batch_size", len(keys)),
		slog.Int("remaining", j.queue.Len()),
	)

	var failed int
	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			// 取り出し済みの残りはキューに戻さない。次回のシードで再発見される。
			j.logger.Warn("サイクルを中断しました",
				slog.Int("abandoned", len(keys)-i),
			)
			return err
		}

		ok, err := j.processItem(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			failed++
		}
	}

	j.logger.Info("ドレインサイクルが完了しました",
		slog.Int("processed", len(keys)),
		slog.Int("failed", failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// processItem は1項目を取得、待機、反映の順に処理する。
// 項目単位の失敗はサイクルを中断しない。中断するのはコンテキストのキャンセル時のみ。
func (j *Job[K, R]) processItem(ctx context.Context, key K) (bool, error) {
	result, fetchErr := j.safeFetch(ctx, key)
	// 取得中に停止が始まった結果は外部サービスの成否を表さない
	completed := ctx.Err() == nil

	if err := j.pacer.Wait(ctx); err != nil {
		if completed {
			j.mergeOnShutdown(ctx, key, result, fetchErr)
		}
		return false, err
	}

	if err := j.safeMerge(ctx, key, result, fetchErr); err != nil {
		j.metrics.RecordMergeFailure(j.kind)
		j.logger.Error("取得結果の反映に失敗しました",
			slog.Any("key", key),
			slog.String("error", err.Error()),
		)
		return false, nil
	}
	return fetchErr == nil, nil
}

// mergeOnShutdown は取得後の待機中にキャンセルされた項目の結果を反映する。
// 呼び出し元のキャンセルを引き継がず、短い猶予内で書き込む。
func (j *Job[K, R]) mergeOnShutdown(ctx context.Context, key K, result R, fetchErr error) {
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownMergeTimeout)
	defer cancel()

	if err := j.safeMerge(mctx, key, result, fetchErr); err != nil {
		j.metrics.RecordMergeFailure(j.kind)
		j.logger.Error("停止時の取得結果の反映に失敗しました",
			slog.Any("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func (j *Job[K, R]) safeFetch(ctx context.Context, key K) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("取得処理でpanicが発生しました",
				slog.Any("key", key),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			var zero R
			result = zero
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return j.processor.Fetch(ctx, key)
}

func (j *Job[K, R]) safeMerge(ctx context.Context, key K, result R, fetchErr error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("反映処理でpanicが発生しました",
				slog.Any("key", key),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return j.processor.Merge(ctx, key, result, fetchErr)
}
