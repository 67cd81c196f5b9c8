package refresh

import (
	"log/slog"

	"github.com/hitoshi/algohaja/internal/metrics"
	"github.com/hitoshi/algohaja/internal/queue"
)

// Triggers はリクエストハンドラーから呼ばれるエンキュー操作。
// 処理の完了を待たずに戻り、明示的な要求はシード分より先に処理される。
type Triggers struct {
	queues  *queue.Set
	logger  *slog.Logger
	metrics metrics.SyncMetrics
}

// NewTriggers はTriggersの新しいインスタンスを生成する。
func NewTriggers(queues *queue.Set, logger *slog.Logger, m metrics.SyncMetrics) *Triggers {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Triggers{queues: queues, logger: logger, metrics: m}
}

// RequestProblemRefresh は問題情報の再取得を要求する。
func (t *Triggers) RequestProblemRefresh(problemID int) {
	if problemID <= 0 {
		return
	}
	t.queues.Problems.Prioritize(problemID)
	t.recorded(queue.NameProblem, t.queues.Problems.Len())
	t.logger.Info("問題情報の更新を受け付けました", slog.Int("problem_id", problemID))
}

// RequestJudgeRefresh はBOJハンドルの解答状況とティアの再取得を要求する。
func (t *Triggers) RequestJudgeRefresh(handle string) {
	if handle == "" {
		return
	}
	t.queues.JudgeUsers.Prioritize(handle)
	t.recorded(queue.NameJudgeUser, t.queues.JudgeUsers.Len())
	t.logger.Info("解答状況の更新を受け付けました", slog.String("boj_id", handle))
}

// RequestRepositoryRefresh はユーザーの作業コピーの更新を要求する。
func (t *Triggers) RequestRepositoryRefresh(username string) {
	if username == "" {
		return
	}
	t.queues.GitUsers.Prioritize(username)
	t.recorded(queue.NameGitUser, t.queues.GitUsers.Len())
	t.logger.Info("リポジトリの更新を受け付けました", slog.String("username", username))
}

func (t *Triggers) recorded(name string, depth int) {
	t.metrics.RecordEnqueued(name, metrics.OriginRequest, 1)
	t.metrics.SetQueueDepth(name, depth)
}
