package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/hitoshi/algohaja/internal/metrics"
	"github.com/hitoshi/algohaja/internal/queue"
	"github.com/hitoshi/algohaja/internal/repository"
)

// SeederName はシーダーのサイクル名。
const SeederName = "seeder"

// Seeder は永続化済みエンティティを走査し、更新が必要な項目をキューに追加する。
// 追加のみを行い、キューから項目を削除することはない。
// 1回の走査で投入する項目は同一時刻で投入し、取り出しが一巡するようにする。
type Seeder struct {
	users    repository.UserRepository
	problems repository.ProblemRepository
	queues   *queue.Set
	logger   *slog.Logger
	metrics  metrics.SyncMetrics
}

// NewSeeder はSeederの新しいインスタンスを生成する。
func NewSeeder(
	users repository.UserRepository,
	problems repository.ProblemRepository,
	queues *queue.Set,
	logger *slog.Logger,
	m metrics.SyncMetrics,
) *Seeder {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Seeder{
		users:    users,
		problems: problems,
		queues:   queues,
		logger:   logger,
		metrics:  m,
	}
}

// Name はサイクル名を返す。
func (s *Seeder) Name() string {
	return SeederName
}

// RunOnce は1回のシードを実行する。
// 種別ごとの失敗は他の種別のシードを妨げず、まとめてエラーとして返す。
func (s *Seeder) RunOnce(ctx context.Context) error {
	start := time.Now()
	var errs []error

	problems, err := s.seedProblems(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	handles, err := s.seedJudgeUsers(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	gitUsers, err := s.seedGitUsers(ctx)
	if err != nil {
		errs = append(errs, err)
	}

	for name, depth := range s.queues.Depths() {
		s.metrics.SetQueueDepth(name, depth)
	}

	s.logger.Info("キューのシードが完了しました",
		slog.Int("problems", problems),
		slog.Int("judge_users", handles),
		slog.Int("git_users", gitUsers),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return errors.Join(errs...)
}

// seedProblems はいずれかのユーザーが参照しているが未保存の問題番号を追加する。
func (s *Seeder) seedProblems(ctx context.Context) (int, error) {
	referenced, err := s.users.ListReferencedProblemIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("参照中の問題番号の取得に失敗しました: %w", err)
	}
	stored, err := s.problems.ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("保存済みの問題番号の取得に失敗しました: %w", err)
	}

	gap := mapset.NewThreadUnsafeSet(referenced...).
		Difference(mapset.NewThreadUnsafeSet(stored...)).
		ToSlice()
	sort.Ints(gap)

	s.queues.Problems.EnqueueAll(gap)
	s.metrics.RecordEnqueued(queue.NameProblem, metrics.OriginSeeder, len(gap))
	return len(gap), nil
}

// seedJudgeUsers はBOJハンドルを連携しているすべてのハンドルを追加する。
func (s *Seeder) seedJudgeUsers(ctx context.Context) (int, error) {
	handles, err := s.users.ListBojIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("BOJハンドルの取得に失敗しました: %w", err)
	}

	linked := make([]string, 0, len(handles))
	for _, h := range handles {
		if h != "" {
			linked = append(linked, h)
		}
	}
	s.queues.JudgeUsers.EnqueueAll(linked)
	s.metrics.RecordEnqueued(queue.NameJudgeUser, metrics.OriginSeeder, len(linked))
	return len(linked), nil
}

// seedGitUsers はリポジトリを連携しているユーザーを追加する。
func (s *Seeder) seedGitUsers(ctx context.Context) (int, error) {
	names, err := s.users.ListGitLinkedUsernames(ctx)
	if err != nil {
		return 0, fmt.Errorf("リポジトリ連携ユーザーの取得に失敗しました: %w", err)
	}

	s.queues.GitUsers.EnqueueAll(names)
	s.metrics.RecordEnqueued(queue.NameGitUser, metrics.OriginSeeder, len(names))
	return len(names), nil
}
