// Package cleanup は連携が解除されたユーザーの作業コピーを削除する定期ジョブを提供する。
// 中断した複製が残した一時ディレクトリも削除する。
// どちらも最終更新から一定時間が経過したものだけを対象とする。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/hitoshi/algohaja/internal/gitrepo"
)

// defaultGrace は更新から削除対象とするまでの猶予時間。
// 複製直後でまだ連携情報が保存されていない作業コピーや、複製中の一時ディレクトリを守る。
const defaultGrace = time.Hour

// LinkedUserLister はGit連携中のユーザー名を列挙する。
type LinkedUserLister interface {
	ListGitLinkedUsernames(ctx context.Context) ([]string, error)
}

// WorkingCopyStore は作業コピーの列挙と削除を行う。
type WorkingCopyStore interface {
	ListPersonalEntries() ([]gitrepo.Entry, error)
	RemovePersonalEntry(name string, modifiedBefore time.Time) (bool, error)
}

// RepoPruneJob は不要になった作業コピーを削除するジョブ。
// 何度実行しても結果は変わらない。
type RepoPruneJob struct {
	users     LinkedUserLister
	store     WorkingCopyStore
	logger    *slog.Logger
	now       func() time.Time
	Grace     time.Duration // 更新からの猶予時間（デフォルト: 1時間）
}

// NewRepoPruneJob は新しいRepoPruneJobを生成する。
func NewRepoPruneJob(users LinkedUserLister, store WorkingCopyStore, logger *slog.Logger) *RepoPruneJob {
	return &RepoPruneJob{
		users:     users,
		store:     store,
		logger:    logger,
		now:       time.Now,
		Grace:     defaultGrace,
	}
}

// Name はジョブ名を返す。
func (j *RepoPruneJob) Name() string { return "repo-prune" }

// RunOnce は連携されていない作業コピーを削除する。
// 個別の削除失敗はログに残して続行し、最後にまとめてエラーを返す。
func (j *RepoPruneJob) RunOnce(ctx context.Context) error {
	start := j.now()

	names, err := j.users.ListGitLinkedUsernames(ctx)
	if err != nil {
		j.logger.Error("作業コピー削除ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("連携ユーザーの取得に失敗: %w", err)
	}
	linked := mapset.NewThreadUnsafeSet(names...)

	entries, err := j.store.ListPersonalEntries()
	if err != nil {
		j.logger.Error("作業コピー削除ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("作業コピーの列挙に失敗: %w", err)
	}

	cutoff := start.Add(-j.Grace)
	deleted, skipped, failed := 0, 0, 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !j.shouldRemove(e, linked, cutoff) {
			continue
		}
		// 列挙後に複製し直された場合は削除側で更新時刻を確認して残す
		removed, err := j.store.RemovePersonalEntry(e.Name, cutoff)
		if err != nil {
			failed++
			j.logger.Warn("作業コピーの削除に失敗しました",
				slog.String("entry", e.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !removed {
			skipped++
			continue
		}
		deleted++
	}

	j.logger.Info("作業コピー削除ジョブが完了しました",
		slog.Int("deleted_count", deleted),
		slog.Int("skipped_count", skipped),
		slog.Int("failed_count", failed),
		slog.Int("linked_count", linked.Cardinality()),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)

	if failed > 0 {
		return fmt.Errorf("作業コピー %d 件の削除に失敗", failed)
	}
	return nil
}

func (j *RepoPruneJob) shouldRemove(e gitrepo.Entry, linked mapset.Set[string], cutoff time.Time) bool {
	if !e.ModTime.Before(cutoff) {
		return false
	}
	if e.IsCloneTemp() {
		return true
	}
	return !linked.Contains(e.Name)
}
