package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/algohaja/internal/model"
	"github.com/hitoshi/algohaja/internal/repository"
	"github.com/hitoshi/algohaja/internal/upstream"
)

// JudgeResult はBOJハンドル1件分の取得結果。情報源ごとに成否を持つ。
type JudgeResult struct {
	Solved    *model.SolvedStatus
	SolvedErr error
	Tier      int
	TierErr   error
}

// Merger は取得結果を永続化済みエンティティへ反映する。
// 更新はスケジューラが所有するフィールドに限定し、ドキュメント全体の上書きは行わない。
type Merger struct {
	problems repository.ProblemRepository
	users    repository.UserRepository
	logger   *slog.Logger
}

// NewMerger はMergerの新しいインスタンスを生成する。
func NewMerger(
	problems repository.ProblemRepository,
	users repository.UserRepository,
	logger *slog.Logger,
) *Merger {
	return &Merger{
		problems: problems,
		users:    users,
		logger:   logger,
	}
}

// MergeProblem は問題情報を反映する。取得失敗時は何も書き込まない。
func (m *Merger) MergeProblem(ctx context.Context, problemID int, info *model.ProblemInfo, fetchErr error) error {
	if fetchErr != nil {
		level := slog.LevelWarn
		if errors.Is(fetchErr, upstream.ErrNotFound) {
			level = slog.LevelInfo
		}
		m.logger.Log(ctx, level, "問題情報の取得に失敗しました",
			slog.Int("problem_id", problemID),
			slog.String("error", fetchErr.Error()),
		)
		return nil
	}
	if info == nil {
		return upstream.Malformed("問題情報が空です (problem_id=%d)", problemID)
	}

	problem := &model.Problem{
		ProblemID:    problemID,
		ProblemName:  info.Title,
		SolvedacTier: info.Tier,
		Tags:         info.Tags,
	}
	if err := m.problems.UpsertScraped(ctx, problem); err != nil {
		return fmt.Errorf("問題情報の保存に失敗しました (problem_id=%d): %w", problemID, err)
	}

	m.logger.Debug("問題情報を更新しました",
		slog.Int("problem_id", problemID),
		slog.Int("tier", info.Tier),
	)
	return nil
}

// MergeJudge はBOJとsolved.acの結果を情報源ごとに独立して反映する。
// 成功した情報源はデータを置き換え、失敗した情報源は成否フラグのみをfalseにする。
// 更新はboj_idで絞り込むため、取得中にハンドルを変更したアカウントには反映されない。
func (m *Merger) MergeJudge(ctx context.Context, handle string, res JudgeResult) error {
	var errs []error

	solvedErr := res.SolvedErr
	if solvedErr == nil && res.Solved == nil {
		solvedErr = upstream.Malformed("解答状況が空です")
	}
	if solvedErr == nil {
		n, err := m.users.ReplaceJudgeLists(ctx, handle, res.Solved.Solved, res.Solved.Wrong)
		if err != nil {
			errs = append(errs, fmt.Errorf("解答状況の保存に失敗しました: %w", err))
		} else {
			m.logAffected(handle, model.JudgeSourceBOJ, n)
		}
	} else {
		m.logger.Warn("BOJ解答状況の取得に失敗しました",
			slog.String("boj_id", handle),
			slog.String("error", solvedErr.Error()),
		)
		n, err := m.users.MarkRequestFailed(ctx, handle, model.JudgeSourceBOJ)
		if err != nil {
			errs = append(errs, fmt.Errorf("BOJ取得失敗の記録に失敗しました: %w", err))
		} else {
			m.logAffected(handle, model.JudgeSourceBOJ, n)
		}
	}

	if res.TierErr == nil {
		n, err := m.users.UpdateSolvedacRating(ctx, handle, res.Tier)
		if err != nil {
			errs = append(errs, fmt.Errorf("ティアの保存に失敗しました: %w", err))
		} else {
			m.logAffected(handle, model.JudgeSourceSolvedac, n)
		}
	} else {
		m.logger.Warn("solved.acティアの取得に失敗しました",
			slog.String("boj_id", handle),
			slog.String("error", res.TierErr.Error()),
		)
		n, err := m.users.MarkRequestFailed(ctx, handle, model.JudgeSourceSolvedac)
		if err != nil {
			errs = append(errs, fmt.Errorf("solved.ac取得失敗の記録に失敗しました: %w", err))
		} else {
			m.logAffected(handle, model.JudgeSourceSolvedac, n)
		}
	}

	return errors.Join(errs...)
}

// MergeRepository はリポジトリ更新の結果を記録する。永続化するフィールドはない。
func (m *Merger) MergeRepository(ctx context.Context, username string, fetchErr error) error {
	if fetchErr != nil {
		m.logger.Warn("リポジトリの更新に失敗しました",
			slog.String("username", username),
			slog.String("error", fetchErr.Error()),
		)
		return nil
	}
	m.logger.Debug("リポジトリを更新しました", slog.String("username", username))
	return nil
}

// logAffected は更新対象のアカウントが存在しなかった場合に記録する。
func (m *Merger) logAffected(handle string, source model.JudgeSource, n int64) {
	if n == 0 {
		m.logger.Info("該当するアカウントがないため反映をスキップしました",
			slog.String("boj_id", handle),
			slog.String("source", string(source)),
		)
	}
}
