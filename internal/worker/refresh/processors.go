package refresh

import (
	"context"
	"time"

	"github.com/hitoshi/algohaja/internal/metrics"
	"github.com/hitoshi/algohaja/internal/model"
)

// メトリクスの情報源ラベル。
const (
	SourceSolvedacProblem = "solvedac_problem"
	SourceSolvedacUser    = "solvedac_user"
	SourceBOJ             = "boj"
	SourceGit             = "git"
)

// ProblemInfoFetcher は問題メタデータの取得元。solvedac.Clientが実装する。
type ProblemInfoFetcher interface {
	FetchProblemInfo(ctx context.Context, problemID int) (*model.ProblemInfo, error)
}

// UserTierFetcher はユーザーティアの取得元。solvedac.Clientが実装する。
type UserTierFetcher interface {
	FetchUserTier(ctx context.Context, handle string) (int, error)
}

// UserSolvedFetcher は解答状況の取得元。boj.Clientが実装する。
type UserSolvedFetcher interface {
	FetchUserSolved(ctx context.Context, handle string) (*model.SolvedStatus, error)
}

// RepositoryRefresher は作業コピーの更新処理。gitrepo.Managerが実装する。
type RepositoryRefresher interface {
	RefreshRepository(ctx context.Context, username string) error
}

// adapterCall は外部呼び出しにタイムアウトを設定し、結果とレイテンシを記録する。
type adapterCall struct {
	timeout time.Duration
	metrics metrics.SyncMetrics
}

func (a adapterCall) run(ctx context.Context, source string, fn func(ctx context.Context) error) error {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	a.metrics.RecordFetchLatency(source, time.Since(start))
	a.metrics.RecordFetch(source, classifyResult(err))
	return err
}

func newAdapterCall(timeout time.Duration, m metrics.SyncMetrics) adapterCall {
	if m == nil {
		m = metrics.Nop{}
	}
	return adapterCall{timeout: timeout, metrics: m}
}

// ProblemProcessor は問題キューの項目を処理する。
type ProblemProcessor struct {
	fetcher ProblemInfoFetcher
	merger  *Merger
	call    adapterCall
}

// NewProblemProcessor はProblemProcessorを生成する。
func NewProblemProcessor(fetcher ProblemInfoFetcher, merger *Merger, timeout time.Duration, m metrics.SyncMetrics) *ProblemProcessor {
	return &ProblemProcessor{fetcher: fetcher, merger: merger, call: newAdapterCall(timeout, m)}
}

// Fetch はsolved.acから問題情報を取得する。
func (p *ProblemProcessor) Fetch(ctx context.Context, problemID int) (*model.ProblemInfo, error) {
	var info *model.ProblemInfo
	err := p.call.run(ctx, SourceSolvedacProblem, func(ctx context.Context) error {
		var err error
		info, err = p.fetcher.FetchProblemInfo(ctx, problemID)
		return err
	})
	return info, err
}

// Merge は問題情報を反映する。
func (p *ProblemProcessor) Merge(ctx context.Context, problemID int, info *model.ProblemInfo, fetchErr error) error {
	return p.merger.MergeProblem(ctx, problemID, info, fetchErr)
}

// JudgeProcessor はBOJハンドルキューの項目を処理する。
// BOJの解答状況とsolved.acのティアを続けて取得する（呼び出し先が異なるため間隔は挟まない）。
type JudgeProcessor struct {
	solved UserSolvedFetcher
	tier   UserTierFetcher
	merger *Merger
	call   adapterCall
}

// NewJudgeProcessor はJudgeProcessorを生成する。
func NewJudgeProcessor(solved UserSolvedFetcher, tier UserTierFetcher, merger *Merger, timeout time.Duration, m metrics.SyncMetrics) *JudgeProcessor {
	return &JudgeProcessor{solved: solved, tier: tier, merger: merger, call: newAdapterCall(timeout, m)}
}

// Fetch は情報源ごとの成否をJudgeResultにまとめて返す。
// 部分的な失敗はJudgeResult内に保持するため、戻り値のエラーは常にnil。
func (p *JudgeProcessor) Fetch(ctx context.Context, handle string) (JudgeResult, error) {
	var res JudgeResult

	res.SolvedErr = p.call.run(ctx, SourceBOJ, func(ctx context.Context) error {
		var err error
		res.Solved, err = p.solved.FetchUserSolved(ctx, handle)
		return err
	})

	res.TierErr = p.call.run(ctx, SourceSolvedacUser, func(ctx context.Context) error {
		var err error
		res.Tier, err = p.tier.FetchUserTier(ctx, handle)
		return err
	})

	return res, nil
}

// Merge は解答状況とティアを反映する。取得処理がpanicした場合は両方を失敗として扱う。
func (p *JudgeProcessor) Merge(ctx context.Context, handle string, res JudgeResult, fetchErr error) error {
	if fetchErr != nil {
		res = JudgeResult{SolvedErr: fetchErr, TierErr: fetchErr}
	}
	return p.merger.MergeJudge(ctx, handle, res)
}

// GitProcessor はGitユーザーキューの項目を処理する。
type GitProcessor struct {
	refresher RepositoryRefresher
	merger    *Merger
	call      adapterCall
}

// NewGitProcessor はGitProcessorを生成する。
func NewGitProcessor(refresher RepositoryRefresher, merger *Merger, timeout time.Duration, m metrics.SyncMetrics) *GitProcessor {
	return &GitProcessor{refresher: refresher, merger: merger, call: newAdapterCall(timeout, m)}
}

// Fetch は作業コピーを更新する。
func (p *GitProcessor) Fetch(ctx context.Context, username string) (struct{}, error) {
	err := p.call.run(ctx, SourceGit, func(ctx context.Context) error {
		return p.refresher.RefreshRepository(ctx, username)
	})
	return struct{}{}, err
}

// Merge は更新結果をログに記録する。
func (p *GitProcessor) Merge(ctx context.Context, username string, _ struct{}, fetchErr error) error {
	return p.merger.MergeRepository(ctx, username, fetchErr)
}

var (
	_ Processor[int, *model.ProblemInfo] = (*ProblemProcessor)(nil)
	_ Processor[string, JudgeResult]     = (*JudgeProcessor)(nil)
	_ Processor[string, struct{}]        = (*GitProcessor)(nil)
)
