package queue

import "time"

// キュー名
const (
	NameProblem   = "problem"
	NameJudgeUser = "judge_user"
	NameGitUser   = "git_user"
)

// Set はリソース種別ごとのキューをまとめたもの。
// スケジューラ、シーダー、リクエストトリガーに同一インスタンスを注入して共有する。
type Set struct {
	// Problems は問題番号のキュー（solved.acの問題メタデータ）。
	Problems *RefreshQueue[int]
	// JudgeUsers はBOJハンドルのキュー（解答状況とティア）。
	JudgeUsers *RefreshQueue[string]
	// GitUsers はリポジトリ連携済みユーザー名のキュー。
	GitUsers *RefreshQueue[string]
}

// NewSet は空のキューを持つSetを生成する。
func NewSet(now func() time.Time) *Set {
	return &Set{
		Problems:   New[int](NameProblem, now),
		JudgeUsers: New[string](NameJudgeUser, now),
		GitUsers:   New[string](NameGitUser, now),
	}
}

// Depths はキュー名ごとの待機件数を返す。
func (s *Set) Depths() map[string]int {
	return map[string]int{
		NameProblem:   s.Problems.Len(),
		NameJudgeUser: s.JudgeUsers.Len(),
		NameGitUser:   s.GitUsers.Len(),
	}
}
