// Package model はドメインモデルを定義する。
package model

import "time"

// JudgeSource は外部判定サイトの種別を表す。
// lastRequestSucceeded のキーとして使用する。
type JudgeSource string

const (
	// JudgeSourceBOJ はBaekjoon Online Judge（解答済み/試行問題のスクレイプ元）。
	JudgeSourceBOJ JudgeSource = "boj"
	// JudgeSourceSolvedac はsolved.ac（ティア情報の取得元）。
	JudgeSourceSolvedac JudgeSource = "solvedac"
)

// User はサービス利用ユーザーを表す。
// UserData と LastRequestSucceeded はスケジューラが所有し、
// それ以外のフィールドはリクエストハンドラーが所有する。
type User struct {
	ID             string
	Username       string
	Email          string
	HashedPassword string
	IsAdmin        bool
	IsTestAccount  bool

	UserData             UserData
	LastRequestSucceeded RequestSucceeded
	GitRepo              GitLink

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserData は判定サイトから得られるユーザー情報。
// SolvedProblem と TriedProblem は常に最新スクレイプ結果で丸ごと置き換える。
type UserData struct {
	BojID          string
	SourceOpened   bool
	SolvedacRating int
	SolvedProblem  []int
	TriedProblem   []int
}

// HasBojID はBOJハンドルが連携済みかを返す。
func (d UserData) HasBojID() bool {
	return d.BojID != ""
}

// RequestSucceeded は情報源ごとの最終取得成否を表す。
// nilは未取得を意味する。
type RequestSucceeded struct {
	BOJ      *bool
	Solvedac *bool
}

// GitLink はユーザーまたはグループのGitリポジトリ連携状態を表す。
type GitLink struct {
	Linked   bool
	RepoURL  string
	BojDir   string
	LinkRule GitLinkRule
}

// GitLinkRule はリポジトリ内のソースファイル配置規則を表す。
type GitLinkRule int

const (
	// GitLinkRuleUnset は未設定。
	GitLinkRuleUnset GitLinkRule = -1
	// GitLinkRuleProblemDir は {bojDir}/{problemId}/{file} 形式。
	GitLinkRuleProblemDir GitLinkRule = 1
	// GitLinkRuleMemberDir は {bojDir}/{problemId}/{member}/{file} 形式（グループ用）。
	GitLinkRuleMemberDir GitLinkRule = 2
)

// Valid は規則値が既知のものかを返す。
func (r GitLinkRule) Valid() bool {
	return r == GitLinkRuleProblemDir || r == GitLinkRuleMemberDir
}
