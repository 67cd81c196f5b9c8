// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/algohaja/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
//
// 判定サイト由来フィールド（userData.*、lastRequestSucceeded.*）の更新はBOJハンドル単位で行い、
// 同じハンドルを連携しているすべてのアカウントに適用する。更新件数を返すため、
// 呼び出し元は0件（該当アカウントなし）を検知できる。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// ListReferencedProblemIDs はいずれかのユーザーのsolved/triedに含まれる問題番号を重複なしで返す。
	ListReferencedProblemIDs(ctx context.Context) ([]int, error)

	// ListBojIDs は空でないBOJハンドルを重複なしで返す。
	ListBojIDs(ctx context.Context) ([]string, error)

	// ListGitLinkedUsernames はGitリポジトリを連携しているユーザー名を返す。
	ListGitLinkedUsernames(ctx context.Context) ([]string, error)

	// ReplaceJudgeLists はbojIDを連携しているアカウントのsolved/triedを丸ごと置き換え、
	// lastRequestSucceeded.boj を true にする。
	ReplaceJudgeLists(ctx context.Context, bojID string, solved, tried []int) (int64, error)

	// UpdateSolvedacRating はbojIDを連携しているアカウントのレーティングを更新し、
	// lastRequestSucceeded.solvedac を true にする。
	UpdateSolvedacRating(ctx context.Context, bojID string, rating int) (int64, error)

	// MarkRequestFailed はbojIDを連携しているアカウントの lastRequestSucceeded[source] を false にする。
	// 保存済みのリストやレーティングは変更しない。
	MarkRequestFailed(ctx context.Context, bojID string, source model.JudgeSource) (int64, error)

	// ChangeBojID はユーザーのBOJハンドルを変更し、判定サイト由来のフィールドを初期状態に戻す。
	ChangeBojID(ctx context.Context, userID, bojID string) error

	// UpdateGitLink はユーザーのGitリポジトリ連携情報を更新する。
	UpdateGitLink(ctx context.Context, userID string, link model.GitLink) error
}

// ProblemRepository は問題データの永続化インターフェース。
type ProblemRepository interface {
	// FindByID は指定番号の問題を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, problemID int) (*model.Problem, error)

	// UpsertScraped は問題が存在しなければ作成し、存在すればスクレイプ対象のフィールド
	// （problem_name、solvedac_tier、tags）のみを更新する。
	UpsertScraped(ctx context.Context, problem *model.Problem) error

	// ListIDs は保存済みの問題番号をすべて返す。
	ListIDs(ctx context.Context) ([]int, error)
}
