package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/algohaja/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, username, email, hashed_password, is_admin, is_test_account,
	boj_id, source_opened, solvedac_rating, solved_problem, tried_problem,
	boj_succeeded, solvedac_succeeded,
	git_linked, git_repo_url, git_boj_dir, git_link_rule,
	created_at, updated_at`

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by username: %w", err)
	}
	return user, nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	u := &model.User{}
	var solved, tried pq.Int64Array
	var bojOK, solvedacOK sql.NullBool
	var rule int

	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.HashedPassword, &u.IsAdmin, &u.IsTestAccount,
		&u.UserData.BojID, &u.UserData.SourceOpened, &u.UserData.SolvedacRating, &solved, &tried,
		&bojOK, &solvedacOK,
		&u.GitRepo.Linked, &u.GitRepo.RepoURL, &u.GitRepo.BojDir, &rule,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.UserData.SolvedProblem = toInts(solved)
	u.UserData.TriedProblem = toInts(tried)
	u.LastRequestSucceeded.BOJ = nullBoolPtr(bojOK)
	u.LastRequestSucceeded.Solvedac = nullBoolPtr(solvedacOK)
	u.GitRepo.LinkRule = model.GitLinkRule(rule)
	return u, nil
}

// ListReferencedProblemIDs はいずれかのユーザーのsolved/triedに含まれる問題番号を重複なしで返す。
func (r *PostgresUserRepo) ListReferencedProblemIDs(ctx context.Context) ([]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT pid FROM users, unnest(solved_problem || tried_problem) AS pid ORDER BY pid`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list referenced problem IDs: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan problem ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate problem IDs: %w", err)
	}
	return ids, nil
}

// ListBojIDs は空でないBOJハンドルを重複なしで返す。
func (r *PostgresUserRepo) ListBojIDs(ctx context.Context) ([]string, error) {
	return r.listStrings(ctx,
		`SELECT DISTINCT boj_id FROM users WHERE boj_id <> '' ORDER BY boj_id`,
	)
}

// ListGitLinkedUsernames はGitリポジトリを連携しているユーザー名を返す。
func (r *PostgresUserRepo) ListGitLinkedUsernames(ctx context.Context) ([]string, error) {
	return r.listStrings(ctx,
		`SELECT username FROM users WHERE git_linked AND git_repo_url <> '' ORDER BY username`,
	)
}

func (r *PostgresUserRepo) listStrings(ctx context.Context, query string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan user column: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return out, nil
}

// ReplaceJudgeLists はsolved/triedを丸ごと置き換え、boj_succeeded を true にする。
// 他のフィールドには触れない。
func (r *PostgresUserRepo) ReplaceJudgeLists(ctx context.Context, bojID string, solved, tried []int) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET solved_problem = $2, tried_problem = $3, boj_succeeded = TRUE, updated_at = NOW()
		 WHERE boj_id = $1`,
		bojID, pq.Array(nonNilInts(solved)), pq.Array(nonNilInts(tried)),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to replace judge lists: %w", err)
	}
	return rowsAffected(result)
}

// UpdateSolvedacRating はレーティングを更新し、solvedac_succeeded を true にする。
func (r *PostgresUserRepo) UpdateSolvedacRating(ctx context.Context, bojID string, rating int) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET solvedac_rating = $2, solvedac_succeeded = TRUE, updated_at = NOW()
		 WHERE boj_id = $1`,
		bojID, rating,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update solved.ac rating: %w", err)
	}
	return rowsAffected(result)
}

// MarkRequestFailed は情報源ごとの取得成否フラグのみを false にする。
func (r *PostgresUserRepo) MarkRequestFailed(ctx context.Context, bojID string, source model.JudgeSource) (int64, error) {
	var query string
	switch source {
	case model.JudgeSourceBOJ:
		query = `UPDATE users SET boj_succeeded = FALSE, updated_at = NOW() WHERE boj_id = $1`
	case model.JudgeSourceSolvedac:
		query = `UPDATE users SET solvedac_succeeded = FALSE, updated_at = NOW() WHERE boj_id = $1`
	default:
		return 0, fmt.Errorf("unknown judge source: %q", source)
	}

	result, err := r.db.ExecContext(ctx, query, bojID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark request failed: %w", err)
	}
	return rowsAffected(result)
}

// ChangeBojID はBOJハンドルを変更し、solved/tried・レーティング・取得成否を初期化する。
// 新しいハンドルの最初のスクレイプが成功するまで、旧ハンドルのデータは表示されない。
func (r *PostgresUserRepo) ChangeBojID(ctx context.Context, userID, bojID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET boj_id = $2, solved_problem = '{}', tried_problem = '{}', solvedac_rating = 0,
		     boj_succeeded = NULL, solvedac_succeeded = NULL, updated_at = NOW()
		 WHERE id = $1`,
		userID, bojID,
	)
	if err != nil {
		return fmt.Errorf("failed to change BOJ ID: %w", err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user not found: %s", userID)
	}
	return nil
}

// UpdateGitLink はGitリポジトリ連携情報のみを更新する。
func (r *PostgresUserRepo) UpdateGitLink(ctx context.Context, userID string, link model.GitLink) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET git_linked = $2, git_repo_url = $3, git_boj_dir = $4, git_link_rule = $5, updated_at = NOW()
		 WHERE id = $1`,
		userID, link.Linked, link.RepoURL, link.BojDir, int(link.LinkRule),
	)
	if err != nil {
		return fmt.Errorf("failed to update git link: %w", err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user not found: %s", userID)
	}
	return nil
}

func rowsAffected(result sql.Result) (int64, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func toInts(a pq.Int64Array) []int {
	out := make([]int, len(a))
	for i, v := range a {
		out[i] = int(v)
	}
	return out
}

func nonNilInts(a []int) []int {
	if a == nil {
		return []int{}
	}
	return a
}

func nullBoolPtr(b sql.NullBool) *bool {
	if !b.Valid {
		return nil
	}
	v := b.Bool
	return &v
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
