package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/algohaja/internal/model"
)

// PostgresProblemRepo はPostgreSQLを使用した問題リポジトリ。
type PostgresProblemRepo struct {
	db *sql.DB
}

// NewPostgresProblemRepo はPostgresProblemRepoを生成する。
func NewPostgresProblemRepo(db *sql.DB) *PostgresProblemRepo {
	return &PostgresProblemRepo{db: db}
}

// FindByID は指定番号の問題を取得する。見つからない場合はnilを返す。
func (r *PostgresProblemRepo) FindByID(ctx context.Context, problemID int) (*model.Problem, error) {
	p := &model.Problem{}
	var tags pq.StringArray
	err := r.db.QueryRowContext(ctx,
		`SELECT problem_id, problem_name, solvedac_tier, tags FROM problems WHERE problem_id = $1`,
		problemID,
	).Scan(&p.ProblemID, &p.ProblemName, &p.SolvedacTier, &tags)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find problem by ID: %w", err)
	}
	p.Tags = []string(tags)
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return p, nil
}

// UpsertScraped はON CONFLICTでスクレイプ対象フィールドのみを更新する。
// created_atなど他のカラムは既存値を維持する。
func (r *PostgresProblemRepo) UpsertScraped(ctx context.Context, problem *model.Problem) error {
	tags := problem.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO problems (problem_id, problem_name, solvedac_tier, tags)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (problem_id) DO UPDATE
		 SET problem_name = EXCLUDED.problem_name,
		     solvedac_tier = EXCLUDED.solvedac_tier,
		     tags = EXCLUDED.tags,
		     updated_at = NOW()`,
		problem.ProblemID, problem.ProblemName, problem.SolvedacTier, pq.Array(tags),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert problem: %w", err)
	}
	return nil
}

// ListIDs は保存済みの問題番号をすべて返す。
func (r *PostgresProblemRepo) ListIDs(ctx context.Context) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT problem_id FROM problems ORDER BY problem_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list problem IDs: %w", err)
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

// compile-time interface check
var _ ProblemRepository = (*PostgresProblemRepo)(nil)
