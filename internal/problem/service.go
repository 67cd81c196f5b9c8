// Package problem は問題情報の参照と更新要求を扱う。
package problem

import (
	"context"
	"fmt"

	"github.com/hitoshi/algohaja/internal/model"
	"github.com/hitoshi/algohaja/internal/repository"
)

// RefreshRequester は問題同期キューへの優先投入インターフェース。
type RefreshRequester interface {
	RequestProblemRefresh(problemID int)
}

// Service は問題情報のサービス層。
type Service struct {
	problems  repository.ProblemRepository
	refresher RefreshRequester
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(problems repository.ProblemRepository, refresher RefreshRequester) *Service {
	return &Service{problems: problems, refresher: refresher}
}

// Get は保存済みの問題情報を返す。
func (s *Service) Get(ctx context.Context, problemID int) (*model.Problem, error) {
	if problemID <= 0 {
		return nil, model.NewInvalidProblemIDError(fmt.Sprint(problemID))
	}
	p, err := s.problems.FindByID(ctx, problemID)
	if err != nil {
		return nil, fmt.Errorf("問題の取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewProblemNotFoundError(problemID)
	}
	return p, nil
}

// RequestRefresh は問題情報の再取得を要求する。
// 取得と保存はスケジューラが非同期に行う。
func (s *Service) RequestRefresh(problemID int) error {
	if problemID <= 0 {
		return model.NewInvalidProblemIDError(fmt.Sprint(problemID))
	}
	s.refresher.RequestProblemRefresh(problemID)
	return nil
}
