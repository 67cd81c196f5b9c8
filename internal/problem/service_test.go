package problem

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/algohaja/internal/model"
)

type mockProblemRepo struct {
	findByIDFn func(ctx context.Context, problemID int) (*model.Problem, error)
}

func (m *mockProblemRepo) FindByID(ctx context.Context, problemID int) (*model.Problem, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, problemID)
	}
	return nil, nil
}
func (m *mockProblemRepo) UpsertScraped(ctx context.Context, problem *model.Problem) error {
	return nil
}
func (m *mockProblemRepo) ListIDs(ctx context.Context) ([]int, error) { return nil, nil }

type mockRefresher struct {
	requested []int
}

func (m *mockRefresher) RequestProblemRefresh(problemID int) {
	m.requested = append(m.requested, problemID)
}

func apiErrorCode(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

func TestService_Get(t *testing.T) {
	repo := &mockProblemRepo{
		findByIDFn: func(ctx context.Context, problemID int) (*model.Problem, error) {
			if problemID == 1000 {
				return &model.Problem{ProblemID: 1000, ProblemName: "A+B", SolvedacTier: 1}, nil
			}
			return nil, nil
		},
	}
	svc := NewService(repo, &mockRefresher{})

	p, err := svc.Get(context.Background(), 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ProblemName != "A+B" {
		t.Errorf("ProblemName = %q, want %q", p.ProblemName, "A+B")
	}

	_, err = svc.Get(context.Background(), 9999)
	if got := apiErrorCode(err); got != model.ErrCodeProblemNotFound {
		t.Errorf("code = %q, want %q", got, model.ErrCodeProblemNotFound)
	}

	_, err = svc.Get(context.Background(), 0)
	if got := apiErrorCode(err); got != model.ErrCodeInvalidProblemID {
		t.Errorf("code = %q, want %q", got, model.ErrCodeInvalidProblemID)
	}
}

func TestService_Get_RepositoryError(t *testing.T) {
	repo := &mockProblemRepo{
		findByIDFn: func(ctx context.Context, problemID int) (*model.Problem, error) {
			return nil, errors.New("db down")
		},
	}
	_, err := NewService(repo, &mockRefresher{}).Get(context.Background(), 1000)
	if err == nil || apiErrorCode(err) != "" {
		t.Errorf("expected plain wrapped error, got %v", err)
	}
}

func TestService_RequestRefresh(t *testing.T) {
	refresher := &mockRefresher{}
	svc := NewService(&mockProblemRepo{}, refresher)

	if err := svc.RequestRefresh(1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.RequestRefresh(-1); apiErrorCode(err) != model.ErrCodeInvalidProblemID {
		t.Errorf("expected invalid problem id error, got %v", err)
	}

	if len(refresher.requested) != 1 || refresher.requested[0] != 1000 {
		t.Errorf("requested = %v, want [1000]", refresher.requested)
	}
}
