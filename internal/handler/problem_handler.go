package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/algohaja/internal/middleware"
	"github.com/hitoshi/algohaja/internal/model"
)

// ProblemServiceInterface は問題ハンドラーが必要とするサービスインターフェース。
type ProblemServiceInterface interface {
	Get(ctx context.Context, problemID int) (*model.Problem, error)
	RequestRefresh(problemID int) error
}

// ProblemHandler は問題情報のHTTPハンドラー。
type ProblemHandler struct {
	service ProblemServiceInterface
}

// NewProblemHandler はProblemHandlerを生成する。
func NewProblemHandler(service ProblemServiceInterface) *ProblemHandler {
	return &ProblemHandler{service: service}
}

// problemResponse は問題情報のJSONレスポンス。
type problemResponse struct {
	ProblemID    int      `json:"problemId"`
	ProblemName  string   `json:"problemName"`
	SolvedacTier int      `json:"solvedacTier"`
	Tags         []string `json:"tags"`
}

func toProblemResponse(p *model.Problem) problemResponse {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return problemResponse{
		ProblemID:    p.ProblemID,
		ProblemName:  p.ProblemName,
		SolvedacTier: p.SolvedacTier,
		Tags:         tags,
	}
}

// GetProblem は保存済みの問題情報を返す。
// GET /api/problem/{problemId}
func (h *ProblemHandler) GetProblem(w http.ResponseWriter, r *http.Request) {
	problemID, ok := parseProblemID(w, r)
	if !ok {
		return
	}

	p, err := h.service.Get(r.Context(), problemID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProblemResponse(p))
}

// RequestRefresh は問題情報の再取得をキューに登録する。
// POST /api/problem/{problemId}/refresh
func (h *ProblemHandler) RequestRefresh(w http.ResponseWriter, r *http.Request) {
	problemID, ok := parseProblemID(w, r)
	if !ok {
		return
	}

	if err := h.service.RequestRefresh(problemID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// parseProblemID はURLパラメータの問題番号を解析する。1未満や数値以外は400。
func parseProblemID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "problemId")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidProblemIDError(raw))
		return 0, false
	}
	return id, true
}
