package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/algohaja/internal/model"
	"github.com/hitoshi/algohaja/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	Me(ctx context.Context, username string) (*model.User, error)
	ChangeBojID(ctx context.Context, username, password, bojID string) error
	RequestSolvedRefresh(ctx context.Context, username string) error
	UpdateGitRepository(ctx context.Context, username string, in user.GitLinkInput) error
}

// UserHandler はユーザー情報のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

type userDataResponse struct {
	BojID          string `json:"bojId"`
	SourceOpened   bool   `json:"sourceOpened"`
	SolvedacRating int    `json:"solvedacRating"`
	SolvedProblem  []int  `json:"solvedProblem"`
	TriedProblem   []int  `json:"triedProblem"`
}

type lastRequestResponse struct {
	BOJ      *bool `json:"boj"`
	Solvedac *bool `json:"solvedac"`
}

type gitRepoResponse struct {
	Linked   bool   `json:"linked"`
	RepoURL  string `json:"repoUrl"`
	BojDir   string `json:"bojDir"`
	LinkRule int    `json:"linkRule"`
}

// meResponse はGET /api/user/me のレスポンス。
type meResponse struct {
	ID                   string              `json:"id"`
	Username             string              `json:"username"`
	Email                string              `json:"email"`
	IsAdmin              bool                `json:"isAdmin"`
	IsTestAccount        bool                `json:"isTestAccount"`
	UserData             userDataResponse    `json:"userData"`
	LastRequestSucceeded lastRequestResponse `json:"lastRequestSucceeded"`
	GitRepo              gitRepoResponse     `json:"gitRepo"`
}

func toMeResponse(u *model.User) meResponse {
	return meResponse{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		IsAdmin:       u.IsAdmin,
		IsTestAccount: u.IsTestAccount,
		UserData: userDataResponse{
			BojID:          u.UserData.BojID,
			SourceOpened:   u.UserData.SourceOpened,
			SolvedacRating: u.UserData.SolvedacRating,
			SolvedProblem:  nonNil(u.UserData.SolvedProblem),
			TriedProblem:   nonNil(u.UserData.TriedProblem),
		},
		LastRequestSucceeded: lastRequestResponse{
			BOJ:      u.LastRequestSucceeded.BOJ,
			Solvedac: u.LastRequestSucceeded.Solvedac,
		},
		GitRepo: gitRepoResponse{
			Linked:   u.GitRepo.Linked,
			RepoURL:  u.GitRepo.RepoURL,
			BojDir:   u.GitRepo.BojDir,
			LinkRule: int(u.GitRepo.LinkRule),
		},
	}
}

func nonNil(ids []int) []int {
	if ids == nil {
		return []int{}
	}
	return ids
}

// Me はログイン中のユーザー情報を返す。
// GET /api/user/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	username, ok := requireUsername(w, r)
	if !ok {
		return
	}

	u, err := h.service.Me(r.Context(), username)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMeResponse(u))
}

type updateBasicRequest struct {
	Password string `json:"password"`
	BojID    string `json:"bojId"`
}

// UpdateBasic はBOJハンドルを変更する。
// PATCH /api/user/basic
func (h *UserHandler) UpdateBasic(w http.ResponseWriter, r *http.Request) {
	username, ok := requireUsername(w, r)
	if !ok {
		return
	}

	var req updateBasicRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.service.ChangeBojID(r.Context(), username, req.Password, req.BojID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// RefreshSolved は連携中ハンドルの解答状況の再取得を要求する。
// PATCH /api/user/solved
func (h *UserHandler) RefreshSolved(w http.ResponseWriter, r *http.Request) {
	username, ok := requireUsername(w, r)
	if !ok {
		return
	}

	if err := h.service.RequestSolvedRefresh(r.Context(), username); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

type updateGitRequest struct {
	Password string `json:"password"`
	RepoURL  string `json:"repoUrl"`
	BojDir   string `json:"bojDir"`
	LinkRule int    `json:"linkRule"`
}

// UpdateGit はGitリポジトリ連携を設定する。
// PATCH /api/user/git
func (h *UserHandler) UpdateGit(w http.ResponseWriter, r *http.Request) {
	username, ok := requireUsername(w, r)
	if !ok {
		return
	}

	var req updateGitRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	err := h.service.UpdateGitRepository(r.Context(), username, user.GitLinkInput{
		Password: req.Password,
		RepoURL:  req.RepoURL,
		BojDir:   req.BojDir,
		LinkRule: model.GitLinkRule(req.LinkRule),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
