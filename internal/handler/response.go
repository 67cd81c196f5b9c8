// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/algohaja/internal/middleware"
	"github.com/hitoshi/algohaja/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("レスポンスのエンコードに失敗しました", slog.String("error", err.Error()))
	}
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidProblemID,
		model.ErrCodeInvalidBojID,
		model.ErrCodeInvalidRepoURL,
		model.ErrCodeInvalidBojDir,
		model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeInvalidPassword, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeTestAccount, model.ErrCodeForbiddenOrigin:
		return http.StatusForbidden
	case model.ErrCodeProblemNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeBojIDNotLinked:
		return http.StatusConflict
	case model.ErrCodeCloneFailed:
		return http.StatusUnprocessableEntity
	case model.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSONBody はリクエストボディをデコードする。失敗時は400を書き込みfalseを返す。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return false
	}
	return true
}

// requireUsername は認証済みユーザー名を取得する。未認証なら401を書き込む。
func requireUsername(w http.ResponseWriter, r *http.Request) (string, bool) {
	username, err := middleware.UsernameFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return username, true
}
