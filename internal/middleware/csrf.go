package middleware

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/hitoshi/algohaja/internal/model"
)

// NewOriginCheckMiddleware はCookie認証の状態変更リクエストに対して
// Originヘッダーを検証するミドルウェアを返す。
// 安全なメソッドとOriginヘッダーのないリクエスト（同一オリジンやCLI）は通過させる。
func NewOriginCheckMiddleware(allowedOrigins []string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(allowedOrigins, origin) {
				next.ServeHTTP(w, r)
				return
			}

			slog.Warn("許可されていないオリジンからの変更リクエストを拒否しました",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("origin", origin),
			)
			WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenOriginError())
		})
	}
}

// isSafeMethod はHTTPメソッドが読み取り専用かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
