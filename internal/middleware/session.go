// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/algohaja/internal/model"
)

// AccessTokenCookieName はアクセストークンを保持するCookieの名前。
const AccessTokenCookieName = "access_token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var usernameContextKey = contextKey("username")

// AccessClaims はアクセストークンのクレーム。
// トークンの発行は認証サービス側で行い、ここでは検証のみ行う。
type AccessClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenVerifier はHS256署名のアクセストークンを検証する。
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenVerifier は共有シークレットで検証するTokenVerifierを生成する。
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify はトークン文字列を検証し、ユーザー名を返す。
func (v *TokenVerifier) Verify(token string) (string, error) {
	claims := &AccessClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("アクセストークンの検証に失敗しました: %w", err)
	}
	if claims.Username == "" {
		return "", errors.New("アクセストークンにusernameクレームがありません")
	}
	return claims.Username, nil
}

// Sign はクレームにHS256で署名したトークンを返す。
// テストと運用ツールからのトークン発行に使用する。
func (v *TokenVerifier) Sign(claims AccessClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// NewAuthMiddleware はCookieのアクセストークンを検証し、
// ユーザー名をリクエストコンテキストに注入するミドルウェアを返す。
// 未認証リクエストには401を返す。
func NewAuthMiddleware(verifier *TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(AccessTokenCookieName)
			if err != nil || cookie.Value == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			username, err := verifier.Verify(cookie.Value)
			if err != nil {
				slog.Debug("アクセストークンが無効です",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if setter, ok := w.(usernameSetter); ok {
				setter.SetUsername(username)
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUsername(r.Context(), username)))
		})
	}
}

// UsernameFromContext はリクエストコンテキストからユーザー名を取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UsernameFromContext(ctx context.Context) (string, error) {
	username, ok := ctx.Value(usernameContextKey).(string)
	if !ok || username == "" {
		return "", fmt.Errorf("username not found in context")
	}
	return username, nil
}

// ContextWithUsername はコンテキストにユーザー名を注入する。
func ContextWithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameContextKey, username)
}
