// Package upstream は外部サービス（solved.ac、BOJ）呼び出しの共通処理を提供する。
// HTTPステータスの分類、レート制限付きGET、共通エラーを含む。
package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// 外部呼び出しの失敗分類。呼び出し元はerrors.Isで判定する。
var (
	ErrNotFound          = errors.New("upstream: not found")
	ErrRateLimited       = errors.New("upstream: rate limited")
	ErrBlocked           = errors.New("upstream: access blocked")
	ErrUnexpectedStatus  = errors.New("upstream: unexpected status")
	ErrMalformedResponse = errors.New("upstream: malformed response")
)

// ClassifyHTTPStatus はHTTPステータスコードを失敗分類に変換する。
// 200の場合はnilを返す。
func ClassifyHTTPStatus(statusCode int) error {
	switch {
	case statusCode == http.StatusOK:
		return nil
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		return fmt.Errorf("%w (status %d)", ErrNotFound, statusCode)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w (status %d)", ErrRateLimited, statusCode)
	case statusCode == http.StatusForbidden || statusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w (status %d)", ErrBlocked, statusCode)
	default:
		return fmt.Errorf("%w (status %d)", ErrUnexpectedStatus, statusCode)
	}
}

// Malformed はレスポンス形式の異常を表すエラーを生成する。
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}
