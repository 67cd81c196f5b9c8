package refresh

import (
	"context"
	"errors"

	"github.com/hitoshi/algohaja/internal/metrics"
	"github.com/hitoshi/algohaja/internal/upstream"
)

// ErrPanic は項目処理中のpanicを回復した場合のエラー。
var ErrPanic = errors.New("refresh: recovered panic")

// classifyResult は取得エラーをメトリクスの結果ラベルに変換する。
func classifyResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, context.DeadlineExceeded):
		return metrics.ResultTimeout
	case errors.Is(err, upstream.ErrNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, upstream.ErrRateLimited):
		return metrics.ResultRateLimited
	case errors.Is(err, upstream.ErrBlocked):
		return metrics.ResultBlocked
	case errors.Is(err, upstream.ErrMalformedResponse):
		return metrics.ResultMalformed
	default:
		return metrics.ResultError
	}
}
