package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

const (
	// defaultUserAgent は外部サービスへ送信するUser-Agent。
	defaultUserAgent = "Algohaja/1.0 (+https://github.com/hitoshi/algohaja)"
	// defaultMaxBodySize はレスポンスボディの最大読み取りサイズ（2MB）。
	defaultMaxBodySize = 2 << 20
)

// Client はトークンバケットで呼び出し頻度を制限するHTTPクライアント。
// 同一の外部サービスに対して1インスタンスを共有し、呼び出し元単位のスロットリングに備える。
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	userAgent   string
	maxBodySize int64
}

// NewClient はClientを生成する。limiterがnilの場合は制限しない。
func NewClient(httpClient *http.Client, limiter *rate.Limiter) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Client{
		httpClient:  httpClient,
		limiter:     limiter,
		userAgent:   defaultUserAgent,
		maxBodySize: defaultMaxBodySize,
	}
}

// NewLimiter は秒間perSecond回のトークンバケットを生成する。
// perSecondが0以下の場合は無制限とする。
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// Get はレート制限の順番を待ってからGETリクエストを送信し、レスポンスボディを返す。
// 200以外のステータスはClassifyHTTPStatusの分類で返す。
// ボディが上限を超える場合は切り詰めずにErrMalformedResponseを返す。
func (c *Client) Get(ctx context.Context, rawURL string, accept string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("レート制限の待機に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if err := ClassifyHTTPStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	// 上限を1バイト超えて読み、切り詰めが起きたかを判定する
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	if int64(len(body)) > c.maxBodySize {
		return nil, Malformed("レスポンスボディが上限(%dバイト)を超えました", c.maxBodySize)
	}
	return body, nil
}
