// Package solvedac はsolved.ac APIの呼び出しを提供する。
// 問題のメタデータ（タイトル・難易度・タグ）とユーザーのティア取得を含む。
package solvedac

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/algohaja/internal/model"
	"github.com/hitoshi/algohaja/internal/upstream"
)

const (
	// DefaultBaseURL はsolved.ac APIのベースURL。
	DefaultBaseURL = "https://solved.ac/api/v3"

	maxProblemTier = 30
	maxUserTier    = 31
	maxTitleLength = 200
)

// TextSanitizer は取得したタイトルやタグのマークアップを除去する。
type TextSanitizer interface {
	SanitizeText(raw string) string
}

// Getter は外部サービスへのGETを抽象化する。upstream.Clientが実装する。
type Getter interface {
	Get(ctx context.Context, rawURL string, accept string) ([]byte, error)
}

// Client はsolved.ac APIのクライアント。
type Client struct {
	getter    Getter
	sanitizer TextSanitizer
	logger    *slog.Logger
	baseURL   string
}

// NewClient はClientの新しいインスタンスを生成する。baseURLが空の場合はDefaultBaseURLを使用する。
func NewClient(getter Getter, sanitizer TextSanitizer, logger *slog.Logger, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		getter:    getter,
		sanitizer: sanitizer,
		logger:    logger,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

type problemResponse struct {
	ProblemID int    `json:"problemId"`
	TitleKo   string `json:"titleKo"`
	Level     *int   `json:"level"`
	Tags      []struct {
		Key string `json:"key"`
	} `json:"tags"`
}

type userResponse struct {
	Handle string `json:"handle"`
	Tier   *int   `json:"tier"`
}

// FetchProblemInfo は問題番号に対応するタイトル・ティア・タグを取得する。
// タイトルが空、またはティアが0〜30の範囲外の場合はErrMalformedResponseを返す。
func (c *Client) FetchProblemInfo(ctx context.Context, problemID int) (*model.ProblemInfo, error) {
	endpoint := c.baseURL + "/problem/show?problemId=" + strconv.Itoa(problemID)

	body, err := c.getter.Get(ctx, endpoint, "application/json")
	if err != nil {
		return nil, fmt.Errorf("solved.acの問題情報取得に失敗しました (problem_id=%d): %w", problemID, err)
	}

	var resp problemResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, upstream.Malformed("問題情報のJSONパースに失敗しました: %v", err)
	}

	title := c.clean(resp.TitleKo)
	if title == "" {
		return nil, upstream.Malformed("問題タイトルが空です (problem_id=%d)", problemID)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		title = string([]rune(title)[:maxTitleLength])
	}
	if resp.Level == nil || *resp.Level < 0 || *resp.Level > maxProblemTier {
		return nil, upstream.Malformed("問題ティアが範囲外です (problem_id=%d)", problemID)
	}

	tags := make([]string, 0, len(resp.Tags))
	seen := make(map[string]struct{}, len(resp.Tags))
	for _, t := range resp.Tags {
		key := c.clean(t.Key)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		tags = append(tags, key)
	}

	return &model.ProblemInfo{
		Title: title,
		Tier:  *resp.Level,
		Tags:  tags,
	}, nil
}

// FetchUserTier はハンドルに対応するユーザーのティア（0〜31）を取得する。
func (c *Client) FetchUserTier(ctx context.Context, handle string) (int, error) {
	endpoint := c.baseURL + "/user/show?handle=" + url.QueryEscape(handle)

	body, err := c.getter.Get(ctx, endpoint, "application/json")
	if err != nil {
		return 0, fmt.Errorf("solved.acのユーザー情報取得に失敗しました (handle=%s): %w", handle, err)
	}

	var resp userResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, upstream.Malformed("ユーザー情報のJSONパースに失敗しました: %v", err)
	}
	if resp.Tier == nil || *resp.Tier < 0 || *resp.Tier > maxUserTier {
		c.logger.Warn("solved.acのユーザーティアが不正です",
			slog.String("handle", handle),
		)
		return 0, upstream.Malformed("ユーザーティアが範囲外です (handle=%s)", handle)
	}
	return *resp.Tier, nil
}

func (c *Client) clean(s string) string {
	if c.sanitizer == nil {
		return strings.TrimSpace(s)
	}
	return c.sanitizer.SanitizeText(s)
}
