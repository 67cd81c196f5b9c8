// Package boj はBaekjoon Online Judgeのユーザーページから解いた問題の一覧を取得する。
package boj

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hitoshi/algohaja/internal/model"
	"github.com/hitoshi/algohaja/internal/upstream"
)

// DefaultBaseURL はBOJのベースURL。
const DefaultBaseURL = "https://www.acmicpc.net"

// パネルタイトルでの判定に失敗した場合に使う位置ベースのセレクタ。
const (
	solvedFallbackPanel = "div.col-md-9 > div:nth-child(2) > div.panel-body"
	wrongFallbackPanel  = "div.col-md-9 > div:nth-child(3) > div.panel-body"
)

const (
	solvedPanelTitle = "맞은 문제"
	wrongPanelTitle  = "맞지 못한 문제"
)

// Getter は外部サービスへのGETを抽象化する。upstream.Clientが実装する。
type Getter interface {
	Get(ctx context.Context, rawURL string, accept string) ([]byte, error)
}

// Client はBOJユーザーページのスクレイパー。
type Client struct {
	getter  Getter
	baseURL string
}

// NewClient はClientの新しいインスタンスを生成する。baseURLが空の場合はDefaultBaseURLを使用する。
func NewClient(getter Getter, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		getter:  getter,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// FetchUserSolved はハンドルの「맞은 문제」と「시도했지만 맞지 못한 문제」を取得する。
// BOJが403を返した場合はupstream.ErrBlockedを返す。
func (c *Client) FetchUserSolved(ctx context.Context, handle string) (*model.SolvedStatus, error) {
	endpoint := c.baseURL + "/user/" + url.PathEscape(handle)

	body, err := c.getter.Get(ctx, endpoint, "text/html")
	if err != nil {
		return nil, fmt.Errorf("BOJユーザーページの取得に失敗しました (boj_id=%s): %w", handle, err)
	}

	return ParseUserPage(body)
}

// ParseUserPage はユーザーページのHTMLから解いた問題と解けなかった問題を抽出する。
// 一覧の片方でも欠けたページ（途中で切れたレスポンスなど）はErrMalformedResponseとする。
// 空リストで保存済みの一覧を上書きしないため、部分的な結果は返さない。
func ParseUserPage(body []byte) (*model.SolvedStatus, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, upstream.Malformed("ユーザーページのHTMLパースに失敗しました: %v", err)
	}

	var solvedBody, wrongBody *goquery.Selection
	doc.Find("div.panel").Each(func(_ int, panel *goquery.Selection) {
		title := strings.TrimSpace(panel.Find(".panel-title").First().Text())
		switch {
		case strings.Contains(title, wrongPanelTitle):
			wrongBody = panel.Find(".panel-body")
		case strings.Contains(title, solvedPanelTitle):
			solvedBody = panel.Find(".panel-body")
		}
	})

	if solvedBody == nil && wrongBody == nil {
		// タイトルが見つからない場合は位置で探す
		solvedBody = doc.Find(solvedFallbackPanel)
		wrongBody = doc.Find(wrongFallbackPanel)
		if solvedBody.Length() == 0 && wrongBody.Length() == 0 {
			return nil, upstream.Malformed("ユーザーページの構造が想定と異なります")
		}
	} else if !hasPanelBody(solvedBody) || !hasPanelBody(wrongBody) {
		return nil, upstream.Malformed("ユーザーページの問題一覧が欠けています")
	}

	return &model.SolvedStatus{
		Solved: problemIDs(solvedBody),
		Wrong:  problemIDs(wrongBody),
	}, nil
}

func hasPanelBody(sel *goquery.Selection) bool {
	return sel != nil && sel.Length() > 0
}

// problemIDs はリンクテキストを問題番号として読み取り、重複を除いて出現順に返す。
func problemIDs(sel *goquery.Selection) []int {
	ids := []int{}
	if sel == nil {
		return ids
	}
	seen := make(map[int]struct{})
	sel.Find("a").Each(func(_ int, a *goquery.Selection) {
		id, err := strconv.Atoi(strings.TrimSpace(a.Text()))
		if err != nil || id <= 0 {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	})
	return ids
}
