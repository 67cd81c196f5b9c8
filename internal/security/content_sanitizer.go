package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は外部サービスから取得した文字列をプレーンテキスト化する。
// 問題タイトルやタグは画面にそのまま表示されるため、保存前にマークアップを除去する。
type TextSanitizerService interface {
	// SanitizeText はHTMLタグを除去し、エンティティを復元し、前後の空白を取り除いた文字列を返す。
	SanitizeText(raw string) string
}

// textSanitizer はbluemondayのStrictPolicyによるTextSanitizerServiceの実装。
// bluemondayのPolicyはスレッドセーフなため、1インスタンスを共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// SanitizeText はrawからすべてのタグを除去したプレーンテキストを返す。
// StrictPolicyは & や < をエスケープして返すため、保存用にエンティティを戻す。
func (s *textSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
