// Package security は外部入力を扱う際の安全対策を提供する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は自己紹介やチーム説明などの自由記述をプレーンテキストに正規化する。
type TextSanitizer interface {
	// Sanitize はすべてのHTMLタグを除去し、前後の空白を取り除いた文字列を返す。
	Sanitize(raw string) string
}

type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はbluemondayのStrictPolicyを使うTextSanitizerを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去したうえでエスケープを戻す。
// 保存値はプレーンテキストとして扱い、表示側でエスケープする。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}
