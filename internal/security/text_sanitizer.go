// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はリソースメタデータ（リソース名、代替サービス名など）から
// マークアップを除去し、アプリ内通知に保存できるプレーンテキストにする。
// リソースメタデータはクラウド側のタグや名前に由来し、任意の文字列を含み得る。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はbluemondayのStrictPolicyで全タグを除去する。
// bluemonday.Policyはスレッドセーフであり、1インスタンスを共有してよい。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// PlainText はすべてのHTMLタグを除去し、エンティティを復元したテキストを返す。
// 前後の空白は取り除く。空文字列の入力には空文字列を返す。
func (s *TextSanitizer) PlainText(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}
