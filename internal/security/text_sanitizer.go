// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は管理者が入力するクーポンコードや説明文などの短いテキストから
// マークアップを除去する。ストアフロントはこれらの値をそのまま描画するため、
// 保存前にタグ・属性をすべて取り除いておく。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はプレーンテキスト用サニタイズのインターフェース。
type TextSanitizerService interface {
	// Sanitize はすべてのHTMLタグを除去し、前後の空白を取り除いた文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// TextSanitizer はbluemondayのStrictPolicyでテキストをサニタイズする。
// ポリシーはスレッドセーフなので共有して使う。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// maxPasses はエスケープの入れ子を展開する最大回数。
const maxPasses = 4

// Sanitize はタグを除去する。
// StrictPolicyは&などをエスケープするため、プレーンテキストとして保存できるよう戻す。
// 戻した結果に &lt;script&gt; 由来のタグが現れないよう、変化がなくなるまで繰り返す。
func (s *TextSanitizer) Sanitize(raw string) string {
	cur := strings.TrimSpace(raw)
	for i := 0; i < maxPasses; i++ {
		next := strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(cur)))
		if next == cur {
			break
		}
		cur = next
	}
	return cur
}

var _ TextSanitizerService = (*TextSanitizer)(nil)
