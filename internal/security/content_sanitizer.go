package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// MarkupSanitizer は生成済みHTML断片をサニタイズするインターフェース。
type MarkupSanitizer interface {
	// Sanitize は許可リスト外の要素・属性を除去した安全なHTMLを返す。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

// badgeSanitizer はプレゼンスバッジ用のMarkupSanitizer実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type badgeSanitizer struct {
	policy *bluemonday.Policy
}

// NewBadgeSanitizer はプレゼンスバッジ用のサニタイザを生成する。
// ポリシーの内容:
//   - 許可タグ: a, div, span
//   - class, title, aria-live, aria-atomic, aria-hiddenを全要素で許可
//   - aのhrefはhttpsの絶対URLのみ
//   - aタグに target="_blank" と rel="noopener noreferrer" を強制付与
func NewBadgeSanitizer() *badgeSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements("div", "span")
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).Globally()
	p.AllowAttrs("title").Globally()
	p.AllowAttrs("aria-live", "aria-atomic", "aria-hidden").Globally()

	p.AllowAttrs("href").OnElements("a")
	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(false)
	p.AllowURLSchemes("https")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &badgeSanitizer{
		policy: p,
	}
}

// Sanitize はHTMLをバッジ用ポリシーでサニタイズする。
func (s *badgeSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
