// Package post はブログ記事の一覧・公開に関するドメインロジックを提供する。
package post

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// 入力値の上限。文字数はコードポイント単位で数える。
const (
	TitleMaxLength   = 160
	SlugMaxLength    = 64
	ContentMaxLength = 8000
)

// バリデーションエラーメッセージ。評価順に並べている。
const (
	ReasonInvalidPayload = "Invalid payload"
	ReasonMissingFields  = "Missing required fields"
	ReasonTitleTooLong   = "Title too long"
	ReasonInvalidSlug    = "Slug must be lowercase letters, numbers, or hyphens"
	ReasonContentTooLong = "Content exceeds max length"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Payload は検証済みの投稿内容。
type Payload struct {
	Title   string
	Slug    string
	Content string
}

// Result はParsePayloadの結果。Reasonが空ならPayloadが有効。
type Result struct {
	Payload Payload
	Reason  string
}

// OK は検証に成功したかどうかを返す。
func (r Result) OK() bool {
	return r.Reason == ""
}

func ok(p Payload) Result       { return Result{Payload: p} }
func fail(reason string) Result { return Result{Reason: reason} }

// ParsePayload はワイヤから受け取った任意の値を検証する。
// 最初に失敗した規則の理由だけを返し、以降の規則は評価しない。
func ParsePayload(raw any) Result {
	var body map[string]any
	switch v := raw.(type) {
	case map[string]any:
		body = v
	case []any:
		// 配列はフィールドを持たないオブジェクトとして扱い、必須項目の欠落で落とす
		return fail(ReasonMissingFields)
	}
	if body == nil {
		return fail(ReasonInvalidPayload)
	}

	title := trimSpace(stringField(body, "title"))
	slug := strings.ToLower(trimSpace(stringField(body, "slug")))
	content := trimSpace(stringField(body, "content"))

	if title == "" || slug == "" || content == "" {
		return fail(ReasonMissingFields)
	}

	if utf8.RuneCountInString(title) > TitleMaxLength {
		return fail(ReasonTitleTooLong)
	}

	if !ValidSlug(slug) {
		return fail(ReasonInvalidSlug)
	}

	if utf8.RuneCountInString(content) > ContentMaxLength {
		return fail(ReasonContentTooLong)
	}

	return ok(Payload{Title: title, Slug: slug, Content: content})
}

// ValidSlug はslugが長さ上限以内かつ ^[a-z0-9-]+$ に一致するかを判定する。
func ValidSlug(slug string) bool {
	return utf8.RuneCountInString(slug) <= SlugMaxLength && slugPattern.MatchString(slug)
}

// trimSpace は前後の空白を除去する。
// Unicodeの空白に加えてBOM(U+FEFF)も除去し、NEL(U+0085)は本文として残す。
func trimSpace(s string) string {
	return strings.TrimFunc(s, isTrimmable)
}

func isTrimmable(r rune) bool {
	if r == '\u0085' {
		return false
	}
	return r == '\ufeff' || unicode.IsSpace(r)
}

// stringField は文字列以外の値を空文字列として扱う。
func stringField(body map[string]any, key string) string {
	s, _ := body[key].(string)
	return s
}
