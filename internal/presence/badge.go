package presence

import (
	"bytes"
	"html/template"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/hitoshi/titan/internal/security"
)

// バッジの固定文言。
const (
	StatusLoading     = "Loading..."
	StatusUnavailable = "Status unavailable"
	labelPrefix       = "Discord"
)

var numberPrinter = message.NewPrinter(language.AmericanEnglish)

var badgeTemplate = template.Must(template.New("badge").Parse(
	`{{if .Href}}<a href="{{.Href}}" class="discord-badge" title="Join us on Discord">` +
		`{{else}}<div class="discord-badge" title="Discord live status">{{end}}` +
		`<span class="discord-badge-body" aria-live="polite" aria-atomic="true">` +
		`<span class="discord-badge-label">{{.Label}}</span>` +
		`<span class="discord-badge-status">{{.Status}}</span>` +
		`</span>` +
		`{{if .Href}}</a>{{else}}</div>{{end}}`,
))

// Badge はポーラーの状態からバッジの表示内容を組み立てる。
type Badge struct {
	state     State
	sanitizer security.MarkupSanitizer
}

// NewBadge はBadgeを生成する。sanitizerがnilの場合はバッジ用の既定ポリシーを使う。
func NewBadge(state State, sanitizer security.MarkupSanitizer) Badge {
	if sanitizer == nil {
		sanitizer = security.NewBadgeSanitizer()
	}
	return Badge{state: state, sanitizer: sanitizer}
}

// StatusText は "<presence> online / <members> members" 形式のステータス行を返す。
// どちらの件数もなければ、直近の取得が失敗していれば"Status unavailable"、
// まだ成功していなければ"Loading..."を返す。
func (b Badge) StatusText() string {
	var parts []string
	if s := b.state.Snapshot; s != nil {
		if s.PresenceCount != nil {
			parts = append(parts, numberPrinter.Sprintf("%d online", *s.PresenceCount))
		}
		if s.MemberCount != nil {
			parts = append(parts, numberPrinter.Sprintf("%d members", *s.MemberCount))
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " / ")
	}
	if b.state.Failed {
		return StatusUnavailable
	}
	return StatusLoading
}

// Label はサーバー名付きのラベルを返す。
func (b Badge) Label() string {
	if s := b.state.Snapshot; s != nil && s.Name != nil && *s.Name != "" {
		return labelPrefix + " - " + *s.Name
	}
	return labelPrefix
}

// Href は招待URLを返す。公開HTTPSリンクとして扱えない場合は空文字列。
func (b Badge) Href() string {
	s := b.state.Snapshot
	if s == nil || s.InstantInvite == nil {
		return ""
	}
	if err := security.ValidateURL(*s.InstantInvite); err != nil {
		return ""
	}
	return *s.InstantInvite
}

// Text はプレーンテキスト1行で表したバッジを返す。
func (b Badge) Text() string {
	line := b.Label() + ": " + b.StatusText()
	if href := b.Href(); href != "" {
		line += " (" + href + ")"
	}
	return line
}

// HTML は招待URLがあれば<a>、なければ<div>のバッジを返す。
func (b Badge) HTML() (string, error) {
	var buf bytes.Buffer
	err := badgeTemplate.Execute(&buf, struct {
		Href   string
		Label  string
		Status string
	}{
		Href:   b.Href(),
		Label:  b.Label(),
		Status: b.StatusText(),
	})
	if err != nil {
		return "", err
	}
	return b.sanitizer.Sanitize(buf.String()), nil
}
