package model

// PresenceSnapshot は1回の集約で得られたDiscordサーバーの状態。
// 値が得られなかったフィールドはnilのままJSONではnullになる。
type PresenceSnapshot struct {
	Name          *string `json:"name"`
	PresenceCount *int    `json:"presenceCount"`
	MemberCount   *int    `json:"memberCount"`
	InstantInvite *string `json:"instantInvite"`
}
