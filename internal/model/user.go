// Package model はドメインモデルを定義する。
package model

import "time"

// User はサイトのアカウントを表す。
type User struct {
	ID           int64
	Email        string
	Name         *string // 登録時に省略可能
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Identity はリクエストから解決された呼び出し元の情報。
// 管理者フラグとメールアドレスはセッション解決時点の値であり、
// 投稿者の実在確認は別途ユーザーテーブルで行う。
type Identity struct {
	SessionID string
	UserID    int64
	Email     string
	Name      *string
	IsAdmin   bool
}
