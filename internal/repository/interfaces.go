// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/titan/internal/model"
)

// 一意制約違反を表すエラー。書き込み時点で検出され、事前チェックは行わない。
var (
	ErrSlugTaken  = errors.New("slug already exists")
	ErrEmailTaken = errors.New("email already exists")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成し、採番されたIDとタイムスタンプをuserに設定する。
	// メールアドレスが重複している場合はErrEmailTakenを返す。
	Create(ctx context.Context, user *model.User) error

	// SetAdmin は管理者フラグを更新する。該当ユーザーがいない場合はfalseを返す。
	SetAdmin(ctx context.Context, email string, isAdmin bool) (bool, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// PostRepository はブログ記事の永続化インターフェース。
type PostRepository interface {
	// List は全記事を作成日時の降順で、投稿者をLEFT JOINして返す。
	List(ctx context.Context) ([]model.Post, error)

	// Create は記事を1件挿入し、投稿者を結合した結果を返す。
	// slugが重複している場合はErrSlugTakenを返す。
	Create(ctx context.Context, post model.NewPost) (*model.Post, error)
}
