package model

import "time"

// Post は公開済みのブログ記事を表す。
type Post struct {
	ID        int64
	Title     string
	Slug      string
	Content   string
	CreatedAt time.Time
	Author    *PostAuthor // 投稿者が解決できない場合はnil
}

// PostAuthor は記事に結合される投稿者情報。
type PostAuthor struct {
	ID   int64
	Name *string
}

// NewPost は永続化前の記事データ。
type NewPost struct {
	Title    string
	Slug     string
	Content  string
	AuthorID int64
}
