package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/titan/internal/model"
)

// PostgresPostRepo はPostgreSQLを使用したブログ記事リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// List は全記事を作成日時の降順で返す。
// 同一時刻の記事はIDの降順で並べ、繰り返し呼び出しても順序が変わらないようにする。
func (r *PostgresPostRepo) List(ctx context.Context) ([]model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id, p.title, p.slug, p.content, p.created_at, u.id, u.name
		 FROM posts p
		 LEFT JOIN users u ON u.id = p.author_id
		 ORDER BY p.created_at DESC, p.id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	posts := []model.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}

	return posts, nil
}

// Create は記事を1件挿入し、投稿者を結合した結果を返す。
func (r *PostgresPostRepo) Create(ctx context.Context, post model.NewPost) (*model.Post, error) {
	row := r.db.QueryRowContext(ctx,
		`WITH inserted AS (
			INSERT INTO posts (title, slug, content, author_id)
			VALUES ($1, $2, $3, $4)
			RETURNING id, title, slug, content, created_at, author_id
		)
		SELECT i.id, i.title, i.slug, i.content, i.created_at, u.id, u.name
		FROM inserted i
		LEFT JOIN users u ON u.id = i.author_id`,
		post.Title, post.Slug, post.Content, post.AuthorID,
	)

	created, err := scanPost(row)
	if isUniqueViolation(err, "posts_slug_key") {
		return nil, ErrSlugTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert post: %w", err)
	}

	return created, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanPost は記事1行を読み込む。投稿者が結合できない場合はAuthorをnilにする。
func scanPost(s rowScanner) (*model.Post, error) {
	post := &model.Post{}
	var authorID sql.NullInt64
	var authorName sql.NullString

	if err := s.Scan(&post.ID, &post.Title, &post.Slug, &post.Content, &post.CreatedAt, &authorID, &authorName); err != nil {
		return nil, err
	}

	if authorID.Valid {
		post.Author = &model.PostAuthor{ID: authorID.Int64}
		if authorName.Valid {
			name := authorName.String
			post.Author.Name = &name
		}
	}

	return post, nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
