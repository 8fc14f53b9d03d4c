package post

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/titan/internal/model"
	"github.com/hitoshi/titan/internal/repository"
)

// UserFinder は投稿者解決に必要なユーザー検索インターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// MetricsRecorder は公開処理の結果を記録するインターフェース。
type MetricsRecorder interface {
	RecordPostPublished()
	RecordPublishRejected(reason string)
}

// Service はブログ記事の一覧・公開を提供する。
// プロセス内に可変状態を持たず、slugの一意性は永続化層の制約に委ねる。
type Service struct {
	posts   repository.PostRepository
	users   UserFinder
	metrics MetricsRecorder
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(posts repository.PostRepository, users UserFinder, metrics MetricsRecorder) *Service {
	return &Service{
		posts:   posts,
		users:   users,
		metrics: metrics,
	}
}

// List は全記事を新しい順に返す。
// ストレージ障害はServiceUnavailableとして返す。
func (s *Service) List(ctx context.Context) ([]model.Post, error) {
	posts, err := s.posts.List(ctx)
	if err != nil {
		slog.Error("failed to list posts", slog.String("error", err.Error()))
		return nil, model.NewServiceUnavailableError()
	}
	return posts, nil
}

// Authorize は呼び出し元が記事を公開できるかを判定する。
// 管理者フラグとメールアドレスの両方を持つセッションのみ許可する。
func Authorize(identity *model.Identity) error {
	if identity == nil || !identity.IsAdmin || identity.Email == "" {
		return model.NewUnauthorizedError()
	}
	return nil
}

// Publish は記事を検証して永続化する。
// 手順: 認可 → ペイロード検証 → 投稿者解決 → 挿入。
// いずれかで失敗した場合は挿入を行わない。
func (s *Service) Publish(ctx context.Context, identity *model.Identity, raw any) (*model.Post, error) {
	if err := Authorize(identity); err != nil {
		s.recordRejected("unauthorized")
		return nil, err
	}

	result := ParsePayload(raw)
	if !result.OK() {
		s.recordRejected("validation")
		return nil, model.NewInvalidPayloadError(result.Reason)
	}

	// セッションが管理者を名乗っていても、ユーザー行が削除済みの場合がある
	author, err := s.users.FindByEmail(ctx, identity.Email)
	if err != nil {
		slog.Error("failed to resolve post author", slog.String("error", err.Error()))
		return nil, model.NewServiceUnavailableError()
	}
	if author == nil {
		s.recordRejected("author_not_found")
		return nil, model.NewUserNotFoundError()
	}

	created, err := s.posts.Create(ctx, model.NewPost{
		Title:    result.Payload.Title,
		Slug:     result.Payload.Slug,
		Content:  result.Payload.Content,
		AuthorID: author.ID,
	})
	if errors.Is(err, repository.ErrSlugTaken) {
		s.recordRejected("conflict")
		return nil, model.NewSlugConflictError()
	}
	if err != nil {
		slog.Error("failed to create post", slog.String("error", err.Error()))
		return nil, model.NewServiceUnavailableError()
	}

	slog.Info("post published",
		slog.Int64("post_id", created.ID),
		slog.String("slug", created.Slug),
		slog.Int64("author_id", author.ID),
	)
	if s.metrics != nil {
		s.metrics.RecordPostPublished()
	}

	return created, nil
}

func (s *Service) recordRejected(reason string) {
	if s.metrics != nil {
		s.metrics.RecordPublishRejected(reason)
	}
}
