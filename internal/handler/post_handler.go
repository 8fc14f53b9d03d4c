package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/titan/internal/middleware"
	"github.com/hitoshi/titan/internal/model"
	"github.com/hitoshi/titan/internal/post"
)

// maxPostBodyBytes は投稿リクエストボディの上限。
const maxPostBodyBytes = 1 << 20

// PostServiceInterface は記事ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	List(ctx context.Context) ([]model.Post, error)
	Publish(ctx context.Context, identity *model.Identity, raw any) (*model.Post, error)
}

// PostHandler はブログ記事のHTTPハンドラー。
type PostHandler struct {
	service PostServiceInterface
	feed    post.FeedInfo
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(service PostServiceInterface, feed post.FeedInfo) *PostHandler {
	return &PostHandler{
		service: service,
		feed:    feed,
	}
}

// postResponse は記事のAPIレスポンス。一覧と公開結果で同じ形を使う。
type postResponse struct {
	ID        int64          `json:"id"`
	Title     string         `json:"title"`
	Slug      string         `json:"slug"`
	Content   string         `json:"content"`
	CreatedAt string         `json:"createdAt"`
	Author    authorResponse `json:"author"`
}

// authorResponse は記事の投稿者。解決できない場合は両方null。
type authorResponse struct {
	ID   *int64  `json:"id"`
	Name *string `json:"name"`
}

func toPostResponse(p model.Post) postResponse {
	resp := postResponse{
		ID:        p.ID,
		Title:     p.Title,
		Slug:      p.Slug,
		Content:   p.Content,
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
	}
	if p.Author != nil {
		id := p.Author.ID
		resp.Author = authorResponse{ID: &id, Name: p.Author.Name}
	}
	return resp
}

// ListPosts は記事一覧を新しい順に返す。
// GET /api/posts
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.service.List(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	resp := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		resp = append(resp, toPostResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// PublishPost は記事を公開する。
// POST /api/posts
// ボディはJSONとして任意の値にデコードし、不正なJSONはnullとして検証に渡す。
func (h *PostHandler) PublishPost(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	// 認可はボディを読む前に判定する
	if err := post.Authorize(identity); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	created, err := h.service.Publish(r.Context(), identity, decodeUntyped(w, r))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPostResponse(*created))
}

// Feed は記事一覧をRSS 2.0で返す。
// GET /api/posts/feed.xml
func (h *PostHandler) Feed(w http.ResponseWriter, r *http.Request) {
	posts, err := h.service.List(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := post.WriteRSS(&buf, h.feed, posts); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.WarnContext(r.Context(), "failed to write feed", slog.String("error", err.Error()))
	}
}

// decodeUntyped はリクエストボディを型を決めずにデコードする。
// 読み取りまたはデコードに失敗した場合はnilを返す。
func decodeUntyped(w http.ResponseWriter, r *http.Request) any {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPostBodyBytes))
	if err != nil {
		return nil
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}
	return raw
}
