// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/titan/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var identityContextKey = contextKey("identity")

// SessionResolver はセッションIDから呼び出し元を解決するインターフェース。
// 匿名の場合はnil, nilを返す。
type SessionResolver interface {
	ResolveSession(ctx context.Context, sessionID string) (*model.Identity, error)
}

// NewSessionMiddleware はCookieのセッションを解決してコンテキストに注入するミドルウェアを返す。
// 解決できないリクエストも拒否せず、匿名として後続に渡す。
func NewSessionMiddleware(resolver SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := resolver.ResolveSession(r.Context(), cookie.Value)
			if err != nil {
				slog.ErrorContext(r.Context(), "failed to resolve session",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if identity == nil {
				next.ServeHTTP(w, r)
				return
			}

			setLogUserID(r.Context(), identity.UserID)
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// NewAuthorizationMiddleware は認可判定に失敗したリクエストを
// リクエストボディを読まずに拒否するミドルウェアを返す。
func NewAuthorizationMiddleware(authorize func(identity *model.Identity) error) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := authorize(IdentityFromContext(r.Context())); err != nil {
				WriteError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireIdentity はログイン済みであることだけを要求する認可関数。
func RequireIdentity(identity *model.Identity) error {
	if identity == nil {
		return model.NewUnauthorizedError()
	}
	return nil
}

// IdentityFromContext はコンテキストから呼び出し元を取得する。匿名ならnil。
func IdentityFromContext(ctx context.Context) *model.Identity {
	identity, _ := ctx.Value(identityContextKey).(*model.Identity)
	return identity
}

// ContextWithIdentity はコンテキストに呼び出し元を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
