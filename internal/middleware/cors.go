package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// NewCORSMiddleware はallowedOrigins（カンマ区切り）に対するCORSミドルウェアを返す。
// リクエストのOriginが許可リストにあればそのOriginを返し、Originがなければ先頭の許可オリジンを返す。
// 許可されていないOriginにはAccess-Control-Allow-Originを付けない。
// credentials送信と共存するため、ワイルドカード(*)は使用しない。
func NewCORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	origins := parseOrigins(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			if origin := allowedOrigin(origins, r.Header.Get("Origin")); origin != "" {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			// 読み取りと投稿だけを公開する
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, X-CSRF-Token")
			h.Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func parseOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func allowedOrigin(origins []string, requestOrigin string) string {
	if len(origins) == 0 {
		return ""
	}
	if requestOrigin == "" {
		return origins[0]
	}
	if slices.Contains(origins, requestOrigin) {
		return requestOrigin
	}
	return ""
}
