package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/titan/internal/auth"
	"github.com/hitoshi/titan/internal/middleware"
	"github.com/hitoshi/titan/internal/model"
	"github.com/hitoshi/titan/internal/post"
)

// --- Mock: PostServiceInterface ---

type mockPostService struct {
	listFn      func(ctx context.Context) ([]model.Post, error)
	publishFn   func(ctx context.Context, identity *model.Identity, raw any) (*model.Post, error)
	publishCall int
}

func (m *mockPostService) List(ctx context.Context) ([]model.Post, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockPostService) Publish(ctx context.Context, identity *model.Identity, raw any) (*model.Post, error) {
	m.publishCall++
	if m.publishFn != nil {
		return m.publishFn(ctx, identity, raw)
	}
	return nil, errors.New("not implemented")
}

// --- Mock: AuthServiceInterface ---

type mockAuthService struct {
	registerFn       func(ctx context.Context, in auth.RegisterInput) (*model.User, error)
	loginFn          func(ctx context.Context, email, password string) (*model.Session, *model.User, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, errors.New("session not found or expired")
}

// --- Mock: PresenceAggregator ---

type mockAggregator struct {
	aggregateFn func(ctx context.Context) (*model.PresenceSnapshot, error)
}

func (m *mockAggregator) Aggregate(ctx context.Context) (*model.PresenceSnapshot, error) {
	return m.aggregateFn(ctx)
}

// --- Mock: middleware.SessionResolver ---

// mockSessionResolver はセッションIDごとに呼び出し元を返す。
type mockSessionResolver struct {
	identities map[string]*model.Identity
}

func (m *mockSessionResolver) ResolveSession(ctx context.Context, sessionID string) (*model.Identity, error) {
	return m.identities[sessionID], nil
}

// --- Mock: HealthChecker ---

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// --- helpers ---

const (
	testAdminSession = "admin-session"
	testUserSession  = "user-session"
	testCSRFToken    = "csrf-token-value"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func testIdentities() map[string]*model.Identity {
	return map[string]*model.Identity{
		testAdminSession: {SessionID: testAdminSession, UserID: 7, Email: "admin@example.org", IsAdmin: true},
		testUserSession:  {SessionID: testUserSession, UserID: 8, Email: "user@example.org"},
	}
}

// newTestRouter はモック依存でルーターを構成する。上書きしたい依存はmutateで差し替える。
func newTestRouter(mutate func(deps *RouterDeps)) http.Handler {
	aggregator := &mockAggregator{aggregateFn: func(ctx context.Context) (*model.PresenceSnapshot, error) {
		return &model.PresenceSnapshot{}, nil
	}}
	deps := &RouterDeps{
		Logger:             slog.New(slog.NewJSONHandler(io.Discard, nil)),
		SessionResolver:    &mockSessionResolver{identities: testIdentities()},
		CORSAllowedOrigin:  "http://localhost:3000",
		AuthService:        &mockAuthService{},
		AuthConfig:         AuthHandlerConfig{SessionMaxAge: 86400},
		PostService:        &mockPostService{},
		FeedInfo:           post.FeedInfo{Title: "Titan", BaseURL: "https://titan.example.org"},
		PresenceAggregator: aggregator,
		Health:             &mockHealthChecker{},
	}
	if mutate != nil {
		mutate(deps)
	}
	return NewRouter(deps)
}

// newPublishRequest はCSRFトークンとセッションCookieを付けた投稿リクエストを作る。
// sessionIDが空ならセッションCookieを付けない。
func newPublishRequest(path, body, sessionID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", testCSRFToken)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: sessionID})
	}
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body %q: %v", w.Body.String(), err)
	}
	return body.Error
}
