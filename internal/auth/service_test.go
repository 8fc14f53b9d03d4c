package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/titan/internal/model"
	"github.com/hitoshi/titan/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn    func(ctx context.Context, id int64) (*model.User, error)
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
	createFn      func(ctx context.Context, user *model.User) error
	setAdminFn    func(ctx context.Context, email string, isAdmin bool) (bool, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) SetAdmin(ctx context.Context, email string, isAdmin bool) (bool, error) {
	if m.setAdminFn != nil {
		return m.setAdminFn(ctx, email, isAdmin)
	}
	return false, nil
}

type mockSessionRepo struct {
	createFn     func(ctx context.Context, session *model.Session) error
	findByIDFn   func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

type mockLoginRecorder struct {
	outcomes []string
}

func (m *mockLoginRecorder) RecordLoginAttempt(outcome string) {
	m.outcomes = append(m.outcomes, outcome)
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ LoginRecorder = (*mockLoginRecorder)(nil)

func testConfig() ServiceConfig {
	return ServiceConfig{SessionMaxAge: 86400, BcryptCost: bcrypt.MinCost}
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return string(hash)
}

func apiStatus(t *testing.T, err error) int {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T (%v)", err, err)
	}
	return apiErr.Status
}

// --- テスト ---

func TestRegister_CreatesUserWithHashedPassword(t *testing.T) {
	var created *model.User
	userRepo := &mockUserRepo{
		createFn: func(_ context.Context, user *model.User) error {
			user.ID = 42
			created = user
			return nil
		},
	}
	svc := NewService(userRepo, &mockSessionRepo{}, nil, testConfig())

	user, err := svc.Register(context.Background(), RegisterInput{Email: " new@example.org ", Password: "secret", Name: "New"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if user.ID != 42 || user.Email != "new@example.org" {
		t.Errorf("user = %+v", user)
	}
	if created.PasswordHash == "secret" {
		t.Fatal("password must not be stored in plain text")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("secret")); err != nil {
		t.Errorf("stored hash does not match password: %v", err)
	}
	if created.Name == nil || *created.Name != "New" {
		t.Errorf("Name = %v, want New", created.Name)
	}
}

func TestRegister_MissingFields_Returns400(t *testing.T) {
	tests := []RegisterInput{
		{Email: "", Password: "secret"},
		{Email: "a@example.org", Password: ""},
		{Email: "   ", Password: "secret"},
	}

	for _, in := range tests {
		userRepo := &mockUserRepo{
			createFn: func(_ context.Context, _ *model.User) error {
				t.Fatal("Create must not be called")
				return nil
			},
		}
		svc := NewService(userRepo, &mockSessionRepo{}, nil, testConfig())

		_, err := svc.Register(context.Background(), in)
		if got := apiStatus(t, err); got != 400 {
			t.Errorf("status = %d, want 400", got)
		}
	}
}

func TestRegister_DuplicateEmail_Returns409(t *testing.T) {
	userRepo := &mockUserRepo{
		createFn: func(_ context.Context, _ *model.User) error {
			return repository.ErrEmailTaken
		},
	}
	svc := NewService(userRepo, &mockSessionRepo{}, nil, testConfig())

	_, err := svc.Register(context.Background(), RegisterInput{Email: "dup@example.org", Password: "secret"})
	if got := apiStatus(t, err); got != 409 {
		t.Errorf("status = %d, want 409", got)
	}
}

func TestLogin_ValidCredentials_CreatesSession(t *testing.T) {
	hash := hashPassword(t, "secret")
	userRepo := &mockUserRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.User, error) {
			return &model.User{ID: 7, Email: email, PasswordHash: hash}, nil
		},
	}
	var createdSession *model.Session
	sessionRepo := &mockSessionRepo{
		createFn: func(_ context.Context, session *model.Session) error {
			createdSession = session
			return nil
		},
	}
	recorder := &mockLoginRecorder{}
	svc := NewService(userRepo, sessionRepo, recorder, testConfig())

	session, user, err := svc.Login(context.Background(), "admin@example.org", "secret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if user.ID != 7 {
		t.Errorf("user ID = %d, want 7", user.ID)
	}
	if session == nil || createdSession != session {
		t.Fatal("expected session to be persisted and returned")
	}
	if len(session.ID) != 64 {
		t.Errorf("session ID length = %d, want 64", len(session.ID))
	}
	if session.UserID != 7 {
		t.Errorf("session UserID = %d, want 7", session.UserID)
	}
	if session.ExpiresAt.Before(time.Now().Add(23 * time.Hour)) {
		t.Errorf("ExpiresAt = %v, want about 24h from now", session.ExpiresAt)
	}
	if len(recorder.outcomes) != 1 || recorder.outcomes[0] != LoginSucceeded {
		t.Errorf("outcomes = %v, want [%s]", recorder.outcomes, LoginSucceeded)
	}
}

func TestLogin_InvalidCredentials_Returns401(t *testing.T) {
	hash := hashPassword(t, "secret")

	tests := []struct {
		name     string
		user     *model.User
		password string
	}{
		{name: "unknown email", user: nil, password: "secret"},
		{name: "wrong password", user: &model.User{ID: 7, PasswordHash: hash}, password: "wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userRepo := &mockUserRepo{
				findByEmailFn: func(_ context.Context, _ string) (*model.User, error) {
					return tt.user, nil
				},
			}
			sessionRepo := &mockSessionRepo{
				createFn: func(_ context.Context, _ *model.Session) error {
					t.Fatal("session must not be created")
					return nil
				},
			}
			recorder := &mockLoginRecorder{}
			svc := NewService(userRepo, sessionRepo, recorder, testConfig())

			_, _, err := svc.Login(context.Background(), "a@example.org", tt.password)
			if got := apiStatus(t, err); got != 401 {
				t.Errorf("status = %d, want 401", got)
			}
			if len(recorder.outcomes) != 1 || recorder.outcomes[0] != LoginFailed {
				t.Errorf("outcomes = %v, want [%s]", recorder.outcomes, LoginFailed)
			}
		})
	}
}

func TestLogout_DeletesSession(t *testing.T) {
	var deletedSessionID string
	sessionRepo := &mockSessionRepo{
		deleteByIDFn: func(_ context.Context, id string) error {
			deletedSessionID = id
			return nil
		},
	}
	svc := NewService(&mockUserRepo{}, sessionRepo, nil, testConfig())

	if err := svc.Logout(context.Background(), "session-to-delete"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if deletedSessionID != "session-to-delete" {
		t.Errorf("deleted session ID = %q, want %q", deletedSessionID, "session-to-delete")
	}
}

func TestLogout_EmptySessionID_ReturnsError(t *testing.T) {
	svc := NewService(&mockUserRepo{}, &mockSessionRepo{}, nil, testConfig())

	if err := svc.Logout(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty session ID")
	}
}

func TestResolveSession(t *testing.T) {
	name := "Admin"
	validSession := &model.Session{ID: "sess-1", UserID: 7, ExpiresAt: time.Now().Add(time.Hour)}
	admin := &model.User{ID: 7, Email: "admin@example.org", Name: &name, IsAdmin: true}

	tests := []struct {
		name      string
		sessionID string
		session   *model.Session
		user      *model.User
		want      *model.Identity
	}{
		{name: "no cookie", sessionID: "", want: nil},
		{name: "expired or unknown session", sessionID: "sess-1", session: nil, want: nil},
		{name: "deleted user", sessionID: "sess-1", session: validSession, user: nil, want: nil},
		{
			name:      "admin session",
			sessionID: "sess-1",
			session:   validSession,
			user:      admin,
			want:      &model.Identity{SessionID: "sess-1", UserID: 7, Email: "admin@example.org", Name: &name, IsAdmin: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessionRepo := &mockSessionRepo{
				findByIDFn: func(_ context.Context, _ string) (*model.Session, error) {
					return tt.session, nil
				},
			}
			userRepo := &mockUserRepo{
				findByIDFn: func(_ context.Context, _ int64) (*model.User, error) {
					return tt.user, nil
				},
			}
			svc := NewService(userRepo, sessionRepo, nil, testConfig())

			got, err := svc.ResolveSession(context.Background(), tt.sessionID)
			if err != nil {
				t.Fatalf("ResolveSession() error = %v", err)
			}
			if tt.want == nil {
				if got != nil {
					t.Errorf("ResolveSession() = %+v, want nil", got)
				}
				return
			}
			if got == nil || *got != *tt.want {
				t.Errorf("ResolveSession() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResolveSession_RepositoryError(t *testing.T) {
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(_ context.Context, _ string) (*model.Session, error) {
			return nil, errors.New("db down")
		},
	}
	svc := NewService(&mockUserRepo{}, sessionRepo, nil, testConfig())

	if _, err := svc.ResolveSession(context.Background(), "sess-1"); err == nil {
		t.Fatal("expected error when session lookup fails")
	}
}

func TestGetCurrentUser_ValidSession_ReturnsUser(t *testing.T) {
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: 3, ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	userRepo := &mockUserRepo{
		findByIDFn: func(_ context.Context, id int64) (*model.User, error) {
			return &model.User{ID: id, Email: "user@example.org"}, nil
		},
	}
	svc := NewService(userRepo, sessionRepo, nil, testConfig())

	user, err := svc.GetCurrentUser(context.Background(), "session-valid")
	if err != nil {
		t.Fatalf("GetCurrentUser() error = %v", err)
	}
	if user.ID != 3 {
		t.Errorf("user ID = %d, want 3", user.ID)
	}
}

func TestGetCurrentUser_ExpiredSession_ReturnsError(t *testing.T) {
	svc := NewService(&mockUserRepo{}, &mockSessionRepo{}, nil, testConfig())

	if _, err := svc.GetCurrentUser(context.Background(), "expired-session"); err == nil {
		t.Fatal("expected error for expired session")
	}
}

func TestGrantAdmin(t *testing.T) {
	var gotEmail string
	var gotFlag bool
	userRepo := &mockUserRepo{
		setAdminFn: func(_ context.Context, email string, isAdmin bool) (bool, error) {
			gotEmail, gotFlag = email, isAdmin
			return email == "admin@example.org", nil
		},
	}
	svc := NewService(userRepo, &mockSessionRepo{}, nil, testConfig())

	if err := svc.GrantAdmin(context.Background(), "admin@example.org"); err != nil {
		t.Fatalf("GrantAdmin() error = %v", err)
	}
	if gotEmail != "admin@example.org" || !gotFlag {
		t.Errorf("SetAdmin called with (%q, %v)", gotEmail, gotFlag)
	}

	err := svc.GrantAdmin(context.Background(), "missing@example.org")
	if got := apiStatus(t, err); got != 404 {
		t.Errorf("status = %d, want 404", got)
	}
}
