// Package auth registers accounts, issues session-bound JWTs and
// validates them.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"xhsmarket/internal/model"
	"xhsmarket/internal/service"
	"xhsmarket/internal/store"
	"xhsmarket/pkg/rbac"
	"xhsmarket/pkg/util"
)

const minPasswordLen = 6

var (
	ErrEmailTaken         = fmt.Errorf("email already registered: %w", service.ErrConflict)
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters: %w", minPasswordLen, service.ErrInvalidInput)
	ErrInvalidCredentials = fmt.Errorf("invalid email or password: %w", service.ErrUnauthenticated)
	ErrUserBanned         = fmt.Errorf("account is banned: %w", service.ErrForbidden)
	ErrSessionExpired     = fmt.Errorf("session expired or revoked: %w", service.ErrUnauthenticated)
)

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginResult struct {
	Token     string     `json:"token"`
	User      model.User `json:"user"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

type Service struct {
	users    store.Table[model.User]
	sessions store.Table[model.Session]
	secret   string
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(st *store.Store, secret string, ttl time.Duration, logger *zap.Logger) *Service {
	return &Service{
		users:    st.Users,
		sessions: st.Sessions,
		secret:   secret,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new account. Admins cannot self-register.
func (s *Service) Register(ctx context.Context, in RegisterInput) (model.User, error) {
	email := normalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	if email == "" || !strings.Contains(email, "@") {
		return model.User{}, service.Invalid("a valid email is required")
	}
	if name == "" {
		return model.User{}, service.Invalid("name is required")
	}
	if len(in.Password) < minPasswordLen {
		return model.User{}, ErrWeakPassword
	}

	role := in.Role
	if role == "" {
		role = rbac.RoleUser
	}
	if !rbac.SelfServiceRole(role) {
		return model.User{}, service.Invalid("role %q cannot be chosen at sign-up", role)
	}

	sameEmail := func(u model.User) bool { return strings.EqualFold(u.Email, email) }
	_, found, err := store.Find(ctx, s.users, sameEmail)
	if err != nil {
		return model.User{}, err
	}
	if found {
		return model.User{}, ErrEmailTaken
	}

	hash, err := util.HashPassword(in.Password)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}

	id := service.NewID()
	u := model.User{
		ID:              id,
		Name:            name,
		Email:           email,
		PasswordHash:    hash,
		Avatar:          "https://i.pravatar.cc/150?u=" + id,
		Role:            role,
		Status:          model.UserStatusActive,
		LikedArtworkIDs: []string{},
		CreatedAt:       s.now().UTC(),
	}
	// Insert re-checks the email under the table lock
	if err := s.users.Insert(ctx, u, sameEmail); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return model.User{}, ErrEmailTaken
		}
		return model.User{}, err
	}

	s.logger.Info("User registered", zap.String("user_id", u.ID), zap.String("role", role))
	return u.Public(), nil
}

// Login verifies credentials, opens a session and signs a token for it.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = normalizeEmail(email)
	u, found, err := store.Find(ctx, s.users, func(u model.User) bool { return u.Email == email })
	if err != nil {
		return LoginResult{}, err
	}
	if !found || !util.CheckPassword(password, u.PasswordHash) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if u.Status == model.UserStatusBanned {
		return LoginResult{}, ErrUserBanned
	}

	now := s.now().UTC()
	sess := model.Session{
		ID:        service.NewID(),
		UserID:    u.ID,
		Role:      u.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	token, expiresAt, err := util.GenerateJWT(u.ID, u.Role, sess.ID, s.secret, s.ttl)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign token: %w", err)
	}
	sess.ExpiresAt = expiresAt
	if err := s.sessions.Put(ctx, sess); err != nil {
		return LoginResult{}, err
	}

	s.logger.Info("User logged in", zap.String("user_id", u.ID), zap.String("session_id", sess.ID))
	return LoginResult{Token: token, User: u.Public(), ExpiresAt: expiresAt}, nil
}

// Logout drops the session. Unknown sessions are ignored.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	err := s.sessions.Delete(ctx, sessionID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// Authenticate accepts a token only while its session is still open.
func (s *Service) Authenticate(ctx context.Context, token string) (*util.Claims, error) {
	claims, err := util.ParseJWT(token, s.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrUnauthenticated, err)
	}

	sess, err := s.sessions.Get(ctx, claims.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.now()) || sess.UserID != claims.UserID {
		return nil, ErrSessionExpired
	}

	// role changes take effect on the next request, not the next login
	if u, err := s.users.Get(ctx, claims.UserID); err == nil {
		if u.Status == model.UserStatusBanned {
			return nil, ErrUserBanned
		}
		claims.Role = u.Role
	}
	return claims, nil
}

func (s *Service) CurrentUser(ctx context.Context, userID string) (model.User, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	return u.Public(), nil
}

// PurgeExpired removes sessions past their expiry and returns how many went.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	n := 0
	for _, sess := range sessions {
		if !sess.Expired(now) {
			continue
		}
		if err := s.sessions.Delete(ctx, sess.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return n, err
		}
		n++
	}
	return n, nil
}
