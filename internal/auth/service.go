package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-procure/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-procure/internal/rbac"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// Config tunes login lockout.
type Config struct {
	MaxFailedLogins int
	LockoutDuration time.Duration
	PasswordCost    int
	Now             func() time.Time
}

// Service wraps authentication business rules.
type Service struct {
	repo    Repository
	tokens  *TokenService
	revoked RevocationSet
	roles   *rbac.Service
	logger  *slog.Logger
	config  Config
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenService, revoked RevocationSet, roles *rbac.Service, logger *slog.Logger, cfg Config) *Service {
	if cfg.MaxFailedLogins <= 0 {
		cfg.MaxFailedLogins = 5
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 30 * time.Minute
	}
	if cfg.PasswordCost == 0 {
		cfg.PasswordCost = bcrypt.DefaultCost
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if roles == nil {
		roles = rbac.NewService()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tokens: tokens, revoked: revoked, roles: roles, logger: logger, config: cfg}
}

// Login validates email/password credentials and issues a token pair.
// A locked account is refused before the password is checked.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return TokenPair{}, shared.ErrInvalidCredentials
		}
		return TokenPair{}, err
	}

	now := s.config.Now().UTC()
	if user.LockedAt(now) {
		s.logger.Warn("login on locked account", slog.String("user", user.ID))
		return TokenPair{}, shared.AccountLocked(*user.LockedUntil)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return TokenPair{}, s.recordFailure(ctx, user, now)
	}
	if !user.IsActive {
		return TokenPair{}, shared.Forbidden("account is inactive")
	}

	if err := s.repo.SaveLoginState(ctx, user.ID, LoginState{LastLoginAt: &now}); err != nil {
		return TokenPair{}, err
	}
	pair, err := s.tokens.Issue(user)
	if err != nil {
		return TokenPair{}, shared.Internal(err)
	}
	s.logger.Info("user logged in", slog.String("user", user.ID))
	return pair, nil
}

// recordFailure bumps the failure counter and opens the lockout window once
// the limit is reached. A counter left over from an expired window restarts.
func (s *Service) recordFailure(ctx context.Context, user *User, now time.Time) error {
	attempts := user.FailedLoginAttempts + 1
	if user.LockedUntil != nil {
		attempts = 1
	}
	state := LoginState{FailedAttempts: attempts}
	if attempts >= s.config.MaxFailedLogins {
		until := now.Add(s.config.LockoutDuration)
		state.LockedUntil = &until
		s.logger.Warn("account locked", slog.String("user", user.ID), slog.Time("until", until))
	}
	if err := s.repo.SaveLoginState(ctx, user.ID, state); err != nil {
		return err
	}
	return shared.ErrInvalidCredentials
}

// Refresh rotates a token pair. The presented refresh token is revoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.verify(ctx, refreshToken, TokenRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	user, err := s.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return TokenPair{}, shared.Unauthorized("user no longer exists")
		}
		return TokenPair{}, err
	}
	now := s.config.Now()
	if !user.IsActive {
		return TokenPair{}, shared.Forbidden("account is inactive")
	}
	if user.LockedAt(now) {
		return TokenPair{}, shared.AccountLocked(*user.LockedUntil)
	}
	if err := s.revoked.Revoke(ctx, claims.ID, claims.Remaining(now)); err != nil {
		return TokenPair{}, shared.Internal(err)
	}
	pair, err := s.tokens.Issue(user)
	if err != nil {
		return TokenPair{}, shared.Internal(err)
	}
	return pair, nil
}

// Logout revokes the access token and, when present, the refresh token. A
// refresh token belonging to another user is rejected.
func (s *Service) Logout(ctx context.Context, access *Claims, refreshToken string) error {
	now := s.config.Now()
	if refreshToken != "" {
		refresh, err := s.verify(ctx, refreshToken, TokenRefresh)
		if err != nil {
			return err
		}
		if refresh.Subject != access.Subject {
			return shared.Forbidden("refresh token belongs to another user")
		}
		if err := s.revoked.Revoke(ctx, refresh.ID, refresh.Remaining(now)); err != nil {
			return shared.Internal(err)
		}
	}
	if err := s.revoked.Revoke(ctx, access.ID, access.Remaining(now)); err != nil {
		return shared.Internal(err)
	}
	s.logger.Info("user logged out", slog.String("user", access.Subject))
	return nil
}

// Me returns the profile of userID.
func (s *Service) Me(ctx context.Context, userID string) (Profile, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Profile{}, shared.NotFound("user", userID)
		}
		return Profile{}, err
	}
	return Profile{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Role:        user.Role,
		Permissions: s.roles.EffectivePermissions(user.Role, user.Permissions...),
		LastLoginAt: user.LastLoginAt,
	}, nil
}

// ListUsers returns every account with its effective permissions.
func (s *Service) ListUsers(ctx context.Context) ([]Account, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.config.Now().UTC()
	out := make([]Account, 0, len(users))
	for i := range users {
		u := &users[i]
		out = append(out, Account{
			Profile: Profile{
				ID:          u.ID,
				Email:       u.Email,
				Name:        u.Name,
				Role:        u.Role,
				Permissions: s.roles.EffectivePermissions(u.Role, u.Permissions...),
				LastLoginAt: u.LastLoginAt,
			},
			IsActive:       u.IsActive,
			Locked:         u.LockedAt(now),
			FailedAttempts: u.FailedLoginAttempts,
		})
	}
	return out, nil
}

// Unlock clears the failure counter and any lockout for a user.
func (s *Service) Unlock(ctx context.Context, userID string) error {
	if _, err := s.repo.FindByID(ctx, userID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("user", userID)
		}
		return err
	}
	if err := s.repo.SaveLoginState(ctx, userID, LoginState{}); err != nil {
		return err
	}
	s.logger.Info("account unlocked", slog.String("user", userID), slog.String("by", shared.ActorFromContext(ctx)))
	return nil
}

// Authenticate verifies an access token and resolves the caller.
func (s *Service) Authenticate(ctx context.Context, raw string) (*shared.Principal, *Claims, error) {
	claims, err := s.verify(ctx, raw, TokenAccess)
	if err != nil {
		return nil, nil, err
	}
	return &shared.Principal{
		UserID:      claims.Subject,
		Email:       claims.Email,
		Role:        claims.Role,
		TokenID:     claims.ID,
		Permissions: s.roles.EffectivePermissions(claims.Role, claims.Permissions...),
	}, claims, nil
}

func (s *Service) verify(ctx context.Context, raw, typ string) (*Claims, error) {
	claims, err := s.tokens.Parse(raw, typ)
	if err != nil {
		s.logger.Debug("reject token", slog.Any("error", err))
		return nil, shared.Unauthorized("invalid or expired token")
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, shared.Internal(err)
	}
	if revoked {
		return nil, shared.Unauthorized("token has been revoked")
	}
	return claims, nil
}

// CreateUser provisions an account with a bcrypt password hash.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	if err := httpx.Validate(in); err != nil {
		return nil, err
	}
	role := strings.ToLower(strings.TrimSpace(in.Role))
	if _, err := s.roles.GetRole(role); err != nil {
		return nil, shared.Validation("unknown role", shared.FieldError{Field: "role", Reason: "is not a known role"})
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.config.PasswordCost)
	if err != nil {
		return nil, shared.Internal(err)
	}
	now := s.config.Now().UTC()
	user := &User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: string(hash),
		Role:         role,
		Permissions:  []string{},
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
