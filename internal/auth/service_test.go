package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-procure/internal/rbac"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc     *Service
	repo    *MemoryRepository
	clock   *testClock
	revoked *MemoryRevocationSet
	user    *User
}

const testPassword = "s3cret-pass"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	repo := NewMemoryRepository()
	revoked := NewMemoryRevocationSet(clock.Now)
	tokens := NewTokenService(TokenConfig{Secret: "test-secret"}, clock.Now)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, tokens, revoked, rbac.NewService(), logger, Config{
		PasswordCost: bcrypt.MinCost,
		Now:          clock.Now,
	})
	user, err := svc.CreateUser(context.Background(), NewUser{
		Email: "Buyer@Example.com", Name: "Buyer", Password: testPassword, Role: rbac.RolePurchasing,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, repo: repo, clock: clock, revoked: revoked, user: user}
}

func requireKind(t *testing.T, err error, kind shared.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, shared.KindOf(err), "error: %v", err)
}

func TestLoginIssuesTokenPair(t *testing.T) {
	f := newFixture(t)
	pair, err := f.svc.Login(context.Background(), "buyer@example.com", testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "Bearer", pair.TokenType)
	require.EqualValues(t, 900, pair.ExpiresIn)

	stored, err := f.repo.FindByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	require.Equal(t, f.clock.Now(), *stored.LastLoginAt)
}

func TestLoginUnknownEmailIsInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Login(context.Background(), "nobody@example.com", testPassword)
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginLockoutAfterFiveFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.svc.Login(ctx, f.user.Email, "wrong-password")
		require.ErrorIs(t, err, shared.ErrInvalidCredentials, "attempt %d", i+1)
	}
	stored, err := f.repo.FindByID(ctx, f.user.ID)
	require.NoError(t, err)
	require.Equal(t, 5, stored.FailedLoginAttempts)
	require.NotNil(t, stored.LockedUntil)
	require.Equal(t, f.clock.Now().Add(30*time.Minute), *stored.LockedUntil)

	// The correct password is refused while the window is open.
	_, err = f.svc.Login(ctx, f.user.Email, testPassword)
	requireKind(t, err, shared.KindLocked)
	require.ErrorIs(t, err, shared.ErrAccountLocked)

	f.clock.Advance(29 * time.Minute)
	_, err = f.svc.Login(ctx, f.user.Email, testPassword)
	requireKind(t, err, shared.KindLocked)

	f.clock.Advance(time.Minute)
	_, err = f.svc.Login(ctx, f.user.Email, testPassword)
	require.NoError(t, err)

	stored, err = f.repo.FindByID(ctx, f.user.ID)
	require.NoError(t, err)
	require.Zero(t, stored.FailedLoginAttempts)
	require.Nil(t, stored.LockedUntil)
}

func TestLoginSuccessResetsFailureCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := f.svc.Login(ctx, f.user.Email, "wrong-password")
		require.Error(t, err)
	}
	_, err := f.svc.Login(ctx, f.user.Email, testPassword)
	require.NoError(t, err)

	// Four more failures stay below the limit again.
	for i := 0; i < 4; i++ {
		_, err := f.svc.Login(ctx, f.user.Email, "wrong-password")
		require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	}
	_, err = f.svc.Login(ctx, f.user.Email, testPassword)
	require.NoError(t, err)
}

func TestLoginFailureAfterExpiredLockRestartsCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _ = f.svc.Login(ctx, f.user.Email, "wrong-password")
	}
	f.clock.Advance(31 * time.Minute)

	_, err := f.svc.Login(ctx, f.user.Email, "wrong-password")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	stored, err := f.repo.FindByID(ctx, f.user.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.FailedLoginAttempts)
	require.Nil(t, stored.LockedUntil)

	_, err = f.svc.Login(ctx, f.user.Email, testPassword)
	require.NoError(t, err)
}

func TestLoginInactiveAccountIsForbidden(t *testing.T) {
	f := newFixture(t)
	f.repo.mu.Lock()
	u := f.repo.users[f.user.ID]
	u.IsActive = false
	f.repo.users[f.user.ID] = u
	f.repo.mu.Unlock()

	_, err := f.svc.Login(context.Background(), f.user.Email, testPassword)
	requireKind(t, err, shared.KindForbidden)
}

func TestAuthenticateResolvesRolePermissions(t *testing.T) {
	f := newFixture(t)
	pair, err := f.svc.Login(context.Background(), f.user.Email, testPassword)
	require.NoError(t, err)

	principal, claims, err := f.svc.Authenticate(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, principal.UserID)
	require.Equal(t, "buyer@example.com", principal.Email)
	require.Equal(t, claims.ID, principal.TokenID)
	require.True(t, principal.Has(shared.PermProcurementEdit))
	require.False(t, principal.Has(shared.PermBillsPay))
}

func TestAuthenticateRejectsRefreshAndExpiredTokens(t *testing.T) {
	f := newFixture(t)
	pair, err := f.svc.Login(context.Background(), f.user.Email, testPassword)
	require.NoError(t, err)

	_, _, err = f.svc.Authenticate(context.Background(), pair.RefreshToken)
	requireKind(t, err, shared.KindUnauthorized)

	_, _, err = f.svc.Authenticate(context.Background(), "not-a-token")
	requireKind(t, err, shared.KindUnauthorized)

	f.clock.Advance(16 * time.Minute)
	_, _, err = f.svc.Authenticate(context.Background(), pair.AccessToken)
	requireKind(t, err, shared.KindUnauthorized)
}

func TestAuthenticateRejectsForeignSignature(t *testing.T) {
	f := newFixture(t)
	other := NewTokenService(TokenConfig{Secret: "other-secret"}, f.clock.Now)
	pair, err := other.Issue(f.user)
	require.NoError(t, err)
	_, _, err = f.svc.Authenticate(context.Background(), pair.AccessToken)
	requireKind(t, err, shared.KindUnauthorized)
}

func TestRefreshRotatesAndRevokesOldToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair, err := f.svc.Login(ctx, f.user.Email, testPassword)
	require.NoError(t, err)

	rotated, err := f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	require.NotEqual(t, pair.AccessToken, rotated.AccessToken)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	requireKind(t, err, shared.KindUnauthorized)

	_, err = f.svc.Refresh(ctx, rotated.AccessToken)
	requireKind(t, err, shared.KindUnauthorized)

	_, err = f.svc.Refresh(ctx, rotated.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRefusedWhileLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair, err := f.svc.Login(ctx, f.user.Email, testPassword)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, _ = f.svc.Login(ctx, f.user.Email, "wrong-password")
	}
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	requireKind(t, err, shared.KindLocked)
}

func TestLogoutRevokesAccessAndRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair, err := f.svc.Login(ctx, f.user.Email, testPassword)
	require.NoError(t, err)
	_, claims, err := f.svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, claims, pair.RefreshToken))

	_, _, err = f.svc.Authenticate(ctx, pair.AccessToken)
	requireKind(t, err, shared.KindUnauthorized)
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	requireKind(t, err, shared.KindUnauthorized)
}

func TestLogoutRejectsAnotherUsersRefreshToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateUser(ctx, NewUser{Email: "approver@example.com", Name: "Approver", Password: testPassword, Role: rbac.RoleApprover})
	require.NoError(t, err)

	mine, err := f.svc.Login(ctx, f.user.Email, testPassword)
	require.NoError(t, err)
	theirs, err := f.svc.Login(ctx, "approver@example.com", testPassword)
	require.NoError(t, err)

	_, claims, err := f.svc.Authenticate(ctx, mine.AccessToken)
	require.NoError(t, err)
	err = f.svc.Logout(ctx, claims, theirs.RefreshToken)
	requireKind(t, err, shared.KindForbidden)

	_, err = f.svc.Refresh(ctx, theirs.RefreshToken)
	require.NoError(t, err)
}

func TestMeReturnsEffectivePermissions(t *testing.T) {
	f := newFixture(t)
	profile, err := f.svc.Me(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.Equal(t, rbac.RolePurchasing, profile.Role)
	require.Contains(t, profile.Permissions, shared.PermProcurementEdit)

	_, err = f.svc.Me(context.Background(), "missing")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateUserValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateUser(ctx, NewUser{Email: "x@example.com", Name: "X", Password: testPassword, Role: "overlord"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.CreateUser(ctx, NewUser{Email: "x@example.com", Name: "X", Password: "short", Role: rbac.RoleViewer})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.CreateUser(ctx, NewUser{Email: "BUYER@example.com", Name: "Dup", Password: testPassword, Role: rbac.RoleViewer})
	require.True(t, errors.Is(err, shared.ErrConflict))
}
