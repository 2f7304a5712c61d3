package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-procure/internal/platform/db"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	SaveLoginState(ctx context.Context, id string, state LoginState) error
	Create(ctx context.Context, user *User) error
	List(ctx context.Context) ([]User, error)
}

var userColumns = []string{
	"id", "email", "name", "password_hash", "role", "permissions", "is_active",
	"failed_login_attempts", "locked_until", "last_login_at", "created_at", "updated_at",
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool    *pgxpool.Pool
	builder squirrel.StatementBuilderType
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
}

func (r *PGRepository) findOne(ctx context.Context, where squirrel.Eq) (*User, error) {
	sql, args, err := r.builder.Select(userColumns...).From("users").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("auth: build query: %w", err)
	}
	var user User
	if err := pgxscan.Get(ctx, r.pool, &user, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, db.MapError(err)
	}
	return &user, nil
}

// FindByEmail fetches a user by email, case-insensitively.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, squirrel.Eq{"email": strings.ToLower(strings.TrimSpace(email))})
}

// List returns every user ordered by email.
func (r *PGRepository) List(ctx context.Context) ([]User, error) {
	sql, args, err := r.builder.Select(userColumns...).From("users").OrderBy("email").ToSql()
	if err != nil {
		return nil, fmt.Errorf("auth: build query: %w", err)
	}
	var users []User
	if err := pgxscan.Select(ctx, r.pool, &users, sql, args...); err != nil {
		return nil, db.MapError(err)
	}
	return users, nil
}

// FindByID fetches a user by id.
func (r *PGRepository) FindByID(ctx context.Context, id string) (*User, error) {
	return r.findOne(ctx, squirrel.Eq{"id": id})
}

// SaveLoginState records the counters and timestamps of a login attempt.
func (r *PGRepository) SaveLoginState(ctx context.Context, id string, state LoginState) error {
	q := r.builder.Update("users").
		Set("failed_login_attempts", state.FailedAttempts).
		Set("locked_until", state.LockedUntil).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id})
	if state.LastLoginAt != nil {
		q = q.Set("last_login_at", state.LastLoginAt)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("auth: build update: %w", err)
	}
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("user", id)
	}
	return nil
}

// Create inserts a new user.
func (r *PGRepository) Create(ctx context.Context, user *User) error {
	sql, args, err := r.builder.Insert("users").
		Columns("id", "email", "name", "password_hash", "role", "permissions", "is_active", "created_at", "updated_at").
		Values(user.ID, user.Email, user.Name, user.PasswordHash, user.Role, user.Permissions, user.IsActive,
			user.CreatedAt, user.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("auth: build insert: %w", err)
	}
	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		if db.IsUniqueViolation(err, "") {
			return shared.Conflict("email already registered", err)
		}
		return db.MapError(err)
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
