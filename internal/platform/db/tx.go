package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

var tracer = otel.Tracer("odyssey-procure/db")

// Beginner is satisfied by *pgxpool.Pool and pgx.Tx.
type Beginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

var _ Beginner = (*pgxpool.Pool)(nil)

// WithTx executes fn within a READ COMMITTED transaction. Row locks taken with
// SELECT ... FOR UPDATE serialize writers; later statements see rows committed
// while the lock was awaited.
func WithTx(ctx context.Context, pool Beginner, name string, fn func(pgx.Tx) error) error {
	ctx, span := tracer.Start(ctx, "tx "+name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("tx.isolation", string(pgx.ReadCommitted)),
	))
	defer span.End()

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		span.RecordError(err)
		return MapError(fmt.Errorf("platform/db: begin tx: %w", err))
	}

	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline).Milliseconds()
		if remaining <= 0 {
			return context.DeadlineExceeded
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", remaining)); err != nil {
			span.RecordError(err)
			return MapError(fmt.Errorf("platform/db: statement timeout: %w", err))
		}
	}

	if err := fn(tx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return MapError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return MapError(fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}

// MapError translates driver failures into application errors. Errors that
// already carry an application kind pass through untouched.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := shared.AsError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return shared.Conflict("concurrent update, retry the request", err)
		case "57014":
			// statement_timeout fired; the request deadline is the cause.
			return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
	}
	return err
}

// IsUniqueViolation reports a 23505 failure, optionally on a named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
