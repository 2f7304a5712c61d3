package audit

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads the audit trail written by shared.AuditLogger.
type PGRepository struct {
	pool    *pgxpool.Pool
	builder squirrel.StatementBuilderType
}

// NewPGRepository constructs the repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
}

// Window selects newest-first rows matching filters.
func (r *PGRepository) Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	sql, args, err := r.builder.
		Select("id", "occurred_at", "actor_id", "action", "entity", "entity_id", "meta").
		From("audit_logs").
		Where(where(filters)).
		OrderBy("occurred_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("audit: build query: %w", err)
	}
	var rows []TimelineRow
	if err := pgxscan.Select(ctx, r.pool, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("audit: select: %w", err)
	}
	return rows, nil
}

func where(f TimelineFilters) squirrel.And {
	and := squirrel.And{}
	if !f.From.IsZero() {
		and = append(and, squirrel.GtOrEq{"occurred_at": f.From})
	}
	if !f.To.IsZero() {
		and = append(and, squirrel.Lt{"occurred_at": f.To})
	}
	if f.Actor != "" {
		and = append(and, squirrel.Eq{"actor_id": f.Actor})
	}
	if f.Entity != "" {
		and = append(and, squirrel.Eq{"entity": f.Entity})
	}
	if f.EntityID != "" {
		and = append(and, squirrel.Eq{"entity_id": f.EntityID})
	}
	if f.Action != "" {
		and = append(and, squirrel.Eq{"action": f.Action})
	}
	return and
}
