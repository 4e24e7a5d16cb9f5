package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-inventory/internal/domain"
)

type eventRepository struct {
	pool *pgxpool.Pool
}

// NewEventCatalog returns a Postgres-backed read-only event catalog.
func NewEventCatalog(pool *pgxpool.Pool) EventCatalog {
	return &eventRepository{pool: pool}
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	const query = `
        SELECT id, name, starts_at, ends_at, active
        FROM events WHERE id=$1`
	var event domain.Event
	if err := conn(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&event.ID,
		&event.Name,
		&event.StartsAt,
		&event.EndsAt,
		&event.Active,
	); err != nil {
		return nil, mapNoRows(err)
	}
	return &event, nil
}
