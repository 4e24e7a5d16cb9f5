package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-inventory/internal/domain"
)

const ticketColumns = `id, ticket_type_id, owner_id, ticket_code, purchase_date, checked_in, checked_in_at, status, updated_at`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) CreateBatch(ctx context.Context, tickets []*domain.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	const query = `
        INSERT INTO tickets (id, ticket_type_id, owner_id, ticket_code, purchase_date, checked_in, checked_in_at, status, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	batch := &pgx.Batch{}
	for _, t := range tickets {
		batch.Queue(query,
			t.ID,
			t.TicketTypeID,
			t.OwnerID,
			t.TicketCode,
			t.PurchaseDate,
			t.CheckedIn,
			t.CheckedInAt,
			t.Status,
			t.UpdatedAt,
		)
	}

	br := conn(ctx, r.pool).SendBatch(ctx, batch)
	for i := range tickets {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			if isUniqueViolation(err) {
				return fmt.Errorf("insert ticket %d: %w", i, ErrDuplicate)
			}
			return fmt.Errorf("insert ticket %d: %w", i, err)
		}
	}
	return br.Close()
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByCode(ctx context.Context, code string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_code=$1`
	return r.fetchSingle(ctx, query, code)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(conn(ctx, r.pool).QueryRow(ctx, query, arg))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return ticket, nil
}

func (r *ticketRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE owner_id=$1
              ORDER BY purchase_date DESC, id LIMIT $2 OFFSET $3`
	rows, err := conn(ctx, r.pool).Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) UpdateStatusIf(ctx context.Context, ticket *domain.Ticket, from domain.TicketStatus) (bool, error) {
	const query = `
        UPDATE tickets SET status=$1, checked_in=$2, checked_in_at=$3, updated_at=$4
        WHERE id=$5 AND status=$6`
	cmd, err := conn(ctx, r.pool).Exec(ctx, query,
		ticket.Status,
		ticket.CheckedIn,
		ticket.CheckedInAt,
		ticket.UpdatedAt,
		ticket.ID,
		from,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *ticketRepository) CountActiveByTicketType(ctx context.Context, ticketTypeID string) (int, error) {
	const query = `SELECT COUNT(*) FROM tickets WHERE ticket_type_id=$1 AND status <> $2`
	var count int
	if err := conn(ctx, r.pool).QueryRow(ctx, query, ticketTypeID, domain.TicketStatusCancelled).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ticketRepository) ExpireForEndedEvents(ctx context.Context, now time.Time) (int, error) {
	const query = `
        UPDATE tickets t SET status=$1, updated_at=$2
        FROM ticket_types tt, events e
        WHERE t.ticket_type_id = tt.id AND tt.event_id = e.id
          AND t.status=$3 AND e.ends_at < $2`
	cmd, err := conn(ctx, r.pool).Exec(ctx, query, domain.TicketStatusExpired, now, domain.TicketStatusValid)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.TicketTypeID,
		&ticket.OwnerID,
		&ticket.TicketCode,
		&ticket.PurchaseDate,
		&ticket.CheckedIn,
		&ticket.CheckedInAt,
		&ticket.Status,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
