package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/spec-kit/ticket-inventory/internal/domain"
)

const ticketTypeColumns = `id, event_id, name, description, category, price, currency, service_fee,
               quantity, sold, max_per_order, sales_start, sales_end, minimum_age, has_seating,
               cancelled, status, version, created_at, updated_at`

type ticketTypeRepository struct {
	pool *pgxpool.Pool
}

// NewTicketTypeRepository instantiates repository.
func NewTicketTypeRepository(pool *pgxpool.Pool) TicketTypeRepository {
	return &ticketTypeRepository{pool: pool}
}

func (r *ticketTypeRepository) Create(ctx context.Context, tt *domain.TicketType) error {
	const query = `
        INSERT INTO ticket_types (id, event_id, name, description, category, price, currency, service_fee,
            quantity, sold, max_per_order, sales_start, sales_end, minimum_age, has_seating, cancelled, status, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
        RETURNING created_at, updated_at`
	if tt.Version == 0 {
		tt.Version = 1
	}
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		tt.ID,
		tt.EventID,
		tt.Name,
		tt.Description,
		tt.Category,
		tt.Price,
		tt.Currency,
		nullDecimal(tt.ServiceFee),
		tt.Quantity,
		tt.Sold,
		tt.MaxPerOrder,
		tt.SalesStart,
		tt.SalesEnd,
		tt.MinimumAge,
		tt.HasSeating,
		tt.Cancelled,
		tt.Status,
		tt.Version,
	).Scan(&tt.CreatedAt, &tt.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *ticketTypeRepository) GetByID(ctx context.Context, id string) (*domain.TicketType, error) {
	query := `SELECT ` + ticketTypeColumns + ` FROM ticket_types WHERE id=$1`
	tt, err := scanTicketType(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return tt, nil
}

func (r *ticketTypeRepository) ListByEvent(ctx context.Context, eventID string) ([]domain.TicketType, error) {
	query := `SELECT ` + ticketTypeColumns + ` FROM ticket_types WHERE event_id=$1 ORDER BY sales_start, name`
	rows, err := conn(ctx, r.pool).Query(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.TicketType{}
	for rows.Next() {
		tt, err := scanTicketType(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *tt)
	}
	return result, rows.Err()
}

func (r *ticketTypeRepository) UpdateIfVersion(ctx context.Context, tt *domain.TicketType, expectedVersion int64) error {
	const query = `
        UPDATE ticket_types SET name=$1, description=$2, price=$3, service_fee=$4, quantity=$5, sold=$6,
            max_per_order=$7, sales_start=$8, sales_end=$9, minimum_age=$10, cancelled=$11, status=$12,
            version=version+1, updated_at=NOW()
        WHERE id=$13 AND version=$14
        RETURNING version, updated_at`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		tt.Name,
		tt.Description,
		tt.Price,
		nullDecimal(tt.ServiceFee),
		tt.Quantity,
		tt.Sold,
		tt.MaxPerOrder,
		tt.SalesStart,
		tt.SalesEnd,
		tt.MinimumAge,
		tt.Cancelled,
		tt.Status,
		tt.ID,
		expectedVersion,
	).Scan(&tt.Version, &tt.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	// Zero rows: either the row is gone or somebody else bumped the version.
	var exists bool
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM ticket_types WHERE id=$1)`, tt.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func scanTicketType(row pgx.Row) (*domain.TicketType, error) {
	var (
		tt         domain.TicketType
		serviceFee decimal.NullDecimal
	)
	if err := row.Scan(
		&tt.ID,
		&tt.EventID,
		&tt.Name,
		&tt.Description,
		&tt.Category,
		&tt.Price,
		&tt.Currency,
		&serviceFee,
		&tt.Quantity,
		&tt.Sold,
		&tt.MaxPerOrder,
		&tt.SalesStart,
		&tt.SalesEnd,
		&tt.MinimumAge,
		&tt.HasSeating,
		&tt.Cancelled,
		&tt.Status,
		&tt.Version,
		&tt.CreatedAt,
		&tt.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if serviceFee.Valid {
		fee := serviceFee.Decimal
		tt.ServiceFee = &fee
	}
	return &tt, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
