package card

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists card state.
type Repository interface {
	Create(ctx context.Context, card Card) error
	Get(ctx context.Context, id string) (Card, error)
	GetByProviderRef(ctx context.Context, providerRef string) (Card, error)
	Update(ctx context.Context, card Card) error
}

// PostgresRepository stores cards in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const cardColumns = `id, company_id, customer_id, wallet_id, currency, balance, status, provider, provider_ref, masked_pan, created_at, terminated_at`

// Create inserts a card record.
func (r *PostgresRepository) Create(ctx context.Context, c Card) error {
	cardID, err := uuid.Parse(c.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO cards (`+cardColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		cardID, c.CompanyID, c.CustomerID, c.WalletID, c.Currency, c.Balance,
		string(c.Status), c.Provider, c.ProviderRef, c.MaskedPAN, c.CreatedAt.UTC(), c.TerminatedAt)
	return err
}

// Get fetches a card by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Card, error) {
	cardID, err := uuid.Parse(id)
	if err != nil {
		return Card{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = $1`, cardID)
	return scanCard(row)
}

// GetByProviderRef fetches a card by the provider's opaque reference.
// Webhook events identify cards this way.
func (r *PostgresRepository) GetByProviderRef(ctx context.Context, providerRef string) (Card, error) {
	row := r.db.QueryRow(ctx, `SELECT `+cardColumns+` FROM cards WHERE provider_ref = $1`, providerRef)
	return scanCard(row)
}

// Update writes mutable card fields.
func (r *PostgresRepository) Update(ctx context.Context, c Card) error {
	cardID, err := uuid.Parse(c.ID)
	if err != nil {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `UPDATE cards SET balance = $2, status = $3, provider_ref = $4, masked_pan = $5, terminated_at = $6
        WHERE id = $1`, cardID, c.Balance, string(c.Status), c.ProviderRef, c.MaskedPAN, c.TerminatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCard(row pgx.Row) (Card, error) {
	var c Card
	var id uuid.UUID
	var status string
	var createdAt time.Time
	var terminatedAt *time.Time
	if err := row.Scan(&id, &c.CompanyID, &c.CustomerID, &c.WalletID, &c.Currency, &c.Balance,
		&status, &c.Provider, &c.ProviderRef, &c.MaskedPAN, &createdAt, &terminatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Card{}, ErrNotFound
		}
		return Card{}, err
	}
	c.ID = id.String()
	c.Status = Status(status)
	c.CreatedAt = createdAt.UTC()
	c.TerminatedAt = terminatedAt
	return c, nil
}
