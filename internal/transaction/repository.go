package transaction

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists transactions.
type Repository interface {
	Create(ctx context.Context, txn Transaction) error
	Get(ctx context.Context, id string) (Transaction, error)
	Update(ctx context.Context, txn Transaction) error
}

// PostgresRepository stores transactions in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const txnColumns = `id, company_id, wallet_id, card_id, kind, status, amount, currency,
    wallet_balance_before, wallet_balance_after, card_balance_before, card_balance_after,
    provider, reference, failure_reason, requires_review, created_at, completed_at`

// Create inserts a transaction record.
func (r *PostgresRepository) Create(ctx context.Context, t Transaction) error {
	txnID, err := uuid.Parse(t.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO transactions (`+txnColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		txnID, t.CompanyID, t.WalletID, t.CardID, string(t.Kind), string(t.Status), t.Amount, t.Currency,
		t.WalletBalanceBefore, t.WalletBalanceAfter, t.CardBalanceBefore, t.CardBalanceAfter,
		t.Provider, t.Reference, t.FailureReason, t.RequiresReview, t.CreatedAt.UTC(), t.CompletedAt)
	return err
}

// Get fetches a transaction by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Transaction, error) {
	txnID, err := uuid.Parse(id)
	if err != nil {
		return Transaction{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+txnColumns+` FROM transactions WHERE id = $1`, txnID)
	var t Transaction
	var idVal uuid.UUID
	var kind, status string
	var createdAt time.Time
	if err := row.Scan(&idVal, &t.CompanyID, &t.WalletID, &t.CardID, &kind, &status, &t.Amount, &t.Currency,
		&t.WalletBalanceBefore, &t.WalletBalanceAfter, &t.CardBalanceBefore, &t.CardBalanceAfter,
		&t.Provider, &t.Reference, &t.FailureReason, &t.RequiresReview, &createdAt, &t.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	t.ID = idVal.String()
	t.Kind = Kind(kind)
	t.Status = Status(status)
	t.CreatedAt = createdAt.UTC()
	return t, nil
}

// Update rewrites mutable fields, refusing writes to a SUCCESS transaction.
func (r *PostgresRepository) Update(ctx context.Context, t Transaction) error {
	txnID, err := uuid.Parse(t.ID)
	if err != nil {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `UPDATE transactions SET status = $2, wallet_balance_after = $3,
        card_balance_after = $4, reference = $5, failure_reason = $6, requires_review = $7, completed_at = $8
        WHERE id = $1 AND status != $9`,
		txnID, string(t.Status), t.WalletBalanceAfter, t.CardBalanceAfter,
		t.Reference, t.FailureReason, t.RequiresReview, t.CompletedAt, string(StatusSuccess))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		existing, getErr := r.Get(ctx, t.ID)
		if getErr == nil && existing.Status == StatusSuccess {
			return ErrImmutable
		}
		return ErrNotFound
	}
	return nil
}
