package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the wallet does not exist.
var ErrNotFound = errors.New("wallet not found")

// Repository persists wallet state.
type Repository interface {
	Create(ctx context.Context, wallet Wallet) error
	Get(ctx context.Context, id string) (Wallet, error)
	UpdateBalances(ctx context.Context, id string, balance, payinBalance int64) error
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a wallet record.
func (r *PostgresRepository) Create(ctx context.Context, wallet Wallet) error {
	walletID, err := uuid.Parse(wallet.ID)
	if err != nil {
		return err
	}
	companyID, err := uuid.Parse(wallet.CompanyID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO wallets (id, company_id, currency, balance, payin_balance, active, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		walletID, companyID, wallet.Currency, wallet.Balance, wallet.PayinBalance, wallet.Active, wallet.CreatedAt.UTC())
	return err
}

// Get fetches a wallet by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Wallet, error) {
	walletUUID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT id, company_id, currency, balance, payin_balance, active, created_at
        FROM wallets WHERE id = $1`, walletUUID)
	var w Wallet
	var idVal, companyID uuid.UUID
	var createdAt time.Time
	if err := row.Scan(&idVal, &companyID, &w.Currency, &w.Balance, &w.PayinBalance, &w.Active, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	w.ID = idVal.String()
	w.CompanyID = companyID.String()
	w.CreatedAt = createdAt.UTC()
	return w, nil
}

// UpdateBalances writes both balance columns for the wallet.
func (r *PostgresRepository) UpdateBalances(ctx context.Context, id string, balance, payinBalance int64) error {
	walletUUID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `UPDATE wallets SET balance = $2, payin_balance = $3 WHERE id = $1`,
		walletUUID, balance, payinBalance)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
