package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRecorder persists balance transaction records in PostgreSQL.
// All entries of one Record call commit in a single transaction.
type PostgresRecorder struct {
	db *pgxpool.Pool
}

// NewPostgresRecorder constructs a Postgres-backed recorder.
func NewPostgresRecorder(db *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// Record appends the entries for the given transaction atomically.
func (r *PostgresRecorder) Record(ctx context.Context, transactionID string, entries []Entry) error {
	if err := validate(entries); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	now := time.Now().UTC()
	const insert = `INSERT INTO balance_transaction_records
        (id, transaction_id, entity_type, entity_id, old_balance, new_balance, amount_changed, change_type, single_sided, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for _, e := range entries {
		if _, err := tx.Exec(ctx, insert,
			uuid.New(), transactionID, string(e.EntityType), e.EntityID,
			e.OldBalance, e.NewBalance, e.Amount, string(e.Change), e.SingleSided, now); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Entries returns every record appended for the transaction, oldest first.
func (r *PostgresRecorder) Entries(ctx context.Context, transactionID string) ([]Entry, error) {
	const query = `SELECT entity_type, entity_id, old_balance, new_balance, amount_changed, change_type, single_sided, recorded_at
        FROM balance_transaction_records WHERE transaction_id = $1 ORDER BY recorded_at, id`
	rows, err := r.db.Query(ctx, query, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var entityType, change string
		if err := rows.Scan(&entityType, &e.EntityID, &e.OldBalance, &e.NewBalance, &e.Amount, &change, &e.SingleSided, &e.RecordedAt); err != nil {
			return nil, err
		}
		e.EntityType = EntityType(entityType)
		e.Change = ChangeType(change)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
