package fees

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DebtRepository persists debts.
type DebtRepository interface {
	Create(ctx context.Context, debt Debt) error
	Get(ctx context.Context, id string) (Debt, error)
	Update(ctx context.Context, debt Debt) error
	ListByCustomer(ctx context.Context, customerID string) ([]Debt, error)
}

// PostgresDebtRepository stores debts in PostgreSQL.
type PostgresDebtRepository struct {
	db *pgxpool.Pool
}

// NewPostgresDebtRepository builds a repository backed by PostgreSQL.
func NewPostgresDebtRepository(db *pgxpool.Pool) *PostgresDebtRepository {
	return &PostgresDebtRepository{db: db}
}

const debtColumns = `id, company_id, customer_id, card_id, amount, amount_paid, currency, status, reason, due_date, created_at`

// Create inserts a debt record.
func (r *PostgresDebtRepository) Create(ctx context.Context, d Debt) error {
	debtID, err := uuid.Parse(d.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO debts (`+debtColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		debtID, d.CompanyID, d.CustomerID, d.CardID, d.Amount, d.AmountPaid,
		d.Currency, string(d.Status), d.Reason, d.DueDate.UTC(), d.CreatedAt.UTC())
	return err
}

// Get fetches a debt by identifier.
func (r *PostgresDebtRepository) Get(ctx context.Context, id string) (Debt, error) {
	debtID, err := uuid.Parse(id)
	if err != nil {
		return Debt{}, ErrDebtNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+debtColumns+` FROM debts WHERE id = $1`, debtID)
	return scanDebt(row)
}

// Update rewrites mutable debt fields.
func (r *PostgresDebtRepository) Update(ctx context.Context, d Debt) error {
	debtID, err := uuid.Parse(d.ID)
	if err != nil {
		return ErrDebtNotFound
	}
	tag, err := r.db.Exec(ctx, `UPDATE debts SET amount_paid = $2, status = $3 WHERE id = $1`,
		debtID, d.AmountPaid, string(d.Status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDebtNotFound
	}
	return nil
}

// ListByCustomer returns every debt for the customer, oldest first.
func (r *PostgresDebtRepository) ListByCustomer(ctx context.Context, customerID string) ([]Debt, error) {
	rows, err := r.db.Query(ctx, `SELECT `+debtColumns+` FROM debts WHERE customer_id = $1 ORDER BY created_at`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var debts []Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		debts = append(debts, d)
	}
	return debts, rows.Err()
}

func scanDebt(row pgx.Row) (Debt, error) {
	var d Debt
	var id uuid.UUID
	var status string
	var dueDate, createdAt time.Time
	if err := row.Scan(&id, &d.CompanyID, &d.CustomerID, &d.CardID, &d.Amount, &d.AmountPaid,
		&d.Currency, &status, &d.Reason, &dueDate, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Debt{}, ErrDebtNotFound
		}
		return Debt{}, err
	}
	d.ID = id.String()
	d.Status = DebtStatus(status)
	d.DueDate = dueDate.UTC()
	d.CreatedAt = createdAt.UTC()
	return d, nil
}

type memoryDebtRepository struct {
	mu      sync.RWMutex
	storage map[string]Debt
}

// NewMemoryDebtRepository constructs an in-memory repository for tests.
func NewMemoryDebtRepository() DebtRepository {
	return &memoryDebtRepository{storage: make(map[string]Debt)}
}

func (r *memoryDebtRepository) Create(_ context.Context, d Debt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[d.ID]; exists {
		return errors.New("debt exists")
	}
	r.storage[d.ID] = d
	return nil
}

func (r *memoryDebtRepository) Get(_ context.Context, id string) (Debt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.storage[id]
	if !ok {
		return Debt{}, ErrDebtNotFound
	}
	return d, nil
}

func (r *memoryDebtRepository) Update(_ context.Context, d Debt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.storage[d.ID]; !ok {
		return ErrDebtNotFound
	}
	r.storage[d.ID] = d
	return nil
}

func (r *memoryDebtRepository) ListByCustomer(_ context.Context, customerID string) ([]Debt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var debts []Debt
	for _, d := range r.storage {
		if d.CustomerID == customerID {
			debts = append(debts, d)
		}
	}
	return debts, nil
}
