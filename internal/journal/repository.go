package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists journal entries.
type Repository interface {
	Append(ctx context.Context, entry Entry) error
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]Entry, error)
}

const schema = `CREATE TABLE IF NOT EXISTS offramp_journal (
    id UUID PRIMARY KEY,
    fingerprint TEXT NOT NULL DEFAULT '',
    customer_id TEXT NOT NULL,
    step TEXT NOT NULL,
    outcome TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS offramp_journal_customer_idx ON offramp_journal (customer_id, created_at DESC);`

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed journal.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the journal table when missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schema)
	return err
}

// Append inserts an entry.
func (r *PostgresRepository) Append(ctx context.Context, entry Entry) error {
	id, err := uuid.Parse(entry.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO offramp_journal (id, fingerprint, customer_id, step, outcome, detail, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, entry.Fingerprint, entry.CustomerID, entry.Step, entry.Outcome, entry.Detail, entry.CreatedAt.UTC())
	return err
}

// ListByCustomer returns the newest entries for a customer first.
func (r *PostgresRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, fingerprint, customer_id, step, outcome, detail, created_at
        FROM offramp_journal WHERE customer_id = $1 ORDER BY created_at DESC LIMIT $2`, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			id        uuid.UUID
			createdAt time.Time
			e         Entry
		)
		if err := rows.Scan(&id, &e.Fingerprint, &e.CustomerID, &e.Step, &e.Outcome, &e.Detail, &createdAt); err != nil {
			return nil, err
		}
		e.ID = id.String()
		e.CreatedAt = createdAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
