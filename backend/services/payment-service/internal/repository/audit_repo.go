package repository

import (
	"context"
	"database/sql"

	"parkpay/backend/libs/txlog"
)

// AuditRepository mirrors transaction log records into Postgres for reporting.
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository returns repository.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// EnsureSchema creates the mirror table when missing.
func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	const query = `
		CREATE TABLE IF NOT EXISTS payment_transactions (
			id          BIGSERIAL PRIMARY KEY,
			recorded_at TIMESTAMP NOT NULL,
			plate       TEXT      NOT NULL,
			status      TEXT      NOT NULL,
			old_balance BIGINT    NOT NULL,
			new_balance BIGINT    NOT NULL
		)
	`
	_, err := r.db.ExecContext(ctx, query)
	return err
}

// Save inserts one record.
func (r *AuditRepository) Save(ctx context.Context, rec txlog.Record) error {
	const query = `
		INSERT INTO payment_transactions (recorded_at, plate, status, old_balance, new_balance)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, rec.Timestamp, rec.Plate, rec.Status, rec.OldBalance, rec.NewBalance)
	return err
}
