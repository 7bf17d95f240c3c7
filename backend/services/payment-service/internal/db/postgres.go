package db

import (
	"context"
	"database/sql"

	libdb "parkpay/backend/libs/db"
)

const applicationName = "parkpay-payment-service"

// NewPostgres returns the audit mirror connection.
func NewPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	return libdb.Open(ctx, libdb.Options{DSN: dsn, ApplicationName: applicationName})
}
