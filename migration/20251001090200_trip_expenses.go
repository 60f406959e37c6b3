package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upTripExpenses, downTripExpenses)
}

func upTripExpenses(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE trip_expenses (
			id UUID PRIMARY KEY,
			trip_id UUID NOT NULL,
			category VARCHAR(50) NOT NULL,
			amount NUMERIC(10,2) NOT NULL CHECK (amount >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_trip_expenses_trip
				FOREIGN KEY(trip_id)
				REFERENCES trips(id)
				ON DELETE CASCADE
		);
	`)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `CREATE INDEX idx_trip_expenses_trip_id ON trip_expenses(trip_id);`)
	return err
}

func downTripExpenses(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS trip_expenses;`)
	return err
}
