package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upSavedCities, downSavedCities)
}

func upSavedCities(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE saved_cities (
			user_id UUID NOT NULL,
			city_id BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, city_id),
			CONSTRAINT fk_saved_cities_city
				FOREIGN KEY(city_id)
				REFERENCES cities(id)
				ON DELETE CASCADE
		);
	`)
	if err != nil {
		return err
	}
	// popular cities groups every stop by city
	_, err = tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_trip_stops_city_id ON trip_stops(city_id);`)
	return err
}

func downSavedCities(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP INDEX IF EXISTS idx_trip_stops_city_id;`)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DROP TABLE IF EXISTS saved_cities;`)
	return err
}
