package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCatalogTables, downCatalogTables)
}

func upCatalogTables(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE cities (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			country VARCHAR(255) NOT NULL,
			description TEXT,
			image_url TEXT,
			latitude NUMERIC(9,6),
			longitude NUMERIC(9,6)
		);
	`)
	if err != nil {
		return err
	}

	// activities are read-only reference data; negative costs never enter the catalog
	_, err = tx.ExecContext(ctx, `
		CREATE TABLE activities (
			id BIGSERIAL PRIMARY KEY,
			city_id BIGINT NOT NULL,
			name VARCHAR(255) NOT NULL,
			type VARCHAR(50),
			description TEXT,
			cost NUMERIC(10,2) CHECK (cost >= 0),
			image_url TEXT,
			location_address TEXT,
			CONSTRAINT fk_activities_city
				FOREIGN KEY(city_id)
				REFERENCES cities(id)
				ON DELETE CASCADE
		);
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `CREATE INDEX idx_activities_city_id ON activities(city_id);`)
	return err
}

func downCatalogTables(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS activities;`); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS cities;`)
	return err
}
