package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upItineraryTables, downItineraryTables)
}

func upItineraryTables(ctx context.Context, tx *sql.Tx) error {
	// Create trips table
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE trips (
			id UUID PRIMARY KEY,
			owner_id UUID NOT NULL,
			title VARCHAR(255) NOT NULL,
			start_date DATE,
			end_date DATE,
			cover_photo_url TEXT,
			is_public BOOLEAN NOT NULL DEFAULT FALSE,
			public_slug VARCHAR(64),
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT chk_trips_slug_iff_public
				CHECK ((is_public AND public_slug IS NOT NULL) OR (NOT is_public AND public_slug IS NULL))
		);
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `CREATE INDEX idx_trips_owner_id ON trips(owner_id);`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `CREATE UNIQUE INDEX idx_trips_public_slug ON trips(public_slug);`)
	if err != nil {
		return err
	}

	// order_index uniqueness is checked at commit so a bulk reorder may pass through duplicates
	_, err = tx.ExecContext(ctx, `
		CREATE TABLE trip_stops (
			id UUID PRIMARY KEY,
			trip_id UUID NOT NULL,
			city_id BIGINT NOT NULL,
			arrival_date DATE,
			departure_date DATE,
			order_index INTEGER NOT NULL CHECK (order_index > 0),
			notes TEXT,
			CONSTRAINT fk_trip_stops_trip
				FOREIGN KEY(trip_id)
				REFERENCES trips(id)
				ON DELETE CASCADE,
			CONSTRAINT fk_trip_stops_city
				FOREIGN KEY(city_id)
				REFERENCES cities(id),
			CONSTRAINT uq_trip_stops_order
				UNIQUE (trip_id, order_index)
				DEFERRABLE INITIALLY DEFERRED
		);
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		CREATE TABLE stop_activities (
			id UUID PRIMARY KEY,
			stop_id UUID NOT NULL,
			activity_id BIGINT NOT NULL,
			scheduled_at TIMESTAMPTZ,
			notes TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_stop_activities_stop
				FOREIGN KEY(stop_id)
				REFERENCES trip_stops(id)
				ON DELETE CASCADE,
			CONSTRAINT fk_stop_activities_activity
				FOREIGN KEY(activity_id)
				REFERENCES activities(id)
		);
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `CREATE INDEX idx_stop_activities_stop_id ON stop_activities(stop_id);`)
	return err
}

func downItineraryTables(ctx context.Context, tx *sql.Tx) error {
	for _, table := range []string{"stop_activities", "trip_stops", "trips"} {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+table+`;`); err != nil {
			return err
		}
	}
	return nil
}
