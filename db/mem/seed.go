package mem

import (
	"github.com/shopspring/decimal"

	dbt "globetrotter/db/db"
)

var _ dbt.ItineraryDBWrapper = (*InMemoryItineraryDBWrapper)(nil)

func cost(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(v))
}

// SeedDemoCatalog loads a small catalog so a memory-backed server is usable right away.
func (db *InMemoryItineraryDBWrapper) SeedDemoCatalog() error {
	cities := []dbt.City{
		{ID: 1, Name: "Paris", Country: "France", Description: "City of light", Latitude: 48.8566, Longitude: 2.3522},
		{ID: 2, Name: "Rome", Country: "Italy", Description: "The eternal city", Latitude: 41.9028, Longitude: 12.4964},
		{ID: 3, Name: "Kyoto", Country: "Japan", Description: "Temples and gardens", Latitude: 35.0116, Longitude: 135.7681},
		{ID: 4, Name: "Lisbon", Country: "Portugal", Description: "Hills and trams", Latitude: 38.7223, Longitude: -9.1393},
	}
	activities := []dbt.Activity{
		{ID: 1, CityID: 1, Name: "Louvre Museum", Type: "sightseeing", Cost: cost("22.00")},
		{ID: 2, CityID: 1, Name: "Seine River Cruise", Type: "adventure", Cost: cost("15.50")},
		{ID: 3, CityID: 1, Name: "Montmartre Walk", Type: "sightseeing"},
		{ID: 4, CityID: 2, Name: "Colosseum Tour", Type: "sightseeing", Cost: cost("18.00")},
		{ID: 5, CityID: 2, Name: "Trastevere Food Tour", Type: "food", Cost: cost("65.00")},
		{ID: 6, CityID: 3, Name: "Fushimi Inari Hike", Type: "adventure", Cost: cost("0")},
		{ID: 7, CityID: 3, Name: "Tea Ceremony", Type: "culture", Cost: cost("40.00")},
		{ID: 8, CityID: 4, Name: "Tram 28 Ride", Type: "sightseeing", Cost: cost("3.00")},
	}
	return db.SeedCatalog(cities, activities)
}
