package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/vikstrous/dataloadgen"
)

// TripDataLoader batches the per-stop lookups of a trip detail view. Build one
// per request: the loaders cache for their whole lifetime.
type TripDataLoader struct {
	GetStopActivityList *dataloadgen.Loader[uuid.UUID, []AssignedActivity]
	GetCityList         *dataloadgen.Loader[int64, *City]
}

func NewTripDataLoader(dbWrapper ItineraryDBWrapper) *TripDataLoader {
	return &TripDataLoader{
		GetStopActivityList: dataloadgen.NewMappedLoader(keepFetchError(fillMissing(dbWrapper.DataLoaderGetStopActivityList))),
		GetCityList:         dataloadgen.NewMappedLoader(keepFetchError(dbWrapper.DataLoaderGetCityList)),
	}
}

// fillMissing gives stops without assignments an empty list, so the loader
// never reports them as missing keys.
func fillMissing[V any](fetch func(context.Context, []uuid.UUID) (map[uuid.UUID][]V, error)) func(context.Context, []uuid.UUID) (map[uuid.UUID][]V, error) {
	return func(ctx context.Context, keys []uuid.UUID) (map[uuid.UUID][]V, error) {
		res, err := fetch(ctx, keys)
		if err != nil {
			return nil, err
		}
		if res == nil {
			res = make(map[uuid.UUID][]V, len(keys))
		}
		for _, k := range keys {
			if _, ok := res[k]; !ok {
				res[k] = []V{}
			}
		}
		return res, nil
	}
}

// keepFetchError reports a failed batch as that error for every key. A mapped
// loader would otherwise turn a nil result into dataloadgen.ErrNotFound.
func keepFetchError[K comparable, V any](fetch func(context.Context, []K) (map[K]V, error)) func(context.Context, []K) (map[K]V, error) {
	return func(ctx context.Context, keys []K) (map[K]V, error) {
		res, err := fetch(ctx, keys)
		if err == nil {
			return res, nil
		}
		res = make(map[K]V, len(keys))
		perKey := make(dataloadgen.MappedFetchError[K], len(keys))
		for _, k := range keys {
			var zero V
			res[k] = zero
			perKey[k] = err
		}
		return res, perKey
	}
}
