package diff

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
	odiff "github.com/r3labs/diff/v3"

	dbt "globetrotter/db/db"
	"globetrotter/mq/mq"
)

func GetCustomDiffer() *odiff.Differ {
	ret, err := odiff.NewDiffer(odiff.CustomValueDiffers(&UUIDComparer{}))
	if err != nil {
		panic(err)
	}
	return ret
}

// TripChanges lists the trip fields that differ between before and after,
// named by their diff tags. Timestamps are not compared.
func TripChanges(before, after dbt.Trip) ([]mq.FieldChange, error) {
	changelog, err := GetCustomDiffer().Diff(before, after)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trip %s: %w", before.ID, err)
	}
	changes := make([]mq.FieldChange, 0, len(changelog))
	for _, c := range changelog {
		changes = append(changes, mq.FieldChange{
			Field: strings.Join(c.Path, "."),
			From:  c.From,
			To:    c.To,
		})
	}
	return changes, nil
}

type UUIDComparer struct{}

var (
	uuidType = reflect.TypeOf(uuid.UUID{})
)

// Match reports whether the pair is a uuid (or a uuid against nothing).
func (c UUIDComparer) Match(a, b reflect.Value) bool {
	aok := a.Kind() == uuidType.Kind() && a.Type() == uuidType
	bok := b.Kind() == uuidType.Kind() && b.Type() == uuidType
	return (aok && bok) || (a.Kind() == reflect.Invalid && bok) || (b.Kind() == reflect.Invalid && aok)
}

// Diff records a uuid change as one update instead of sixteen byte changes.
func (c UUIDComparer) Diff(_ odiff.DiffType, _ odiff.DiffFunc, cl *odiff.Changelog, path []string, a reflect.Value, b reflect.Value, _ interface{}) error {
	valA := reflect.Indirect(a)
	valB := reflect.Indirect(b)

	// nil on one side only is a change
	if !valA.IsValid() || !valB.IsValid() {
		if valA.IsValid() != valB.IsValid() {
			cl.Add(odiff.UPDATE, path, a.Interface(), b.Interface())
		}
		return nil
	}

	u1 := valA.Interface().(uuid.UUID)
	u2 := valB.Interface().(uuid.UUID)
	if u1 != u2 {
		cl.Add(odiff.UPDATE, path, u1, u2)
	}
	return nil
}

// InsertParentDiffer is a no-op: a uuid is a leaf.
func (c UUIDComparer) InsertParentDiffer(_ func(path []string, a reflect.Value, b reflect.Value, p interface{}) error) {
}
