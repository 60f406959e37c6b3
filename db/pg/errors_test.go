package pg

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"globetrotter/libs/apperr"
)

func TestTranslateError(t *testing.T) {
	wrapped := func(code string) error {
		return fmt.Errorf("exec: %w", &pgconn.PgError{Code: code, Message: "driver says no"})
	}
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"missing row", gorm.ErrRecordNotFound, apperr.KindNotFound},
		{"unique violation", wrapped("23505"), apperr.KindConflict},
		{"foreign key violation", wrapped("23503"), apperr.KindValidation},
		{"check violation", wrapped("23514"), apperr.KindValidation},
		{"numeric out of range", wrapped("22003"), apperr.KindValidation},
		{"serialization failure", wrapped("40001"), apperr.KindConflict},
		{"statement timeout", wrapped("57014"), apperr.KindTransient},
		{"deadline", context.DeadlineExceeded, apperr.KindTransient},
		{"unknown", wrapped("XX000"), apperr.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperr.KindOf(translateError("op", tt.err)))
		})
	}
	assert.NoError(t, translateError("op", nil))
}
