package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"globetrotter/libs/apperr"
)

// translateError maps driver failures onto apperr kinds.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound(op, "record not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Wrap(apperr.KindConflict, op, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return apperr.Validation(op, "dangling reference: %v", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperr.Wrap(apperr.KindTransient, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return apperr.Wrap(apperr.KindConflict, op, err)
		case pgErr.Code == "23503":
			return apperr.Validation(op, "dangling reference: %s", pgErr.Message)
		// 22003 is numeric_value_out_of_range
		case pgErr.Code == "23514", pgErr.Code == "22P02", pgErr.Code == "22003":
			return apperr.Validation(op, "%s", pgErr.Message)
		// serialization_failure, deadlock_detected
		case pgErr.Code == "40001", pgErr.Code == "40P01":
			return apperr.Wrap(apperr.KindConflict, op, err)
		// query_canceled covers statement_timeout
		case pgErr.Code == "57014", strings.HasPrefix(pgErr.Code, "08"):
			return apperr.Wrap(apperr.KindTransient, op, err)
		}
	}
	if pgconn.Timeout(err) {
		return apperr.Wrap(apperr.KindTransient, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
