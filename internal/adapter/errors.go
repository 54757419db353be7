package adapter

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/armelgeek/better-query/internal/errs"
)

// ConvertDBError converts backend errors into the engine's error taxonomy.
// Unique and foreign-key violations surface as conflicts; everything else
// unexpected is a storage error.
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: duplicate value for unique field: %s", errs.ErrConflict, pgErr.Detail)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: record is still referenced: %s", errs.ErrConflict, pgErr.Detail)
		case "23502": // not_null_violation
			return fmt.Errorf("%w: column %s must not be null", errs.ErrValidation, pgErr.ColumnName)
		}
	}

	return fmt.Errorf("%w: %v", errs.ErrStorage, err)
}

func notFoundResource(resource string) error {
	return errs.NotFoundf("resource %s is not registered", resource)
}
